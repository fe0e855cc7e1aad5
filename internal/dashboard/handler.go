package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/fieldwork/tasksync/internal/orchestrator"
	"github.com/fieldwork/tasksync/internal/schema"
)

// TaskUpdateData contains task change information
type TaskUpdateData struct {
	TaskID     string `json:"task_id"`
	Action     string `json:"action"` // created, updated, deleted
	Status     string `json:"status,omitempty"`
	Title      string `json:"title,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Queued     bool   `json:"queued,omitempty"`
}

// StatusData contains the engine's sync status
type StatusData struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SyncCompleteData contains sync completion information
type SyncCompleteData struct {
	Fetched  int `json:"fetched"`
	Replayed int `json:"replayed"`
}

// StatsData contains task statistics
type StatsData struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	Pending         int            `json:"pending"`
	Status          string         `json:"status"`
	Online          *bool          `json:"online"`
	ServedFromCache bool           `json:"served_from_cache"`
	LastSyncedAt    *time.Time     `json:"last_synced_at,omitempty"`
}

// Handler turns engine events into dashboard messages. It implements
// orchestrator.Notifier.
type Handler struct {
	server   *Server
	snapshot func() *orchestrator.Snapshot
	logger   *log.Logger
}

var _ orchestrator.Notifier = (*Handler)(nil)

// NewHandler creates an event handler that broadcasts through server and
// reads statistics from snapshot.
func NewHandler(server *Server, snapshot func() *orchestrator.Snapshot, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	h := &Handler{
		server:   server,
		snapshot: snapshot,
		logger:   logger,
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// Notify implements orchestrator.Notifier.
func (h *Handler) Notify(ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventTaskCreated:
		h.broadcast(MessageTypeTaskUpdate, ev.At, taskUpdate("created", ev))
		h.broadcastStats()
	case orchestrator.EventTaskUpdated:
		h.broadcast(MessageTypeTaskUpdate, ev.At, taskUpdate("updated", ev))
		h.broadcastStats()
	case orchestrator.EventTaskDeleted:
		h.broadcast(MessageTypeTaskUpdate, ev.At, taskUpdate("deleted", ev))
		h.broadcastStats()
	case orchestrator.EventStatus:
		h.broadcast(MessageTypeStatus, ev.At, StatusData{Status: string(ev.Status), Error: ev.Error})
	case orchestrator.EventSyncComplete:
		h.logger.Printf("Sync complete: %d fetched, %d replayed", ev.Fetched, ev.Replayed)
		h.broadcast(MessageTypeSyncComplete, ev.At, SyncCompleteData{Fetched: ev.Fetched, Replayed: ev.Replayed})
		h.broadcastStats()
	}
}

func taskUpdate(action string, ev orchestrator.Event) TaskUpdateData {
	data := TaskUpdateData{TaskID: ev.TaskID, Action: action, Queued: ev.Queued}
	if ev.Task != nil {
		data.Status = string(ev.Task.Status)
		data.Title = ev.Task.Title
		data.AssignedTo = ev.Task.AssignedTo
	}
	return data
}

func (h *Handler) broadcast(typ MessageType, at time.Time, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: at, Data: dataJSON})
}

func (h *Handler) broadcastStats() {
	h.server.Broadcast(h.statsMessage())
}

func (h *Handler) statsMessage() Message {
	msg := Message{Type: MessageTypeStats, Timestamp: time.Now()}
	dataJSON, err := json.Marshal(h.Stats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return msg
	}
	msg.Data = dataJSON
	return msg
}

// Stats computes statistics from the latest engine snapshot.
func (h *Handler) Stats() StatsData {
	return statsFrom(h.snapshot())
}

func statsFrom(snap *orchestrator.Snapshot) StatsData {
	stats := StatsData{
		ByStatus:        make(map[string]int, len(schema.Statuses)),
		Pending:         snap.QueueLength(),
		Status:          string(snap.Status),
		Online:          snap.Connectivity.IsConnected,
		ServedFromCache: snap.ServedFromCache,
	}
	for _, s := range schema.Statuses {
		stats.ByStatus[string(s)] = 0
	}
	for _, task := range snap.Tasks() {
		stats.Total++
		stats.ByStatus[string(task.Status)]++
	}
	if !snap.LastSyncedAt.IsZero() {
		at := snap.LastSyncedAt
		stats.LastSyncedAt = &at
	}
	return stats
}
