package orchestrator

import (
	"time"

	"github.com/fieldwork/tasksync/internal/schema"
)

// EventKind names an engine notification.
type EventKind string

const (
	EventTaskCreated  EventKind = "task_created"
	EventTaskUpdated  EventKind = "task_updated"
	EventTaskDeleted  EventKind = "task_deleted"
	EventStatus       EventKind = "status"
	EventSyncComplete EventKind = "sync_complete"
)

// Event describes a state change for subscribers such as the dashboard.
type Event struct {
	Kind     EventKind    `json:"kind"`
	TaskID   string       `json:"taskId,omitempty"`
	Task     *schema.Task `json:"task,omitempty"`
	Queued   bool         `json:"queued,omitempty"`
	Status   Status       `json:"status,omitempty"`
	Error    string       `json:"error,omitempty"`
	Replayed int          `json:"replayed,omitempty"`
	Fetched  int          `json:"fetched,omitempty"`
	At       time.Time    `json:"at"`
}

// Notifier receives engine events. Notify is called from the engine's loop
// and must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) {
	f(e)
}
