package orchestrator

import (
	"iter"
	"time"

	"github.com/fieldwork/tasksync/internal/connectivity"
	"github.com/fieldwork/tasksync/internal/schema"
	"github.com/fieldwork/tasksync/internal/store"
)

// Status is the engine's current activity. It is for display only.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

// Snapshot is an immutable view of engine state published after each job.
type Snapshot struct {
	tasks *store.Store

	Status          Status
	Error           string
	LastSyncedAt    time.Time
	Connectivity    connectivity.Event
	ServedFromCache bool
	Pending         []schema.Mutation
}

// Task returns the task with id.
func (s *Snapshot) Task(id string) (schema.Task, bool) {
	return s.tasks.Get(id)
}

// IDs returns task ids, most recently updated first.
func (s *Snapshot) IDs() []string {
	return s.tasks.IDs()
}

// Tasks returns every task in id order.
func (s *Snapshot) Tasks() []schema.Task {
	return s.tasks.All()
}

// Len returns the number of tasks.
func (s *Snapshot) Len() int {
	return s.tasks.Len()
}

// Filters returns the active filters.
func (s *Snapshot) Filters() schema.Filters {
	return s.tasks.Filters()
}

// QueueLength returns the number of mutations awaiting replay.
func (s *Snapshot) QueueLength() int {
	return len(s.Pending)
}

// Visible yields the tasks that pass the active filters.
func (s *Snapshot) Visible() iter.Seq[schema.Task] {
	return s.tasks.Visible()
}

// VisibleWith yields the tasks that pass f instead of the active filters.
func (s *Snapshot) VisibleWith(f schema.Filters) iter.Seq[schema.Task] {
	return store.Select(s.tasks.All(), f)
}
