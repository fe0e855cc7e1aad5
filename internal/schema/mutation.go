package schema

import (
	"fmt"
	"time"
)

// MutationType names the remote write a queued mutation replays as.
type MutationType string

const (
	MutationCreate MutationType = "create"
	MutationUpdate MutationType = "update"
	MutationDelete MutationType = "delete"
)

// Mutation is a local change waiting for remote confirmation.
type Mutation struct {
	ID        string       `json:"id"`
	Type      MutationType `json:"type"`
	Task      Task         `json:"task"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewMutation wraps a task snapshot in a queue entry with its own id.
func NewMutation(typ MutationType, task Task, now time.Time) Mutation {
	return Mutation{
		ID:        NewID(),
		Type:      typ,
		Task:      task.Clone(),
		Timestamp: now,
	}
}

// Validate checks the entry can be replayed.
func (m *Mutation) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("mutation id is required")
	}
	switch m.Type {
	case MutationCreate, MutationUpdate, MutationDelete:
	default:
		return fmt.Errorf("invalid mutation type %q", m.Type)
	}
	if m.Task.ID == "" {
		return fmt.Errorf("mutation %s has no task id", m.ID)
	}
	return nil
}
