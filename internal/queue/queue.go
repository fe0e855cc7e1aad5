// Package queue holds mutations made while the remote store was unavailable.
//
// Entries are kept in enqueue order and never merged: several entries for
// the same task are all replayed, oldest first. A Queue is not safe for
// concurrent use; the orchestrator owns it.
package queue

import (
	"slices"

	"github.com/fieldwork/tasksync/internal/schema"
)

// Queue is a FIFO log of pending mutations.
type Queue struct {
	entries []schema.Mutation
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends m to the tail.
func (q *Queue) Enqueue(m schema.Mutation) {
	q.entries = append(q.entries, m)
}

// DequeueConfirmed removes the entries whose mutation id is in confirmed and
// returns how many were removed. The rest keep their relative order.
func (q *Queue) DequeueConfirmed(confirmed map[string]struct{}) int {
	before := len(q.entries)
	q.entries = slices.DeleteFunc(q.entries, func(m schema.Mutation) bool {
		_, ok := confirmed[m.ID]
		return ok
	})
	return before - len(q.entries)
}

// Clear drops every entry.
func (q *Queue) Clear() {
	q.entries = nil
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the pending entries, oldest first.
func (q *Queue) Entries() []schema.Mutation {
	out := make([]schema.Mutation, len(q.entries))
	for i, m := range q.entries {
		m.Task = m.Task.Clone()
		out[i] = m
	}
	return out
}

// Restore replaces the queue with entries read back from the cache.
// Entries that cannot be replayed are dropped.
func (q *Queue) Restore(entries []schema.Mutation) (dropped int) {
	q.entries = make([]schema.Mutation, 0, len(entries))
	for _, m := range entries {
		if err := m.Validate(); err != nil {
			dropped++
			continue
		}
		q.entries = append(q.entries, m)
	}
	return dropped
}

// IDs collects the mutation ids of entries into a set for DequeueConfirmed.
func IDs(entries []schema.Mutation) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, m := range entries {
		set[m.ID] = struct{}{}
	}
	return set
}
