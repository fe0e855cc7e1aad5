// Package store holds the in-memory task collection and its view filters.
//
// A Store is not safe for concurrent use. The orchestrator owns the live
// instance and publishes Clone copies to readers.
package store

import (
	"iter"
	"slices"
	"strings"

	"github.com/fieldwork/tasksync/internal/schema"
)

// Store is a keyed task collection plus a display order.
// The order is recomputed only by UpsertMany.
type Store struct {
	entities map[string]schema.Task
	ids      []string
	filters  schema.Filters
}

// New returns an empty store with default filters.
func New() *Store {
	return &Store{
		entities: make(map[string]schema.Task),
		filters:  schema.DefaultFilters(),
	}
}

// UpsertMany replaces each task by id and re-sorts the id order by
// UpdatedAt descending. Equal timestamps order by id so the result does not
// depend on input order.
func (s *Store) UpsertMany(tasks []schema.Task) {
	for _, task := range tasks {
		s.entities[task.ID] = task.Clone()
	}
	s.ids = s.ids[:0]
	for id := range s.entities {
		s.ids = append(s.ids, id)
	}
	slices.SortFunc(s.ids, func(a, b string) int {
		ta, tb := s.entities[a].UpdatedAt, s.entities[b].UpdatedAt
		if c := tb.Compare(ta); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}

// ApplyPartialUpdate merges changes into the task with id. It reports false,
// and does nothing, when the task is absent.
func (s *Store) ApplyPartialUpdate(id string, changes schema.Changes) bool {
	task, ok := s.entities[id]
	if !ok {
		return false
	}
	s.entities[id] = task.Apply(changes)
	return true
}

// Remove deletes the task with id. It reports false when the task is absent.
func (s *Store) Remove(id string) bool {
	if _, ok := s.entities[id]; !ok {
		return false
	}
	delete(s.entities, id)
	s.ids = slices.DeleteFunc(s.ids, func(existing string) bool { return existing == id })
	return true
}

// Get returns the task with id.
func (s *Store) Get(id string) (schema.Task, bool) {
	task, ok := s.entities[id]
	if !ok {
		return schema.Task{}, false
	}
	return task.Clone(), true
}

// IDs returns the display order.
func (s *Store) IDs() []string {
	return slices.Clone(s.ids)
}

// All returns every task in display order.
func (s *Store) All() []schema.Task {
	out := make([]schema.Task, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.entities[id].Clone())
	}
	return out
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	return len(s.entities)
}

// Filters returns the current view filters.
func (s *Store) Filters() schema.Filters {
	return s.filters
}

// SetFilters merges a partial update into the filters.
func (s *Store) SetFilters(patch schema.FilterPatch) {
	s.filters = s.filters.Apply(patch)
}

// ResetFilters restores the default filters.
func (s *Store) ResetFilters() {
	s.filters = schema.DefaultFilters()
}

// Reset empties the collection and restores default filters.
func (s *Store) Reset() {
	s.entities = make(map[string]schema.Task)
	s.ids = nil
	s.filters = schema.DefaultFilters()
}

// Clone returns an independent copy.
func (s *Store) Clone() *Store {
	out := &Store{
		entities: make(map[string]schema.Task, len(s.entities)),
		ids:      slices.Clone(s.ids),
		filters:  s.filters,
	}
	for id, task := range s.entities {
		out.entities[id] = task.Clone()
	}
	return out
}

// Visible yields the tasks that pass the current filters, sorted per the
// filters. The sequence reads the store each time it is iterated.
func (s *Store) Visible() iter.Seq[schema.Task] {
	return func(yield func(schema.Task) bool) {
		for task := range Select(s.All(), s.filters) {
			if !yield(task) {
				return
			}
		}
	}
}
