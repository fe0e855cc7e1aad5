package store

import (
	"iter"
	"slices"
	"strings"

	"github.com/fieldwork/tasksync/internal/schema"
)

// Select filters ordered by search text and status, then stable-sorts the
// survivors by f.SortBy in f.SortDirection. Ties keep their order from
// ordered. The work happens on each iteration.
func Select(ordered []schema.Task, f schema.Filters) iter.Seq[schema.Task] {
	return func(yield func(schema.Task) bool) {
		search := strings.ToLower(strings.TrimSpace(f.Search))

		matched := make([]schema.Task, 0, len(ordered))
		for _, task := range ordered {
			if search != "" && !strings.Contains(strings.ToLower(task.Title), search) {
				continue
			}
			if !f.Status.Matches(task.Status) {
				continue
			}
			matched = append(matched, task)
		}

		sortBy := f.SortBy
		if sortBy == "" {
			sortBy = schema.SortUpdatedAt
		}
		desc := f.SortDirection == schema.SortDesc
		slices.SortStableFunc(matched, func(a, b schema.Task) int {
			c := a.SortTime(sortBy).Compare(b.SortTime(sortBy))
			if desc {
				return -c
			}
			return c
		})

		for _, task := range matched {
			if !yield(task) {
				return
			}
		}
	}
}
