package queue

import (
	"slices"
	"testing"
	"time"

	"github.com/fieldwork/tasksync/internal/schema"
)

func mutation(id string, typ schema.MutationType, taskID string) schema.Mutation {
	return schema.Mutation{
		ID:        id,
		Type:      typ,
		Task:      schema.Task{ID: taskID, Title: taskID},
		Timestamp: time.Now(),
	}
}

func ids(q *Queue) []string {
	var out []string
	for _, m := range q.Entries() {
		out = append(out, m.ID)
	}
	return out
}

func TestEnqueue_KeepsDuplicates(t *testing.T) {
	q := New()
	q.Enqueue(mutation("m1", schema.MutationCreate, "a"))
	q.Enqueue(mutation("m2", schema.MutationUpdate, "a"))
	q.Enqueue(mutation("m3", schema.MutationUpdate, "a"))

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	if got := ids(q); !slices.Equal(got, []string{"m1", "m2", "m3"}) {
		t.Errorf("Entries() = %v", got)
	}
}

func TestDequeueConfirmed(t *testing.T) {
	tests := []struct {
		name      string
		confirmed []string
		want      []string
		removed   int
	}{
		{"middle", []string{"m2"}, []string{"m1", "m3"}, 1},
		{"prefix", []string{"m1", "m2"}, []string{"m3"}, 2},
		{"all", []string{"m1", "m2", "m3"}, nil, 3},
		{"unknown id", []string{"m9"}, []string{"m1", "m2", "m3"}, 0},
		{"none", nil, []string{"m1", "m2", "m3"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			for _, id := range []string{"m1", "m2", "m3"} {
				q.Enqueue(mutation(id, schema.MutationUpdate, "a"))
			}

			set := make(map[string]struct{})
			for _, id := range tt.confirmed {
				set[id] = struct{}{}
			}
			if n := q.DequeueConfirmed(set); n != tt.removed {
				t.Errorf("DequeueConfirmed() removed %d, want %d", n, tt.removed)
			}
			if got := ids(q); !slices.Equal(got, tt.want) {
				t.Errorf("Entries() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClear(t *testing.T) {
	q := New()
	q.Enqueue(mutation("m1", schema.MutationDelete, "a"))
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len() after Clear = %d", q.Len())
	}
}

func TestEntries_IsCopy(t *testing.T) {
	q := New()
	q.Enqueue(mutation("m1", schema.MutationCreate, "a"))

	entries := q.Entries()
	entries[0].Task.Title = "changed"
	if q.Entries()[0].Task.Title != "a" {
		t.Error("Entries() exposed internal state")
	}
}

func TestRestore_DropsInvalid(t *testing.T) {
	q := New()
	q.Enqueue(mutation("old", schema.MutationCreate, "z"))

	dropped := q.Restore([]schema.Mutation{
		mutation("m1", schema.MutationCreate, "a"),
		{ID: "", Type: schema.MutationCreate, Task: schema.Task{ID: "b"}},
		mutation("m3", "rename", "c"),
		mutation("m4", schema.MutationDelete, "d"),
	})

	if dropped != 2 {
		t.Errorf("Restore() dropped %d, want 2", dropped)
	}
	if got := ids(q); !slices.Equal(got, []string{"m1", "m4"}) {
		t.Errorf("Entries() = %v", got)
	}
}

func TestIDs(t *testing.T) {
	set := IDs([]schema.Mutation{mutation("m1", schema.MutationCreate, "a"), mutation("m2", schema.MutationDelete, "a")})
	if len(set) != 2 {
		t.Fatalf("IDs() = %v", set)
	}
	if _, ok := set["m2"]; !ok {
		t.Error("IDs() missing m2")
	}
}
