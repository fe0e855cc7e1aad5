package gateway

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"net"
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/fieldwork/tasksync/internal/schema"
)

var serverTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeBackend is an in-memory Backend that can be told to fail.
type fakeBackend struct {
	mu    sync.Mutex
	rows  map[string]Row
	calls []string

	failOn  string // method name, or "upsert:<id>" / "delete:<id>"
	failErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{rows: make(map[string]Row)}
}

func (f *fakeBackend) fail(key string) error {
	f.calls = append(f.calls, key)
	if f.failOn != "" && f.failOn == key {
		return f.failErr
	}
	return nil
}

func (f *fakeBackend) List(ctx context.Context) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("list"); err != nil {
		return nil, err
	}
	var out []Row
	for _, r := range f.rows {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Row) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

func (f *fakeBackend) Insert(ctx context.Context, row Row) (Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("insert"); err != nil {
		return Row{}, err
	}
	row.CreatedAt = serverTime
	row.UpdatedAt = serverTime
	f.rows[row.ID] = row
	return row, nil
}

func (f *fakeBackend) Update(ctx context.Context, id string, p Patch) (Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("update"); err != nil {
		return Row{}, err
	}
	row, ok := f.rows[id]
	if !ok {
		return Row{}, ErrNotFound
	}
	for _, a := range p.Assignments() {
		switch a.Column {
		case "title":
			row.Title = a.Value.(string)
		case "status":
			row.Status = a.Value.(string)
		case "completed":
			row.Completed = a.Value.(bool)
		case "due_date":
			if a.Value == nil {
				row.DueDate = nil
			} else {
				due := a.Value.(time.Time)
				row.DueDate = &due
			}
		case "updated_at":
			row.UpdatedAt = a.Value.(time.Time)
		}
	}
	f.rows[id] = row
	return row, nil
}

func (f *fakeBackend) Upsert(ctx context.Context, row Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("upsert:" + row.ID); err != nil {
		return err
	}
	f.rows[row.ID] = row
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("delete:" + id); err != nil {
		return err
	}
	delete(f.rows, id)
	return nil
}

func quietConfig() *Config {
	return &Config{
		Timeout: time.Second,
		Logger:  log.New(&bytes.Buffer{}, "", 0),
		Now:     func() time.Time { return serverTime.Add(time.Hour) },
	}
}

func task(id, title string) schema.Task {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return schema.Task{ID: id, Title: title, AssignedTo: "user@example.com", AssignedDate: now, Status: schema.StatusNotStarted, CreatedAt: now, UpdatedAt: now, CreatedBy: "user-1"}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unreachable bool
		rejected    bool
	}{
		{"deadline", context.DeadlineExceeded, true, false},
		{"bad conn", driver.ErrBadConn, true, false},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true, false},
		{"wrapped errno", fmt.Errorf("dial: %w", syscall.ECONNRESET), true, false},
		{"pq connection class", &pq.Error{Code: "08006"}, true, false},
		{"pq shutdown", &pq.Error{Code: "57P01"}, true, false},
		{"pq unique violation", &pq.Error{Code: "23505"}, false, true},
		{"libsql text", errors.New("failed to execute: connection refused"), true, false},
		{"constraint", errors.New("CHECK constraint failed: status"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err)
			if errors.Is(got, ErrUnreachable) != tt.unreachable {
				t.Errorf("unreachable = %v, want %v (%v)", !tt.unreachable, tt.unreachable, got)
			}
			if IsRejected(got) != tt.rejected {
				t.Errorf("rejected = %v, want %v (%v)", !tt.rejected, tt.rejected, got)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("Classify() dropped the cause: %v", got)
			}
		})
	}

	if Classify("op", nil) != nil {
		t.Error("Classify(nil) != nil")
	}
	if !IsOffline(fmt.Errorf("wrapped: %w", ErrNotConfigured)) {
		t.Error("IsOffline(ErrNotConfigured) = false")
	}
}

func TestCreate_UsesServerTimestamps(t *testing.T) {
	backend := newFakeBackend()
	g := NewWithBackend(backend, quietConfig())

	got, err := g.Create(context.Background(), task("a", "Design review"))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if !got.CreatedAt.Equal(serverTime) || !got.UpdatedAt.Equal(serverTime) {
		t.Errorf("timestamps = %v / %v, want server time", got.CreatedAt, got.UpdatedAt)
	}
	if got.Title != "Design review" || got.AssignedTo != "user@example.com" {
		t.Errorf("Create() = %+v", got)
	}
}

func TestUpdate_ReturnsProjection(t *testing.T) {
	backend := newFakeBackend()
	backend.rows["a"] = RowFromTask(task("a", "Old"))
	g := NewWithBackend(backend, quietConfig())

	status := schema.StatusCompleted
	changes := schema.Changes{Status: &status}.Normalize(schema.StatusNotStarted)
	got, err := g.Update(context.Background(), "a", changes)
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if got.Title != nil {
		t.Errorf("projection includes untouched title %q", *got.Title)
	}
	if got.Status == nil || *got.Status != schema.StatusCompleted || got.Completed == nil || !*got.Completed {
		t.Errorf("projection status/completed = %v/%v", got.Status, got.Completed)
	}
	if got.UpdatedAt == nil || !got.UpdatedAt.Equal(serverTime.Add(time.Hour)) {
		t.Errorf("projection UpdatedAt = %v", got.UpdatedAt)
	}
}

func TestUpdate_MissingRowIsRejected(t *testing.T) {
	g := NewWithBackend(newFakeBackend(), quietConfig())
	title := "x"
	_, err := g.Update(context.Background(), "missing", schema.Changes{Title: &title})
	if !IsRejected(err) || !errors.Is(err, schema.ErrTaskNotFound) {
		t.Errorf("Update() error = %v, want rejected not found", err)
	}
}

func TestFetchAll_Ordered(t *testing.T) {
	backend := newFakeBackend()
	older := RowFromTask(task("a", "A"))
	newer := RowFromTask(task("b", "B"))
	newer.UpdatedAt = newer.UpdatedAt.Add(time.Hour)
	backend.rows["a"], backend.rows["b"] = older, newer

	tasks, err := NewWithBackend(backend, quietConfig()).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "b" {
		t.Errorf("FetchAll() = %+v, want b first", tasks)
	}
}

func TestReplayQueue_CreateUpdateDelete(t *testing.T) {
	backend := newFakeBackend()
	g := NewWithBackend(backend, quietConfig())
	now := time.Now()

	a := task("a", "A")
	renamed := a
	renamed.Title = "A2"
	entries := []schema.Mutation{
		schema.NewMutation(schema.MutationCreate, a, now),
		schema.NewMutation(schema.MutationUpdate, renamed, now),
		schema.NewMutation(schema.MutationDelete, renamed, now),
	}

	replayed, err := g.ReplayQueue(context.Background(), entries)
	if err != nil {
		t.Fatalf("ReplayQueue() failed: %v", err)
	}
	if len(replayed) != 3 {
		t.Fatalf("replayed %d, want 3", len(replayed))
	}
	if _, ok := backend.rows["a"]; ok {
		t.Error("row a survived create/update/delete replay")
	}
	want := []string{"upsert:a", "upsert:a", "delete:a"}
	if !slices.Equal(backend.calls, want) {
		t.Errorf("calls = %v, want %v", backend.calls, want)
	}
}

func TestReplayQueue_StopsAtFirstFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.failOn = "upsert:b"
	backend.failErr = syscall.ECONNREFUSED
	g := NewWithBackend(backend, quietConfig())
	now := time.Now()

	entries := []schema.Mutation{
		schema.NewMutation(schema.MutationCreate, task("a", "A"), now),
		schema.NewMutation(schema.MutationCreate, task("b", "B"), now),
		schema.NewMutation(schema.MutationCreate, task("c", "C"), now),
	}

	replayed, err := g.ReplayQueue(context.Background(), entries)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("ReplayQueue() error = %v, want unreachable", err)
	}
	if len(replayed) != 1 || replayed[0].ID != entries[0].ID {
		t.Errorf("replayed = %v, want only the first entry", replayed)
	}
	if _, ok := backend.rows["c"]; ok {
		t.Error("entry after the failure was replayed")
	}
}

func TestOpen_ConfigErrorIsSticky(t *testing.T) {
	calls := 0
	g := New(func(context.Context) (Backend, error) {
		calls++
		return nil, errors.New(`unknown driver "mysql"`)
	}, quietConfig())

	for i := 0; i < 3; i++ {
		if _, err := g.FetchAll(context.Background()); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("FetchAll() error = %v, want ErrNotConfigured", err)
		}
	}
	if calls != 1 {
		t.Errorf("opener called %d times, want 1", calls)
	}
}

func TestOpen_TransportErrorRetries(t *testing.T) {
	calls := 0
	backend := newFakeBackend()
	g := New(func(context.Context) (Backend, error) {
		calls++
		if calls == 1 {
			return nil, &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
		}
		return backend, nil
	}, quietConfig())

	if _, err := g.FetchAll(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("first FetchAll() error = %v, want unreachable", err)
	}
	if _, err := g.FetchAll(context.Background()); err != nil {
		t.Fatalf("second FetchAll() failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("opener called %d times, want 2", calls)
	}
}

func TestNilOpenerIsNotConfigured(t *testing.T) {
	g := New(nil, quietConfig())
	if err := g.Delete(context.Background(), "a"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Delete() error = %v, want ErrNotConfigured", err)
	}
}

func TestRowMapping(t *testing.T) {
	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	in := task("a", "A")
	in.DueDate = &due
	in.Status = schema.StatusCompleted
	in.Completed = true

	row := RowFromTask(in)
	if !row.Completed || row.Status != "completed" || row.DueDate == nil {
		t.Fatalf("RowFromTask() = %+v", row)
	}
	out := row.Task()
	if out.ID != in.ID || !out.DueDate.Equal(due) || !out.Completed {
		t.Errorf("Task() = %+v", out)
	}

	legacy := Row{ID: "b", Title: "B", Completed: true}
	if got := legacy.Task(); got.Status != schema.StatusCompleted {
		t.Errorf("row without status mapped to %q", got.Status)
	}
}

func TestPatchAssignments(t *testing.T) {
	title := "T"
	p := PatchFromChanges(schema.Changes{Title: &title, ClearDueDate: true}, serverTime)

	var cols []string
	for _, a := range p.Assignments() {
		cols = append(cols, a.Column)
	}
	if !slices.Equal(cols, []string{"title", "due_date", "updated_at"}) {
		t.Errorf("Assignments() columns = %v", cols)
	}
}
