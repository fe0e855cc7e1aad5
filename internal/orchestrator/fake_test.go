package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldwork/tasksync/internal/auth"
	"github.com/fieldwork/tasksync/internal/cache"
	"github.com/fieldwork/tasksync/internal/connectivity"
	"github.com/fieldwork/tasksync/internal/gateway"
	"github.com/fieldwork/tasksync/internal/schema"
)

// fakeRemote is an in-memory Remote with switchable failures.
type fakeRemote struct {
	mu           sync.Mutex
	rows         map[string]schema.Task
	offline      bool
	reject       error
	failReplayAt int
	serverNow    time.Time
	calls        []string
	lastReplay   []schema.MutationType
}

func newFakeRemote(tasks ...schema.Task) *fakeRemote {
	f := &fakeRemote{rows: make(map[string]schema.Task), failReplayAt: -1}
	for _, task := range tasks {
		f.rows[task.ID] = task
	}
	return f
}

func (f *fakeRemote) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *fakeRemote) setReject(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject = err
}

func (f *fakeRemote) setFailReplayAt(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReplayAt = i
}

func (f *fakeRemote) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeRemote) Row(id string) (schema.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.rows[id]
	return task, ok
}

// begin records op and returns the failure configured for it, if any.
func (f *fakeRemote) begin(op string) error {
	f.calls = append(f.calls, op)
	if f.offline {
		return fmt.Errorf("%s: %w", op, gateway.ErrUnreachable)
	}
	if f.reject != nil && op != "fetch" && op != "replay" {
		return &gateway.RejectedError{Op: op, Err: f.reject}
	}
	return nil
}

func (f *fakeRemote) stamp() time.Time {
	if !f.serverNow.IsZero() {
		return f.serverNow
	}
	return time.Now().UTC()
}

func (f *fakeRemote) FetchAll(context.Context) ([]schema.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("fetch"); err != nil {
		return nil, err
	}
	out := make([]schema.Task, 0, len(f.rows))
	for _, task := range f.rows {
		out = append(out, task)
	}
	slices.SortFunc(out, func(a, b schema.Task) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

func (f *fakeRemote) Create(_ context.Context, task schema.Task) (schema.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("create"); err != nil {
		return schema.Task{}, err
	}
	now := f.stamp()
	task.CreatedAt, task.UpdatedAt = now, now
	f.rows[task.ID] = task
	return task, nil
}

func (f *fakeRemote) Update(_ context.Context, id string, changes schema.Changes) (schema.Changes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("update"); err != nil {
		return schema.Changes{}, err
	}
	task, ok := f.rows[id]
	if !ok {
		return schema.Changes{}, &gateway.RejectedError{Op: "update", Err: schema.ErrTaskNotFound}
	}
	changes = changes.WithUpdatedAt(f.stamp())
	f.rows[id] = task.Apply(changes)
	return changes, nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("delete"); err != nil {
		return err
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeRemote) ReplayQueue(_ context.Context, entries []schema.Mutation) ([]schema.Mutation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("replay"); err != nil {
		return nil, err
	}
	f.lastReplay = nil
	var done []schema.Mutation
	for i, m := range entries {
		if i == f.failReplayAt {
			return done, &gateway.RejectedError{Op: "replay " + string(m.Type), Err: fmt.Errorf("check constraint failed")}
		}
		switch m.Type {
		case schema.MutationCreate, schema.MutationUpdate:
			f.rows[m.Task.ID] = m.Task
		case schema.MutationDelete:
			delete(f.rows, m.Task.ID)
		}
		f.lastReplay = append(f.lastReplay, m.Type)
		done = append(done, m)
	}
	return done, nil
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

// harness bundles an engine with its collaborators.
type harness struct {
	engine   *Engine
	remote   *fakeRemote
	conn     *connectivity.Manual
	bridge   *cache.Bridge
	sessions *auth.Sessions
}

// newHarness builds an engine with a signed-in user. It is not started.
func newHarness(t *testing.T, remote *fakeRemote, initial connectivity.Event, configure ...func(*Config)) *harness {
	t.Helper()

	kv := cache.NewMemory()
	h := &harness{
		remote:   remote,
		conn:     connectivity.NewManual(initial),
		bridge:   cache.NewBridge(kv, quietLogger()),
		sessions: auth.NewSessions(kv),
	}
	_, err := h.sessions.Login(context.Background(), "user@example.com")
	require.NoError(t, err)

	config := &Config{Logger: quietLogger()}
	for _, fn := range configure {
		fn(config)
	}
	h.engine, err = New(remote, h.bridge, h.conn, h.sessions, config)
	require.NoError(t, err)
	return h
}

// start runs the engine until the test ends and waits for startup work.
func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Start(context.Background()))
	t.Cleanup(func() { _ = h.engine.Stop() })
	h.idle(t)
}

func (h *harness) idle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Idle(ctx))
}

// setOnline flips connectivity and waits for the resulting sync.
func (h *harness) setOnline(t *testing.T, online bool) {
	t.Helper()
	h.conn.SetOnline(online)
	h.idle(t)
}

func fixture(id, title string, updated time.Time) schema.Task {
	return schema.Task{
		ID:           id,
		Title:        title,
		AssignedTo:   "user@example.com",
		AssignedDate: updated,
		Status:       schema.StatusNotStarted,
		CreatedAt:    updated,
		UpdatedAt:    updated,
		CreatedBy:    "u1",
	}
}

func ptr[T any](v T) *T {
	return &v
}
