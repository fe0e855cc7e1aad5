package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/fieldwork/tasksync/internal/gateway"
	"github.com/fieldwork/tasksync/internal/schema"
)

// ErrOffline is returned by ForceSyncNow when the device is not online.
var ErrOffline = errors.New("device is offline")

// Outcome is the result of a command. Reason is a human-readable message
// when OK is false.
type Outcome struct {
	OK       bool         `json:"ok"`
	Reason   string       `json:"reason,omitempty"`
	Queued   bool         `json:"queued,omitempty"`
	Task     *schema.Task `json:"task,omitempty"`
	Replayed int          `json:"replayed,omitempty"`

	Err error `json:"-"`
}

func ok() Outcome {
	return Outcome{OK: true}
}

func failed(err error) Outcome {
	return Outcome{Reason: err.Error(), Err: err}
}

func withTask(out Outcome, task schema.Task) Outcome {
	out.Task = &task
	return out
}

// Task returns the task with id from the latest snapshot.
func (e *Engine) Task(id string) (schema.Task, bool) {
	return e.Snapshot().Task(id)
}

// Visible yields the filtered, sorted tasks from the latest snapshot.
func (e *Engine) Visible() iter.Seq[schema.Task] {
	return e.Snapshot().Visible()
}

// SetFilters merges patch into the active filters.
func (e *Engine) SetFilters(ctx context.Context, patch schema.FilterPatch) Outcome {
	if err := patch.Validate(); err != nil {
		return failed(err)
	}
	return e.do(ctx, func(context.Context) Outcome {
		e.store.SetFilters(patch)
		return ok()
	})
}

// ResetFilters restores the default filters.
func (e *Engine) ResetFilters(ctx context.Context) Outcome {
	return e.do(ctx, func(context.Context) Outcome {
		e.store.ResetFilters()
		return ok()
	})
}

// CreateTask adds a task for the signed-in user. Offline, or when the remote
// is unreachable, the task is applied locally and queued.
func (e *Engine) CreateTask(ctx context.Context, in schema.Input) Outcome {
	return e.do(ctx, func(ctx context.Context) Outcome {
		return e.createTask(ctx, in)
	})
}

// UpdateTask changes the given fields of a task.
func (e *Engine) UpdateTask(ctx context.Context, id string, changes schema.Changes) Outcome {
	return e.do(ctx, func(ctx context.Context) Outcome {
		return e.updateTask(ctx, id, changes)
	})
}

// DeleteTask removes a task.
func (e *Engine) DeleteTask(ctx context.Context, id string) Outcome {
	return e.do(ctx, func(ctx context.Context) Outcome {
		return e.deleteTask(ctx, id)
	})
}

// ForceSyncNow re-reads connectivity, then flushes the queue if anything is
// pending, or fetches otherwise.
func (e *Engine) ForceSyncNow(ctx context.Context) Outcome {
	return e.do(ctx, e.forceSync)
}

// HydrateFromCache loads tasks into the store without contacting the
// remote. A nil slice reloads the cached snapshot; explicit tasks are also
// written to the cache.
func (e *Engine) HydrateFromCache(ctx context.Context, tasks []schema.Task) Outcome {
	return e.do(ctx, func(ctx context.Context) Outcome {
		return e.hydrate(ctx, tasks)
	})
}

// SignOut empties the store and the queue, then ends the session. Unsent
// mutations are discarded.
func (e *Engine) SignOut(ctx context.Context) Outcome {
	return e.do(ctx, e.signOut)
}

func (e *Engine) createTask(ctx context.Context, in schema.Input) Outcome {
	task := schema.NewTask(in, "", e.now())
	if err := task.Validate(); err != nil {
		return failed(fmt.Errorf("invalid task: %w", err))
	}

	e.reduceCreate(pending[created]())

	userID, signedIn := e.identity.CurrentUser(ctx)
	var res Result[created]
	if !signedIn {
		res = rejected[created](schema.ErrNotAuthenticated)
	} else {
		task.CreatedBy = userID
		res = e.writeCreate(ctx, task)
	}

	e.reduceCreate(res)
	if res.Phase == Rejected {
		return failed(res.Err)
	}

	e.persistTasks(ctx)
	if res.Value.Offline {
		e.persistQueue(ctx)
	}
	return withTask(Outcome{OK: true, Queued: res.Value.Offline}, res.Value.Task)
}

func (e *Engine) writeCreate(ctx context.Context, task schema.Task) Result[created] {
	if !e.conn.Online() {
		return fulfilled(created{Task: task, Offline: true})
	}

	confirmed, err := e.remote.Create(ctx, task)
	switch {
	case err == nil:
		return fulfilled(created{Task: confirmed})
	case gateway.IsOffline(err):
		e.logger.Printf("Remote unavailable, queueing create %s: %v", task.ID, err)
		return fulfilled(created{Task: task, Offline: true})
	default:
		return rejected[created](err)
	}
}

func (e *Engine) reduceCreate(r Result[created]) {
	switch r.Phase {
	case Pending:
		e.setStatus(StatusLoading, "")
	case Fulfilled:
		task := r.Value.Task
		e.store.UpsertMany([]schema.Task{task})
		if r.Value.Offline {
			e.enqueue(schema.MutationCreate, task)
		}
		e.setStatus(StatusIdle, "")
		e.notify(Event{Kind: EventTaskCreated, TaskID: task.ID, Task: &task, Queued: r.Value.Offline})
	case Rejected:
		e.setStatus(StatusError, r.Err.Error())
	}
}

func (e *Engine) updateTask(ctx context.Context, id string, changes schema.Changes) Outcome {
	if id == "" {
		return failed(fmt.Errorf("task id is required"))
	}
	if changes.IsEmpty() {
		return failed(fmt.Errorf("no changes for task %s", id))
	}
	if err := changes.Validate(); err != nil {
		return failed(fmt.Errorf("invalid changes: %w", err))
	}

	current, exists := e.store.Get(id)
	changes = changes.Normalize(current.Status)
	changes.UpdatedAt = nil

	e.reduceUpdate(pending[patched]())
	res := e.writeUpdate(ctx, id, changes, current.UpdatedAt)
	e.reduceUpdate(res)

	if res.Phase == Rejected {
		return failed(res.Err)
	}
	if res.Value.Offline && !exists {
		return failed(fmt.Errorf("%w: %s", schema.ErrTaskNotFound, id))
	}

	e.persistTasks(ctx)
	if res.Value.Offline {
		e.persistQueue(ctx)
	}
	out := Outcome{OK: true, Queued: res.Value.Offline}
	if task, found := e.store.Get(id); found {
		out = withTask(out, task)
	}
	return out
}

func (e *Engine) writeUpdate(ctx context.Context, id string, changes schema.Changes, prev time.Time) Result[patched] {
	offline := func() Result[patched] {
		return fulfilled(patched{ID: id, Changes: changes.WithUpdatedAt(e.stamp(prev)), Offline: true})
	}
	if !e.conn.Online() {
		return offline()
	}

	confirmed, err := e.remote.Update(ctx, id, changes)
	switch {
	case err == nil:
		return fulfilled(patched{ID: id, Changes: confirmed})
	case gateway.IsOffline(err):
		e.logger.Printf("Remote unavailable, queueing update %s: %v", id, err)
		return offline()
	default:
		return rejected[patched](err)
	}
}

func (e *Engine) reduceUpdate(r Result[patched]) {
	switch r.Phase {
	case Pending:
	case Fulfilled:
		if !e.store.ApplyPartialUpdate(r.Value.ID, r.Value.Changes) {
			return
		}
		task, _ := e.store.Get(r.Value.ID)
		if r.Value.Offline {
			e.enqueue(schema.MutationUpdate, task)
		}
		e.setStatus(StatusIdle, "")
		e.notify(Event{Kind: EventTaskUpdated, TaskID: task.ID, Task: &task, Queued: r.Value.Offline})
	case Rejected:
		e.setStatus(StatusError, r.Err.Error())
	}
}

func (e *Engine) deleteTask(ctx context.Context, id string) Outcome {
	if id == "" {
		return failed(fmt.Errorf("task id is required"))
	}

	snapshot, exists := e.store.Get(id)
	if !exists {
		snapshot = schema.Task{ID: id}
	}

	e.reduceDelete(pending[removed]())
	res := e.writeDelete(ctx, snapshot)
	e.reduceDelete(res)

	if res.Phase == Rejected {
		return failed(res.Err)
	}

	e.persistTasks(ctx)
	if res.Value.Offline {
		e.persistQueue(ctx)
	}
	return Outcome{OK: true, Queued: res.Value.Offline}
}

func (e *Engine) writeDelete(ctx context.Context, snapshot schema.Task) Result[removed] {
	if !e.conn.Online() {
		return fulfilled(removed{Snapshot: snapshot, Offline: true})
	}

	err := e.remote.Delete(ctx, snapshot.ID)
	switch {
	case err == nil:
		return fulfilled(removed{Snapshot: snapshot})
	case gateway.IsOffline(err):
		e.logger.Printf("Remote unavailable, queueing delete %s: %v", snapshot.ID, err)
		return fulfilled(removed{Snapshot: snapshot, Offline: true})
	default:
		return rejected[removed](err)
	}
}

func (e *Engine) reduceDelete(r Result[removed]) {
	switch r.Phase {
	case Pending:
	case Fulfilled:
		id := r.Value.Snapshot.ID
		e.store.Remove(id)
		if r.Value.Offline {
			e.enqueue(schema.MutationDelete, r.Value.Snapshot)
		}
		e.setStatus(StatusIdle, "")
		e.notify(Event{Kind: EventTaskDeleted, TaskID: id, Queued: r.Value.Offline})
	case Rejected:
		e.setStatus(StatusError, r.Err.Error())
	}
}

func (e *Engine) forceSync(ctx context.Context) Outcome {
	if ev, err := e.observer.Fetch(ctx); err != nil {
		e.logger.Printf("Warning: failed to read connectivity: %v", err)
	} else if !ev.Equal(e.conn) {
		e.logger.Printf("Connectivity %s -> %s", e.conn, ev)
		e.conn = ev
	}

	if !e.conn.Online() {
		return failed(fmt.Errorf("%w: %d mutations pending", ErrOffline, e.queue.Len()))
	}

	if e.queue.Len() == 0 {
		if res := e.fetch(ctx); res.Phase == Rejected {
			return failed(res.Err)
		}
		return ok()
	}

	res := e.flushAndFetch(ctx)
	out := ok()
	if err := replayFailure(res); err != nil {
		out = failed(err)
	} else if e.status == StatusError {
		out = failed(errors.New(e.lastErr))
	}
	out.Replayed = len(res.Value.Confirmed)
	return out
}

func (e *Engine) hydrate(ctx context.Context, tasks []schema.Task) Outcome {
	fromCache := tasks == nil
	if fromCache {
		tasks = e.bridge.Restore(ctx)
	}
	for i := range tasks {
		if err := tasks[i].Validate(); err != nil {
			return failed(fmt.Errorf("invalid task %q: %w", tasks[i].ID, err))
		}
	}
	e.reduceHydrate(tasks)
	if !fromCache {
		e.persistTasks(ctx)
	}
	return ok()
}

func (e *Engine) signOut(ctx context.Context) Outcome {
	if n := e.queue.Len(); n > 0 {
		e.logger.Printf("Discarding %d unsent mutations on sign-out", n)
	}

	e.store.Reset()
	e.queue.Clear()
	e.lastSyncedAt = time.Time{}
	e.servedFromCache = false
	e.setStatus(StatusIdle, "")

	e.persistTasks(ctx)
	e.persistQueue(ctx)

	if err := e.identity.SignOut(ctx); err != nil {
		return failed(err)
	}
	return ok()
}
