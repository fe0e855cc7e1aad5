package orchestrator

import (
	"context"
	"fmt"

	"github.com/fieldwork/tasksync/internal/gateway"
	"github.com/fieldwork/tasksync/internal/queue"
	"github.com/fieldwork/tasksync/internal/schema"
)

// fetch loads every remote task into the store. A remote failure falls back
// to the cached snapshot; only when that is empty does the status become
// error, and the store is left as it was.
func (e *Engine) fetch(ctx context.Context) Result[fetched] {
	e.reduceFetch(pending[fetched]())

	res := e.loadTasks(ctx)
	e.reduceFetch(res)
	if res.Phase == Fulfilled && !res.Value.FromCache {
		e.persistTasks(ctx)
	}
	return res
}

func (e *Engine) loadTasks(ctx context.Context) Result[fetched] {
	tasks, err := e.remote.FetchAll(ctx)
	if err == nil {
		return fulfilled(fetched{Tasks: tasks})
	}

	if cached := e.bridge.Restore(ctx); len(cached) > 0 {
		e.logger.Printf("Warning: fetch failed, serving %d cached tasks: %v", len(cached), err)
		return fulfilled(fetched{Tasks: cached, FromCache: true})
	}
	return rejected[fetched](err)
}

func (e *Engine) reduceFetch(r Result[fetched]) {
	switch r.Phase {
	case Pending:
		e.setStatus(StatusLoading, "")
	case Fulfilled:
		e.store.UpsertMany(r.Value.Tasks)
		e.servedFromCache = r.Value.FromCache
		if !r.Value.FromCache {
			e.lastSyncedAt = e.now()
		}
		e.setStatus(StatusIdle, "")
		e.notify(Event{Kind: EventSyncComplete, Fetched: len(r.Value.Tasks)})
	case Rejected:
		e.setStatus(StatusError, r.Err.Error())
	}
}

// flush replays the queue oldest first. Confirmed entries are dequeued and
// a fetch follows, even when replay stopped part way. When nothing could be
// replayed the queue is left alone and no fetch runs.
func (e *Engine) flush(ctx context.Context) Result[replayed] {
	entries := e.queue.Entries()
	if len(entries) == 0 {
		return fulfilled(replayed{})
	}

	e.reduceReplay(pending[replayed]())

	done, err := e.remote.ReplayQueue(ctx, entries)
	var res Result[replayed]
	if len(done) == 0 && err != nil {
		res = rejected[replayed](err)
	} else {
		res = fulfilled(replayed{Confirmed: done, Total: len(entries), Failure: err})
	}

	e.reduceReplay(res)
	if res.Phase == Fulfilled {
		e.persistQueue(ctx)
		e.fetch(ctx)
	}
	return res
}

// flushAndFetch flushes the queue for a connectivity change or a forced
// sync. Those still owe a fetch when the replay confirmed nothing, and a
// rejected replay keeps its error over the fetch's status.
func (e *Engine) flushAndFetch(ctx context.Context) Result[replayed] {
	res := e.flush(ctx)
	if res.Phase != Rejected {
		return res
	}
	e.fetch(ctx)
	if !gateway.IsOffline(res.Err) {
		e.setStatus(StatusError, res.Err.Error())
	}
	return res
}

func (e *Engine) reduceReplay(r Result[replayed]) {
	switch r.Phase {
	case Pending:
		e.setStatus(StatusSyncing, "")
	case Fulfilled:
		n := e.queue.DequeueConfirmed(queue.IDs(r.Value.Confirmed))
		e.lastSyncedAt = e.now()
		if r.Value.Failure != nil {
			e.logger.Printf("Warning: replayed %d of %d queued mutations: %v", n, r.Value.Total, r.Value.Failure)
		} else {
			e.logger.Printf("Replayed %d queued mutations", n)
		}
		e.setStatus(StatusIdle, "")
		e.notify(Event{Kind: EventSyncComplete, Replayed: n})
	case Rejected:
		if gateway.IsOffline(r.Err) {
			e.logger.Printf("Remote unavailable, keeping %d queued mutations: %v", e.queue.Len(), r.Err)
			e.setStatus(StatusIdle, "")
			return
		}
		e.setStatus(StatusError, r.Err.Error())
	}
}

func (e *Engine) reduceHydrate(tasks []schema.Task) {
	e.store.UpsertMany(tasks)
	e.setStatus(StatusIdle, "")
}

// enqueue appends a mutation and arms a flush. If the remote is still
// unreachable that flush fails quietly and the status stays idle.
func (e *Engine) enqueue(typ schema.MutationType, task schema.Task) {
	e.queue.Enqueue(schema.NewMutation(typ, task, e.now()))
	e.logger.Printf("Queued %s: %s (%d pending)", typ, task.ID, e.queue.Len())
	e.armFlush()
}

func replayFailure(r Result[replayed]) error {
	switch {
	case r.Phase == Rejected:
		return r.Err
	case r.Value.Failure != nil:
		return fmt.Errorf("replayed %d of %d: %w", len(r.Value.Confirmed), r.Value.Total, r.Value.Failure)
	default:
		return nil
	}
}
