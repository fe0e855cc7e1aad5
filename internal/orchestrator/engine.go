// Package orchestrator runs the offline-first sync engine.
//
// An Engine owns the task store, the offline mutation queue and the sync
// status. All of them are changed on one goroutine:
//  1. Commands and connectivity events are submitted as jobs on a channel
//  2. Each job runs to completion, including its remote I/O
//  3. Follow-up work a job schedules (a queue flush after an offline write)
//     runs before the next submitted job
//  4. An immutable Snapshot is published for readers after every job
//
// A fetch that follows a replay therefore always sees the replay's dequeue.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldwork/tasksync/internal/cache"
	"github.com/fieldwork/tasksync/internal/connectivity"
	"github.com/fieldwork/tasksync/internal/queue"
	"github.com/fieldwork/tasksync/internal/schema"
	"github.com/fieldwork/tasksync/internal/store"
)

// ErrNotRunning is returned for commands submitted before Start or after Stop.
var ErrNotRunning = errors.New("sync engine not running")

// Remote is the remote store as the engine uses it. *gateway.Gateway
// implements it.
type Remote interface {
	FetchAll(ctx context.Context) ([]schema.Task, error)
	Create(ctx context.Context, task schema.Task) (schema.Task, error)
	Update(ctx context.Context, id string, changes schema.Changes) (schema.Changes, error)
	Delete(ctx context.Context, id string) error
	ReplayQueue(ctx context.Context, entries []schema.Mutation) ([]schema.Mutation, error)
}

// Identity supplies the signed-in user. *auth.Sessions implements it.
type Identity interface {
	CurrentUser(ctx context.Context) (string, bool)
	SignOut(ctx context.Context) error
}

// Config holds configuration for an Engine.
type Config struct {
	// Logger for engine activity
	Logger *log.Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// Notifier receives events (optional)
	Notifier Notifier

	// JobBuffer is the capacity of the job channel (default: 64)
	JobBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger:    log.New(os.Stderr, "[sync] ", log.LstdFlags),
		Now:       time.Now,
		JobBuffer: 64,
	}
}

type job struct {
	run   func(ctx context.Context) Outcome
	reply chan Outcome
}

// Engine is the sync orchestrator.
type Engine struct {
	remote   Remote
	bridge   *cache.Bridge
	observer connectivity.Observer
	identity Identity
	config   *Config
	logger   *log.Logger

	// Owned by the loop goroutine.
	store           *store.Store
	queue           *queue.Queue
	status          Status
	lastErr         string
	lastSyncedAt    time.Time
	conn            connectivity.Event
	servedFromCache bool
	followUps       []func(ctx context.Context)
	flushArmed      bool

	snapMu sync.RWMutex
	snap   *Snapshot

	jobs        chan job
	running     atomic.Bool
	startMu     sync.Mutex
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates an engine. Start must be called before submitting commands.
func New(remote Remote, bridge *cache.Bridge, observer connectivity.Observer, identity Identity, config *Config) (*Engine, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if bridge == nil {
		return nil, fmt.Errorf("cache bridge cannot be nil")
	}
	if observer == nil {
		return nil, fmt.Errorf("connectivity observer cannot be nil")
	}
	if identity == nil {
		return nil, fmt.Errorf("identity cannot be nil")
	}

	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if config.JobBuffer <= 0 {
		config.JobBuffer = defaults.JobBuffer
	}

	e := &Engine{
		remote:   remote,
		bridge:   bridge,
		observer: observer,
		identity: identity,
		config:   config,
		logger:   config.Logger,
		store:    store.New(),
		queue:    queue.New(),
		status:   StatusIdle,
		jobs:     make(chan job, config.JobBuffer),
	}
	e.publish()
	return e, nil
}

// Start restores cached state, reads the initial connectivity and subscribes
// to changes. It returns once the loop is running; use Idle to wait for the
// startup work to finish.
func (e *Engine) Start(ctx context.Context) error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if e.running.Load() {
		return fmt.Errorf("sync engine already running")
	}
	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.running.Store(true)

	e.wg.Add(1)
	go e.loop()

	e.post(func(ctx context.Context) Outcome {
		e.coldStart(ctx)
		return ok()
	})

	e.unsubscribe = e.observer.Subscribe(e.connectivityChanged)
	initial, err := e.observer.Fetch(ctx)
	if err != nil {
		e.logger.Printf("Warning: failed to read connectivity: %v", err)
		return nil
	}
	e.connectivityChanged(initial)
	return nil
}

// Stop unsubscribes from connectivity, cancels in-flight work and waits for
// the loop to exit. Queued jobs that have not started are dropped.
func (e *Engine) Stop() error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if !e.running.Load() {
		return nil
	}
	e.running.Store(false)

	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.cancel()
	e.wg.Wait()
	return nil
}

// Idle waits until every job submitted before the call has finished.
func (e *Engine) Idle(ctx context.Context) error {
	out := e.do(ctx, func(context.Context) Outcome { return ok() })
	if !out.OK {
		return out.Err
	}
	return nil
}

// Snapshot returns the state published after the most recent job.
func (e *Engine) Snapshot() *Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

func (e *Engine) loop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case j := <-e.jobs:
			out := j.run(e.ctx)
			for len(e.followUps) > 0 {
				next := e.followUps[0]
				e.followUps = e.followUps[1:]
				next(e.ctx)
			}
			e.publish()
			if j.reply != nil {
				j.reply <- out
			}
		}
	}
}

// post submits a job without waiting for it.
func (e *Engine) post(run func(ctx context.Context) Outcome) {
	if !e.running.Load() {
		return
	}
	select {
	case e.jobs <- job{run: run}:
	case <-e.ctx.Done():
	}
}

// do submits a job and waits for its outcome.
func (e *Engine) do(ctx context.Context, run func(ctx context.Context) Outcome) Outcome {
	if !e.running.Load() {
		return failed(ErrNotRunning)
	}
	j := job{run: run, reply: make(chan Outcome, 1)}

	select {
	case e.jobs <- j:
	case <-ctx.Done():
		return failed(ctx.Err())
	case <-e.ctx.Done():
		return failed(ErrNotRunning)
	}

	select {
	case out := <-j.reply:
		return out
	case <-ctx.Done():
		return failed(ctx.Err())
	case <-e.ctx.Done():
		return failed(ErrNotRunning)
	}
}

// later schedules fn to run after the current job, before the next one.
func (e *Engine) later(fn func(ctx context.Context)) {
	e.followUps = append(e.followUps, fn)
}

func (e *Engine) publish() {
	snap := &Snapshot{
		tasks:           e.store.Clone(),
		Status:          e.status,
		Error:           e.lastErr,
		LastSyncedAt:    e.lastSyncedAt,
		Connectivity:    e.conn,
		ServedFromCache: e.servedFromCache,
		Pending:         e.queue.Entries(),
	}
	e.snapMu.Lock()
	e.snap = snap
	e.snapMu.Unlock()
}

func (e *Engine) setStatus(status Status, msg string) {
	if status == e.status && msg == e.lastErr {
		return
	}
	e.status = status
	e.lastErr = msg
	if status == StatusError {
		e.logger.Printf("Status error: %s", msg)
	}
	e.publish()
	e.notify(Event{Kind: EventStatus, Status: status, Error: msg})
}

func (e *Engine) notify(ev Event) {
	if e.config.Notifier == nil {
		return
	}
	// Subscribers read the snapshot when handling task and sync events.
	if ev.Kind != EventStatus {
		e.publish()
	}
	ev.At = e.now()
	e.config.Notifier.Notify(ev)
}

func (e *Engine) now() time.Time {
	return e.config.Now().UTC()
}

// stamp returns a write timestamp strictly after prev, so a local edit
// always sorts ahead of the version it replaces.
func (e *Engine) stamp(prev time.Time) time.Time {
	now := e.now()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}

func (e *Engine) persistTasks(ctx context.Context) {
	e.bridge.Persist(ctx, e.store.All())
}

func (e *Engine) persistQueue(ctx context.Context) {
	e.bridge.PersistQueue(ctx, e.queue.Entries())
}

func (e *Engine) coldStart(ctx context.Context) {
	if cached := e.bridge.Restore(ctx); len(cached) > 0 {
		e.reduceHydrate(cached)
		e.logger.Printf("Restored %d cached tasks", len(cached))
	}

	entries := e.bridge.RestoreQueue(ctx)
	if dropped := e.queue.Restore(entries); dropped > 0 {
		e.logger.Printf("Warning: dropped %d unreadable queued mutations", dropped)
	}
	if n := e.queue.Len(); n > 0 {
		e.logger.Printf("Restored %d queued mutations", n)
	}
}

func (e *Engine) connectivityChanged(ev connectivity.Event) {
	e.post(func(ctx context.Context) Outcome {
		e.applyConnectivity(ctx, ev)
		return ok()
	})
}

// applyConnectivity records ev and starts the sync work it calls for. A
// fetch runs when the state first becomes known or the device reconnects;
// pending writes are flushed ahead of it.
func (e *Engine) applyConnectivity(ctx context.Context, ev connectivity.Event) {
	prev := e.conn
	if prev.Equal(ev) {
		return
	}
	e.conn = ev
	e.logger.Printf("Connectivity %s -> %s", prev, ev)
	e.publish()

	if !ev.IsKnown() {
		return
	}
	if ev.Online() && e.queue.Len() > 0 {
		e.flushAndFetch(ctx)
		return
	}
	if !prev.IsKnown() || ev.Online() {
		e.fetch(ctx)
	}
}

// armFlush schedules a flush if the device is online and writes are pending.
func (e *Engine) armFlush() {
	if e.flushArmed || !e.conn.Online() || e.queue.Len() == 0 {
		return
	}
	e.flushArmed = true
	e.later(func(ctx context.Context) {
		e.flushArmed = false
		if e.conn.Online() && e.queue.Len() > 0 {
			e.flush(ctx)
		}
	})
}
