// Package gateway performs remote CRUD for tasks and classifies failures.
//
// The gateway is backend-agnostic: a Backend speaks rows, the Gateway speaks
// domain tasks. Every failure leaving the Gateway is one of ErrNotConfigured,
// ErrUnreachable (both reported by IsOffline) or *RejectedError, so callers
// can decide between the offline path and surfacing a message.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fieldwork/tasksync/internal/schema"
)

// Backend is the remote store seen as rows.
type Backend interface {
	// List returns every row ordered by updated_at descending.
	List(ctx context.Context) ([]Row, error)

	// Insert writes row and returns it as stored. The store assigns
	// created_at and updated_at; the values in row are ignored.
	Insert(ctx context.Context, row Row) (Row, error)

	// Update applies patch to the row with id and returns the stored row.
	// Returns ErrNotFound if the row does not exist.
	Update(ctx context.Context, id string, patch Patch) (Row, error)

	// Upsert writes the full row, replacing any existing row with its id.
	Upsert(ctx context.Context, row Row) error

	// Delete removes the row with id. Deleting an absent row is not an error.
	Delete(ctx context.Context, id string) error
}

// Opener constructs the backend. It is called lazily on first use.
type Opener func(ctx context.Context) (Backend, error)

// Config holds gateway settings.
type Config struct {
	// Timeout bounds each remote request. Zero means no limit.
	Timeout time.Duration

	// Logger for gateway activity (default: stderr logger)
	Logger *log.Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		Logger:  log.New(os.Stderr, "[gateway] ", log.LstdFlags),
		Now:     time.Now,
	}
}

// Gateway maps domain operations onto a Backend.
type Gateway struct {
	open    Opener
	timeout time.Duration
	logger  *log.Logger
	now     func() time.Time

	mu      sync.Mutex
	backend Backend
	openErr error
}

// New creates a gateway that opens its backend on first use. Open failures
// that are not transport errors are remembered as ErrNotConfigured for the
// life of the gateway; transport failures are retried on the next call.
func New(open Opener, config *Config) *Gateway {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[gateway] ", log.LstdFlags)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if open == nil {
		open = func(context.Context) (Backend, error) { return nil, ErrNotConfigured }
	}
	return &Gateway{
		open:    open,
		timeout: config.Timeout,
		logger:  config.Logger,
		now:     config.Now,
	}
}

// NewWithBackend creates a gateway around an already open backend.
func NewWithBackend(backend Backend, config *Config) *Gateway {
	return New(func(context.Context) (Backend, error) { return backend, nil }, config)
}

func (g *Gateway) backendFor(ctx context.Context) (Backend, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.backend != nil {
		return g.backend, nil
	}
	if g.openErr != nil {
		return nil, g.openErr
	}

	backend, err := g.open(ctx)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			g.openErr = err
			return nil, err
		}
		if classified := Classify("connect", err); errors.Is(classified, ErrUnreachable) {
			return nil, classified
		}
		g.openErr = fmt.Errorf("%w: %v", ErrNotConfigured, err)
		g.logger.Printf("Remote store unavailable until restart: %v", err)
		return nil, g.openErr
	}
	g.backend = backend
	return backend, nil
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// FetchAll returns every remote task, most recently updated first.
func (g *Gateway) FetchAll(ctx context.Context) ([]schema.Task, error) {
	backend, err := g.backendFor(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	rows, err := backend.List(ctx)
	if err != nil {
		return nil, Classify("fetch tasks", err)
	}

	tasks := make([]schema.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.Task())
	}
	g.logger.Printf("Fetched %d tasks", len(tasks))
	return tasks, nil
}

// Create inserts task and returns it with the store's timestamps.
func (g *Gateway) Create(ctx context.Context, task schema.Task) (schema.Task, error) {
	backend, err := g.backendFor(ctx)
	if err != nil {
		return schema.Task{}, err
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	row, err := backend.Insert(ctx, RowFromTask(task))
	if err != nil {
		return schema.Task{}, Classify("create task", err)
	}

	g.logger.Printf("Created task: %s (%s)", row.ID, row.Title)
	return row.Task(), nil
}

// Update sends only the changed fields plus a fresh updated_at, and returns
// the store's values for those fields.
func (g *Gateway) Update(ctx context.Context, id string, changes schema.Changes) (schema.Changes, error) {
	backend, err := g.backendFor(ctx)
	if err != nil {
		return schema.Changes{}, err
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	patch := PatchFromChanges(changes, g.now())
	row, err := backend.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return schema.Changes{}, &RejectedError{Op: "update task", Err: fmt.Errorf("%w: %s", schema.ErrTaskNotFound, id)}
		}
		return schema.Changes{}, Classify("update task", err)
	}

	g.logger.Printf("Updated task: %s (%s)", row.ID, row.Title)
	return projection(row, patch), nil
}

// Delete removes the task with id.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	backend, err := g.backendFor(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := backend.Delete(ctx, id); err != nil {
		return Classify("delete task", err)
	}

	g.logger.Printf("Deleted task: %s", id)
	return nil
}

// ReplayQueue writes entries to the store one at a time, oldest first.
// Creates and updates upsert the full snapshot; deletes remove by task id.
// It stops at the first failure and returns the entries written before it.
func (g *Gateway) ReplayQueue(ctx context.Context, entries []schema.Mutation) ([]schema.Mutation, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	backend, err := g.backendFor(ctx)
	if err != nil {
		return nil, err
	}

	replayed := make([]schema.Mutation, 0, len(entries))
	for _, m := range entries {
		if err := g.replayOne(ctx, backend, m); err != nil {
			g.logger.Printf("Replay stopped at %s %s (%d of %d done): %v", m.Type, m.Task.ID, len(replayed), len(entries), err)
			return replayed, err
		}
		replayed = append(replayed, m)
		g.logger.Printf("Replayed %s: %s (%s)", m.Type, m.Task.ID, m.Task.Title)
	}
	return replayed, nil
}

func (g *Gateway) replayOne(ctx context.Context, backend Backend, m schema.Mutation) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	op := "replay " + string(m.Type)
	switch m.Type {
	case schema.MutationCreate, schema.MutationUpdate:
		return Classify(op, backend.Upsert(ctx, RowFromTask(m.Task)))
	case schema.MutationDelete:
		return Classify(op, backend.Delete(ctx, m.Task.ID))
	default:
		return &RejectedError{Op: op, Err: fmt.Errorf("unknown mutation type %q", m.Type)}
	}
}

// Close releases the backend if it was opened and can be closed.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if closer, ok := g.backend.(io.Closer); ok {
		g.backend = nil
		return closer.Close()
	}
	return nil
}
