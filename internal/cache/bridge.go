package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/fieldwork/tasksync/internal/schema"
)

const (
	// TaskKey holds the JSON task list.
	TaskKey = "@task-cache"
	// QueueKey holds the JSON list of pending mutations.
	QueueKey = "@offline-queue"
)

// Bridge serializes engine state to a KV on a best-effort basis.
type Bridge struct {
	kv     KV
	logger *log.Logger
}

// NewBridge wraps kv. If logger is nil, a default logger writing to stderr is used.
func NewBridge(kv KV, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	return &Bridge{kv: kv, logger: logger}
}

// Persist stores the full task list. Failures are logged, not returned.
func (b *Bridge) Persist(ctx context.Context, tasks []schema.Task) {
	if tasks == nil {
		tasks = []schema.Task{}
	}
	b.write(ctx, TaskKey, tasks)
}

// Restore reads the task list back. A missing key, unreadable store or
// corrupt payload all yield an empty list. Individual invalid tasks are skipped.
func (b *Bridge) Restore(ctx context.Context) []schema.Task {
	var tasks []schema.Task
	if !b.read(ctx, TaskKey, &tasks) {
		return []schema.Task{}
	}

	valid := tasks[:0]
	for _, task := range tasks {
		if err := task.Validate(); err != nil {
			b.logger.Printf("Warning: skipping invalid cached task %s: %v", task.ID, err)
			continue
		}
		valid = append(valid, task)
	}
	return valid
}

// PersistQueue stores the pending mutations. Failures are logged, not returned.
func (b *Bridge) PersistQueue(ctx context.Context, entries []schema.Mutation) {
	if entries == nil {
		entries = []schema.Mutation{}
	}
	b.write(ctx, QueueKey, entries)
}

// RestoreQueue reads the pending mutations back, empty on any failure.
func (b *Bridge) RestoreQueue(ctx context.Context) []schema.Mutation {
	var entries []schema.Mutation
	if !b.read(ctx, QueueKey, &entries) {
		return []schema.Mutation{}
	}
	return entries
}

func (b *Bridge) write(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Printf("Warning: failed to encode %s: %v", key, err)
		return
	}
	if err := b.kv.Set(ctx, key, data); err != nil {
		b.logger.Printf("Warning: failed to persist %s: %v", key, err)
	}
}

func (b *Bridge) read(ctx context.Context, key string, v any) bool {
	data, err := b.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		b.logger.Printf("Warning: failed to read %s: %v", key, err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		b.logger.Printf("Warning: ignoring corrupt %s: %v", key, err)
		return false
	}
	return true
}
