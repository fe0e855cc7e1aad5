package orchestrator

import "github.com/fieldwork/tasksync/internal/schema"

// Phase is the lifecycle stage of one remote operation.
type Phase int

const (
	Pending Phase = iota
	Fulfilled
	Rejected
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is a tagged operation outcome. Value is meaningful only when
// Fulfilled, Err only when Rejected.
type Result[T any] struct {
	Phase Phase
	Value T
	Err   error
}

func pending[T any]() Result[T] {
	return Result[T]{Phase: Pending}
}

func fulfilled[T any](v T) Result[T] {
	return Result[T]{Phase: Fulfilled, Value: v}
}

func rejected[T any](err error) Result[T] {
	return Result[T]{Phase: Rejected, Err: err}
}

// fetched is the payload of a completed fetch.
type fetched struct {
	Tasks     []schema.Task
	FromCache bool
}

// created is the payload of a completed create.
type created struct {
	Task    schema.Task
	Offline bool
}

// patched is the payload of a completed update.
type patched struct {
	ID      string
	Changes schema.Changes
	Offline bool
}

// removed is the payload of a completed delete. Snapshot is what gets queued
// when the delete happened offline.
type removed struct {
	Snapshot schema.Task
	Offline  bool
}

// replayed is the payload of a replay that confirmed at least one entry.
// Failure is set when replay stopped early.
type replayed struct {
	Confirmed []schema.Mutation
	Total     int
	Failure   error
}
