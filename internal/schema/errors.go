package schema

import "errors"

var (
	// ErrNotAuthenticated is returned when a command needs a signed-in user.
	ErrNotAuthenticated = errors.New("no authenticated user")

	// ErrTaskNotFound is returned when a task id is not in the collection.
	ErrTaskNotFound = errors.New("task not found")
)
