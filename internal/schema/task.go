package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusCompleted}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts user input such as "in-progress" or "Completed" to a Status.
func ParseStatus(s string) (Status, error) {
	normalized := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !normalized.IsValid() {
		return "", fmt.Errorf("invalid status %q (want not_started, in_progress or completed)", s)
	}
	return normalized, nil
}

// MaxTitleLength bounds task titles.
const MaxTitleLength = 500

// Task is a single unit of assigned work.
type Task struct {
	ID           string     `json:"id" yaml:"id"`
	Title        string     `json:"title" yaml:"title"`
	Description  string     `json:"description" yaml:"description"`
	AssignedTo   string     `json:"assignedTo" yaml:"assignedTo"`
	AssignedDate time.Time  `json:"assignedDate" yaml:"assignedDate"`
	DueDate      *time.Time `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
	Completed    bool       `json:"completed" yaml:"completed"`
	Status       Status     `json:"status" yaml:"status"`
	CreatedAt    time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" yaml:"updatedAt"`
	CreatedBy    string     `json:"createdBy" yaml:"createdBy"`
}

// Input holds the user-supplied fields for a new task.
type Input struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssignedTo  string     `json:"assignedTo"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Status      Status     `json:"status,omitempty"`
}

// NewID returns a fresh client-side identifier.
func NewID() string {
	return uuid.NewString()
}

// NewTask builds a task from input as the client believes it should exist.
// CreatedAt and UpdatedAt are provisional until the remote store confirms them.
func NewTask(in Input, createdBy string, now time.Time) Task {
	t := Task{
		ID:           NewID(),
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		AssignedTo:   in.AssignedTo,
		AssignedDate: now,
		DueDate:      in.DueDate,
		Status:       in.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedBy:    createdBy,
	}
	t.SetDefaults(now)
	return t
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(t.Title))
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if t.Completed != (t.Status == StatusCompleted) {
		return fmt.Errorf("completed=%t disagrees with status %q", t.Completed, t.Status)
	}
	return nil
}

// SetDefaults applies default values for omitted fields.
func (t *Task) SetDefaults(now time.Time) {
	if t.Status == "" {
		t.Status = StatusNotStarted
	}
	if t.AssignedDate.IsZero() {
		t.AssignedDate = now
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	t.Normalize()
}

// Normalize derives Completed from Status.
func (t *Task) Normalize() {
	t.Completed = t.Status == StatusCompleted
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		due := *t.DueDate
		t.DueDate = &due
	}
	return t
}

// Apply returns t with the provided changes merged in.
func (t Task) Apply(c Changes) Task {
	out := t.Clone()
	if c.Title != nil {
		out.Title = *c.Title
	}
	if c.Description != nil {
		out.Description = *c.Description
	}
	if c.AssignedTo != nil {
		out.AssignedTo = *c.AssignedTo
	}
	if c.ClearDueDate {
		out.DueDate = nil
	} else if c.DueDate != nil {
		due := *c.DueDate
		out.DueDate = &due
	}
	if c.Status != nil {
		out.Status = *c.Status
	}
	if c.Completed != nil {
		out.Completed = *c.Completed
	}
	if c.UpdatedAt != nil {
		out.UpdatedAt = *c.UpdatedAt
	}
	return out
}

// SortTime returns the value a task sorts by for field, falling back to
// UpdatedAt when the field is absent on this task.
func (t Task) SortTime(field SortField) time.Time {
	switch field {
	case SortAssignedDate:
		if !t.AssignedDate.IsZero() {
			return t.AssignedDate
		}
	case SortDueDate:
		if t.DueDate != nil {
			return *t.DueDate
		}
	}
	return t.UpdatedAt
}
