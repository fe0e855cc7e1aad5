package schema

import (
	"fmt"
	"strings"
	"time"
)

// Changes is a partial update to a task. Nil fields are left untouched.
// DueDate cannot express "clear" on its own, so ClearDueDate removes it.
type Changes struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	AssignedTo   *string    `json:"assignedTo,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	ClearDueDate bool       `json:"clearDueDate,omitempty"`
	Status       *Status    `json:"status,omitempty"`
	Completed    *bool      `json:"completed,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// IsEmpty reports whether c changes no user-editable field.
func (c Changes) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.AssignedTo == nil &&
		c.DueDate == nil && !c.ClearDueDate && c.Status == nil && c.Completed == nil
}

// Validate checks the fields that are present.
func (c Changes) Validate() error {
	if c.Title != nil {
		if strings.TrimSpace(*c.Title) == "" {
			return fmt.Errorf("title cannot be empty")
		}
		if len(*c.Title) > MaxTitleLength {
			return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(*c.Title))
		}
	}
	if c.Status != nil && !c.Status.IsValid() {
		return fmt.Errorf("invalid status %q", *c.Status)
	}
	if c.Status != nil && c.Completed != nil && *c.Completed != (*c.Status == StatusCompleted) {
		return fmt.Errorf("completed=%t disagrees with status %q", *c.Completed, *c.Status)
	}
	return nil
}

// Normalize keeps Completed and Status consistent against the task's current
// status. Status wins when both are given. Unchecking a completed task moves
// it back to not_started; unchecking a task that was never completed leaves
// its status alone.
func (c Changes) Normalize(current Status) Changes {
	switch {
	case c.Status != nil:
		completed := *c.Status == StatusCompleted
		c.Completed = &completed
	case c.Completed != nil:
		if *c.Completed {
			s := StatusCompleted
			c.Status = &s
		} else if current == StatusCompleted {
			s := StatusNotStarted
			c.Status = &s
		}
	}
	return c
}

// WithUpdatedAt returns c stamped with at.
func (c Changes) WithUpdatedAt(at time.Time) Changes {
	c.UpdatedAt = &at
	return c
}
