package gateway

import (
	"time"

	"github.com/fieldwork/tasksync/internal/schema"
)

// Row is a task as the remote store holds it. Column names are snake_case:
// id, title, description, assigned_to, assigned_date, due_date, completed,
// status, created_at, updated_at, created_by.
type Row struct {
	ID           string
	Title        string
	Description  string
	AssignedTo   string
	AssignedDate time.Time
	DueDate      *time.Time
	Completed    bool
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CreatedBy    string
}

// RowFromTask converts the domain shape to the wire shape.
func RowFromTask(t schema.Task) Row {
	row := Row{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		AssignedTo:   t.AssignedTo,
		AssignedDate: t.AssignedDate.UTC(),
		Completed:    t.Status == schema.StatusCompleted,
		Status:       string(t.Status),
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
		CreatedBy:    t.CreatedBy,
	}
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		row.DueDate = &due
	}
	return row
}

// Task converts the wire shape to the domain shape. Status is authoritative
// for completion.
func (r Row) Task() schema.Task {
	t := schema.Task{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		AssignedTo:   r.AssignedTo,
		AssignedDate: r.AssignedDate,
		Status:       schema.Status(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		CreatedBy:    r.CreatedBy,
	}
	if r.DueDate != nil {
		due := *r.DueDate
		t.DueDate = &due
	}
	if t.Status == "" {
		t.Status = schema.StatusNotStarted
		if r.Completed {
			t.Status = schema.StatusCompleted
		}
	}
	t.Normalize()
	return t
}

// Assignment is one column of a partial update.
type Assignment struct {
	Column string
	Value  any
}

// Patch is a partial row update. UpdatedAt is always written.
type Patch struct {
	Title        *string
	Description  *string
	AssignedTo   *string
	DueDate      *time.Time
	ClearDueDate bool
	Status       *string
	Completed    *bool
	UpdatedAt    time.Time
}

// PatchFromChanges builds the patch for changes, stamped with updatedAt.
func PatchFromChanges(c schema.Changes, updatedAt time.Time) Patch {
	p := Patch{
		Title:        c.Title,
		Description:  c.Description,
		AssignedTo:   c.AssignedTo,
		ClearDueDate: c.ClearDueDate,
		Completed:    c.Completed,
		UpdatedAt:    updatedAt.UTC(),
	}
	if c.DueDate != nil && !c.ClearDueDate {
		due := c.DueDate.UTC()
		p.DueDate = &due
	}
	if c.Status != nil {
		s := string(*c.Status)
		p.Status = &s
	}
	return p
}

// Assignments lists the columns the patch writes, in column order.
// Time values are time.Time, or nil for a cleared due date.
func (p Patch) Assignments() []Assignment {
	var out []Assignment
	if p.Title != nil {
		out = append(out, Assignment{"title", *p.Title})
	}
	if p.Description != nil {
		out = append(out, Assignment{"description", *p.Description})
	}
	if p.AssignedTo != nil {
		out = append(out, Assignment{"assigned_to", *p.AssignedTo})
	}
	if p.ClearDueDate {
		out = append(out, Assignment{"due_date", nil})
	} else if p.DueDate != nil {
		out = append(out, Assignment{"due_date", *p.DueDate})
	}
	if p.Completed != nil {
		out = append(out, Assignment{"completed", *p.Completed})
	}
	if p.Status != nil {
		out = append(out, Assignment{"status", *p.Status})
	}
	out = append(out, Assignment{"updated_at", p.UpdatedAt})
	return out
}

// projection returns the fields of row that p touched, as domain changes.
func projection(row Row, p Patch) schema.Changes {
	task := row.Task()
	var c schema.Changes
	if p.Title != nil {
		c.Title = &task.Title
	}
	if p.Description != nil {
		c.Description = &task.Description
	}
	if p.AssignedTo != nil {
		c.AssignedTo = &task.AssignedTo
	}
	if p.ClearDueDate || p.DueDate != nil {
		if task.DueDate == nil {
			c.ClearDueDate = true
		} else {
			c.DueDate = task.DueDate
		}
	}
	if p.Status != nil || p.Completed != nil {
		c.Status = &task.Status
		c.Completed = &task.Completed
	}
	c.UpdatedAt = &task.UpdatedAt
	return c
}
