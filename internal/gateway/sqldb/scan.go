package sqldb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldwork/tasksync/internal/gateway"
)

type scanner interface {
	Scan(dest ...any) error
}

// scanRow reads one row in the order of columns.
func scanRow(s scanner) (gateway.Row, error) {
	var (
		row                              gateway.Row
		description, assignedTo, creator sql.NullString
		assignedDate, createdAt, updated storedTime
		dueDate                          storedTime
	)

	err := s.Scan(
		&row.ID,
		&row.Title,
		&description,
		&assignedTo,
		&assignedDate,
		&dueDate,
		&row.Completed,
		&row.Status,
		&createdAt,
		&updated,
		&creator,
	)
	if err == sql.ErrNoRows {
		return gateway.Row{}, err
	}
	if err != nil {
		return gateway.Row{}, fmt.Errorf("failed to scan task: %w", err)
	}

	row.Description = description.String
	row.AssignedTo = assignedTo.String
	row.CreatedBy = creator.String
	row.AssignedDate = assignedDate.Time
	row.CreatedAt = createdAt.Time
	row.UpdatedAt = updated.Time
	if dueDate.Valid {
		due := dueDate.Time
		row.DueDate = &due
	}
	return row, nil
}

// storedTime scans either a native timestamp or RFC 3339 text.
type storedTime struct {
	Time  time.Time
	Valid bool
}

var textLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// Scan implements sql.Scanner.
func (st *storedTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		st.Time, st.Valid = time.Time{}, false
		return nil
	case time.Time:
		st.Time, st.Valid = v.UTC(), true
		return nil
	case []byte:
		return st.parse(string(v))
	case string:
		return st.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", src)
	}
}

func (st *storedTime) parse(s string) error {
	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			st.Time, st.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
