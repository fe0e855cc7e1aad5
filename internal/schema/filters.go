package schema

import (
	"fmt"
	"strings"
)

// SortField is the task timestamp the visible list is ordered by.
type SortField string

const (
	SortAssignedDate SortField = "assignedDate"
	SortDueDate      SortField = "dueDate"
	SortUpdatedAt    SortField = "updatedAt"
)

// SortDirection orders the visible list.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// StatusFilter is either StatusAll or one concrete Status.
type StatusFilter string

// StatusAll disables status filtering.
const StatusAll StatusFilter = "all"

// Matches reports whether a task with status s passes the filter.
func (f StatusFilter) Matches(s Status) bool {
	return f == StatusAll || f == "" || Status(f) == s
}

// Filters is the transient view state applied to the task list.
type Filters struct {
	Search        string        `json:"search"`
	SortBy        SortField     `json:"sortBy"`
	SortDirection SortDirection `json:"sortDirection"`
	Status        StatusFilter  `json:"status"`
}

// DefaultFilters returns the filters a fresh session starts with.
func DefaultFilters() Filters {
	return Filters{
		Search:        "",
		SortBy:        SortAssignedDate,
		SortDirection: SortAsc,
		Status:        StatusAll,
	}
}

// FilterPatch is a partial Filters update.
type FilterPatch struct {
	Search        *string        `json:"search,omitempty"`
	SortBy        *SortField     `json:"sortBy,omitempty"`
	SortDirection *SortDirection `json:"sortDirection,omitempty"`
	Status        *StatusFilter  `json:"status,omitempty"`
}

// Apply returns f with the patch merged in.
func (f Filters) Apply(p FilterPatch) Filters {
	if p.Search != nil {
		f.Search = *p.Search
	}
	if p.SortBy != nil {
		f.SortBy = *p.SortBy
	}
	if p.SortDirection != nil {
		f.SortDirection = *p.SortDirection
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	return f
}

// Validate checks the enumerated fields of a patch.
func (p FilterPatch) Validate() error {
	if p.SortBy != nil {
		if _, err := ParseSortField(string(*p.SortBy)); err != nil {
			return err
		}
	}
	if p.SortDirection != nil {
		if _, err := ParseSortDirection(string(*p.SortDirection)); err != nil {
			return err
		}
	}
	if p.Status != nil {
		if _, err := ParseStatusFilter(string(*p.Status)); err != nil {
			return err
		}
	}
	return nil
}

// ParseSortField accepts the camelCase names and their snake_case forms.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "assigneddate", "assigned":
		return SortAssignedDate, nil
	case "duedate", "due":
		return SortDueDate, nil
	case "updatedat", "updated":
		return SortUpdatedAt, nil
	}
	return "", fmt.Errorf("invalid sort field %q (want assignedDate, dueDate or updatedAt)", s)
}

// ParseSortDirection accepts "asc" or "desc".
func ParseSortDirection(s string) (SortDirection, error) {
	switch d := SortDirection(strings.ToLower(strings.TrimSpace(s))); d {
	case SortAsc, SortDesc:
		return d, nil
	}
	return "", fmt.Errorf("invalid sort direction %q (want asc or desc)", s)
}

// ParseStatusFilter accepts "all" or any status ParseStatus accepts.
func ParseStatusFilter(s string) (StatusFilter, error) {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusAll)) {
		return StatusAll, nil
	}
	status, err := ParseStatus(s)
	if err != nil {
		return "", err
	}
	return StatusFilter(status), nil
}
