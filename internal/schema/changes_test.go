package schema

import (
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestChanges_Normalize(t *testing.T) {
	tests := []struct {
		name          string
		changes       Changes
		current       Status
		wantStatus    *Status
		wantCompleted *bool
	}{
		{
			name:          "status completed sets flag",
			changes:       Changes{Status: ptr(StatusCompleted)},
			current:       StatusInProgress,
			wantStatus:    ptr(StatusCompleted),
			wantCompleted: ptr(true),
		},
		{
			name:          "status in progress clears flag",
			changes:       Changes{Status: ptr(StatusInProgress)},
			current:       StatusCompleted,
			wantStatus:    ptr(StatusInProgress),
			wantCompleted: ptr(false),
		},
		{
			name:          "checking completed sets status",
			changes:       Changes{Completed: ptr(true)},
			current:       StatusNotStarted,
			wantStatus:    ptr(StatusCompleted),
			wantCompleted: ptr(true),
		},
		{
			name:          "unchecking completed task reopens it",
			changes:       Changes{Completed: ptr(false)},
			current:       StatusCompleted,
			wantStatus:    ptr(StatusNotStarted),
			wantCompleted: ptr(false),
		},
		{
			name:          "unchecking in-progress task keeps status",
			changes:       Changes{Completed: ptr(false)},
			current:       StatusInProgress,
			wantStatus:    nil,
			wantCompleted: ptr(false),
		},
		{
			name:    "title only",
			changes: Changes{Title: ptr("x")},
			current: StatusInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.changes.Normalize(tt.current)
			if (got.Status == nil) != (tt.wantStatus == nil) || (got.Status != nil && *got.Status != *tt.wantStatus) {
				t.Errorf("Status = %v, want %v", deref(got.Status), deref(tt.wantStatus))
			}
			if (got.Completed == nil) != (tt.wantCompleted == nil) || (got.Completed != nil && *got.Completed != *tt.wantCompleted) {
				t.Errorf("Completed = %v, want %v", deref(got.Completed), deref(tt.wantCompleted))
			}
		})
	}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func TestChanges_Validate(t *testing.T) {
	tests := []struct {
		name    string
		changes Changes
		wantErr bool
	}{
		{"empty", Changes{}, false},
		{"title", Changes{Title: ptr("ok")}, false},
		{"blank title", Changes{Title: ptr(" ")}, true},
		{"bad status", Changes{Status: ptr(Status("archived"))}, true},
		{"conflicting completion", Changes{Status: ptr(StatusInProgress), Completed: ptr(true)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.changes.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChanges_IsEmpty(t *testing.T) {
	now := time.Now()
	if !(Changes{UpdatedAt: &now}).IsEmpty() {
		t.Error("UpdatedAt alone should count as empty")
	}
	if (Changes{ClearDueDate: true}).IsEmpty() {
		t.Error("ClearDueDate should count as a change")
	}
}

func TestFilters_ApplyAndDefaults(t *testing.T) {
	f := DefaultFilters().Apply(FilterPatch{Search: ptr("design"), SortDirection: ptr(SortDesc)})
	if f.Search != "design" || f.SortDirection != SortDesc {
		t.Fatalf("Apply() = %+v", f)
	}
	if f.SortBy != SortAssignedDate || f.Status != StatusAll {
		t.Errorf("Apply() touched unpatched fields: %+v", f)
	}

	want := Filters{Search: "", SortBy: "assignedDate", SortDirection: "asc", Status: "all"}
	if got := DefaultFilters(); got != want {
		t.Errorf("DefaultFilters() = %+v, want %+v", got, want)
	}
}

func TestParseFilterValues(t *testing.T) {
	if got, err := ParseSortField("due_date"); err != nil || got != SortDueDate {
		t.Errorf("ParseSortField(due_date) = %q, %v", got, err)
	}
	if _, err := ParseSortField("priority"); err == nil {
		t.Error("ParseSortField(priority) expected error")
	}
	if got, err := ParseSortDirection("DESC"); err != nil || got != SortDesc {
		t.Errorf("ParseSortDirection(DESC) = %q, %v", got, err)
	}
	if got, err := ParseStatusFilter("All"); err != nil || got != StatusAll {
		t.Errorf("ParseStatusFilter(All) = %q, %v", got, err)
	}
	if got, err := ParseStatusFilter("in_progress"); err != nil || got != StatusFilter(StatusInProgress) {
		t.Errorf("ParseStatusFilter(in_progress) = %q, %v", got, err)
	}
	bad := SortField("size")
	if err := (FilterPatch{SortBy: &bad}).Validate(); err == nil {
		t.Error("FilterPatch.Validate() accepted an unknown sort field")
	}
}

func TestMutation_Validate(t *testing.T) {
	m := NewMutation(MutationCreate, Task{ID: "t-1"}, time.Now())
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if m.ID == "t-1" {
		t.Error("mutation id must differ from task id")
	}

	m.Type = "rename"
	if err := m.Validate(); err == nil {
		t.Error("Validate() accepted unknown type")
	}
}
