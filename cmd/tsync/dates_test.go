package main

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) // a Wednesday

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-06-01 14:30", time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)},
		{"2024-06-01T08:00:00Z", time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.in, now)
		if err != nil {
			t.Errorf("parseDate(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDate_Relative(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	got, err := parseDate("tomorrow", now)
	if err != nil {
		t.Fatalf("parseDate(tomorrow) failed: %v", err)
	}
	if y, m, d := got.Date(); y != 2024 || m != time.May || d != 2 {
		t.Errorf("parseDate(tomorrow) = %v, want 2024-05-02", got)
	}
}

func TestParseDate_Invalid(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"", "   ", "whenever"} {
		if _, err := parseDate(in, now); err == nil {
			t.Errorf("parseDate(%q) should fail", in)
		}
	}
}
