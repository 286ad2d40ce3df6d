package timeutil

import (
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2026-03-01", "2026-03-01"},
		{" 2026-03-01 ", "2026-03-01"},
		{"2026-03-01T18:30:00Z", "2026-03-01"},
		{"2026-03-01T23:30:00-05:00", "2026-03-02"}, // 04:30 UTC next day
		{"2026-03-01T10:00:00.123456Z", "2026-03-01"},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", tc.in, err)
		}
		if FormatDate(got) != tc.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tc.in, FormatDate(got), tc.want)
		}
		if got.Location() != time.UTC || got.Hour() != 0 {
			t.Errorf("ParseDate(%q) = %v, want UTC midnight", tc.in, got)
		}
	}
}

func TestParseDateRejects(t *testing.T) {
	for _, in := range []string{"", "tomorrow", "2026-13-01", "03/01/2026", "2026-02-30"} {
		if _, err := ParseDate(in); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q) error = %v, want ErrInvalidDate", in, err)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	now := time.Date(2026, 2, 22, 23, 59, 0, 0, time.UTC)
	cases := []struct {
		target string
		want   int
	}{
		{"2026-02-22", 0},
		{"2026-02-23", 1},
		{"2026-03-01", 7},
		{"2026-05-23", 90},
		{"2026-02-21", -1},
	}
	for _, tc := range cases {
		target, _ := ParseDate(tc.target)
		if got := DaysBetween(now, target); got != tc.want {
			t.Errorf("DaysBetween(now, %s) = %d, want %d", tc.target, got, tc.want)
		}
	}
}

func TestDaysBetweenIgnoresLocalZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// Across the March DST switch the local day is 23 hours long.
	from := time.Date(2026, 3, 7, 12, 0, 0, 0, ny)
	to := time.Date(2026, 3, 9, 12, 0, 0, 0, ny)
	if got := DaysBetween(from, to); got != 2 {
		t.Errorf("DaysBetween across DST = %d, want 2", got)
	}
}

func TestHoursBetween(t *testing.T) {
	now := time.Date(2026, 2, 28, 10, 30, 0, 0, time.UTC)
	target := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := HoursBetween(now, target); got != 13 {
		t.Errorf("HoursBetween = %d, want 13", got)
	}
	if got := HoursBetween(target, now); got != -13 {
		t.Errorf("HoursBetween reversed = %d, want -13", got)
	}
}

func TestAddDays(t *testing.T) {
	d, _ := ParseDate("2026-02-27")
	if got := FormatDate(AddDays(d, 3)); got != "2026-03-02" {
		t.Errorf("AddDays = %s, want 2026-03-02", got)
	}
	if got := FormatDate(AddDays(d, -27)); got != "2026-01-31" {
		t.Errorf("AddDays negative = %s, want 2026-01-31", got)
	}
}
