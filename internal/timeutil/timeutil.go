// Package timeutil holds the UTC date arithmetic used by the pricing engine.
// Target dates are calendar days; all arithmetic is done on UTC midnights so
// results do not depend on the server's local zone or DST transitions.
package timeutil

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the ISO calendar-date layout used for keys and payloads.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a date string is neither an ISO calendar
// date nor an RFC 3339 timestamp.
var ErrInvalidDate = errors.New("timeutil: invalid ISO date")

// StartOfDay truncates t to midnight UTC of its UTC calendar day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from `from` to `to`,
// comparing UTC midnights. Negative when `to` precedes `from`.
func DaysBetween(from, to time.Time) int {
	diff := StartOfDay(to).Sub(StartOfDay(from))
	return int(math.Round(diff.Hours() / 24))
}

// HoursBetween returns the number of whole hours from `from` to `to`,
// truncated toward zero.
func HoursBetween(from, to time.Time) int {
	return int(to.Sub(from) / time.Hour)
}

// ParseDate accepts "YYYY-MM-DD" or an RFC 3339 timestamp and returns the
// UTC midnight of the date it names.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return StartOfDay(t), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatDate renders the UTC calendar day of t as "YYYY-MM-DD".
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// AddDays shifts t by n whole days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}
