package domain

import (
	"fmt"
	"time"
)

// MaxStayNights bounds a single booking so one request cannot allocate
// an unbounded number of rows.
const MaxStayNights = 90

// ParseDay accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar day at UTC midnight.
func ParseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidInput, s)
	}
	return Day(t), nil
}

// Day truncates t to its calendar day at UTC midnight, keeping t's own
// year, month and day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ExpandDateRange lists every calendar day in [start, end) in ascending order.
// An empty or inverted range yields no days.
func ExpandDateRange(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if !end.After(start) {
		return nil
	}
	days := make([]time.Time, 0, NightsBetween(start, end))
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// NightsBetween counts calendar days from start to end, negative when end
// precedes start.
func NightsBetween(start, end time.Time) int {
	return int(Day(end).Sub(Day(start)).Hours() / 24)
}
