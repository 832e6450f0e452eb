package util

import (
	"strconv"
	"time"
)

// layouts seen in provider payloads, tried in order after RFC3339.
var layouts = []string{
	"2006-01-02 15:04:05",
	"20060102T150405",
	"20060102T1504",
	"2006-01-02",
}

// ParseTime tries RFC3339, the provider layouts above, and unix seconds.
// Layouts without a zone are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LastDays returns the [from, to] window covering the last n calendar days up to now.
func LastDays(now time.Time, n int) (time.Time, time.Time) {
	if n < 1 {
		n = 1
	}
	return Day(now).AddDate(0, 0, -n), now
}

// Within reports whether t lies in [from, to], comparing calendar days.
func Within(t, from, to time.Time) bool {
	d := Day(t)
	return !d.Before(Day(from)) && !d.After(Day(to))
}
