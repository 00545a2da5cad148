package util

import (
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

// ParseTime tries YYYY-MM-DD, RFC3339, RFC3339Nano and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// DayRange turns inclusive YYYY-MM-DD bounds into a [from, to] instant range.
// A date-only upper bound covers the whole day. Empty bounds stay zero.
func DayRange(from, to string) (time.Time, time.Time) {
	f, _ := ParseTime(from)
	t, ok := ParseTime(to)
	if ok && len(to) == len(DateLayout) {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return f, t
}
