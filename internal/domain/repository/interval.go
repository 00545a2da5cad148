package repository

// Interval is the bar resolution used by price history.
type Interval string

const (
	IntervalDaily  Interval = "1d"
	IntervalWeekly Interval = "1w"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case IntervalDaily, IntervalWeekly:
		return true
	default:
		return false
	}
}

func DefaultInterval() Interval { return IntervalDaily }

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}
