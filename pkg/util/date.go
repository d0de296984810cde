package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, a plain date and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// Window returns the range of the last days ending at to, both ends
// truncated to the bar step so repeated calls within one bar hit the same cache key.
func Window(to time.Time, days int, step time.Duration) (time.Time, time.Time) {
	if step <= 0 {
		step = time.Minute
	}
	to = to.Truncate(step)
	return to.AddDate(0, 0, -days), to
}
