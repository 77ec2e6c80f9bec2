package domain

import (
	"strconv"
	"strings"
	"time"
)

// timeLayouts are the ISO-8601 shapes observed in DMI dumps, tried in order.
// Layouts without a zone are interpreted as UTC via time.ParseInLocation.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp string. Offset-less inputs are
// taken as UTC so output never depends on the host time zone.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// NormalizeToUTC converts a timestamp string to the same instant in UTC with
// an explicit "+00:00" offset. Inputs that do not parse as timestamps are
// returned unchanged; a bad time field is not fatal to its record.
// Normalization is idempotent: normalizing an already-normalized string
// yields the identical string.
func NormalizeToUTC(s string) string {
	t, err := ParseTimestamp(s)
	if err != nil {
		return s
	}
	return FormatUTC(t)
}

// FormatUTC renders an instant in UTC with a "+00:00" suffix, keeping
// microsecond precision only when the instant carries sub-second detail.
func FormatUTC(t time.Time) string {
	u := t.UTC()
	if u.Nanosecond() == 0 {
		return u.Format("2006-01-02T15:04:05") + "+00:00"
	}
	return u.Format("2006-01-02T15:04:05.000000") + "+00:00"
}

// HourBucket truncates an observation time to zero minutes and seconds in
// UTC, the aggregation granularity.
func HourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// FormatHour renders an hour bucket without an offset, e.g.
// "2024-01-01T14:00:00". The fixed width makes lexicographic order equal to
// chronological order, which the aggregators rely on for stable output.
func FormatHour(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
