package qbsync

import (
	"strings"
	"time"
)

// FormatChangedSince renders t the one way the CDC endpoint accepts:
// seconds precision, explicit +00:00 offset. Not "Z", no milliseconds —
// QuickBooks rejects both, sometimes silently.
func FormatChangedSince(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05") + "+00:00"
}

// parseQBTime parses the timestamp shapes QuickBooks emits. Returns nil for
// empty or unparseable input; callers default from there.
func parseQBTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05-07:00",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func parseQBDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t
	}
	return parseQBTime(value)
}
