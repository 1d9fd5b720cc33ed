// Package timeutil parses the timestamp formats that appear in field datasets.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// LoggerLayout is the timestamp format written by the environmental logger
// firmware, e.g. "2020.06.01-13:45:02".
const LoggerLayout = "2006.01.02-15:04:05"

// layouts are tried in order. The logger format comes first because it is by
// far the most common in a run; the rest cover detection CSVs from different
// pipeline versions.
var layouts = []string{
	LoggerLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// Parse converts a raw timestamp string into a UTC time. All layouts are
// interpreted as UTC; loggers in the field do not record an offset.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Day truncates t to the start of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
