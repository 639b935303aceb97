package utils

import (
	"fmt"
	"strings"
	"time"
)

// OperDatetimeLayout is the rendering used for event timestamps in the result artifact.
const OperDatetimeLayout = "2006-01-02 15:04:05"

var operDatetimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseOperDatetime parses a sensor timestamp. Values without an offset are read as
// UTC; values with one are converted to UTC.
func ParseOperDatetime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range operDatetimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", value)
}

// FormatOperDatetime renders t with OperDatetimeLayout.
func FormatOperDatetime(t time.Time) string {
	return t.Format(OperDatetimeLayout)
}
