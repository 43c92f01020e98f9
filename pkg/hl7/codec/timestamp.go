// Package codec converts HL7v2 leaf values to and from native Go types.
// It consumes plain strings, so it works with values read from either
// message tree.
package codec

import (
	"fmt"
	"strings"
	"time"
)

// TSPrecision selects how much of a timestamp FormatTimestamp renders.
type TSPrecision int

const (
	PrecisionDay TSPrecision = iota
	PrecisionMinute
	PrecisionSecond
)

const (
	layoutDay      = "20060102"
	layoutMinute   = "200601021504"
	layoutSecond   = "20060102150405"
	layoutClock    = "150405"
	layoutMinOfDay = "1504"
)

// ParseTimestamp reads an HL7 TS value at day, minute, or second precision.
// Fractional seconds and zone offsets are tolerated and discarded.
func ParseTimestamp(v string) (time.Time, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return time.Time{}, fmt.Errorf("codec: empty timestamp")
	}
	if i := strings.IndexAny(s, ".+-"); i >= 0 {
		s = s[:i]
	}
	var layout string
	switch len(s) {
	case len(layoutSecond):
		layout = layoutSecond
	case len(layoutMinute):
		layout = layoutMinute
	case len(layoutDay):
		layout = layoutDay
	default:
		return time.Time{}, fmt.Errorf("codec: unsupported timestamp %q", v)
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("codec: parse timestamp %q: %w", v, err)
	}
	return t, nil
}

// FormatTimestamp renders t as an HL7 TS value at the given precision.
func FormatTimestamp(t time.Time, p TSPrecision) string {
	switch p {
	case PrecisionDay:
		return t.Format(layoutDay)
	case PrecisionMinute:
		return t.Format(layoutMinute)
	}
	return t.Format(layoutSecond)
}

// ParseDate reads an HL7 DT value, ignoring anything past the day.
func ParseDate(v string) (time.Time, error) {
	s := strings.TrimSpace(v)
	if len(s) < len(layoutDay) {
		return time.Time{}, fmt.Errorf("codec: unsupported date %q", v)
	}
	t, err := time.Parse(layoutDay, s[:len(layoutDay)])
	if err != nil {
		return time.Time{}, fmt.Errorf("codec: parse date %q: %w", v, err)
	}
	return t, nil
}

// ParseTime reads an HL7 TM value (HHMM or HHMMSS; fractional seconds
// discarded) onto the zero date.
func ParseTime(v string) (time.Time, error) {
	s := strings.TrimSpace(v)
	if i := strings.IndexAny(s, ".+-"); i >= 0 {
		s = s[:i]
	}
	var layout string
	switch len(s) {
	case len(layoutClock):
		layout = layoutClock
	case len(layoutMinOfDay):
		layout = layoutMinOfDay
	default:
		return time.Time{}, fmt.Errorf("codec: unsupported time %q", v)
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("codec: parse time %q: %w", v, err)
	}
	return t, nil
}
