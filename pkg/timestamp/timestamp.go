// Package timestamp normalizes the timestamp encodings seen on the wire.
//
// Producers send RFC3339 strings, Unix seconds or Unix milliseconds, as JSON numbers
// or strings. Numeric values greater than 1e12 are taken as milliseconds, anything
// else as seconds. Unix milliseconds (int64) are the canonical integer form and
// 0 means "not set".
//
//	t, ok := timestamp.ParseTime("2025-01-01T12:00:00Z")
//	t, ok := timestamp.ParseTime(json.Number("1735732800000"))
//	ms := timestamp.ToUnixMs(t)
package timestamp

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Layout is the RFC3339 layout with millisecond precision used for display.
const Layout = "2006-01-02T15:04:05.000Z07:00"

// msThreshold separates seconds from milliseconds (year 2001 in seconds).
const msThreshold = 1e12

// maxMs bounds accepted timestamps (year 3000).
const maxMs = 32503680000000

// ToUnixMs converts a time.Time to Unix milliseconds. Zero time maps to 0.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time. 0 maps to the zero time.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Format renders Unix milliseconds for display. 0 renders as "".
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(Layout)
}

// Parse converts a wire timestamp to Unix milliseconds, returning 0 when the
// input is absent or unparseable.
func Parse(input any) int64 {
	t, ok := ParseTime(input)
	if !ok {
		return 0
	}
	return t.UnixMilli()
}

// ParseTime converts a wire timestamp to time.Time. Supported inputs are
// json.Number, float64, int64, int, numeric and RFC3339 strings and time.Time.
// ok is false for nil, zero, negative, non-finite or out-of-range input.
func ParseTime(input any) (time.Time, bool) {
	switch v := input.(type) {
	case nil:
		return time.Time{}, false

	case time.Time:
		return v, !v.IsZero()

	case json.Number:
		if i, err := v.Int64(); err == nil {
			return fromNumber(float64(i))
		}
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromNumber(f)

	case float64:
		return fromNumber(v)

	case int64:
		return fromNumber(float64(v))

	case int:
		return fromNumber(float64(v))

	case string:
		if v == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return fromNumber(f)
		}
		return time.Time{}, false

	default:
		return time.Time{}, false
	}
}

func fromNumber(v float64) (time.Time, bool) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	ms := v
	if v <= msThreshold {
		ms = v * 1000
	}
	if ms > maxMs {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

// Validate checks that a millisecond timestamp is non-negative and before year 3000.
func Validate(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("timestamp cannot be negative: %d", ms)
	}
	if ms > maxMs {
		return fmt.Errorf("timestamp too far in future: %d", ms)
	}
	return nil
}
