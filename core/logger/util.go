package logger

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status maps a turn or operation error to the status field.
// A cancelled context is reported as cancelled, an expired one as expired.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "expired"
	default:
		return "fail"
	}
}

// Took is RoundMS(time.Since(start)).
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins at most limit values and reports whether some were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit < 0 {
		limit = 0
	}
	if len(values) > limit {
		return strings.Join(values[:limit], ", "), true
	}
	return strings.Join(values, ", "), false
}
