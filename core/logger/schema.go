package logger

import (
	"slices"
	"strings"
)

// statusValues is the closed vocabulary of the status field.
// ok/fail/skip cover every operation; the rest are specific to turns, sends and dialogs.
var statusValues = []string{"ok", "fail", "skip", "retry", "rate_limited", "cancelled", "expired"}

// outcomeValues is the vocabulary of the outcome field written by Telegram handler summaries.
var outcomeValues = []string{"ok", "fail", "cancelled", "rate_limited"}

func normalizeLevel(level string) string {
	switch l := strings.ToUpper(strings.TrimSpace(level)); l {
	case "":
		return "INFO"
	case "WARNING":
		return "WARN"
	default:
		return l
	}
}

// normalizeStatus lowercases s and reports whether it belongs to the vocabulary.
// Unknown values are kept as written.
func normalizeStatus(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	return s, slices.Contains(statusValues, s)
}

func normalizeOutcome(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	return s, slices.Contains(outcomeValues, s)
}

// defaultKeyOrder puts correlation first, then turn and dialog position, then timings and errors.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"channel", "conversation_id", "user_id", "activity_type", "handler",
	"dialog_id", "step", "step_index", "turn_status",
	"scope", "key", "version", "conflict", "backend",
	"outcome", "duration_ms", "messages", "count", "expired",
	"action", "endpoint", "mode", "listen", "public_url", "method", "path", "http_code",
	"db", "host", "port",
	"err", "err_code", "cause", "attempts", "backoff_ms",
}
