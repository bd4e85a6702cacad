package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type ctxKey int

const (
	metaKey ctxKey = iota
	loggerKey
)

// turnMeta is the correlation data carried by a context. Values are copied on every change.
type turnMeta struct {
	rid          string
	channel      string
	conversation string
	user         string
	handler      string
}

func metaFrom(ctx context.Context) turnMeta {
	if ctx == nil {
		return turnMeta{}
	}
	m, _ := ctx.Value(metaKey).(turnMeta)
	return m
}

func withMeta(ctx context.Context, update func(*turnMeta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	update(&m)
	return context.WithValue(ctx, metaKey, m)
}

// WithLogger stores log in ctx; Event falls back to it when no component is given.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID sets the correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *turnMeta) { m.rid = rid })
}

// RIDFrom returns the correlation id of ctx.
func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// WithTurnMeta records which channel, conversation and user a turn belongs to.
// Empty arguments keep the values already present.
func WithTurnMeta(ctx context.Context, channel, conversationID, userID string) context.Context {
	return withMeta(ctx, func(m *turnMeta) {
		if channel != "" {
			m.channel = channel
		}
		if conversationID != "" {
			m.conversation = conversationID
		}
		if userID != "" {
			m.user = userID
		}
	})
}

// ChannelFrom returns the channel name of ctx.
func ChannelFrom(ctx context.Context) string { return metaFrom(ctx).channel }

// ConversationIDFrom returns the conversation id of ctx.
func ConversationIDFrom(ctx context.Context) string { return metaFrom(ctx).conversation }

// UserIDFrom returns the user id of ctx.
func UserIDFrom(ctx context.Context) string { return metaFrom(ctx).user }

// WithHandler names the handler serving the turn.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *turnMeta) { m.handler = handler })
}

// HandlerFrom returns the handler name of ctx.
func HandlerFrom(ctx context.Context) string { return metaFrom(ctx).handler }

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and cuts it to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = Sanitize(s)
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// BuildRID joins activity, conversation and user ids into activityID:conversationID:userID.
func BuildRID(activityID, conversationID, userID string) string {
	return activityID + ":" + conversationID + ":" + userID
}

// CompactRID renders an all-numeric RID as dot-separated base36 segments.
// Telegram ids compact well; other RIDs are returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
