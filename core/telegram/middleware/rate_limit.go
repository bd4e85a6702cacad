package middleware

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/logger"
	tghelpers "github.com/m3rciful/airbot/core/telegram/helpers"
)

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists update kinds (see UpdateKind) that are never limited.
	Exclude []string
	// OnLimited runs instead of the handler for a dropped update.
	OnLimited tele.HandlerFunc

	now func() time.Time
}

// UpdateKind classifies an update for rate limit exclusions and logs.
func UpdateKind(upd tele.Update) string {
	switch m := upd.Message; {
	case upd.Callback != nil:
		return config.UpdateCallback
	case m != nil && (m.UserJoined != nil || len(m.UsersJoined) > 0):
		return config.UpdateMember
	case m != nil:
		return config.UpdateMessage
	}
	return "other"
}

type limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[int64]time.Time
}

// allow records ts for user unless the previous update is closer than interval.
// Entries older than interval are dropped once the map grows.
func (l *limiter) allow(user int64, ts time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.last[user]; ok && ts.Sub(prev) < l.interval {
		return false
	}
	if len(l.last) >= 4096 {
		for id, t := range l.last {
			if ts.Sub(t) >= l.interval {
				delete(l.last, id)
			}
		}
	}
	l.last[user] = ts
	return true
}

// RateLimit drops updates arriving from one user faster than opts.Interval.
// A non-positive interval disables the limit.
func RateLimit(opts RateLimitOptions) tele.MiddlewareFunc {
	now := opts.now
	if now == nil {
		now = time.Now
	}
	exclude := make([]string, 0, len(opts.Exclude))
	for _, k := range opts.Exclude {
		exclude = append(exclude, strings.ToLower(strings.TrimSpace(k)))
	}
	l := &limiter{interval: opts.Interval, last: make(map[int64]time.Time)}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			u := c.Sender()
			if u == nil || l.interval <= 0 {
				return next(c)
			}
			kind := UpdateKind(c.Update())
			if slices.Contains(exclude, kind) || l.allow(u.ID, now()) {
				return next(c)
			}
			logger.Warn(tghelpers.Ctx(c), "tg", "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
