package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/airbot/core/telegram/helpers"
)

// seenUpdates remembers update ids for a short while. Route handlers wrap
// Receipt again, so one update may pass it twice.
type seenUpdates struct {
	mu     sync.Mutex
	ttl    time.Duration
	at     map[int]time.Time
	pruned time.Time
}

func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.pruned) > s.ttl {
		for k, t := range s.at {
			if now.Sub(t) > s.ttl {
				delete(s.at, k)
			}
		}
		s.pruned = now
	}
	if _, ok := s.at[id]; ok {
		return false
	}
	s.at[id] = now
	return true
}

var receipts = &seenUpdates{ttl: 10 * time.Second, at: make(map[int]time.Time)}

// Receipt binds the update's logging context to c and writes one sampled
// update.received line per update.
func Receipt(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ids := tghelpers.IDsOf(c)
		c.Set("rid", ids.RID())

		ctx := tghelpers.Ctx(c)
		upd := c.Update()
		if logger.ShouldSampleDebug() && receipts.first(upd.ID, time.Now()) {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c, upd)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context, upd tele.Update) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.Int("update_id", upd.ID),
		slog.String("kind", UpdateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if u := c.Sender(); u != nil && u.Username != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
	}

	var payload string
	switch {
	case upd.Callback != nil:
		if key := callbacks.Key(upd.Callback); key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		payload = callbacks.Payload(upd.Callback)
	case upd.Message != nil:
		payload = c.Text()
	}
	if payload != "" {
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
	}
	return attrs
}
