package helpers

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/telegram/sender"
)

var active atomic.Pointer[sender.Dispatcher]

// UseDispatcher routes Deliver through d. Nil makes Deliver send inline.
func UseDispatcher(d *sender.Dispatcher) {
	active.Store(d)
}

// Deliver sends what to the chat of c. With a dispatcher installed the call is
// queued behind the chat's earlier sends; when the queue cannot take it the
// message is dropped and the error returned, so replies never arrive out of order.
func Deliver(c tele.Context, action, endpoint string, what any, opts *tele.SendOptions) error {
	send := func() error {
		if opts == nil {
			return c.Send(what)
		}
		return c.Send(what, opts)
	}

	d := active.Load()
	if d == nil {
		return send()
	}
	ctx := Ctx(c)
	err := d.Enqueue(ctx, IDsOf(c).Conversation, action, endpoint, send)
	if err != nil {
		logger.Warn(ctx, "tg.sender", "send.dropped",
			slog.String("status", "fail"),
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("telegram: enqueue %s: %w", action, err)
	}
	return nil
}

// Ack answers a callback query without text. Failures are only logged.
func Ack(c tele.Context) {
	if c.Callback() == nil {
		return
	}
	if err := c.Respond(); err != nil {
		logger.Debug(Ctx(c), "tg", "callback.respond",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}
