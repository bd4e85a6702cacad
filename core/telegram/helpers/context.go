// Package helpers carries per-update logging context and outbound sends for
// Telegram handlers.
package helpers

import (
	"context"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/logger"
)

// Channel is the activity channel name for Telegram updates.
const Channel = "telegram"

const ctxKey = "airbot.ctx"

// IDs identifies an update. Empty fields stand for a missing chat or sender.
type IDs struct {
	Update       string
	Conversation string
	User         string
}

// RID is the request id logged for the update.
func (ids IDs) RID() string {
	return logger.BuildRID(ids.Update, ids.Conversation, ids.User)
}

// IDsOf extracts the ids of the update carried by c.
func IDsOf(c tele.Context) IDs {
	var ids IDs
	if c == nil {
		return ids
	}
	if upd := c.Update(); upd.ID != 0 {
		ids.Update = strconv.Itoa(upd.ID)
	}
	if chat := c.Chat(); chat != nil {
		ids.Conversation = strconv.FormatInt(chat.ID, 10)
	}
	if u := c.Sender(); u != nil {
		ids.User = strconv.FormatInt(u.ID, 10)
	}
	return ids
}

// Bind stores ctx on c for later handlers of the same update.
func Bind(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// Ctx returns the context bound to c, creating one with the update's RID and
// turn metadata on first use.
func Ctx(c tele.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if ctx, ok := c.Get(ctxKey).(context.Context); ok {
		return ctx
	}
	ids := IDsOf(c)
	ctx := logger.WithRID(context.Background(), ids.RID())
	ctx = logger.WithTurnMeta(ctx, Channel, ids.Conversation, ids.User)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	Bind(c, ctx)
	return ctx
}

// ForHandler tags the bound context with the handler name.
func ForHandler(c tele.Context, handler string) context.Context {
	ctx := Ctx(c)
	if handler != "" && logger.HandlerFrom(ctx) != handler {
		ctx = logger.WithHandler(ctx, handler)
		Bind(c, ctx)
	}
	return ctx
}
