// Package channel adapts Telegram updates to bot turns and renders the replies.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/logger"
	tghelpers "github.com/m3rciful/airbot/core/telegram/helpers"
	"github.com/m3rciful/airbot/core/turn"
)

// MessagesKey stores the reply count on tele.Context for handler summaries.
const MessagesKey = "messages"

// Channel turns Telegram updates into activities.
type Channel struct {
	handler turn.Handler
	bot     turn.Account
	send    func(c tele.Context, o Outbound) error
}

// New returns a channel delivering replies through the shared sender.
// me is the bot's own user; it becomes the activity recipient.
func New(handler turn.Handler, me *tele.User) (*Channel, error) {
	if handler == nil {
		return nil, errors.New("telegram: nil turn handler")
	}
	bot := turn.Account{Name: "bot"}
	if me != nil {
		bot = turn.Account{ID: strconv.FormatInt(me.ID, 10), Name: me.Username}
	}
	return &Channel{
		handler: handler,
		bot:     bot,
		send: func(c tele.Context, o Outbound) error {
			return tghelpers.Deliver(c, o.Action, o.Endpoint, o.What, o.Opts)
		},
	}, nil
}

// OnText handles plain text messages.
func (ch *Channel) OnText(c tele.Context) error {
	act := ch.MessageActivity(c)
	return ch.run(c, act, ch.handler.OnTurn)
}

// OnAction handles inline button presses by replaying the button label as user text.
func (ch *Channel) OnAction(c tele.Context) error {
	tghelpers.Ack(c)
	act := ch.MessageActivity(c)
	if act.Text == "" {
		return nil
	}
	return ch.run(c, act, ch.handler.OnTurn)
}

// OnStart greets the sender as a newly added member.
func (ch *Channel) OnStart(c tele.Context) error {
	return ch.run(c, ch.JoinActivity(c), ch.handler.OnTurn)
}

// OnUserJoined greets users added to a group.
func (ch *Channel) OnUserJoined(c tele.Context) error {
	return ch.run(c, ch.JoinActivity(c), ch.handler.OnTurn)
}

// OnCancel drops the running dialog.
func (ch *Channel) OnCancel(c tele.Context) error {
	return ch.run(c, ch.MessageActivity(c), ch.handler.Cancel)
}

func (ch *Channel) run(c tele.Context, act turn.Activity, fn func(context.Context, turn.Activity) (turn.Result, error)) error {
	ctx := tghelpers.Ctx(c)
	res, turnErr := fn(ctx, act)
	c.Set(MessagesKey, len(res.Messages))

	// replies queued before a failure are still delivered
	var sendErrs []error
	for _, m := range res.Messages {
		for _, o := range Render(m) {
			if err := ch.send(c, o); err != nil {
				sendErrs = append(sendErrs, err)
			}
		}
	}
	if len(sendErrs) > 0 {
		logger.Warn(ctx, "tg", "turn.deliver",
			slog.String("status", "fail"),
			slog.Int("count", len(sendErrs)),
			slog.String("err", logger.SanitizeLimit(errors.Join(sendErrs...).Error(), 256)),
		)
	}
	return errors.Join(turnErr, errors.Join(sendErrs...))
}
