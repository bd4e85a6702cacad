// Package airbot is the flight booking bot: fixed texts, the booking and
// weather dialogs, and the controller that routes each turn.
package airbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/airbot/core/dialog"
	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/state"
	"github.com/m3rciful/airbot/core/turn"
)

var _ turn.Handler = (*Controller)(nil)

// Options configures the controller.
type Options struct {
	Booking BookingOptions
}

// Controller runs one turn per inbound activity.
// Turns touching the same conversation or user are serialized.
type Controller struct {
	storage state.Storage
	locker  *state.Locker
	engine  *dialog.Engine
}

// NewController registers the bot dialogs and returns a ready controller.
// locker may be shared with the dialog sweeper; nil creates a private one.
func NewController(storage state.Storage, locker *state.Locker, opts Options) (*Controller, error) {
	if storage == nil {
		return nil, errors.New("airbot: storage must not be nil")
	}
	if locker == nil {
		locker = state.NewLocker()
	}
	set := dialog.NewSet()
	if err := set.Add(dialog.Dialog{ID: BookingDialog, Steps: BookingSteps(opts.Booking)}); err != nil {
		return nil, fmt.Errorf("airbot: register booking: %w", err)
	}
	if err := set.Add(dialog.Dialog{ID: WeatherDialog, Steps: WeatherSteps()}); err != nil {
		return nil, fmt.Errorf("airbot: register weather: %w", err)
	}
	logger.Debug(context.Background(), "bot", "bot.dialogs",
		slog.String("status", "ok"),
		slog.String("dialog_id", strings.Join(set.IDs(), ",")),
		slog.Bool("confirm", opts.Booking.Confirm),
		slog.Bool("card", opts.Booking.Card),
	)
	return &Controller{
		storage: storage,
		locker:  locker,
		engine:  dialog.NewEngine(set),
	}, nil
}

// Engine exposes the dialog engine.
func (c *Controller) Engine() *dialog.Engine {
	return c.engine
}

// Locker exposes the per-key locker guarding turns.
func (c *Controller) Locker() *state.Locker {
	return c.locker
}

// OnTurn handles one activity and returns the replies to deliver in order.
// State is flushed on every path. When flushing fails the replies are still returned
// together with the error.
func (c *Controller) OnTurn(ctx context.Context, act turn.Activity) (turn.Result, error) {
	return c.withTurn(ctx, act, "turn", func(ctx context.Context, tc *turn.Context) error {
		switch act.Type {
		case turn.TypeMemberAdded:
			c.onMembersAdded(tc)
			return nil
		case turn.TypeMessage:
			return c.onMessage(ctx, tc)
		default:
			logger.Debug(ctx, "bot", "bot.turn",
				slog.String("status", "skip"),
				slog.String("activity_type", act.Type),
			)
			return nil
		}
	})
}

// Cancel drops the running dialog of the activity's conversation and tells the user.
func (c *Controller) Cancel(ctx context.Context, act turn.Activity) (turn.Result, error) {
	return c.withTurn(ctx, act, "cancel", func(ctx context.Context, tc *turn.Context) error {
		cancelled, err := c.engine.Cancel(ctx, tc)
		if err != nil {
			return err
		}
		if cancelled {
			tc.SendText(DialogCancelled)
		} else {
			tc.SendText(NothingToCancel)
		}
		return nil
	})
}

func (c *Controller) withTurn(ctx context.Context, act turn.Activity, handler string, fn func(context.Context, *turn.Context) error) (turn.Result, error) {
	ctx = logger.WithTurnMeta(ctx, act.Channel, act.ConversationID, act.From.ID)
	ctx = logger.WithHandler(ctx, handler)
	if logger.RIDFrom(ctx) == "" {
		ctx = logger.WithRID(ctx, logger.BuildRID(act.ID, act.ConversationID, act.From.ID))
	}

	tc := turn.NewContext(act, c.storage)
	unlock := c.locker.LockTurn(tc.State.Key(state.ScopeConversation), tc.State.Key(state.ScopeUser))
	defer unlock()

	start := time.Now()

	turnErr := fn(ctx, tc)
	if turnErr != nil {
		logger.Error(ctx, "bot", "bot.turn",
			slog.String("status", "fail"),
			slog.String("activity_type", act.Type),
			slog.String("err", turnErr.Error()),
		)
	}

	// memberAdded turns never load state, so FlushAll writes nothing for them.
	flushErr := tc.State.FlushAll(ctx)
	err := errors.Join(turnErr, flushErr)

	out := tc.Outbox()
	logger.Debug(ctx, "bot", "bot.turn",
		slog.String("status", logger.Status(err)),
		slog.String("activity_type", act.Type),
		slog.Int("messages", len(out)),
		slog.Duration("duration", logger.Took(start)),
	)
	return turn.Result{Messages: out}, err
}

func (c *Controller) onMembersAdded(tc *turn.Context) {
	for _, member := range tc.Activity.MembersAdded {
		if member.ID == tc.Activity.Recipient.ID {
			continue
		}
		tc.SendText(WelcomeMessage)
		tc.Send(turn.Message{
			Text:             WhatCanIDoMessage,
			SuggestedActions: append([]string(nil), MenuActions...),
		})
	}
}

func (c *Controller) onMessage(ctx context.Context, tc *turn.Context) error {
	welcome, err := state.GetOr(ctx, tc.State, state.ScopeUser, PropWelcome, Welcome{})
	if err != nil {
		return err
	}
	if !welcome.DidWelcome {
		welcome.DidWelcome = true
		if err := tc.State.Set(ctx, state.ScopeUser, PropWelcome, welcome); err != nil {
			return err
		}
		tc.SendText(FirstWelcomeMessage)
		tc.SendText(FirstWhatCanIDoMessage)
	}

	_, active, err := c.engine.Active(ctx, tc)
	if err != nil {
		return err
	}

	var res dialog.Result
	if active {
		res, err = c.engine.Continue(ctx, tc, tc.Activity.Text)
	} else {
		res, err = c.engine.Start(ctx, tc, intent(tc.Activity.Text))
	}
	if err != nil {
		return err
	}
	logger.Debug(ctx, "bot", "bot.dialog",
		slog.String("dialog_id", res.DialogID),
		slog.Int("step_index", res.StepIndex),
		slog.String("turn_status", res.Status.String()),
	)
	return nil
}

// intent maps the exact menu text to a dialog. Anything else books a flight.
func intent(text string) string {
	if text == WeatherAction {
		return WeatherDialog
	}
	return BookingDialog
}
