// Package telegram runs the bot on Telegram: poller, HTTP client, middleware
// chain, command registry and lifecycle.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/logger"
	tghelpers "github.com/m3rciful/airbot/core/telegram/helpers"
	"github.com/m3rciful/airbot/core/telegram/netutil"
	tgsender "github.com/m3rciful/airbot/core/telegram/sender"
)

// Route binds a handler to a telebot endpoint (a command string or an On* constant).
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// Runtime is what route wiring gets to see of the running bot.
type Runtime struct {
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
	Me         *tele.User
}

// RunOptions configures Run.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Client defaults to NewHTTPClient(ClientOptions{}).
	Client *http.Client
	Sender tgsender.Options

	// Middlewares are installed with bot.Use in order.
	Middlewares []tele.MiddlewareFunc
	// Wire builds routes once the bot knows its own identity.
	Wire func(rt Runtime) ([]Route, error)
}

// Run starts the bot and blocks until ctx is done or the poller stops.
// A cancelled ctx is a clean shutdown and yields nil.
func Run(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	cfg := opts.Config
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(ClientOptions{})
	}

	poller := NewPoller(cfg.Telegram, cfg.Webhook)
	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  opts.Client,
		OnError: onError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %s", netutil.Redact(err.Error()))
	}
	logger.Info(ctx, "tg", "tg.mode", append(describePoller(poller),
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)...)

	if _, polling := poller.(*tele.LongPoller); polling {
		clearWebhook(ctx, bot)
	}

	dispatcher := tgsender.NewDispatcher(opts.Sender)
	tghelpers.UseDispatcher(dispatcher)
	defer func() {
		dispatcher.Close()
		tghelpers.UseDispatcher(nil)
	}()

	if err := install(ctx, bot, opts, Runtime{Dispatcher: dispatcher, Registry: opts.Registry, Me: bot.Me}); err != nil {
		return err
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-stopped
	case <-stopped:
	}
	logger.Info(context.WithoutCancel(ctx), "tg", "tg.stop",
		slog.String("status", "ok"),
		slog.Uint64("sent", dispatcher.SentCount()),
		slog.Uint64("failed", dispatcher.ErrorCount()),
	)
	return nil
}

func install(ctx context.Context, bot *tele.Bot, opts RunOptions, rt Runtime) error {
	bot.Use(opts.Middlewares...)
	if opts.Wire != nil {
		routes, err := opts.Wire(rt)
		if err != nil {
			return fmt.Errorf("telegram: wire routes: %w", err)
		}
		for _, r := range routes {
			if r.Endpoint != nil && r.Handler != nil {
				bot.Handle(r.Endpoint, r.Handler)
			}
		}
	}
	publishMenu(ctx, bot, rt.Registry)
	return nil
}

// clearWebhook removes a webhook left over from webhook mode; Telegram refuses
// getUpdates while one is set.
func clearWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, "tg", "tg.delete_webhook",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(netutil.Redact(err.Error()), 256)),
		)
		return
	}
	logger.Debug(ctx, "tg", "tg.delete_webhook", slog.String("status", "ok"))
}

func onError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.Ctx(c)
	}
	logger.Error(ctx, "tg", "tg.error",
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(netutil.Redact(err.Error()), 256)),
		slog.String("err_code", netutil.Classify(err)),
	)
}
