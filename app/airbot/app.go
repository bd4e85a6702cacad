package airbot

import (
	"context"
	"fmt"

	"github.com/m3rciful/airbot/core/bootstrap"
	coreconfig "github.com/m3rciful/airbot/core/config"
	coretelegram "github.com/m3rciful/airbot/core/telegram"
	"github.com/m3rciful/airbot/core/telegram/callbacks"
	"github.com/m3rciful/airbot/core/telegram/channel"
	"github.com/m3rciful/airbot/core/telegram/router"
	tgsender "github.com/m3rciful/airbot/core/telegram/sender"
	"github.com/m3rciful/airbot/core/web"
)

// App wires the controller to every enabled channel.
type App struct {
	cfg    *coreconfig.Config
	infra  *bootstrap.Result
	ctrl   *Controller
	server *web.Server
}

// NewApp bootstraps shared infrastructure and builds the controller.
func NewApp(ctx context.Context, cfg *coreconfig.Config) (*App, error) {
	return newApp(ctx, bootstrap.Options{Config: cfg})
}

func newApp(ctx context.Context, opts bootstrap.Options) (*App, error) {
	infra, err := bootstrap.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	cfg := opts.Config
	ctrl, err := NewController(infra.Storage, infra.Locker, Options{
		Booking: BookingOptions{Confirm: cfg.Dialog.Confirm, Card: cfg.Dialog.Card},
	})
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	app := &App{cfg: cfg, infra: infra, ctrl: ctrl}
	if cfg.HTTP.Listen != "" {
		if app.server, err = web.NewServer(ctrl, cfg.HTTP); err != nil {
			_ = infra.Close()
			return nil, fmt.Errorf("airbot: http server: %w", err)
		}
	}
	return app, nil
}

// Controller returns the turn handler shared by all channels.
func (a *App) Controller() *Controller {
	return a.ctrl
}

// HTTPServer returns nil when no listen address is configured.
func (a *App) HTTPServer() *web.Server {
	return a.server
}

// Start launches the dialog sweeper.
func (a *App) Start(ctx context.Context) {
	a.infra.Start(ctx)
}

// Close stops background work and closes the state backend.
func (a *App) Close() error {
	return a.infra.Close()
}

// TelegramRunOptions registers the bot commands and routes for the Telegram channel.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	s := a.cfg.Sender
	return coretelegram.RunOptions{
		Config:   a.cfg,
		Registry: coretelegram.NewRegistry(),
		Sender: tgsender.Options{
			Workers:      s.Workers,
			QueueSize:    s.QueueSize,
			MaxRetries:   s.MaxRetries,
			RetryBackoff: s.RetryBackoff,
			EnqueueWait:  s.EnqueueWait,
		},
		Middlewares: coretelegram.Middlewares(a.cfg, nil),
		Wire:        a.wireTelegram,
	}, nil
}

func (a *App) wireTelegram(rt coretelegram.Runtime) ([]coretelegram.Route, error) {
	ch, err := channel.New(a.ctrl, rt.Me)
	if err != nil {
		return nil, err
	}
	reg := rt.Registry
	for _, cmd := range []coretelegram.Command{
		{Name: "/start", Description: "Say hello", Handler: ch.OnStart},
		{Name: "/cancel", Description: "Cancel the current booking", Handler: ch.OnCancel},
	} {
		if err := reg.AddCommand(cmd); err != nil {
			return nil, err
		}
	}
	reg.SetTextFallback(ch.OnText)
	if err := reg.AddCallback(callbacks.ActionKey, ch.OnAction); err != nil {
		return nil, err
	}

	routes := router.Routes(reg, router.Options{Member: ch.OnUserJoined})
	return routes, nil
}
