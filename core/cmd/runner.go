// Package cmd is the process entry point shared by bot binaries: it loads
// configuration, bootstraps the app and runs its channels until a signal arrives.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/logger"
	coretelegram "github.com/m3rciful/airbot/core/telegram"
	"github.com/m3rciful/airbot/core/web"
)

// ErrNoChannel is returned when the app exposes neither Telegram nor HTTP.
var ErrNoChannel = errors.New("cmd: no channel enabled")

// App is what a bot binary hands to Run.
type App interface {
	// TelegramRunOptions is called only when Telegram is enabled.
	TelegramRunOptions() (coretelegram.RunOptions, error)
	// HTTPServer returns nil when the HTTP channel is disabled.
	HTTPServer() *web.Server
	// Start launches background workers.
	Start(ctx context.Context)
	Close() error
}

// Options wires Run to a concrete bot.
type Options struct {
	// ConfigEnvVar names the variable holding the config path; CONFIG_PATH by default.
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(ctx context.Context, cfg *coreconfig.Config) (App, error)

	// ShutdownLogger defaults to logger.Shutdown.
	ShutdownLogger func() error
	// RunTelegram defaults to telegram.Run.
	RunTelegram func(ctx context.Context, opts coretelegram.RunOptions) error
	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

type service struct {
	name string
	run  func(context.Context) error
}

// Run loads configuration, bootstraps the app, and serves until interrupted.
func Run(opts Options) error {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}
	path, err := opts.configPath()
	if err != nil {
		return err
	}
	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), opts.signals()...)
	defer stop()

	began := time.Now()
	app, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer opts.closeLogger()
	defer closeApp(app)

	services, err := opts.services(cfg, app)
	if err != nil {
		return err
	}

	app.Start(ctx)
	names := make([]string, len(services))
	for i, s := range services {
		names[i] = s.name
	}
	logger.Info(ctx, "app", "ready",
		slog.String("status", "ok"),
		slog.String("channel", strings.Join(names, ",")),
		slog.Duration("duration", logger.Took(began)),
	)

	err = runAll(ctx, services)
	logger.Info(context.WithoutCancel(ctx), "app", "shutdown", slog.String("status", logger.Status(err)))
	return err
}

func (o Options) configPath() (string, error) {
	env := o.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if o.DefaultConfigPath != "" {
		return o.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
}

func (o Options) signals() []os.Signal {
	if len(o.Signals) > 0 {
		return o.Signals
	}
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

func (o Options) closeLogger() {
	shutdown := o.ShutdownLogger
	if shutdown == nil {
		shutdown = logger.Shutdown
	}
	if err := shutdown(); err != nil {
		log.Printf("logger shutdown error: %v", err)
	}
}

func closeApp(app App) {
	if err := app.Close(); err != nil {
		logger.Error(context.Background(), "app", "close",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

// services lists the channels enabled by cfg.
func (o Options) services(cfg *coreconfig.Config, app App) ([]service, error) {
	var out []service
	if cfg.Telegram.Enabled {
		tgOpts, err := app.TelegramRunOptions()
		if err != nil {
			return nil, fmt.Errorf("cmd: telegram options build failed: %w", err)
		}
		run := o.RunTelegram
		if run == nil {
			run = coretelegram.Run
		}
		out = append(out, service{"telegram", func(ctx context.Context) error { return run(ctx, tgOpts) }})
	}
	if srv := app.HTTPServer(); srv != nil {
		out = append(out, service{"http", srv.Run})
	}
	if len(out) == 0 {
		return nil, ErrNoChannel
	}
	return out, nil
}

// runAll runs every service until ctx is done or one of them returns; the first
// return stops the rest. Cancellation is not an error.
func runAll(ctx context.Context, services []service) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			err := s.run(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			mu.Unlock()
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
