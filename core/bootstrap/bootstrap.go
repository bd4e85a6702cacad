// Package bootstrap initializes the shared infrastructure of a bot process:
// logging, the Telegram token, the state backend and the dialog sweeper.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	coreconfig "github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/dialog"
	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/secrets"
	"github.com/m3rciful/airbot/core/state"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	OpenState  func(context.Context, coreconfig.StateConfig) (state.Storage, error)
	// Secrets reads token_param; nil builds an SSM client from the default AWS config.
	Secrets secrets.Getter
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Storage state.Storage
	Locker  *state.Locker
	// Sweeper is nil when dialog expiry is disabled.
	Sweeper *dialog.Sweeper
}

// Run initializes the logger, resolves the Telegram token and opens the state backend.
// The resolved token is written back into opts.Config.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		getter := opts.Secrets
		if getter == nil {
			var err error
			if getter, err = ssmGetter(ctx); err != nil {
				return nil, fmt.Errorf("bootstrap: %w", err)
			}
		}
		token, err := secrets.ResolveToken(ctx, getter, cfg.Telegram.Token, cfg.Telegram.TokenParam)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: telegram token: %w", err)
		}
		cfg.Telegram.Token = token
	}

	openState := opts.OpenState
	if openState == nil {
		openState = state.Open
	}
	storage, err := openState(ctx, cfg.State)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: state backend failed: %w", err)
	}

	res := &Result{Storage: storage, Locker: state.NewLocker()}
	if cfg.Dialog.TTL > 0 {
		sw, err := dialog.NewSweeper(storage, res.Locker, cfg.Dialog.TTL, cfg.Dialog.SweepInterval)
		if err != nil {
			_ = storage.Close()
			return nil, fmt.Errorf("bootstrap: dialog sweeper: %w", err)
		}
		res.Sweeper = sw
	}
	return res, nil
}

// Start launches background workers.
func (r *Result) Start(ctx context.Context) {
	if r.Sweeper != nil {
		r.Sweeper.Start(ctx)
	}
}

// Close stops background workers and releases the state backend.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	if r.Sweeper != nil {
		r.Sweeper.Stop()
	}
	var err error
	if r.Storage != nil {
		err = r.Storage.Close()
	}
	if err != nil {
		logger.Warn(context.Background(), "state", "state.close",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	return err
}

func ssmGetter(ctx context.Context) (secrets.Getter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	ps, err := secrets.New(ssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	return ps, nil
}
