package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/state"
)

type fakeGetter struct {
	value string
	err   error
	asked string
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.asked = name
	return f.value, f.err
}

func noLogger(*coreconfig.Config) error { return nil }

func TestRunResolvesTokenAndSweeper(t *testing.T) {
	cfg := &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{Enabled: true, TokenParam: "/airbot/token"},
		State:    coreconfig.StateConfig{Backend: coreconfig.BackendMemory},
		Dialog:   coreconfig.DialogConfig{TTL: time.Hour, SweepInterval: time.Minute},
	}
	g := &fakeGetter{value: "123:abc"}

	res, err := Run(context.Background(), Options{Config: cfg, LoggerInit: noLogger, Secrets: g})
	require.NoError(t, err)
	defer res.Close()

	require.Equal(t, "/airbot/token", g.asked)
	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.IsType(t, &state.MemoryStore{}, res.Storage)
	require.NotNil(t, res.Sweeper)

	res.Start(context.Background())
}

func TestRunWithoutTTLHasNoSweeper(t *testing.T) {
	cfg := &coreconfig.Config{State: coreconfig.StateConfig{Backend: coreconfig.BackendMemory}}
	res, err := Run(context.Background(), Options{Config: cfg, LoggerInit: noLogger})
	require.NoError(t, err)
	require.Nil(t, res.Sweeper)
	require.NoError(t, res.Close())
}

func TestRunFailures(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	require.Error(t, err)

	boom := errors.New("boom")
	cfg := &coreconfig.Config{}
	_, err = Run(context.Background(), Options{Config: cfg, LoggerInit: func(*coreconfig.Config) error { return boom }})
	require.ErrorIs(t, err, boom)

	_, err = Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		OpenState: func(context.Context, coreconfig.StateConfig) (state.Storage, error) {
			return nil, boom
		},
	})
	require.ErrorIs(t, err, boom)

	cfg = &coreconfig.Config{Telegram: coreconfig.TelegramConfig{Enabled: true, TokenParam: "/x"}}
	_, err = Run(context.Background(), Options{Config: cfg, LoggerInit: noLogger, Secrets: &fakeGetter{err: boom}})
	require.ErrorIs(t, err, boom)
}
