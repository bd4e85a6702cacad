package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/database"
	"github.com/m3rciful/airbot/core/logger"
)

// Open builds the backend selected by cfg.Backend. Config is expected to be normalized.
// The postgres backend applies pending migrations before returning.
func Open(ctx context.Context, cfg config.StateConfig) (Storage, error) {
	start := time.Now()
	store, err := open(ctx, cfg)
	if err != nil {
		logger.State.Error("state backend failed",
			slog.String("event", "state.open"),
			slog.String("status", "fail"),
			slog.String("backend", cfg.Backend),
			slog.String("err", err.Error()),
		)
		return nil, err
	}
	logger.State.Info("state backend ready",
		slog.String("event", "state.open"),
		slog.String("status", "ok"),
		slog.String("backend", cfg.Backend),
		slog.Duration("duration", logger.Took(start)),
	)
	return store, nil
}

func open(ctx context.Context, cfg config.StateConfig) (Storage, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(), nil

	case config.BackendPostgres:
		if _, err := database.Migrate(ctx, cfg.Postgres); err != nil {
			return nil, fmt.Errorf("state: migrate: %w", err)
		}
		db, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("state: %w", err)
		}
		return NewPostgres(db)

	case config.BackendSQLite:
		return NewSQLite(cfg.SQLite)

	case config.BackendRedis:
		rdb, err := ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return NewRedis(rdb, cfg.Redis.Prefix, cfg.Redis.TTL)

	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("state: load aws config: %w", err)
		}
		return NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDB.Table, cfg.DynamoDB.TTL)

	default:
		return nil, fmt.Errorf("state: unknown backend %q", cfg.Backend)
	}
}
