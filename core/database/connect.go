// Package database connects to PostgreSQL and applies schema migrations
// for the postgres state backend.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/logger"
)

// DSN renders the key/value connection string understood by lib/pq.
// Values containing spaces, quotes or backslashes are single-quoted.
func DSN(cfg config.DatabaseConfig) string {
	pairs := [][2]string{
		{"user", cfg.User},
		{"password", cfg.Password},
		{"host", cfg.Host},
		{"port", cfg.Port},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		parts = append(parts, p[0]+"="+dsnValue(p[1]))
	}
	return strings.Join(parts, " ")
}

func dsnValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

// MigrateURL renders the postgres:// URL expected by golang-migrate.
func MigrateURL(cfg config.DatabaseConfig) string {
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func target(cfg config.DatabaseConfig) []slog.Attr {
	return []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}
}

// Connect opens a pooled connection and pings it within five seconds.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", DSN(cfg))
	if err != nil {
		logger.Error(ctx, "db", "db.connect", append(target(cfg),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(cfg.MaxConnections)
	}

	logger.Info(ctx, "db", "db.connect", append(target(cfg),
		slog.String("status", "ok"),
		slog.Int("count", cfg.MaxConnections),
		slog.Duration("duration", logger.Took(start)),
	)...)
	return db, nil
}

// waitReady pings dsn every interval until it answers, ctx ends or timeout passes.
func waitReady(ctx context.Context, dsn string, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		err := ping(ctx, dsn)
		if err == nil {
			return nil
		}
		logger.Debug(ctx, "db", "db.wait",
			slog.String("status", "retry"),
			slog.Int("attempts", attempt),
			slog.String("err", err.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready after %d attempts: %w", attempt, err)
		case <-time.After(interval):
		}
	}
}

func ping(ctx context.Context, dsn string) error {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}
