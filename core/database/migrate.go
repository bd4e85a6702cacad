package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/logger"
)

// Report summarizes one migration run.
type Report struct {
	From, To uint
	Applied  []string
	Took     time.Duration
}

// Migrate waits for the database and applies every pending up migration.
func Migrate(ctx context.Context, cfg config.DatabaseConfig) (Report, error) {
	var rep Report
	if err := waitReady(ctx, DSN(cfg), 30*time.Second, 2*time.Second); err != nil {
		return rep, migrateFailed(ctx, "wait", err)
	}

	dir, err := migrationsDir(cfg.MigrationsDir)
	if err != nil {
		return rep, migrateFailed(ctx, "resolve", err)
	}
	files := upFiles(dir)
	preview, more := logger.SummarizeStrings(names(files), 6)
	logger.Debug(ctx, "db.migrate", "db.migrate.resolve",
		slog.String("path", dir),
		slog.Int("count", len(files)),
		slog.String("files", preview),
		slog.Bool("truncated", more),
	)

	m, err := migrate.New("file://"+filepath.ToSlash(dir), MigrateURL(cfg))
	if err != nil {
		return rep, migrateFailed(ctx, "init", err)
	}
	defer func() {
		if err := errors.Join(m.Close()); err != nil {
			logger.Warn(ctx, "db.migrate", "db.migrate.close", slog.String("err", err.Error()))
		}
	}()

	rep.From, _, _ = m.Version()
	start := time.Now()
	err = m.Up()
	rep.Took = time.Since(start)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return rep, migrateFailed(ctx, "apply", err)
	}
	rep.To, _, _ = m.Version()
	rep.Applied = names(between(files, rep.From, rep.To))

	applied, more := logger.SummarizeStrings(rep.Applied, 6)
	logger.Info(ctx, "db.migrate", "db.migrate",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(rep.From)),
		slog.Uint64("to_ver", uint64(rep.To)),
		slog.Int("count", len(rep.Applied)),
		slog.String("files", applied),
		slog.Bool("truncated", more),
		slog.Duration("duration", logger.RoundMS(rep.Took)),
	)
	return rep, nil
}

func migrateFailed(ctx context.Context, step string, err error) error {
	logger.Error(ctx, "db.migrate", "db.migrate",
		slog.String("status", "fail"),
		slog.String("step", step),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("db migrate %s: %w", step, err)
}

func migrationsDir(dir string) (string, error) {
	if dir == "" {
		dir = "migrations"
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve migrations dir: %w", err)
	}
	return abs, nil
}

type migrationFile struct {
	version uint
	name    string
}

// upFiles lists the *.up.sql files of dir ordered by version.
func upFiles(dir string) []migrationFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		out = append(out, migrationFile{version: versionOf(e.Name()), name: e.Name()})
	}
	slices.SortFunc(out, func(a, b migrationFile) int {
		return cmp.Or(cmp.Compare(a.version, b.version), strings.Compare(a.name, b.name))
	})
	return out
}

// versionOf parses the numeric prefix of a migration file name; 0 when missing.
func versionOf(name string) uint {
	prefix, _, _ := strings.Cut(name, "_")
	v, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

func between(files []migrationFile, from, to uint) []migrationFile {
	var out []migrationFile
	for _, f := range files {
		if f.version > from && f.version <= to {
			out = append(out, f)
		}
	}
	return out
}

func names(files []migrationFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.name
	}
	return out
}
