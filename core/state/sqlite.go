package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m3rciful/airbot/core/logger"

	_ "modernc.org/sqlite"
)

const (
	sqliteMaxRetries = 3
	sqliteBaseDelay  = 50 * time.Millisecond
)

// SQLiteStore stores documents in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates when missing) the database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("state: create database directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	var b strings.Builder
	for _, scope := range Scopes {
		fmt.Fprintf(&b, `
	CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at INTEGER NOT NULL
	);`, scope.Table())
	}
	if _, err := s.db.Exec(b.String()); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Read loads the document for key with its version.
func (s *SQLiteStore) Read(ctx context.Context, scope Scope, key string) (Document, int64, error) {
	if err := checkScope(scope, key); err != nil {
		return nil, 0, err
	}
	var (
		raw     string
		version int64
	)
	query := fmt.Sprintf(`SELECT data, version FROM %s WHERE key = ?`, scope.Table())
	err := s.db.QueryRowContext(ctx, query, key).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, 0, nil
	}
	if err != nil {
		return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: err}
	}
	doc, err := decodeDocument([]byte(raw))
	if err != nil {
		return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: err}
	}
	return doc, version, nil
}

// Write stores doc if the row is still at version, retrying while the database is locked.
func (s *SQLiteStore) Write(ctx context.Context, scope Scope, key string, doc Document, version int64) (int64, error) {
	if err := checkScope(scope, key); err != nil {
		return 0, err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return 0, &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: err}
	}
	query := fmt.Sprintf(`
	UPDATE %s SET data = ?, version = version + 1, updated_at = ?
	WHERE key = ? AND version = ?`, scope.Table())
	if version == 0 {
		query = fmt.Sprintf(`
	INSERT INTO %s (key, data, version, updated_at)
	VALUES (?, ?, 1, ?)
	ON CONFLICT(key) DO NOTHING`, scope.Table())
	}

	var affected int64
	err = s.withRetry(ctx, scope, key, func() error {
		now := time.Now().Unix()
		var (
			res     sql.Result
			execErr error
		)
		if version == 0 {
			res, execErr = s.db.ExecContext(ctx, query, key, string(data), now)
		} else {
			res, execErr = s.db.ExecContext(ctx, query, string(data), now, key, version)
		}
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: err}
	}
	if affected == 0 {
		return 0, conflict(scope, key, version)
	}
	return version + 1, nil
}

// Delete removes the row for key.
func (s *SQLiteStore) Delete(ctx context.Context, scope Scope, key string) error {
	if err := checkScope(scope, key); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, scope.Table())
	err := s.withRetry(ctx, scope, key, func() error {
		_, execErr := s.db.ExecContext(ctx, query, key)
		return execErr
	})
	if err != nil {
		return &StorageError{Op: "DELETE", Scope: scope, Key: key, Err: err}
	}
	return nil
}

// Keys lists all keys stored for scope.
func (s *SQLiteStore) Keys(ctx context.Context, scope Scope) ([]string, error) {
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, scope.Table()))
	if err != nil {
		return nil, &StorageError{Op: "LIST", Scope: scope, Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &StorageError{Op: "LIST", Scope: scope, Err: err}
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "LIST", Scope: scope, Err: err}
	}
	return keys, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) withRetry(ctx context.Context, scope Scope, key string, fn func() error) error {
	var err error
	for i := 0; i < sqliteMaxRetries; i++ {
		err = fn()
		if err == nil || !isSQLiteConflict(err) || i == sqliteMaxRetries-1 {
			return err
		}
		delay := sqliteBaseDelay * time.Duration(1<<i)
		logger.Debug(ctx, "state", "sqlite.retry",
			slog.String("status", "retry"),
			slog.String("scope", string(scope)),
			slog.String("key", key),
			slog.Int("attempts", i+1),
			slog.Duration("backoff", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// isSQLiteConflict reports SQLITE_BUSY and "database is locked" errors, which are worth retrying.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
