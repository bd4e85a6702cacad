package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresStore stores documents as JSONB rows in the conversation_state and user_state tables.
// The tables are created by the migrations under migrations/.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgres wraps an open connection pool.
func NewPostgres(db *sqlx.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("state: postgres db must not be nil")
	}
	return &PostgresStore{db: db}, nil
}

type pgRow struct {
	Data    []byte `db:"data"`
	Version int64  `db:"version"`
}

// Read loads the document for key with its version.
func (p *PostgresStore) Read(ctx context.Context, scope Scope, key string) (Document, int64, error) {
	if err := checkScope(scope, key); err != nil {
		return nil, 0, err
	}
	var row pgRow
	query := fmt.Sprintf(`SELECT data, version FROM %s WHERE key = $1`, scope.Table())
	err := p.db.GetContext(ctx, &row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, 0, nil
	}
	if err != nil {
		return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: err}
	}
	doc, err := decodeDocument(row.Data)
	if err != nil {
		return nil, 0, &StorageError{Op: "READ", Scope: scope, Key: key, Err: err}
	}
	return doc, row.Version, nil
}

// Write inserts the first version of a row or updates the row still at version.
func (p *PostgresStore) Write(ctx context.Context, scope Scope, key string, doc Document, version int64) (int64, error) {
	if err := checkScope(scope, key); err != nil {
		return 0, err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return 0, &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: err}
	}
	// lib/pq sends []byte as bytea, so the JSON goes over the wire as text.
	query := fmt.Sprintf(`
	UPDATE %s SET data = $2::jsonb, version = version + 1, updated_at = now()
	WHERE key = $1 AND version = $3`, scope.Table())
	args := []any{key, string(data), version}
	if version == 0 {
		query = fmt.Sprintf(`
	INSERT INTO %s (key, data, version, updated_at)
	VALUES ($1, $2::jsonb, 1, now())
	ON CONFLICT (key) DO NOTHING`, scope.Table())
		args = args[:2]
	}
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: err}
	}
	if n == 0 {
		return 0, conflict(scope, key, version)
	}
	return version + 1, nil
}

// Delete removes the row for key.
func (p *PostgresStore) Delete(ctx context.Context, scope Scope, key string) error {
	if err := checkScope(scope, key); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, scope.Table())
	if _, err := p.db.ExecContext(ctx, query, key); err != nil {
		return &StorageError{Op: "DELETE", Scope: scope, Key: key, Err: err}
	}
	return nil
}

// Keys lists all keys stored for scope.
func (p *PostgresStore) Keys(ctx context.Context, scope Scope) ([]string, error) {
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	var keys []string
	query := fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, scope.Table())
	if err := p.db.SelectContext(ctx, &keys, query); err != nil {
		return nil, &StorageError{Op: "LIST", Scope: scope, Err: err}
	}
	return keys, nil
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
