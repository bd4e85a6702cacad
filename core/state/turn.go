package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/airbot/core/logger"
)

type entry struct {
	doc     Document
	version int64
	dirty   bool
}

// Turn is the state view of a single turn. Documents are loaded once on
// first access; writes stay in memory until Flush, which commits against the
// version that was loaded.
// A Turn is not safe for concurrent use; callers serialize turns per key.
type Turn struct {
	storage Storage
	keys    map[Scope]string
	entries map[Scope]*entry
}

// NewTurn binds a turn view to the conversation and user keys of the current activity.
func NewTurn(storage Storage, conversationID, userID string) *Turn {
	return &Turn{
		storage: storage,
		keys: map[Scope]string{
			ScopeConversation: conversationID,
			ScopeUser:         userID,
		},
		entries: make(map[Scope]*entry, 2),
	}
}

// Key returns the storage key used for scope in this turn.
func (t *Turn) Key(scope Scope) string {
	return t.keys[scope]
}

func (t *Turn) load(ctx context.Context, scope Scope) (*entry, error) {
	if e, ok := t.entries[scope]; ok {
		return e, nil
	}
	key := t.keys[scope]
	if err := checkScope(scope, key); err != nil {
		return nil, &StorageError{Op: "READ", Scope: scope, Key: key, Err: err}
	}
	doc, version, err := t.storage.Read(ctx, scope, key)
	if err != nil {
		var se *StorageError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &StorageError{Op: "READ", Scope: scope, Key: key, Err: err}
	}
	if doc == nil {
		doc = Document{}
	}
	e := &entry{doc: doc, version: version}
	t.entries[scope] = e
	return e, nil
}

// Get decodes property name of scope into out and reports whether it was present.
func (t *Turn) Get(ctx context.Context, scope Scope, name string, out any) (bool, error) {
	e, err := t.load(ctx, scope)
	if err != nil {
		return false, err
	}
	raw, ok := e.doc[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s.%s: %w", scope, name, err)
	}
	return true, nil
}

// Set buffers value as property name of scope.
func (t *Turn) Set(ctx context.Context, scope Scope, name string, value any) error {
	e, err := t.load(ctx, scope)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s.%s: %w", scope, name, err)
	}
	e.doc[name] = raw
	e.dirty = true
	return nil
}

// Delete buffers removal of property name from scope.
func (t *Turn) Delete(ctx context.Context, scope Scope, name string) error {
	e, err := t.load(ctx, scope)
	if err != nil {
		return err
	}
	if _, ok := e.doc[name]; !ok {
		return nil
	}
	delete(e.doc, name)
	e.dirty = true
	return nil
}

// Flush commits buffered writes for scope. Flushing a clean scope does nothing.
func (t *Turn) Flush(ctx context.Context, scope Scope) error {
	e, ok := t.entries[scope]
	if !ok || !e.dirty {
		return nil
	}
	key := t.keys[scope]
	start := time.Now()
	version, err := t.storage.Write(ctx, scope, key, e.doc.Clone(), e.version)
	if err != nil {
		var se *StorageError
		if !errors.As(err, &se) {
			err = &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: err}
		}
		logger.Error(ctx, "state", "state.flush",
			slog.String("status", "fail"),
			slog.Bool("conflict", errors.Is(err, ErrConflict)),
			slog.String("scope", string(scope)),
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
		return err
	}
	e.version, e.dirty = version, false
	logger.Debug(ctx, "state", "state.flush",
		slog.String("status", "ok"),
		slog.String("scope", string(scope)),
		slog.String("key", key),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// FlushAll flushes every scope and joins the failures.
func (t *Turn) FlushAll(ctx context.Context) error {
	var errs []error
	for _, scope := range Scopes {
		if err := t.Flush(ctx, scope); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dirty reports whether scope has unflushed writes.
func (t *Turn) Dirty(scope Scope) bool {
	e, ok := t.entries[scope]
	return ok && e.dirty
}

// GetOr returns property name of scope, or def when it has never been set.
func GetOr[T any](ctx context.Context, t *Turn, scope Scope, name string, def T) (T, error) {
	var v T
	found, err := t.Get(ctx, scope, name, &v)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}
