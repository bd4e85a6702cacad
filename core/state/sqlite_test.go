package state

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	doc, version, err := store.Read(ctx, ScopeConversation, "c1")
	require.NoError(t, err)
	require.Empty(t, doc)
	require.Zero(t, version)

	stack := json.RawMessage(`{"stack":[{"dialog_id":"booking","step_index":1}]}`)
	version, err = store.Write(ctx, ScopeConversation, "c1", Document{"dialog_state": stack}, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)
	_, err = store.Write(ctx, ScopeConversation, "c2", Document{}, 0)
	require.NoError(t, err)

	doc, version, err = store.Read(ctx, ScopeConversation, "c1")
	require.NoError(t, err)
	require.Equal(t, int64(1), version)
	require.JSONEq(t, string(stack), string(doc["dialog_state"]))

	// a write replaces the whole document
	version, err = store.Write(ctx, ScopeConversation, "c1", Document{"other": json.RawMessage(`true`)}, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), version)
	doc, _, err = store.Read(ctx, ScopeConversation, "c1")
	require.NoError(t, err)
	require.NotContains(t, doc, "dialog_state")

	keys, err := store.Keys(ctx, ScopeConversation)
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, keys)

	keys, err = store.Keys(ctx, ScopeUser)
	require.NoError(t, err)
	require.Empty(t, keys)

	require.NoError(t, store.Delete(ctx, ScopeConversation, "c1"))
	doc, _, err = store.Read(ctx, ScopeConversation, "c1")
	require.NoError(t, err)
	require.Empty(t, doc)
}

func TestSQLiteStoreWithTurn(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tr := NewTurn(store, "c1", "u1")
	require.NoError(t, tr.Set(ctx, ScopeUser, "welcome", map[string]bool{"did_welcome": true}))
	require.NoError(t, tr.FlushAll(ctx))

	next := NewTurn(store, "c1", "u1")
	got, err := GetOr(ctx, next, ScopeUser, "welcome", map[string]bool{})
	require.NoError(t, err)
	require.True(t, got["did_welcome"])
}

func TestSQLiteStoreRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Write(ctx, ScopeUser, "u1", Document{"n": json.RawMessage(`1`)}, 0)
	require.NoError(t, err)

	_, err = store.Write(ctx, ScopeUser, "u1", Document{"n": json.RawMessage(`2`)}, 0)
	require.ErrorIs(t, err, ErrConflict)
	_, err = store.Write(ctx, ScopeUser, "u1", Document{"n": json.RawMessage(`2`)}, 5)
	require.ErrorIs(t, err, ErrConflict)

	doc, version, err := store.Read(ctx, ScopeUser, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), version)
	require.JSONEq(t, `1`, string(doc["n"]))
}

func TestIsSQLiteConflict(t *testing.T) {
	require.True(t, isSQLiteConflict(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.False(t, isSQLiteConflict(errors.New("no such table")))
	require.False(t, isSQLiteConflict(nil))
}
