package state

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*MemoryStore
	readErr  error
	writeErr error
	reads    int
}

func (f *failingStore) Read(ctx context.Context, scope Scope, key string) (Document, int64, error) {
	f.reads++
	if f.readErr != nil {
		return nil, 0, f.readErr
	}
	return f.MemoryStore.Read(ctx, scope, key)
}

func (f *failingStore) Write(ctx context.Context, scope Scope, key string, doc Document, version int64) (int64, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.MemoryStore.Write(ctx, scope, key, doc, version)
}

type profile struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

func TestTurnBuffersUntilFlush(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tr := NewTurn(store, "c1", "u1")
	require.NoError(t, tr.Set(ctx, ScopeUser, "profile", profile{From: "NYC"}))
	require.True(t, tr.Dirty(ScopeUser))

	other := NewTurn(store, "c1", "u1")
	var p profile
	found, err := other.Get(ctx, ScopeUser, "profile", &p)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, tr.Flush(ctx, ScopeUser))
	require.False(t, tr.Dirty(ScopeUser))

	fresh := NewTurn(store, "c1", "u1")
	found, err = fresh.Get(ctx, ScopeUser, "profile", &p)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "NYC", p.From)
}

func TestTurnFlushIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tr := NewTurn(store, "c1", "u1")
	require.NoError(t, tr.Set(ctx, ScopeConversation, "n", 1))
	require.NoError(t, tr.FlushAll(ctx))
	require.Equal(t, 1, store.Writes())

	require.NoError(t, tr.FlushAll(ctx))
	require.NoError(t, tr.Flush(ctx, ScopeConversation))
	require.Equal(t, 1, store.Writes())

	doc, _, err := store.Read(ctx, ScopeConversation, "c1")
	require.NoError(t, err)
	require.JSONEq(t, `1`, string(doc["n"]))
}

func TestTurnReadOnlyDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tr := NewTurn(store, "c1", "u1")
	_, err := GetOr(ctx, tr, ScopeUser, "welcome", false)
	require.NoError(t, err)
	require.NoError(t, tr.FlushAll(ctx))
	require.Zero(t, store.Writes())
}

func TestTurnLoadsDocumentOnce(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore()}

	tr := NewTurn(store, "c1", "u1")
	for i := 0; i < 3; i++ {
		_, err := GetOr(ctx, tr, ScopeConversation, "x", 0)
		require.NoError(t, err)
	}
	require.Equal(t, 1, store.reads)
}

func TestTurnSeesOwnWrites(t *testing.T) {
	ctx := context.Background()
	tr := NewTurn(NewMemoryStore(), "c1", "u1")

	require.NoError(t, tr.Set(ctx, ScopeUser, "count", 2))
	got, err := GetOr(ctx, tr, ScopeUser, "count", 0)
	require.NoError(t, err)
	require.Equal(t, 2, got)

	require.NoError(t, tr.Delete(ctx, ScopeUser, "count"))
	got, err = GetOr(ctx, tr, ScopeUser, "count", 7)
	require.NoError(t, err)
	require.Equal(t, 7, got)
}

func TestTurnWrapsStorageErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	readFail := &failingStore{MemoryStore: NewMemoryStore(), readErr: boom}
	tr := NewTurn(readFail, "c1", "u1")
	_, err := tr.Get(ctx, ScopeUser, "x", new(int))
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "READ", se.Op)
	require.Equal(t, ScopeUser, se.Scope)
	require.Equal(t, "u1", se.Key)
	require.ErrorIs(t, err, boom)

	writeFail := &failingStore{MemoryStore: NewMemoryStore(), writeErr: boom}
	tr = NewTurn(writeFail, "c1", "u1")
	require.NoError(t, tr.Set(ctx, ScopeConversation, "x", 1))
	require.NoError(t, tr.Set(ctx, ScopeUser, "x", 1))
	err = tr.FlushAll(ctx)
	require.ErrorAs(t, err, &se)
	require.Equal(t, "WRITE", se.Op)
	require.Equal(t, "STORAGE_WRITE", se.Code())
	require.True(t, tr.Dirty(ScopeConversation))
}

func TestTurnEmptyKey(t *testing.T) {
	ctx := context.Background()
	tr := NewTurn(NewMemoryStore(), "c1", "")

	err := tr.Set(ctx, ScopeUser, "x", 1)
	require.ErrorIs(t, err, ErrEmptyKey)
}

func TestTurnDecodeError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Write(ctx, ScopeUser, "u1", Document{"n": json.RawMessage(`"text"`)}, 0)
	require.NoError(t, err)

	tr := NewTurn(store, "c1", "u1")
	_, err = GetOr(ctx, tr, ScopeUser, "n", 0)
	require.Error(t, err)
}

func TestTurnsRacingOnOneKeyCannotBothCommit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := NewTurn(store, "c1", "u1")
	second := NewTurn(store, "c1", "u1")
	_, err := GetOr(ctx, first, ScopeConversation, "step", 0)
	require.NoError(t, err)
	_, err = GetOr(ctx, second, ScopeConversation, "step", 0)
	require.NoError(t, err)

	require.NoError(t, first.Set(ctx, ScopeConversation, "step", 1))
	require.NoError(t, second.Set(ctx, ScopeConversation, "step", 2))
	require.NoError(t, first.FlushAll(ctx))
	require.ErrorIs(t, second.FlushAll(ctx), ErrConflict)

	got, err := GetOr(ctx, NewTurn(store, "c1", "u1"), ScopeConversation, "step", 0)
	require.NoError(t, err)
	require.Equal(t, 1, got)

	// the winner keeps committing against the version it wrote
	require.NoError(t, first.Set(ctx, ScopeConversation, "step", 3))
	require.NoError(t, first.FlushAll(ctx))
	require.Equal(t, 2, store.Writes())
}
