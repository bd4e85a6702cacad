package state

import (
	"context"
	"sort"
	"sync"
)

type memoryRecord struct {
	doc     Document
	version int64
}

// MemoryStore keeps documents in process memory. Used for tests and development.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[Scope]map[string]memoryRecord
	writes int
}

// NewMemoryStore constructs an empty in-memory backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: map[Scope]map[string]memoryRecord{
			ScopeConversation: {},
			ScopeUser:         {},
		},
	}
}

// Read returns a copy of the stored document, or an empty one at version 0.
func (m *MemoryStore) Read(_ context.Context, scope Scope, key string) (Document, int64, error) {
	if err := checkScope(scope, key); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.tables[scope][key]; ok {
		return rec.doc.Clone(), rec.version, nil
	}
	return Document{}, 0, nil
}

// Write replaces the stored document with a copy of doc when version is current.
func (m *MemoryStore) Write(_ context.Context, scope Scope, key string, doc Document, version int64) (int64, error) {
	if err := checkScope(scope, key); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.tables[scope][key].version; cur != version {
		return cur, conflict(scope, key, version)
	}
	m.tables[scope][key] = memoryRecord{doc: doc.Clone(), version: version + 1}
	m.writes++
	return version + 1, nil
}

// Delete removes the document for key.
func (m *MemoryStore) Delete(_ context.Context, scope Scope, key string) error {
	if err := checkScope(scope, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tables[scope], key)
	return nil
}

// Keys lists stored keys for scope in sorted order.
func (m *MemoryStore) Keys(_ context.Context, scope Scope) ([]string, error) {
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.tables[scope]))
	for k := range m.tables[scope] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Writes reports how many Write calls were committed.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
