// Package state persists conversation-scoped and user-scoped bot state.
// Backends store one JSON document per scope key; a Turn buffers reads and
// writes for a single turn and commits them on Flush.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Scope partitions state by the kind of key it is stored under.
type Scope string

const (
	// ScopeConversation holds state keyed by conversation id.
	ScopeConversation Scope = "conversation"
	// ScopeUser holds state keyed by user id; it survives across conversations.
	ScopeUser Scope = "user"
)

// Scopes lists every scope in flush order.
var Scopes = []Scope{ScopeConversation, ScopeUser}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeConversation || s == ScopeUser
}

// Table returns the logical table name backing the scope.
func (s Scope) Table() string {
	return string(s) + "_state"
}

var (
	// ErrInvalidScope is returned for scopes other than conversation and user.
	ErrInvalidScope = errors.New("state: invalid scope")
	// ErrEmptyKey is returned when a turn has no id for the requested scope.
	ErrEmptyKey = errors.New("state: empty key")
	// ErrConflict is returned by Write when the document changed since it was read.
	ErrConflict = errors.New("state: version conflict")
)

// Document is the persisted value of one scope key: property name -> JSON value.
type Document map[string]json.RawMessage

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Storage is a state backend.
//
// Every stored document carries a version that each successful Write bumps by
// one; a missing key reads as an empty document at version 0. Write only
// succeeds while the stored version still equals the one the caller read and
// fails with ErrConflict otherwise, so two turns racing on the same key from
// different processes cannot both commit.
type Storage interface {
	Read(ctx context.Context, scope Scope, key string) (Document, int64, error)
	Write(ctx context.Context, scope Scope, key string, doc Document, version int64) (int64, error)
	Delete(ctx context.Context, scope Scope, key string) error
	Close() error
}

// Lister is implemented by backends that can enumerate stored keys.
type Lister interface {
	Keys(ctx context.Context, scope Scope) ([]string, error)
}

// StorageError reports a failed backend operation.
type StorageError struct {
	Op    string
	Scope Scope
	Key   string
	Err   error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("state: %s %s/%s: %v", e.Op, e.Scope, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Code returns a stable identifier used in logs.
func (e *StorageError) Code() string {
	return "STORAGE_" + e.Op
}

func checkScope(scope Scope, key string) error {
	if !scope.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

func conflict(scope Scope, key string, version int64) error {
	return &StorageError{Op: "WRITE", Scope: scope, Key: key, Err: fmt.Errorf("%w: expected version %d", ErrConflict, version)}
}

func decodeDocument(data []byte) (Document, error) {
	doc := Document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func encodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// ChannelKey namespaces a conversation or user id by the channel it came from,
// so equal ids from different channels never share state.
func ChannelKey(channel, id string) string {
	if channel == "" || id == "" {
		return id
	}
	return channel + ":" + id
}
