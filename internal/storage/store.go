// Package storage is the durable key-value store behind sessions, profiles
// and the kv ledger backend. Values are JSON documents keyed by string.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrStorage wraps every failure of the underlying store.
	ErrStorage = errors.New("storage error")
	// ErrConflict is returned by Update when a watched key changed before commit.
	ErrConflict = errors.New("concurrent modification")
)

// Reader reads a JSON value into dest. found is false when the key is absent.
type Reader interface {
	Get(ctx context.Context, key string, dest any) (found bool, err error)
}

// Write is one mutation applied by Update.
type Write struct {
	Key    string
	Value  any
	Delete bool
}

// Put stores value under key.
func Put(key string, value any) Write {
	return Write{Key: key, Value: value}
}

// Del removes key.
func Del(key string) Write {
	return Write{Key: key, Delete: true}
}

// Store is a key-value store of JSON values. Update applies the writes
// returned by fn all-or-nothing, and fails with ErrConflict if any of the
// watched keys changed after fn read them.
type Store interface {
	Reader
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
	Update(ctx context.Context, watch []string, fn func(r Reader) ([]Write, error)) error
}
