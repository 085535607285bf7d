// Package store is the local persistent store: a durable per-key string
// store used both as the progress checkpoint and as the mailbox between
// independently mounted sessions.
package store

import (
	"context"
	"errors"
)

// ErrStoreLocked is returned when a bolt file is held by another process.
var ErrStoreLocked = errors.New("store file is locked: is another instance already running?")

// Store is a durable string key-value store. Implementations must be safe for
// concurrent use; callers rely on disjoint key ownership, not on locking.
type Store interface {
	// Get returns the value of key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set creates or overwrites key.
	Set(ctx context.Context, key, value string) error
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// prefixed namespaces every key of an underlying store.
type prefixed struct {
	Store
	prefix string
}

// WithPrefix returns a view of s in which every key is prefixed. Closing the
// view does not close s.
func WithPrefix(s Store, prefix string) Store {
	if p, ok := s.(*prefixed); ok {
		return &prefixed{Store: p.Store, prefix: p.prefix + prefix}
	}
	return &prefixed{Store: s, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.Store.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.Store.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = p.prefix + k
	}
	return p.Store.Delete(ctx, full...)
}

func (p *prefixed) DeletePrefix(ctx context.Context, prefix string) error {
	return p.Store.DeletePrefix(ctx, p.prefix+prefix)
}

func (p *prefixed) Close() error { return nil }
