// Package source loads the crime dataset and the region boundaries once per
// process and hands out the shared, read-only results.
package source

import (
	"context"
	"sync"
)

// Memo caches the first successful result of load. A failed load is not
// cached, so the next Get tries again.
type Memo[T any] struct {
	mu     sync.Mutex
	load   func(context.Context) (T, error)
	val    T
	loaded bool
}

// NewMemo wraps a loader.
func NewMemo[T any](load func(context.Context) (T, error)) *Memo[T] {
	return &Memo[T]{load: load}
}

// Get returns the cached value, loading it on first use.
func (m *Memo[T]) Get(ctx context.Context) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return m.val, nil
	}
	v, err := m.load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	m.val, m.loaded = v, true
	return v, nil
}

// Loaded reports whether a value is cached.
func (m *Memo[T]) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}
