package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps states in process memory and evicts them after ttl of
// inactivity.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]*State
	now   func() time.Time
}

// NewMemoryStore creates a store; ttl <= 0 keeps states forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, items: map[string]*State{}, now: time.Now}
}

func (m *MemoryStore) expired(s *State) bool {
	return m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl
}

// Get returns a copy of the live state for id.
func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok || m.expired(s) {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Update applies fn under the store lock. fn sees a copy; the copy is kept
// only when fn succeeds.
func (m *MemoryStore) Update(_ context.Context, id string, fn func(*State) error) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[id]
	var s *State
	if !ok || m.expired(cur) {
		s = New(id)
		s.UpdatedAt = m.now()
	} else {
		s = cur.Clone()
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	s.UpdatedAt = m.now()
	m.items[id] = s
	return s.Clone(), nil
}

// Delete removes the state for id.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired states and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.items {
		if m.expired(s) {
			delete(m.items, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored states, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Run sweeps every interval until ctx is done.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
