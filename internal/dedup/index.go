// Package dedup tracks which POI identifiers are already known so a harvest
// never stores the same identifier twice.
package dedup

import (
	"context"
	"sync"
)

// Index is a set of known identifiers. Implementations may live in memory or
// in an external store; callers only see this interface.
type Index interface {
	Has(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, ids ...string) error
	Len(ctx context.Context) (int, error)
}

// MemoryIndex is an in-process identifier set.
type MemoryIndex struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{ids: make(map[string]struct{})}
}

func (m *MemoryIndex) Has(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ids[id]
	return ok, nil
}

func (m *MemoryIndex) Add(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.ids[id] = struct{}{}
	}
	return nil
}

func (m *MemoryIndex) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids), nil
}
