package ratelimit

import (
	"context"
	"sync"
)

// MemoryStore is a process-local CounterStore for tests and single-node
// development. It is not shared across instances.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int)}
}

func (m *MemoryStore) Count(_ context.Context, key, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key+"|"+day], nil
}

func (m *MemoryStore) Increment(_ context.Context, key, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key + "|" + day
	m.counts[k]++
	return m.counts[k], nil
}
