package securestore

import (
	"context"
	"sync"

	"github.com/ebu/cpa-go/pkg/cpa"
)

// MemoryStore is a SecureStore held in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Load implements cpa.SecureStore.
func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, cpa.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Save implements cpa.SecureStore.
func (s *MemoryStore) Save(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append([]byte(nil), payload...)
	return nil
}

// Erase implements cpa.SecureStore.
func (s *MemoryStore) Erase(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Keys returns the stored keys in no particular order.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
