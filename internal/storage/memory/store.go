// Package memory keeps cache payloads in-process for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/build-progress/internal/storage"
)

// Store keeps payloads in a map guarded by a mutex.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	writes int
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Read returns a copy of the payload stored under key.
func (s *Store) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("memory key %q: %w", key, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Write stores a copy of data under key, replacing earlier content.
func (s *Store) Write(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	s.writes++
	return nil
}

// Writes reports how many Write calls the store has accepted.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
