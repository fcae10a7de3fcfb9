// Package memory keeps the serialized cache in process memory. Useful for
// dry runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/community-finder/internal/cache"
)

// Store holds the last saved payload.
type Store struct {
	mu    sync.RWMutex
	data  []byte
	saves int
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{}
}

// Load returns a copy of the last saved payload.
func (s *Store) Load(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

// Save replaces the payload.
func (s *Store) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.saves++
	return nil
}

// Saves reports how many times Save was called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
