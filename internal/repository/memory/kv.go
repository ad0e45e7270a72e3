package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/repository"
)

// Store is an in-memory key-value store used by tests and ephemeral dev runs.
// It implements the same contract as the durable backends, including
// repository.ErrNotFound for missing keys.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

// Get returns the value for key or repository.ErrNotFound.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return value, nil
}

// Set stores value under key, overwriting any previous value.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Keys returns all keys with the given prefix in lexical order.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteMany removes every listed key in one critical section.
func (s *Store) DeleteMany(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

// Len reports the number of stored keys, used by tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ port.KeyValueStore = (*Store)(nil)
