package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
)

// KeyValueStore keeps local state in process memory. Used when no Redis is configured and in tests.
type KeyValueStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ port.KeyValueStore = (*KeyValueStore)(nil)

// NewKeyValueStore returns an empty store.
func NewKeyValueStore() *KeyValueStore {
	return &KeyValueStore{values: make(map[string]string)}
}

func (s *KeyValueStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return value, nil
}

func (s *KeyValueStore) Set(_ context.Context, key string, value string) error {
	if strings.TrimSpace(key) == "" {
		return repository.ErrInvalidKey
	}

	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

func (s *KeyValueStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.values, key)
	}
	s.mu.Unlock()
	return nil
}

func (s *KeyValueStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, repository.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.values {
		if strings.HasPrefix(key, prefix) {
			delete(s.values, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored keys.
func (s *KeyValueStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
