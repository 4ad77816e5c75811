// Package memory implements kv.Store with an in-process map. Used in tests
// and when no Postgres DSN is configured.
package memory

import (
	"context"
	"sync"

	"deskbot.org/internal/kv"
)

// Store keeps values in a mutex-guarded map.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ kv.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	// return copy
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(ctx context.Context) error { return nil }
