package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/leaderboard/ports"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of the CodeStore interface
type MemoryStore struct {
	entries map[string]entry
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

var _ ports.CodeStore = (*MemoryStore)(nil)

// Set stores value under key until ttl elapses
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(ttl)
	s.entries[key] = entry{value: value, expiresAt: expiresAt}

	time.AfterFunc(ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// A later Set for the same key owns its own expiry
		if stored, ok := s.entries[key]; ok && !stored.expiresAt.After(expiresAt) {
			delete(s.entries, key)
		}
	})

	return nil
}

// Get returns the live value stored under key
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return "", ports.ErrCodeNotFound
	}
	return e.value, nil
}

// Delete removes key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
