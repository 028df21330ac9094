package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStateStore keeps pending logins in process memory for single-instance deployments
// that run without Redis.
type MemoryStateStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryState
}

type memoryState struct {
	data      AuthState
	expiresAt time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{now: time.Now, entries: map[string]memoryState{}}
}

func (s *MemoryStateStore) SaveAuthState(_ context.Context, state string, data AuthState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.entries[state] = memoryState{data: data, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStateStore) TakeAuthState(_ context.Context, state string) (AuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	delete(s.entries, state)
	if !ok || s.now().After(entry.expiresAt) {
		return AuthState{}, ErrNotFound
	}
	return entry.data, nil
}
