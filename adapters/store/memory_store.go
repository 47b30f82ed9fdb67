package store

import (
	"context"
	"sync"
	"time"

	"github.com/chainsona/cpop-sub000/core"
	"github.com/chainsona/cpop-sub000/ports"
)

// MemoryStore is an in-memory revocation list for single-instance deployments
type MemoryStore struct {
	invalidated map[string]time.Time
	mu          sync.RWMutex
	now         core.Clock
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(now core.Clock) ports.Store {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		invalidated: make(map[string]time.Time),
		now:         now,
	}
}

// InvalidateToken revokes a session ID for the given duration
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expiryTime := now.Add(expiry)
	if cur, ok := s.invalidated[tokenID]; ok && cur.After(expiryTime) {
		return nil
	}
	s.invalidated[tokenID] = expiryTime

	// Drop records that no longer matter while we hold the lock
	for id, until := range s.invalidated {
		if !now.Before(until) {
			delete(s.invalidated, id)
		}
	}

	return nil
}

// IsTokenInvalidated checks if a session ID is revoked
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.invalidated[tokenID]
	if !exists {
		return false, nil
	}

	return s.now().Before(expiryTime), nil
}
