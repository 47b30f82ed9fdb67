package cache

import (
	"context"
	"sync"
	"time"

	"github.com/chainsona/cpop-sub000/core"
	"github.com/chainsona/cpop-sub000/ports"
	"go.uber.org/zap"
)

// DefaultTTL is how long a verdict stays usable
const DefaultTTL = time.Minute

type entry struct {
	valid     bool
	createdAt time.Time
}

// MemoryCache is a process-wide verdict cache.
// Expired entries are dropped lazily on read and in bulk by Sweep.
type MemoryCache struct {
	entries    map[string]entry
	mu         sync.RWMutex
	ttl        time.Duration
	maxEntries int
	now        core.Clock
	logger     *zap.Logger
}

var _ ports.VerdictCache = (*MemoryCache)(nil)

// NewMemoryCache creates a new in-memory verdict cache.
// maxEntries <= 0 disables the size bound; a nil clock means time.Now.
func NewMemoryCache(ttl time.Duration, maxEntries int, now core.Clock, logger *zap.Logger) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		logger:     logger,
	}
}

// Get returns the cached verdict for token if it is younger than the TTL
func (c *MemoryCache) Get(ctx context.Context, token string) (bool, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[token]
	c.mu.RUnlock()
	if !ok {
		return false, false, nil
	}

	if c.expired(e) {
		c.mu.Lock()
		// Only delete if nobody refreshed the entry in between
		if cur, exists := c.entries[token]; exists && cur.createdAt.Equal(e.createdAt) {
			delete(c.entries, token)
		}
		c.mu.Unlock()
		return false, false, nil
	}

	return e.valid, true, nil
}

// Set stores a verdict stamped with the current time
func (c *MemoryCache) Set(ctx context.Context, token string, valid bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[token]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.logger.Debug("verdict cache full, skipping insert", zap.Int("entries", len(c.entries)))
		return nil
	}

	c.entries[token] = entry{valid: valid, createdAt: c.now()}
	return nil
}

// Sweep removes every expired entry and returns how many were dropped
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for token, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, token)
			removed++
		}
	}
	return removed
}

// Run sweeps the cache every interval until ctx is done
func (c *MemoryCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				c.logger.Debug("swept verdict cache", zap.Int("removed", removed))
			}
		}
	}
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(e entry) bool {
	return c.now().Sub(e.createdAt) >= c.ttl
}
