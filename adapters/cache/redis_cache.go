package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/chainsona/cpop-sub000/ports"
	"github.com/redis/go-redis/v9"
)

// RedisCache shares verdicts between instances. Redis expires entries after the TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ ports.VerdictCache = (*RedisCache)(nil)

// NewRedisCache creates a new Redis verdict cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: "cpop:verdict:",
		ttl:    ttl,
	}
}

// Get returns the cached verdict for token
func (c *RedisCache) Get(ctx context.Context, token string) (bool, bool, error) {
	val, err := c.client.Get(ctx, c.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to read verdict: %w", err)
	}
	return val == "1", true, nil
}

// Set stores a verdict with the cache TTL
func (c *RedisCache) Set(ctx context.Context, token string, valid bool) error {
	val := "0"
	if valid {
		val = "1"
	}
	if err := c.client.Set(ctx, c.key(token), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store verdict: %w", err)
	}
	return nil
}

// key hashes the raw token so any byte difference is still a different key
func (c *RedisCache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + hex.EncodeToString(sum[:])
}
