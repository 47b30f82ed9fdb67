package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chainsona/cpop-sub000/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the revocation store
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) ports.Store {
	return &RedisStore{
		client: client,
		prefix: "cpop:revoked:",
	}
}

// InvalidateToken marks a session ID as revoked in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	if expiry <= 0 {
		return nil
	}
	key := s.prefix + tokenID

	if err := s.client.Set(ctx, key, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	return nil
}

// IsTokenInvalidated checks if a session ID is revoked in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + tokenID

	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}

	return val > 0, nil
}
