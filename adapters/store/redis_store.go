package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/leaderboard/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the CodeStore interface
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "leaderboard:otp:",
	}
}

var _ ports.CodeStore = (*RedisStore)(nil)

// Set stores value under key with expiration
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}
	return nil
}

// Get retrieves the value stored under key
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ports.ErrCodeNotFound
		}
		return "", fmt.Errorf("failed to load code: %w", err)
	}
	return value, nil
}

// Delete removes key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to delete code: %w", err)
	}
	return nil
}
