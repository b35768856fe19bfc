package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/leaderboard/ports"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := s.Get(ctx, "a@example.com")
	assert.ErrorIs(t, err, ports.ErrCodeNotFound)

	require.NoError(t, s.Set(ctx, "a@example.com", "123456", time.Minute))
	got, err := s.Get(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", got)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "a@example.com")
	assert.ErrorIs(t, err, ports.ErrCodeNotFound)

	require.NoError(t, s.Set(ctx, "b@example.com", "654321", time.Minute))
	require.NoError(t, s.Delete(ctx, "b@example.com"))
	_, err = s.Get(ctx, "b@example.com")
	assert.ErrorIs(t, err, ports.ErrCodeNotFound)
}

func TestMemoryStore_ExpiredEntriesAreDropped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", 10*time.Millisecond))
	assert.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		_, ok := s.entries["k"]
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_ResetKeepsNewerEntry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "old", 10*time.Millisecond))
	require.NoError(t, s.Set(ctx, "k", "new", time.Hour))
	time.Sleep(50 * time.Millisecond)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

// Redis tests are opt-in and require LEADERBOARD_TEST_REDIS_URL.
func TestRedisStore(t *testing.T) {
	raw := strings.TrimSpace(os.Getenv("LEADERBOARD_TEST_REDIS_URL"))
	if raw == "" {
		t.Skip("LEADERBOARD_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(raw)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	s := NewRedisStore(client)
	key := "test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = s.Delete(context.Background(), key) })

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ports.ErrCodeNotFound)

	require.NoError(t, s.Set(ctx, key, "123456", time.Minute))
	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "123456", got)

	ttl, err := client.TTL(ctx, "leaderboard:otp:"+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ports.ErrCodeNotFound)
}
