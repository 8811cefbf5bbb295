package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/session-bridge/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	limiter, err := NewRateLimiter(client, RateLimiterConfig{Limit: 3, Window: time.Minute, Prefix: "test:rl:"})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, limiter.Reset(ctx, "203.0.113.7"))

	for i := 0; i < 3; i++ {
		d, allowErr := limiter.Allow(ctx, "203.0.113.7")
		require.NoError(t, allowErr)
		assert.True(t, d.Allowed, "call %d should be allowed", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := limiter.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	limiter, err := NewRateLimiter(client, RateLimiterConfig{Limit: 1, Window: time.Minute, Prefix: "test:rl:"})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, limiter.Reset(ctx, "a"))
	require.NoError(t, limiter.Reset(ctx, "b"))

	d, err := limiter.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = limiter.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	limiter, err := NewRateLimiter(client, RateLimiterConfig{Limit: 1, Window: 200 * time.Millisecond, Prefix: "test:rl:"})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, limiter.Reset(ctx, "expiring"))

	d, err := limiter.Allow(ctx, "expiring")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Allow(ctx, "expiring")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	time.Sleep(300 * time.Millisecond)

	d, err = limiter.Allow(ctx, "expiring")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimiter_RedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	limiter, err := NewRateLimiter(client, RateLimiterConfig{Limit: 1, Window: time.Minute})
	require.NoError(t, err)

	_, err = limiter.Allow(context.Background(), "k")
	require.Error(t, err)
}

func TestNewRateLimiter_Validation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	_, err := NewRateLimiter(nil, RateLimiterConfig{Limit: 1, Window: time.Second})
	require.Error(t, err)
	_, err = NewRateLimiter(client, RateLimiterConfig{Limit: 0, Window: time.Second})
	require.Error(t, err)
	_, err = NewRateLimiter(client, RateLimiterConfig{Limit: 1})
	require.Error(t, err)
}
