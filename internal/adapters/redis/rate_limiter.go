package redis

// Package redis provides Redis-based adapters for the session bridge.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/session-bridge/internal/ports"
)

const defaultKeyPrefix = "session-bridge:ratelimit:"

var _ ports.RateLimiter = (*RateLimiter)(nil)

// RateLimiterConfig configures a fixed-window limiter.
type RateLimiterConfig struct {
	Limit  int           // Requests allowed per window; must be positive.
	Window time.Duration // Window length; must be positive.
	Prefix string        // Optional key prefix.
}

// RateLimiter is a fixed-window counter keyed by caller (typically client IP).
// Each key holds an INCR counter that expires at the end of its window.
type RateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
}

// NewRateLimiter creates a Redis-backed fixed-window limiter.
func NewRateLimiter(client redis.UniversalClient, cfg RateLimiterConfig) (*RateLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("rate limit must be positive")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("rate limit window must be positive")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RateLimiter{client: client, limit: cfg.Limit, window: cfg.Window, prefix: prefix}, nil
}

// Allow increments the counter for key and reports whether the call is within budget.
func (l *RateLimiter) Allow(ctx context.Context, key string) (ports.RateLimitDecision, error) {
	if key == "" {
		key = "unknown"
	}
	redisKey := l.prefix + key

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// NX keeps the original window; the first increment sets the expiry.
	pipe.ExpireNX(ctx, redisKey, l.window)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return ports.RateLimitDecision{}, fmt.Errorf("redis rate limit: %w", err)
	}

	count := int(incr.Val())
	retryAfter := ttl.Val()
	if retryAfter <= 0 {
		retryAfter = l.window
	}

	if count > l.limit {
		return ports.RateLimitDecision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}
	return ports.RateLimitDecision{Allowed: true, Remaining: l.limit - count}, nil
}

// Reset clears the counter for key.
func (l *RateLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
