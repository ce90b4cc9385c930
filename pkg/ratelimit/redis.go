package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter enforces per-key fixed windows in Redis so that every
// replica of the gateway draws from the same budget. Each key counts
// requests in the current window with INCR; the counter expires with
// the window.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter connects to Redis and verifies the connection
func NewRedisLimiter(addr, password string) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLimiter{
		client: client,
		prefix: "bentham:ratelimit:",
	}, nil
}

// Allow counts the request against the key's current window. The first
// request of a window creates the counter with the window's TTL; the
// request that pushes the counter past the limit is denied along with
// the rest of the window.
func (l *RedisLimiter) Allow(ctx context.Context, keyID string, limit int, windowMs int64) (Decision, error) {
	if limit <= 0 || windowMs <= 0 {
		return Decision{Allowed: true}, nil
	}

	window := time.Duration(windowMs) * time.Millisecond
	now := time.Now()
	windowStart := now.Truncate(window)
	key := fmt.Sprintf("%s%s:%d", l.prefix, keyID, windowStart.UnixMilli())

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count request: %w", err)
	}
	if count == 1 {
		if err := l.client.PExpire(ctx, key, window).Err(); err != nil {
			return Decision{}, fmt.Errorf("failed to expire window: %w", err)
		}
	}

	if count > int64(limit) {
		retry := windowStart.Add(window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{RetryAfter: retry}, nil
	}

	return Decision{Allowed: true}, nil
}

// Ping verifies the Redis connection, for health reporting
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the Redis connection
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
