package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter backed by Redis, for deployments
// where several instances must share one budget per principal.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter constructs a limiter permitting limit requests per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// Allow increments the window counter and reports whether the request fits.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: incr window: %w", err)
	}
	return count.Val() <= int64(l.limit), nil
}

var _ Limiter = (*RedisLimiter)(nil)
