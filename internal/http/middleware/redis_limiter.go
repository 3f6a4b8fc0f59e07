package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindowLimiter shares one counting window per key across
// replicas. Window boundaries are derived from wall-clock buckets so every
// replica agrees on the window without coordination.
type RedisFixedWindowLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisFixedWindowLimiter(client *redis.Client, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	now := time.Now()
	bucket := now.UnixNano() / int64(policy.Window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)
	resetAt := time.Unix(0, (bucket+1)*int64(policy.Window))

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, policy.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}

	count := int(incr.Val())
	if count > policy.Limit {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: resetAt.Sub(now),
			ResetAt:    resetAt,
		}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: policy.Limit - count,
		ResetAt:   resetAt,
	}, nil
}
