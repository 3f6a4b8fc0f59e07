package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAuthAbuseGuard tracks failure streaks in redis so cooldowns hold
// across instances. Keys expire with the reset window, so an idle identity
// forgets its history without any sweeper.
type RedisAuthAbuseGuard struct {
	client redis.UniversalClient
	prefix string
	policy AuthAbusePolicy
}

func NewRedisAuthAbuseGuard(client redis.UniversalClient, prefix string, policy AuthAbusePolicy) *RedisAuthAbuseGuard {
	if prefix == "" {
		prefix = "auth_abuse"
	}
	return &RedisAuthAbuseGuard{client: client, prefix: prefix, policy: policy}
}

func (g *RedisAuthAbuseGuard) failureKey(scope AuthAbuseScope, identity, ip string) string {
	return fmt.Sprintf("%s:%s:failures:%s:%s", g.prefix, scope, identity, ip)
}

func (g *RedisAuthAbuseGuard) cooldownKey(scope AuthAbuseScope, identity, ip string) string {
	return fmt.Sprintf("%s:%s:cooldown:%s:%s", g.prefix, scope, identity, ip)
}

func (g *RedisAuthAbuseGuard) Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	if g.client == nil {
		return 0, nil
	}
	remaining, err := g.client.PTTL(ctx, g.cooldownKey(scope, identity, ip)).Result()
	if err != nil && err != redis.Nil {
		return 0, err
	}
	if remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (g *RedisAuthAbuseGuard) RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	if g.client == nil {
		return 0, nil
	}
	key := g.failureKey(scope, identity, ip)
	pipe := g.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, g.policy.ResetWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	delay := g.policy.delayFor(incr.Val())
	if delay <= 0 {
		return 0, nil
	}
	if err := g.client.Set(ctx, g.cooldownKey(scope, identity, ip), "1", delay).Err(); err != nil {
		return 0, err
	}
	return delay, nil
}

func (g *RedisAuthAbuseGuard) Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error {
	if g.client == nil {
		return nil
	}
	return g.client.Del(ctx, g.failureKey(scope, identity, ip), g.cooldownKey(scope, identity, ip)).Err()
}
