// ratelimit_redis.go is the distributed RateLimiter for multi-replica
// deployments, backed by redis_rate's GCRA implementation. Single-replica
// deployments use the in-process FixedWindowLimiter instead.
package middleware

import (
	"context"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements RateLimiter on a shared Redis instance so every
// replica draws from the same budget.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{limiter: redis_rate.NewLimiter(client)}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Duration, error) {
	res, err := l.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit,
		Period: window,
		Burst:  limit,
	})
	if err != nil {
		return false, 0, 0, err
	}

	if res.Allowed == 0 {
		return false, 0, res.RetryAfter, nil
	}
	return true, res.Remaining, 0, nil
}
