package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared across replicas. A quota of
// rate r and burst b admits b requests per window of b/r seconds.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client redis.Cmdable) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "rollcare:ratelimit", now: time.Now}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, q Quota) (Decision, error) {
	window := windowOf(q)
	now := r.now()
	start := now.Truncate(window)
	k := fmt.Sprintf("%s:%s:%d", r.prefix, key, start.UnixMilli())

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("redis limiter: %w", err)
	}

	if incr.Val() > int64(q.Burst) {
		return Decision{Allowed: false, RetryAfter: start.Add(window).Sub(now)}, nil
	}
	return Decision{Allowed: true}, nil
}

func windowOf(q Quota) time.Duration {
	if q.Rate <= 0 || q.Burst <= 0 {
		return time.Second
	}
	w := time.Duration(float64(q.Burst) / q.Rate * float64(time.Second))
	if w < time.Millisecond {
		return time.Millisecond
	}
	return w
}
