package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is the production limiter. Counters are plain INCR buckets
// keyed by window start, with an expiry shortly after the window rolls over
// so stale buckets clean themselves up.
type RedisLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, now: time.Now}
}

func bucketKey(key string, w Window, start time.Time) string {
	return fmt.Sprintf("rl:%s:%s:%d", key, w, start.Unix())
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limits Limits) (*Decision, error) {
	if key == "" {
		return nil, fmt.Errorf("rate limit key required")
	}
	now := l.now()

	pipe := l.rdb.TxPipeline()
	incrs := make(map[Window]*redis.IntCmd)
	for _, w := range Windows() {
		if limits.For(w) <= 0 {
			continue
		}
		start := WindowStart(w, now)
		k := bucketKey(key, w, start)
		incrs[w] = pipe.Incr(ctx, k)
		pipe.ExpireAt(ctx, k, WindowReset(w, now).Add(time.Minute))
	}
	if len(incrs) == 0 {
		return &Decision{Allowed: true}, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	counts := make(map[Window]int64, len(incrs))
	for w, cmd := range incrs {
		n, err := cmd.Result()
		if err != nil {
			return nil, err
		}
		counts[w] = n
	}
	return decide(limits, counts, now), nil
}
