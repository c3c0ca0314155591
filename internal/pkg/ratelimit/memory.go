package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryBucket struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter is a single-node fallback for when Redis is unavailable
// (tests, local development). Expired buckets are pruned lazily on access.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*memoryBucket),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limits Limits) (*Decision, error) {
	if key == "" {
		return nil, fmt.Errorf("rate limit key required")
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[Window]int64)
	any := false
	for _, w := range Windows() {
		if limits.For(w) <= 0 {
			continue
		}
		any = true
		k := bucketKey(key, w, WindowStart(w, now))
		b, ok := l.buckets[k]
		if !ok || !b.resetAt.After(now) {
			b = &memoryBucket{resetAt: WindowReset(w, now)}
			l.buckets[k] = b
		}
		b.count++
		counts[w] = b.count
	}
	l.prune(now)

	if !any {
		return &Decision{Allowed: true}, nil
	}
	return decide(limits, counts, now), nil
}

func (l *MemoryLimiter) prune(now time.Time) {
	for k, b := range l.buckets {
		if !b.resetAt.After(now) {
			delete(l.buckets, k)
		}
	}
}
