// Package ratelimit throttles how often an authentication failure for
// the same key gets logged, so a misconfigured device hammering the
// server with a bad api_key cannot flood the log. It prefers a
// Redis-backed counter when one is configured, shared across process
// instances, and falls back to an in-process counter otherwise.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter reports whether an event for key should be allowed through
// (true) or suppressed (false) under the configured window/max.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// New returns a Redis-backed Limiter when addr is non-empty, otherwise
// an in-process Limiter with the same window and max. The Redis limiter
// counts in fixed windows; the in-process one uses a sliding window.
func New(addr, password string, db int, window time.Duration, max int) Limiter {
	if addr == "" {
		return newMemoryLimiter(window, max)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisLimiter{client: client, window: window, max: max}
}

type redisLimiter struct {
	client *redis.Client
	window time.Duration
	max    int
}

// Allow increments a fixed-window counter for key and reports whether
// the count is still within max. Redis errors fail open: a transient
// Redis outage should not itself start suppressing legitimate logging.
func (l *redisLimiter) Allow(ctx context.Context, key string) bool {
	count, err := l.client.Incr(ctx, "webink:authfail:"+key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, "webink:authfail:"+key, l.window)
	}
	return count <= int64(l.max)
}

type memoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

func newMemoryLimiter(window time.Duration, max int) *memoryLimiter {
	return &memoryLimiter{window: window, max: max, hits: make(map[string][]time.Time)}
}

func (l *memoryLimiter) Allow(ctx context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	times := l.hits[key]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	l.hits[key] = kept

	return len(kept) <= l.max
}
