package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/c-pro/geche"
	"golang.org/x/time/rate"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// LocalLimiter keeps an in-process token bucket per key. Buckets idle for
// longer than ttl are dropped.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets geche.Geche[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

func NewLocalLimiter(ctx context.Context, perSecond float64, burst int, ttl time.Duration) *LocalLimiter {
	if perSecond <= 0 {
		perSecond = 20
	}
	if burst <= 0 {
		burst = int(perSecond)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LocalLimiter{
		buckets: geche.NewMapTTLCache[string, *rate.Limiter](ctx, ttl, time.Minute),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

// NewLocalWindowLimiter allows about limit events per window with bursts up to limit.
func NewLocalWindowLimiter(ctx context.Context, limit int, window time.Duration) *LocalLimiter {
	return NewLocalLimiter(ctx, float64(limit)/window.Seconds(), limit, 2*window)
}

func (l *LocalLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

func (l *LocalLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := l.buckets.Get(key)
	if err != nil {
		b = rate.NewLimiter(l.limit, l.burst)
	}
	// Set refreshes the idle deadline.
	l.buckets.Set(key, b)
	return b
}
