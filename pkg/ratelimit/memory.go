package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const sweepEvery = 1024

// InMemoryRateLimiter gives each key a token bucket holding Requests tokens that
// refills evenly over Window.
type InMemoryRateLimiter struct {
	requests int
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	calls   uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewInMemoryRateLimiter(requests int, window time.Duration) *InMemoryRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	return &InMemoryRateLimiter{
		requests: requests,
		window:   window,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
	}
}

func (r *InMemoryRateLimiter) GetLimitDetails() (int, time.Duration) {
	return r.requests, r.window
}

func (r *InMemoryRateLimiter) IsLimited(_ context.Context, key string) (bool, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		every := r.window / time.Duration(r.requests)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), r.requests)}
		r.buckets[key] = b
	}
	b.lastSeen = now

	r.calls++
	if r.calls%sweepEvery == 0 {
		r.sweep(now)
	}

	return !b.limiter.AllowN(now, 1), nil
}

// sweep drops buckets idle long enough to have refilled completely.
func (r *InMemoryRateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-2 * r.window)
	for key, b := range r.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
}

func (r *InMemoryRateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

func (r *InMemoryRateLimiter) Close() error {
	r.mu.Lock()
	r.buckets = make(map[string]*bucket)
	r.mu.Unlock()
	return nil
}
