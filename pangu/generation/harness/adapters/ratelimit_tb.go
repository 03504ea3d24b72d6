package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
)

// ErrRateLimitExceeded is returned when no token became available before
// the caller's context ended.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// TokenBucket admits at most capacity concurrent holders per key. Tokens
// come back on release and additionally refill one per refillRate.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int
	refillRate time.Duration
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket creates a new token bucket rate limiter.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// Acquire blocks until a token for key is available or ctx ends.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (release func(), err error) {
	for {
		if release, ok := tb.tryAcquire(key); ok {
			return release, nil
		}

		timer := time.NewTimer(tb.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrRateLimitExceeded, ctx.Err())
		case <-timer.C:
		}
	}
}

func (tb *TokenBucket) tryAcquire(key string) (func(), bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	b, exists := tb.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     tb.capacity,
			lastRefill: time.Now(),
		}
		tb.buckets[key] = b
	}

	elapsed := time.Since(b.lastRefill)
	tokensToAdd := int(elapsed / tb.refillRate)
	if tokensToAdd > 0 {
		b.tokens = min(b.tokens+tokensToAdd, tb.capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(tokensToAdd) * tb.refillRate)
	}

	if b.tokens <= 0 {
		return nil, false
	}
	b.tokens--

	var once sync.Once
	return func() {
		once.Do(func() {
			tb.mu.Lock()
			defer tb.mu.Unlock()
			b.tokens = min(b.tokens+1, tb.capacity)
		})
	}, true
}

func (tb *TokenBucket) pollInterval() time.Duration {
	return min(tb.refillRate, 50*time.Millisecond)
}

// Ensure TokenBucket implements the RateLimiter interface.
var _ ports.RateLimiter = (*TokenBucket)(nil)
