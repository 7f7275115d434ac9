package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucketConfig holds configuration for the in-memory limiter
type TokenBucketConfig struct {
	// Capacity is the number of requests allowed per Window
	Capacity int
	// Window is the time it takes to refill an empty bucket
	Window time.Duration
	// CleanupInterval is how often idle buckets are dropped; 0 disables cleanup
	CleanupInterval time.Duration
}

// DefaultTokenBucketConfig allows 10 requests per minute
func DefaultTokenBucketConfig() TokenBucketConfig {
	return TokenBucketConfig{
		Capacity:        10,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// TokenBucket is an in-memory token bucket limiter. Tokens refill continuously
// at Capacity per Window.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	window   time.Duration
	now      func() time.Time

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucketWithConfig creates a limiter with custom configuration
func NewTokenBucketWithConfig(config TokenBucketConfig) *TokenBucket {
	if config.Capacity <= 0 {
		config.Capacity = 1
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	tb := &TokenBucket{
		buckets:  make(map[string]*bucket),
		capacity: float64(config.Capacity),
		window:   config.Window,
		now:      time.Now,
		done:     make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		tb.wg.Add(1)
		go tb.cleanupLoop(config.CleanupInterval)
	}
	return tb
}

// Allow consumes one token for key if one is available
func (tb *TokenBucket) Allow(ctx context.Context, key string) (Info, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.capacity, last: now}
		tb.buckets[key] = b
	}

	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens += tb.capacity * float64(elapsed) / float64(tb.window)
		if b.tokens > tb.capacity {
			b.tokens = tb.capacity
		}
		b.last = now
	}

	info := Info{Limit: int(tb.capacity)}
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
	}
	info.Remaining = int(b.tokens)
	info.ResetAt = now.Add(tb.untilNextToken(b.tokens))
	return info, nil
}

// untilNextToken returns how long until the bucket holds at least one whole token
func (tb *TokenBucket) untilNextToken(tokens float64) time.Duration {
	if tokens >= 1 {
		return 0
	}
	missing := 1 - tokens
	return time.Duration(missing * float64(tb.window) / tb.capacity)
}

// Len returns the number of tracked keys
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

func (tb *TokenBucket) cleanupLoop(interval time.Duration) {
	defer tb.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tb.sweep()
		case <-tb.done:
			return
		}
	}
}

// sweep drops buckets that have been full for at least one window
func (tb *TokenBucket) sweep() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	for key, b := range tb.buckets {
		if now.Sub(b.last) > tb.window {
			delete(tb.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine
func (tb *TokenBucket) Close() error {
	tb.once.Do(func() { close(tb.done) })
	tb.wg.Wait()
	return nil
}
