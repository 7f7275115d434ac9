// Package cache provides the read-through cache in front of the inventory
// listings, with in-memory and Redis backends, plus HTTP validator helpers.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// Cache is a byte-oriented key/value cache with TTLs and atomic counters
type Cache interface {
	// Get retrieves a value, returning ErrMiss when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value; ttl <= 0 uses the backend default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error

	// Incr atomically increments a counter and returns the new value.
	// Counters never expire.
	Incr(ctx context.Context, key string) (int64, error)

	// Counter returns the current value of a counter, 0 when unset
	Counter(ctx context.Context, key string) (int64, error)
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is used when Set is called without a TTL
	DefaultTTL time.Duration
	// Prefix is prepended to all keys
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "showroom:cache:",
	}
}

// IsMiss reports whether err is a cache miss
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
