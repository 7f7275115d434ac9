// Package ratelimit limits how often a client may hit an endpoint, either per
// process (token bucket) or across instances (Redis sliding window).
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether one more request for key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (Info, error)
}

// Info describes the limit state after a call to Allow
type Info struct {
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Remaining is the number of requests left in the current window
	Remaining int
	// ResetAt is when at least one more request becomes available
	ResetAt time.Time
	// Allowed reports whether the request may proceed
	Allowed bool
}

// RetryAfter returns the whole seconds until ResetAt, never negative
func (i Info) RetryAfter(now time.Time) int {
	d := i.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
