package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window, then admits the request
// if fewer than limit remain. Returns {allowed, count, oldest score}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local current = redis.call('ZCARD', key)

local allowed = 0
if current < limit then
	redis.call('ZADD', key, now, member)
	current = current + 1
	allowed = 1
end
redis.call('PEXPIRE', key, ttl)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_score = now
if oldest[2] then
	oldest_score = tonumber(oldest[2])
end
return {allowed, current, oldest_score}
`)

// RedisConfig holds configuration for the Redis limiter
type RedisConfig struct {
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Window is the sliding window length
	Window time.Duration
	// Prefix is prepended to every Redis key
	Prefix string
}

// DefaultRedisConfig allows 10 requests per minute
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Limit:  10,
		Window: time.Minute,
		Prefix: "showroom:ratelimit:",
	}
}

// RedisLimiter is a sliding-window limiter shared by every instance using the
// same Redis database
type RedisLimiter struct {
	client *redis.Client
	config RedisConfig
	now    func() time.Time
}

// NewRedisLimiter validates config and creates the limiter
func NewRedisLimiter(client *redis.Client, config RedisConfig) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if config.Window < time.Millisecond {
		return nil, errors.New("window must be at least 1ms")
	}
	return &RedisLimiter{client: client, config: config, now: time.Now}, nil
}

// Allow records the request in key's window if the limit permits
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Info, error) {
	now := r.now()
	nowMs := now.UnixMilli()
	window := r.config.Window.Milliseconds()

	res, err := slidingWindow.Run(ctx, r.client, []string{r.config.Prefix + key},
		nowMs,
		nowMs-window,
		r.config.Limit,
		window,
		fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return Info{}, fmt.Errorf("redis rate limit check: %w", err)
	}
	if len(res) != 3 {
		return Info{}, errors.New("unexpected redis script result")
	}

	remaining := r.config.Limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}

	info := Info{
		Limit:     r.config.Limit,
		Remaining: remaining,
		Allowed:   res[0] == 1,
		ResetAt:   now,
	}
	if remaining == 0 {
		info.ResetAt = time.UnixMilli(res[2] + window)
	}
	return info, nil
}

// Reset forgets all requests recorded for key
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.config.Prefix+key).Err(); err != nil {
		return fmt.Errorf("resetting rate limit: %w", err)
	}
	return nil
}
