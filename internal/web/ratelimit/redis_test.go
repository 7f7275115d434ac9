package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func newTestRedisLimiter(t *testing.T, limit int, window time.Duration) (*RedisLimiter, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	client, mr := setupTestRedis(t)
	rl, err := NewRedisLimiter(client, RedisConfig{Limit: limit, Window: window, Prefix: "test:"})
	require.NoError(t, err)
	clock := newFakeClock()
	rl.now = clock.Now
	return rl, clock, mr
}

func TestNewRedisLimiter_InvalidConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{})
	defer client.Close()

	tests := []struct {
		name   string
		client *redis.Client
		config RedisConfig
		want   string
	}{
		{"nil client", nil, RedisConfig{Limit: 1, Window: time.Minute}, "redis client is required"},
		{"zero limit", client, RedisConfig{Limit: 0, Window: time.Minute}, "limit must be greater than 0"},
		{"tiny window", client, RedisConfig{Limit: 1, Window: time.Microsecond}, "window must be at least 1ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRedisLimiter(tt.client, tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRedisLimiter_Allow(t *testing.T) {
	rl, clock, _ := newTestRedisLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		info, err := rl.Allow(t.Context(), "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, info.Allowed)
		assert.Equal(t, 2-i, info.Remaining)
		clock.Advance(time.Second)
	}

	info, err := rl.Allow(t.Context(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)
	// the first request leaves the window one minute after it was made
	assert.WithinDuration(t, newFakeClock().Now().Add(time.Minute), info.ResetAt, 0)
}

func TestRedisLimiter_WindowSlides(t *testing.T) {
	rl, clock, _ := newTestRedisLimiter(t, 2, time.Minute)

	_, _ = rl.Allow(t.Context(), "k")
	clock.Advance(30 * time.Second)
	_, _ = rl.Allow(t.Context(), "k")

	info, _ := rl.Allow(t.Context(), "k")
	require.False(t, info.Allowed)

	clock.Advance(31 * time.Second)
	info, err := rl.Allow(t.Context(), "k")
	require.NoError(t, err)
	assert.True(t, info.Allowed, "the oldest request has left the window")
	assert.Equal(t, 0, info.Remaining)
}

func TestRedisLimiter_KeysAndReset(t *testing.T) {
	rl, _, mr := newTestRedisLimiter(t, 1, time.Minute)

	info, _ := rl.Allow(t.Context(), "a")
	assert.True(t, info.Allowed)
	info, _ = rl.Allow(t.Context(), "a")
	assert.False(t, info.Allowed)

	info, _ = rl.Allow(t.Context(), "b")
	assert.True(t, info.Allowed)

	assert.True(t, mr.Exists("test:a"))
	require.NoError(t, rl.Reset(t.Context(), "a"))
	assert.False(t, mr.Exists("test:a"))

	info, _ = rl.Allow(t.Context(), "a")
	assert.True(t, info.Allowed)
}

func TestRedisLimiter_SetsExpiry(t *testing.T) {
	rl, _, mr := newTestRedisLimiter(t, 5, time.Minute)

	_, err := rl.Allow(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("test:k"))
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	rl, _, mr := newTestRedisLimiter(t, 5, time.Minute)
	mr.Close()

	_, err := rl.Allow(t.Context(), "k")
	assert.Error(t, err)
}
