package middleware

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/web/ratelimit"
	"github.com/showroom-auto/showroom/internal/web/response"
)

// RateLimitConfig holds configuration for rate limiting middleware
type RateLimitConfig struct {
	// Limiter decides whether a request may proceed
	Limiter ratelimit.Limiter
	// KeyFunc extracts the rate limit key from the request
	KeyFunc func(*http.Request) string
	// Scope namespaces keys so separate endpoints keep separate budgets
	Scope string
	// FailOpen lets requests through when the limiter errors
	FailOpen bool
	// Logger records limiter failures
	Logger *zap.Logger
	// OnLimited writes the response for rejected requests
	OnLimited func(http.ResponseWriter, *http.Request, ratelimit.Info)
}

// DefaultRateLimitConfig limits by client IP and fails open
func DefaultRateLimitConfig(limiter ratelimit.Limiter) RateLimitConfig {
	return RateLimitConfig{
		Limiter:  limiter,
		KeyFunc:  ClientIP,
		FailOpen: true,
		Logger:   zap.NewNop(),
	}
}

// RateLimit creates a per-IP rate limiting middleware
func RateLimit(limiter ratelimit.Limiter) Middleware {
	return RateLimitWithConfig(DefaultRateLimitConfig(limiter))
}

// RateLimitWithConfig creates a rate limiting middleware with custom configuration
func RateLimitWithConfig(config RateLimitConfig) Middleware {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIP
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.OnLimited == nil {
		config.OnLimited = defaultLimited
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := config.KeyFunc(r)
			if config.Scope != "" {
				key = config.Scope + ":" + key
			}

			info, err := config.Limiter.Allow(r.Context(), key)
			if err != nil {
				config.Logger.Warn("rate limiter unavailable", zap.Error(err), zap.String("key", key))
				if config.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				response.RenderServiceUnavailable(w, "")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))

			if !info.Allowed {
				config.OnLimited(w, r, info)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func defaultLimited(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	retry := info.RetryAfter(time.Now())
	if WantsJSON(r) {
		response.RenderTooManyRequests(w, retry)
		return
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	http.Error(w, "Too many requests. Please wait a moment and try again.", http.StatusTooManyRequests)
}
