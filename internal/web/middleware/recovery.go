package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	webcontext "github.com/showroom-auto/showroom/internal/web/context"
	"github.com/showroom-auto/showroom/internal/web/response"
)

// RecoveryConfig holds configuration for the recovery middleware
type RecoveryConfig struct {
	// Logger records the panic value and stack
	Logger *zap.Logger
	// EnableStackTrace attaches the goroutine stack to the log entry
	EnableStackTrace bool
	// ResponseHandler writes the response after a panic
	ResponseHandler func(http.ResponseWriter, *http.Request, any)
}

// DefaultRecoveryConfig returns the default recovery configuration
func DefaultRecoveryConfig(logger *zap.Logger) RecoveryConfig {
	return RecoveryConfig{
		Logger:           logger,
		EnableStackTrace: true,
		ResponseHandler:  defaultRecoveryResponse,
	}
}

// Recovery creates a middleware that turns panics into 500 responses
func Recovery(logger *zap.Logger) Middleware {
	return RecoveryWithConfig(DefaultRecoveryConfig(logger))
}

// RecoveryWithConfig creates a recovery middleware with custom configuration
func RecoveryWithConfig(config RecoveryConfig) Middleware {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	respond := config.ResponseHandler
	if respond == nil {
		respond = defaultRecoveryResponse
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				// http.ErrAbortHandler is the documented way to abort silently
				if p == http.ErrAbortHandler {
					panic(p)
				}

				fields := []zap.Field{
					zap.String("request_id", webcontext.GetRequestID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(panicError(p)),
				}
				if config.EnableStackTrace {
					fields = append(fields, zap.ByteString("stack", debug.Stack()))
				}
				logger.Error("panic recovered", fields...)

				respond(w, r, p)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// defaultRecoveryResponse answers API clients with JSON and browsers with text
func defaultRecoveryResponse(w http.ResponseWriter, r *http.Request, _ any) {
	if WantsJSON(r) {
		response.RenderInternalError(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte("<!doctype html><title>Server error</title><h1>Something went wrong</h1><p>Please try again later.</p>"))
}

// WantsJSON reports whether the client is an API caller
func WantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func panicError(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return fmt.Errorf("%v", p)
}
