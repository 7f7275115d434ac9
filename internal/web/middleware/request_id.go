package middleware

import (
	"net/http"

	"github.com/google/uuid"

	webcontext "github.com/showroom-auto/showroom/internal/web/context"
)

const maxRequestIDLength = 64

// RequestIDConfig holds configuration for the request ID middleware
type RequestIDConfig struct {
	// HeaderName is the header read from the request and echoed on the response
	HeaderName string
	// Generator creates an ID when the client did not send a usable one
	Generator func() string
}

// DefaultRequestIDConfig returns the default request ID configuration
func DefaultRequestIDConfig() RequestIDConfig {
	return RequestIDConfig{
		HeaderName: "X-Request-ID",
		Generator:  newRequestID,
	}
}

// RequestID creates a middleware that tags every request with an ID
func RequestID() Middleware {
	return RequestIDWithConfig(DefaultRequestIDConfig())
}

// RequestIDWithConfig creates a request ID middleware with custom configuration
func RequestIDWithConfig(config RequestIDConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(config.HeaderName)
			if !validRequestID(id) {
				id = config.Generator()
			}

			w.Header().Set(config.HeaderName, id)
			next.ServeHTTP(w, r.WithContext(webcontext.SetRequestID(r.Context(), id)))
		})
	}
}

// validRequestID accepts short printable ASCII IDs so client input cannot
// inject control characters into logs
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
