package middleware

import (
	"net/http"
	"strings"

	"github.com/showroom-auto/showroom/internal/web/auth"
	"github.com/showroom-auto/showroom/internal/web/response"
)

// AuthConfig holds configuration for bearer token authentication
type AuthConfig struct {
	// Tokens validates bearer tokens
	Tokens *auth.TokenService
	// Optional lets anonymous requests through; invalid tokens are still rejected
	Optional bool
}

// BearerAuth requires a valid bearer token and stores its principal in the context
func BearerAuth(tokens *auth.TokenService) Middleware {
	return BearerAuthWithConfig(AuthConfig{Tokens: tokens})
}

// BearerAuthWithConfig creates a bearer authentication middleware with custom configuration
func BearerAuthWithConfig(config AuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if config.Optional {
					next.ServeHTTP(w, r)
					return
				}
				response.RenderUnauthorized(w, "Authorization required")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				response.RenderUnauthorized(w, "Invalid authorization format")
				return
			}

			principal, err := config.Tokens.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				response.RenderUnauthorized(w, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin rejects callers without an admin principal: 401 when
// anonymous, 403 when signed in without admin rights.
func RequireAdmin() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.CurrentPrincipal(r.Context())
			if !ok {
				response.RenderUnauthorized(w, "")
				return
			}
			if !principal.Admin {
				response.RenderForbidden(w, "Administrator access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
