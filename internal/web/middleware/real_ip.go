package middleware

import (
	"net"
	"net/http"
	"strings"

	webcontext "github.com/showroom-auto/showroom/internal/web/context"
)

// RealIPConfig holds configuration for client address resolution
type RealIPConfig struct {
	// TrustForwarded honours X-Forwarded-For and X-Real-IP. Enable only behind a
	// proxy that overwrites those headers.
	TrustForwarded bool
}

// RealIP resolves the client address once and stores it in the request context
func RealIP(config RealIPConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r.RemoteAddr)
			if config.TrustForwarded {
				if fwd := forwardedIP(r); fwd != "" {
					ip = fwd
				}
			}
			next.ServeHTTP(w, r.WithContext(webcontext.SetClientIP(r.Context(), ip)))
		})
	}
}

// ClientIP returns the address stored by RealIP, falling back to RemoteAddr
func ClientIP(r *http.Request) string {
	if ip := webcontext.GetClientIP(r.Context()); ip != "" {
		return ip
	}
	return remoteIP(r.RemoteAddr)
}

func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return ""
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
