package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"mime"
	"net/http"

	"go.uber.org/zap"
)

const csrfTokenLength = 32

var (
	// ErrCSRFTokenMissing is returned when CSRF token is missing from request
	ErrCSRFTokenMissing = errors.New("CSRF token missing")

	// ErrCSRFTokenInvalid is returned when CSRF token is invalid
	ErrCSRFTokenInvalid = errors.New("CSRF token invalid")
)

// CSRFConfig holds CSRF protection configuration
type CSRFConfig struct {
	// TokenHeader is the HTTP header name for CSRF token
	TokenHeader string
	// TokenField is the form field name for CSRF token
	TokenField string
	// MaxMemory bounds multipart parsing when the token is in a multipart body
	MaxMemory int64
	// ErrorHandler is called when CSRF validation fails
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

// DefaultCSRFConfig returns default CSRF configuration
func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{
		TokenHeader: "X-CSRF-Token",
		TokenField:  "csrf_token",
		MaxMemory:   16 << 20,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, "Forbidden: the form has expired, please reload the page and try again.", http.StatusForbidden)
		},
	}
}

// CSRF rejects unsafe requests whose token does not match the session's.
// It must run inside Middleware.
func (m *Manager) CSRF(config CSRFConfig) func(http.Handler) http.Handler {
	defaults := DefaultCSRFConfig()
	if config.TokenHeader == "" {
		config.TokenHeader = defaults.TokenHeader
	}
	if config.TokenField == "" {
		config.TokenField = defaults.TokenField
	}
	if config.MaxMemory <= 0 {
		config.MaxMemory = defaults.MaxMemory
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = defaults.ErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := FromContext(r.Context())
			if sess == nil {
				config.ErrorHandler(w, r, ErrSessionNotFound)
				return
			}

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				next.ServeHTTP(w, r)
				return
			}

			token := extractCSRFToken(r, config)
			var err error
			switch {
			case token == "":
				err = ErrCSRFTokenMissing
			case !validCSRFToken(token, sess.CSRFToken):
				err = ErrCSRFTokenInvalid
			}
			if err != nil {
				m.logger.Warn("csrf check failed", zap.Error(err), zap.String("path", r.URL.Path))
				config.ErrorHandler(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CSRFToken returns the session's token, creating one on first use
func CSRFToken(ctx context.Context) string {
	sess := FromContext(ctx)
	if sess == nil {
		return ""
	}
	if sess.CSRFToken == "" {
		token, err := randomToken(csrfTokenLength)
		if err != nil {
			return ""
		}
		sess.CSRFToken = token
		sess.dirty = true
	}
	return sess.CSRFToken
}

func extractCSRFToken(r *http.Request, config CSRFConfig) string {
	if token := r.Header.Get(config.TokenHeader); token != "" {
		return token
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(config.MaxMemory); err != nil {
			return ""
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return ""
		}
	default:
		return ""
	}
	return r.PostFormValue(config.TokenField)
}

// validCSRFToken compares tokens in constant time
func validCSRFToken(token, expected string) bool {
	if token == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}
