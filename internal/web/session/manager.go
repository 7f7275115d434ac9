package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/web/auth"
)

// Config holds session cookie configuration
type Config struct {
	// CookieName is the name of the session cookie
	CookieName string
	// CookiePath is the path for the session cookie
	CookiePath string
	// TTL is the absolute lifetime of a session
	TTL time.Duration
	// Secure requires HTTPS for the cookie
	Secure bool
	// SameSite controls cross-site cookie behavior
	SameSite http.SameSite
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		CookieName: "showroom_session",
		CookiePath: "/",
		TTL:        12 * time.Hour,
		Secure:     true,
		SameSite:   http.SameSiteLaxMode,
	}
}

type contextKey struct{}

// Manager loads and saves sessions around each request
type Manager struct {
	config Config
	store  Store
	logger *zap.Logger
}

// NewManager creates a session manager
func NewManager(config Config, store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	return &Manager{config: config, store: store, logger: logger}
}

// Middleware attaches the session to the request context and persists it
// before the response headers are written. A signed-in session also sets the
// request principal.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.load(r)
		if err != nil {
			m.logger.Error("creating session", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, sess)
		if p, ok := sess.Principal(); ok {
			ctx = auth.WithPrincipal(ctx, p)
		}

		sw := &sessionWriter{ResponseWriter: w, manager: m, session: sess, ctx: ctx}
		next.ServeHTTP(sw, r.WithContext(ctx))
		sw.commit()
	})
}

func (m *Manager) load(r *http.Request) (*Session, error) {
	if cookie, err := r.Cookie(m.config.CookieName); err == nil && cookie.Value != "" {
		sess, err := m.store.Get(r.Context(), cookie.Value)
		switch {
		case err == nil:
			return sess, nil
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
		default:
			m.logger.Warn("loading session", zap.Error(err))
		}
	}
	return newSession(m.config.TTL)
}

// Renew replaces the session ID and CSRF token, keeping the data. Call it when
// the privilege level changes (sign in) to prevent fixation.
func (m *Manager) Renew(ctx context.Context) error {
	sess := FromContext(ctx)
	if sess == nil {
		return ErrSessionNotFound
	}

	id, err := randomToken(32)
	if err != nil {
		return fmt.Errorf("generating session id: %w", err)
	}
	token, err := randomToken(csrfTokenLength)
	if err != nil {
		return fmt.Errorf("generating csrf token: %w", err)
	}

	if !sess.isNew {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	sess.ID = id
	sess.CSRFToken = token
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(m.config.TTL)
	sess.isNew = true
	sess.dirty = true
	return nil
}

// Destroy deletes the session and expires the cookie
func (m *Manager) Destroy(ctx context.Context) error {
	sess := FromContext(ctx)
	if sess == nil {
		return nil
	}
	sess.destroyed = true
	if sess.isNew {
		return nil
	}
	return m.store.Delete(ctx, sess.ID)
}

// FromContext returns the request's session, or nil outside the middleware
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}

func (m *Manager) cookie(sess *Session) *http.Cookie {
	c := &http.Cookie{
		Name:     m.config.CookieName,
		Value:    sess.ID,
		Path:     m.config.CookiePath,
		Expires:  sess.ExpiresAt,
		MaxAge:   int(sess.ttl().Seconds()),
		HttpOnly: true,
		Secure:   m.config.Secure,
		SameSite: m.config.SameSite,
	}
	if sess.destroyed {
		c.Value = ""
		c.Expires = time.Unix(0, 0)
		c.MaxAge = -1
	}
	return c
}

// sessionWriter saves the session just before the first byte of the response
type sessionWriter struct {
	http.ResponseWriter
	manager   *Manager
	session   *Session
	ctx       context.Context
	committed bool
}

func (sw *sessionWriter) commit() {
	if sw.committed {
		return
	}
	sw.committed = true

	sess, m := sw.session, sw.manager
	switch {
	case sess.destroyed:
		http.SetCookie(sw.ResponseWriter, m.cookie(sess))
	case sess.dirty:
		ctx, cancel := context.WithTimeout(context.WithoutCancel(sw.ctx), 5*time.Second)
		defer cancel()
		if err := m.store.Set(ctx, sess, sess.ttl()); err != nil {
			m.logger.Error("saving session", zap.Error(err))
			return
		}
		if sess.isNew {
			http.SetCookie(sw.ResponseWriter, m.cookie(sess))
			sess.isNew = false
		}
		sess.dirty = false
	}
}

// WriteHeader saves the session before writing headers
func (sw *sessionWriter) WriteHeader(statusCode int) {
	sw.commit()
	sw.ResponseWriter.WriteHeader(statusCode)
}

// Write saves the session before the implicit 200 header
func (sw *sessionWriter) Write(b []byte) (int, error) {
	sw.commit()
	return sw.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer when it supports flushing
func (sw *sessionWriter) Flush() {
	sw.commit()
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack saves the session and hands the connection to a websocket upgrader
func (sw *sessionWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	sw.commit()
	h, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController
func (sw *sessionWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
