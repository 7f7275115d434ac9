// Package session keeps browser sessions for the back office and the contact
// form: cookie-identified records in memory or Redis, CSRF tokens and flash
// messages.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"

	webcontext "github.com/showroom-auto/showroom/internal/web/context"
)

// ErrSessionNotFound is returned when a session is not found
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a session has expired
var ErrSessionExpired = errors.New("session expired")

// Store persists sessions between requests
type Store interface {
	// Get retrieves a session by ID
	Get(ctx context.Context, id string) (*Session, error)

	// Set stores a session with the given TTL
	Set(ctx context.Context, s *Session, ttl time.Duration) error

	// Delete removes a session
	Delete(ctx context.Context, id string) error

	// Close releases resources held by the store
	Close() error
}

// Flash is a one-time message shown on the next page render
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Session is the server-side state behind a session cookie
type Session struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Admin     bool      `json:"admin,omitempty"`
	CSRFToken string    `json:"csrf_token,omitempty"`
	Flashes   []Flash   `json:"flashes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	dirty     bool
	destroyed bool
	isNew     bool
}

// newSession creates an unsaved session with a random ID
func newSession(ttl time.Duration) (*Session, error) {
	id, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		isNew:     true,
	}, nil
}

// IsExpired reports whether the session is past its expiry
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Authenticated reports whether a user is signed in
func (s *Session) Authenticated() bool {
	return s.UserID != uuid.Nil
}

// Principal returns the signed-in user as a request principal
func (s *Session) Principal() (webcontext.Principal, bool) {
	if !s.Authenticated() {
		return webcontext.Principal{}, false
	}
	return webcontext.Principal{UserID: s.UserID, Email: s.Email, Admin: s.Admin}, true
}

// SignIn stores the principal in the session
func (s *Session) SignIn(p webcontext.Principal) {
	s.UserID = p.UserID
	s.Email = p.Email
	s.Admin = p.Admin
	s.dirty = true
}

// AddFlash queues a message for the next page
func (s *Session) AddFlash(kind, message string) {
	s.Flashes = append(s.Flashes, Flash{Kind: kind, Message: message})
	s.dirty = true
}

// PopFlashes returns and clears the queued messages
func (s *Session) PopFlashes() []Flash {
	if len(s.Flashes) == 0 {
		return nil
	}
	flashes := s.Flashes
	s.Flashes = nil
	s.dirty = true
	return flashes
}

// ttl returns the time left before expiry
func (s *Session) ttl() time.Duration {
	return time.Until(s.ExpiresAt)
}

// randomToken returns n random bytes encoded as URL-safe base64
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
