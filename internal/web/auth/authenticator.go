package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/store"
)

// ErrInvalidCredentials is returned for an unknown e-mail or a wrong password
var ErrInvalidCredentials = errors.New("invalid email or password")

// Accounts is the user storage the authenticator needs
type Accounts interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Recorder appends an entry to the activity log
type Recorder interface {
	Record(ctx context.Context, a *domain.Activity) error
}

// Authenticator checks e-mail/password credentials
type Authenticator struct {
	accounts Accounts
	policy   AdminPolicy
	recorder Recorder
	logger   *zap.Logger
}

// NewAuthenticator creates an authenticator. recorder may be nil.
func NewAuthenticator(accounts Accounts, policy AdminPolicy, recorder Recorder, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{accounts: accounts, policy: policy, recorder: recorder, logger: logger}
}

// Policy returns the admin policy in use
func (a *Authenticator) Policy() AdminPolicy {
	return a.policy
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// equalizeTiming runs a bcrypt comparison so unknown accounts cost as much as wrong passwords
func equalizeTiming(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = HashPassword("showroom-timing-placeholder")
	})
	CheckPassword(password, dummyHash)
}

// Login verifies credentials, records the sign-in and returns the user with
// the principal to store in the session.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*domain.User, Principal, error) {
	user, err := a.accounts.GetUserByEmail(ctx, email)
	if err != nil {
		if !store.IsNotFound(err) {
			return nil, Principal{}, fmt.Errorf("looking up user: %w", err)
		}
		equalizeTiming(password)
		return nil, Principal{}, ErrInvalidCredentials
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, Principal{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := a.accounts.TouchLogin(ctx, user.ID, now); err != nil {
		a.logger.Warn("recording last login failed", zap.String("user", user.Email), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	principal := Principal{UserID: user.ID, Email: user.Email, Admin: a.policy.IsAdmin(user.Email)}

	if a.recorder != nil {
		activity := domain.NewActivity(domain.ActionUserSignedIn, domain.SubjectUser, user.ID.String(),
			user.Email, user.Name()+" signed in")
		if err := a.recorder.Record(ctx, activity); err != nil {
			a.logger.Warn("recording sign-in failed", zap.String("user", user.Email), zap.Error(err))
		}
	}

	return user, principal, nil
}
