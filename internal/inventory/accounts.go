package inventory

import (
	"context"
	"fmt"

	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/store"
	"github.com/showroom-auto/showroom/internal/web/auth"
)

// CreateUser adds a back-office account
func (s *Service) CreateUser(ctx context.Context, email, displayName, password string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	errs := domain.NewValidationErrors()
	if !domain.ValidEmail(email) {
		errs.Add("email", "is not a valid address")
	}
	if err := auth.ValidatePassword(password); err != nil {
		errs.Add("password", err.Error())
	}
	if errs.HasErrors() {
		return nil, errs
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{Email: email, DisplayName: displayName, PasswordHash: hash}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if store.IsConflict(err) {
			errs.Add("email", "is already registered")
			return nil, errs
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// ListUsers returns every account ordered by e-mail
func (s *Service) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.store.ListUsers(ctx)
}
