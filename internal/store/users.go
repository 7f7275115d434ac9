package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/showroom-auto/showroom/internal/domain"
)

const userColumns = `id, email, display_name, password_hash, created_at, last_login_at`

type userRow struct {
	ID           uuid.UUID    `db:"id"`
	Email        string       `db:"email"`
	DisplayName  string       `db:"display_name"`
	PasswordHash string       `db:"password_hash"`
	CreatedAt    time.Time    `db:"created_at"`
	LastLoginAt  sql.NullTime `db:"last_login_at"`
}

func (r userRow) toDomain() *domain.User {
	u := &domain.User{
		ID:           r.ID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if r.LastLoginAt.Valid {
		t := r.LastLoginAt.Time.UTC()
		u.LastLoginAt = &t
	}
	return u
}

// CreateUser inserts a user. The e-mail is normalized; a duplicate returns ErrConflict.
func (q queries) CreateUser(ctx context.Context, u *domain.User) error {
	if u.ID == uuid.Nil {
		u.ID = domain.NewID()
	}
	u.Email = domain.NormalizeEmail(u.Email)
	u.CreatedAt = timestamp(time.Now())

	_, err := q.exec(ctx, `INSERT INTO users (id, email, display_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`, u.ID, u.Email, u.DisplayName, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", u.Email, err)
	}
	return nil
}

// GetUser returns the user with the given ID
func (q queries) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var row userRow
	if err := q.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// GetUserByEmail looks a user up by normalized e-mail address
func (q queries) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var row userRow
	err := q.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = ?`, domain.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return row.toDomain(), nil
}

// ListUsers returns every user ordered by e-mail
func (q queries) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var rows []userRow
	if err := q.selectAll(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY email`); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	users := make([]*domain.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

// TouchLogin records a successful sign-in
func (q queries) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := q.execOne(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, timestamp(at), id); err != nil {
		return fmt.Errorf("touching login for %s: %w", id, err)
	}
	return nil
}
