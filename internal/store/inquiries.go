package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/showroom-auto/showroom/internal/domain"
)

const inquiryColumns = `id, car_id, name, email, phone, message, handled, created_at`

type inquiryRow struct {
	ID        uuid.UUID     `db:"id"`
	CarID     uuid.NullUUID `db:"car_id"`
	Name      string        `db:"name"`
	Email     string        `db:"email"`
	Phone     string        `db:"phone"`
	Message   string        `db:"message"`
	Handled   bool          `db:"handled"`
	CreatedAt time.Time     `db:"created_at"`
}

func (r inquiryRow) toDomain() domain.Inquiry {
	in := domain.Inquiry{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Message:   r.Message,
		Handled:   r.Handled,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.CarID.Valid {
		id := r.CarID.UUID
		in.CarID = &id
	}
	return in
}

// CreateInquiry stores a contact form submission
func (q queries) CreateInquiry(ctx context.Context, in *domain.Inquiry) error {
	if in.ID == uuid.Nil {
		in.ID = domain.NewID()
	}
	in.CreatedAt = timestamp(time.Now())

	var carID uuid.NullUUID
	if in.CarID != nil {
		carID = uuid.NullUUID{UUID: *in.CarID, Valid: true}
	}

	_, err := q.exec(ctx, `INSERT INTO inquiries (`+inquiryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, carID, in.Name, in.Email, in.Phone, in.Message, in.Handled, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating inquiry: %w", err)
	}
	return nil
}

// ListInquiries returns inquiries newest first, optionally only unhandled ones
func (q queries) ListInquiries(ctx context.Context, onlyOpen bool) ([]domain.Inquiry, error) {
	w := &where{}
	if onlyOpen {
		w.add("handled = ?", false)
	}

	var rows []inquiryRow
	query := `SELECT ` + inquiryColumns + ` FROM inquiries ` + w.clause() + ` ORDER BY created_at DESC, id DESC`
	if err := q.selectAll(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("listing inquiries: %w", err)
	}

	out := make([]domain.Inquiry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// CountOpenInquiries returns the number of unhandled inquiries
func (q queries) CountOpenInquiries(ctx context.Context) (int, error) {
	var n int
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM inquiries WHERE handled = ?`, false); err != nil {
		return 0, fmt.Errorf("counting inquiries: %w", err)
	}
	return n, nil
}

// MarkInquiryHandled flags an inquiry as dealt with
func (q queries) MarkInquiryHandled(ctx context.Context, id uuid.UUID) error {
	if err := q.execOne(ctx, `UPDATE inquiries SET handled = ? WHERE id = ?`, true, id); err != nil {
		return fmt.Errorf("marking inquiry %s handled: %w", id, err)
	}
	return nil
}
