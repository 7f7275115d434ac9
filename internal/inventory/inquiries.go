package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/store"
)

// SubmitInquiry stores a contact-form message
func (s *Service) SubmitInquiry(ctx context.Context, in domain.InquiryInput) (*domain.Inquiry, error) {
	if errs := in.Validate(); errs.HasErrors() {
		return nil, errs
	}

	inquiry := &domain.Inquiry{
		CarID:   in.CarID,
		Name:    in.Name,
		Email:   in.Email,
		Phone:   in.Phone,
		Message: in.Message,
	}

	var activity *domain.Activity
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateInquiry(ctx, inquiry); err != nil {
			return err
		}
		summary := "New inquiry from " + inquiry.Name
		if inquiry.CarID != nil {
			if car, err := tx.GetCar(ctx, *inquiry.CarID); err == nil {
				summary += " about " + car.Title()
			}
		}
		activity = domain.NewActivity(domain.ActionInquiryReceived, domain.SubjectInquiry, inquiry.ID.String(),
			inquiry.Email, summary)
		return tx.AppendActivity(ctx, activity)
	})
	if errors.Is(err, store.ErrForeignKey) {
		errs := domain.NewValidationErrors()
		errs.Add("car_id", "does not match a listed car")
		return nil, errs
	}
	if err != nil {
		return nil, fmt.Errorf("submitting inquiry: %w", err)
	}

	s.publish(ctx, activity)
	return inquiry, nil
}

// ListInquiries returns inquiries newest first
func (s *Service) ListInquiries(ctx context.Context, onlyOpen bool) ([]domain.Inquiry, error) {
	return s.store.ListInquiries(ctx, onlyOpen)
}

// MarkInquiryHandled closes an inquiry
func (s *Service) MarkInquiryHandled(ctx context.Context, actor string, id uuid.UUID) error {
	var activity *domain.Activity
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.MarkInquiryHandled(ctx, id); err != nil {
			return err
		}
		activity = domain.NewActivity(domain.ActionInquiryHandled, domain.SubjectInquiry, id.String(), actor,
			"Marked an inquiry as handled")
		return tx.AppendActivity(ctx, activity)
	})
	if err != nil {
		return fmt.Errorf("handling inquiry: %w", err)
	}

	s.publish(ctx, activity)
	return nil
}
