package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxMessageLength = 5000

// Inquiry is a message left through the public contact form
type Inquiry struct {
	ID        uuid.UUID  `json:"id"`
	CarID     *uuid.UUID `json:"car_id,omitempty"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Message   string     `json:"message"`
	Handled   bool       `json:"handled"`
	CreatedAt time.Time  `json:"created_at"`
}

// InquiryInput is the contact form payload
type InquiryInput struct {
	CarID   *uuid.UUID
	Name    string
	Email   string
	Phone   string
	Message string
}

// Validate normalizes and checks the input
func (in *InquiryInput) Validate() *ValidationErrors {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Message = strings.TrimSpace(in.Message)

	errs := NewValidationErrors()
	requireName(errs, "name", in.Name)
	switch {
	case in.Email == "":
		errs.Add("email", "is required")
	case !ValidEmail(in.Email):
		errs.Add("email", "is not a valid address")
	}
	if utf8.RuneCountInString(in.Phone) > 32 {
		errs.Add("phone", "is too long")
	}
	switch {
	case in.Message == "":
		errs.Add("message", "is required")
	case utf8.RuneCountInString(in.Message) > maxMessageLength:
		errs.Add("message", "is too long")
	}
	return errs
}
