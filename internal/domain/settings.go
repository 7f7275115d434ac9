package domain

import (
	"strings"
	"unicode/utf8"
)

// Settings is the dealership profile shown across the public site
type Settings struct {
	DealershipName string `json:"dealership_name" yaml:"dealership_name"`
	Tagline        string `json:"tagline" yaml:"tagline"`
	Phone          string `json:"phone" yaml:"phone"`
	Email          string `json:"email" yaml:"email"`
	Address        string `json:"address" yaml:"address"`
	OpeningHours   string `json:"opening_hours" yaml:"opening_hours"`
	About          string `json:"about" yaml:"about"`
	Currency       string `json:"currency" yaml:"currency"`
}

// DefaultSettings returns the profile used before an admin saves one
func DefaultSettings() Settings {
	return Settings{
		DealershipName: "Showroom Motors",
		Tagline:        "Quality used cars, honestly priced",
		OpeningHours:   "Mon-Sat 9:00-18:00",
		Currency:       "USD",
	}
}

// Validate normalizes and checks the settings
func (s *Settings) Validate() *ValidationErrors {
	s.DealershipName = strings.TrimSpace(s.DealershipName)
	s.Email = NormalizeEmail(s.Email)
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))

	errs := NewValidationErrors()
	requireName(errs, "dealership_name", s.DealershipName)
	if s.Email != "" && !ValidEmail(s.Email) {
		errs.Add("email", "is not a valid address")
	}
	if s.Currency == "" {
		s.Currency = "USD"
	} else if len(s.Currency) != 3 {
		errs.Add("currency", "must be a three-letter code")
	}
	if utf8.RuneCountInString(s.About) > maxDescriptionLength {
		errs.Add("about", "is too long")
	}
	return errs
}
