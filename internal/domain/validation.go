package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ValidationErrors collects per-field validation messages for a submitted form or payload
type ValidationErrors struct {
	Fields map[string][]string `json:"fields"`
}

// NewValidationErrors creates an empty ValidationErrors
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Fields: make(map[string][]string),
	}
}

// Add adds a message for a field
func (ve *ValidationErrors) Add(field, message string) {
	if ve.Fields == nil {
		ve.Fields = make(map[string][]string)
	}
	ve.Fields[field] = append(ve.Fields[field], message)
}

// HasErrors returns true if at least one field failed validation
func (ve *ValidationErrors) HasErrors() bool {
	return ve != nil && len(ve.Fields) > 0
}

// First returns the first message recorded for field, or ""
func (ve *ValidationErrors) First(field string) string {
	if ve == nil {
		return ""
	}
	if msgs := ve.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Count returns the total number of messages across all fields
func (ve *ValidationErrors) Count() int {
	count := 0
	for _, messages := range ve.Fields {
		count += len(messages)
	}
	return count
}

// Error implements the error interface. Fields are listed in sorted order.
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}

	fields := make([]string, 0, len(ve.Fields))
	for field := range ve.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		for _, msg := range ve.Fields[field] {
			messages = append(messages, fmt.Sprintf("%s: %s", field, msg))
		}
	}

	if len(messages) == 1 {
		return "validation failed: " + messages[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

// MarshalJSON renders the errors in the API error envelope shape
func (ve *ValidationErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}{
		Error:  "validation_failed",
		Fields: ve.Fields,
	})
}

// OrNil returns ve as an error when it has entries and nil otherwise,
// avoiding the typed-nil interface trap at call sites.
func (ve *ValidationErrors) OrNil() error {
	if ve.HasErrors() {
		return ve
	}
	return nil
}
