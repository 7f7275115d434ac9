// Package request decodes JSON and form bodies for the site and API handlers.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/showroom-auto/showroom/internal/domain"
)

// Body errors
var (
	ErrEmptyBody          = errors.New("request body is empty")
	ErrBodyTooLarge       = errors.New("request body too large")
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// Parser handles parsing of HTTP request bodies
type Parser struct {
	maxBodySize int64
}

// NewParser creates a parser with a 1MB body limit
func NewParser() *Parser {
	return NewParserWithMaxSize(1 << 20)
}

// NewParserWithMaxSize creates a parser with a custom max body size
func NewParserWithMaxSize(maxBytes int64) *Parser {
	return &Parser{maxBodySize: maxBytes}
}

// ParseJSON decodes a single JSON object into target, rejecting unknown fields
func (p *Parser) ParseJSON(w http.ResponseWriter, r *http.Request, target any) error {
	if mediaType := mediaType(r); mediaType != "" && mediaType != "application/json" {
		return fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return ErrEmptyBody
		case errors.As(err, &tooBig):
			return ErrBodyTooLarge
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if decoder.More() {
		return errors.New("request body contains multiple JSON objects")
	}
	return nil
}

// ParseForm parses a URL-encoded body and returns the posted values
func (p *Parser) ParseForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	if r.PostForm != nil {
		return r.PostForm, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	if err := r.ParseForm(); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, ErrBodyTooLarge
		}
		return nil, fmt.Errorf("invalid form data: %w", err)
	}
	return r.PostForm, nil
}

func mediaType(r *http.Request) string {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}

// FormInt reads an optional integer field, recording a field error when malformed.
// Missing fields yield zero.
func FormInt(values url.Values, name string, errs *domain.ValidationErrors) int {
	return int(FormInt64(values, name, errs))
}

// FormInt64 reads an optional 64-bit integer field. Thousands separators are ignored.
func FormInt64(values url.Values, name string, errs *domain.ValidationErrors) int64 {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return 0
	}
	raw = strings.NewReplacer(",", "", "_", "", " ", "").Replace(raw)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		errs.Add(name, "must be a whole number")
		return 0
	}
	return n
}

// FormBool reads a checkbox field
func FormBool(values url.Values, name string) bool {
	switch strings.ToLower(strings.TrimSpace(values.Get(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
