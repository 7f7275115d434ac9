// Package response renders JSON envelopes and error payloads for the API.
package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/showroom-auto/showroom/internal/domain"
)

// ErrorResponse is the body of every non-validation API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ValidationErrorResponse lists the offending fields of a rejected payload
type ValidationErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Fields  map[string][]string `json:"fields"`
}

type statusText struct {
	code    string
	message string
}

var statusTexts = map[int]statusText{
	http.StatusBadRequest:            {"bad_request", "Bad request"},
	http.StatusUnauthorized:          {"unauthorized", "Authentication required"},
	http.StatusForbidden:             {"forbidden", "Access denied"},
	http.StatusNotFound:              {"not_found", "Resource not found"},
	http.StatusMethodNotAllowed:      {"method_not_allowed", "method not allowed"},
	http.StatusConflict:              {"conflict", "Conflict"},
	http.StatusRequestEntityTooLarge: {"request_too_large", "Request too large"},
	http.StatusUnsupportedMediaType:  {"unsupported_media_type", "Unsupported media type"},
	http.StatusUnprocessableEntity:   {"unprocessable_entity", "Unprocessable entity"},
	http.StatusTooManyRequests:       {"too_many_requests", "rate limit exceeded"},
	http.StatusInternalServerError:   {"internal_error", "Internal server error"},
	http.StatusServiceUnavailable:    {"service_unavailable", "Service temporarily unavailable"},
}

func lookupStatus(status int) statusText {
	if t, ok := statusTexts[status]; ok {
		return t
	}
	return statusText{code: "error", message: http.StatusText(status)}
}

// RenderError writes err under the code derived from statusCode
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	RenderErrorWithCode(w, statusCode, err, "")
}

// RenderErrorWithCode writes err with an explicit machine-readable code.
// Validation errors anywhere in the chain win and render as 422.
func RenderErrorWithCode(w http.ResponseWriter, statusCode int, err error, code string) {
	var invalid *domain.ValidationErrors
	if errors.As(err, &invalid) {
		RenderValidationError(w, invalid)
		return
	}
	if code == "" {
		code = lookupStatus(statusCode).code
	}
	writeJSON(w, statusCode, &ErrorResponse{Error: "error", Message: err.Error(), Code: code})
}

// RenderValidationError writes the 422 field map
func RenderValidationError(w http.ResponseWriter, invalid *domain.ValidationErrors) {
	writeJSON(w, http.StatusUnprocessableEntity, &ValidationErrorResponse{
		Error:   "validation_failed",
		Message: "The request contains invalid data",
		Code:    "validation_error",
		Fields:  invalid.Fields,
	})
}

// renderStatus writes message, or the status default when message is empty
func renderStatus(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = lookupStatus(status).message
	}
	RenderError(w, status, errors.New(message))
}

func RenderBadRequest(w http.ResponseWriter, message string) {
	renderStatus(w, http.StatusBadRequest, message)
}

// RenderUnauthorized also sets the bearer challenge
func RenderUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="showroom"`)
	renderStatus(w, http.StatusUnauthorized, message)
}

func RenderForbidden(w http.ResponseWriter, message string) {
	renderStatus(w, http.StatusForbidden, message)
}

func RenderNotFound(w http.ResponseWriter, message string) {
	renderStatus(w, http.StatusNotFound, message)
}

func RenderMethodNotAllowed(w http.ResponseWriter) {
	renderStatus(w, http.StatusMethodNotAllowed, "")
}

func RenderTooLarge(w http.ResponseWriter, message string) {
	renderStatus(w, http.StatusRequestEntityTooLarge, message)
}

func RenderUnsupportedMediaType(w http.ResponseWriter, message string) {
	renderStatus(w, http.StatusUnsupportedMediaType, message)
}

// RenderTooManyRequests tells the client how many seconds to back off
func RenderTooManyRequests(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	renderStatus(w, http.StatusTooManyRequests, "")
}

// RenderInternalError never exposes the cause; callers log it.
func RenderInternalError(w http.ResponseWriter) {
	renderStatus(w, http.StatusInternalServerError, "")
}

func RenderServiceUnavailable(w http.ResponseWriter, message string) {
	renderStatus(w, http.StatusServiceUnavailable, message)
}
