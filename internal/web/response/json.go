package response

import (
	"encoding/json"
	"net/http"

	"github.com/showroom-auto/showroom/internal/domain"
)

// Envelope wraps a single resource
type Envelope struct {
	Data any `json:"data"`
}

// PageEnvelope wraps one page of a cursor-paginated listing
type PageEnvelope struct {
	Data       any    `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// JSON writes v wrapped in a data envelope
func JSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, Envelope{Data: v})
}

// OK writes v with 200 OK
func OK(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

// Created writes v with 201 Created and sets Location when given
func Created(w http.ResponseWriter, location string, v any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, http.StatusCreated, v)
}

// NoContent writes an empty 204 response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Page writes one page of items with its continuation cursor
func Page[T any](w http.ResponseWriter, page domain.Page[T]) {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, PageEnvelope{
		Data:       items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
