package domain

import (
	"time"

	"github.com/google/uuid"
)

// Activity actions recorded by the back office
const (
	ActionCarCreated       = "car.created"
	ActionCarUpdated       = "car.updated"
	ActionCarDeleted       = "car.deleted"
	ActionCarStatusChanged = "car.status_changed"
	ActionImageAdded       = "image.added"
	ActionImageRemoved     = "image.removed"
	ActionSettingsUpdated  = "settings.updated"
	ActionInquiryReceived  = "inquiry.received"
	ActionInquiryHandled   = "inquiry.handled"
	ActionUserSignedIn     = "user.signed_in"
)

// Subject types referenced by activities
const (
	SubjectCar      = "car"
	SubjectSettings = "settings"
	SubjectInquiry  = "inquiry"
	SubjectUser     = "user"
)

// Activity is an entry in the back-office activity log
type Activity struct {
	ID          uuid.UUID      `json:"id"`
	Action      string         `json:"action"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id"`
	Summary     string         `json:"summary"`
	Actor       string         `json:"actor"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewActivity creates an activity stamped with a fresh time-ordered ID
func NewActivity(action, subjectType, subjectID, actor, summary string) *Activity {
	return &Activity{
		ID:          NewID(),
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Summary:     summary,
		Actor:       actor,
		Details:     make(map[string]any),
		CreatedAt:   time.Now().UTC(),
	}
}

// WithDetail sets a detail entry and returns the activity for chaining
func (a *Activity) WithDetail(key string, value any) *Activity {
	if a.Details == nil {
		a.Details = make(map[string]any)
	}
	a.Details[key] = value
	return a
}

// NewID returns a UUIDv7, falling back to v4 if the clock source fails
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
