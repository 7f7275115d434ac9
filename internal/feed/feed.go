// Package feed fans activity and inventory events out to live subscribers,
// either within one process or across instances through Redis.
package feed

import (
	"context"
	"errors"

	"github.com/showroom-auto/showroom/internal/domain"
)

// Event kinds
const (
	KindActivity   = "activity"
	KindCarChanged = "car.changed"
	KindCarRemoved = "car.removed"
	KindStats      = "stats"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker
var ErrClosed = errors.New("feed: broker closed")

// Event is one message on the feed
type Event struct {
	Kind     string           `json:"kind"`
	Activity *domain.Activity `json:"activity,omitempty"`
	CarID    string           `json:"car_id,omitempty"`
	Stats    *domain.Stats    `json:"stats,omitempty"`
}

// Broker publishes events to every current subscriber
type Broker interface {
	// Publish delivers e to subscribers without waiting on slow ones
	Publish(ctx context.Context, e Event) error

	// Subscribe returns a channel of events that is closed when ctx ends or the broker closes
	Subscribe(ctx context.Context) (<-chan Event, error)

	// Close ends every subscription
	Close() error
}

// ActivityEvents wraps an activity, adding the car event implied by its action
func ActivityEvents(a *domain.Activity) []Event {
	events := []Event{{Kind: KindActivity, Activity: a}}
	if a.SubjectType != domain.SubjectCar {
		return events
	}

	switch a.Action {
	case domain.ActionCarDeleted:
		events = append(events, Event{Kind: KindCarRemoved, CarID: a.SubjectID})
	default:
		events = append(events, Event{Kind: KindCarChanged, CarID: a.SubjectID})
	}
	return events
}
