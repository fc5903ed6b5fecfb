// Package journeyoutbox persists travel-journey events and records a
// transactional outbox notification for every ingested journey.
package journeyoutbox

import "time"

// JourneyType distinguishes single and return journeys.
type JourneyType string

const (
	JourneySingle JourneyType = "single"
	JourneyReturn JourneyType = "return"
)

// Valid reports whether t is a known journey type.
func (t JourneyType) Valid() bool {
	return t == JourneySingle || t == JourneyReturn
}

// JourneyStatus is the lifecycle state of a journey. Transitions only move
// forward: draft -> confirmed, and cancelled is terminal.
type JourneyStatus string

const (
	StatusDraft     JourneyStatus = "draft"
	StatusConfirmed JourneyStatus = "confirmed"
	StatusCancelled JourneyStatus = "cancelled"
)

const (
	// AggregateJourney is the outbox aggregate type for journey rows.
	AggregateJourney = "journey"
	// EventJourneyConfirmed is the outbox event type emitted on ingestion.
	EventJourneyConfirmed = "journey.confirmed"
)

// Journey is a planned trip owned by a user.
type Journey struct {
	ID             string
	UserID         string
	OriginCRS      string
	DestinationCRS string
	DepartureAt    time.Time
	ArrivalAt      time.Time
	Type           JourneyType
	Status         JourneyStatus
	ConfirmedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Segment is one leg of a journey operated by a single train service.
type Segment struct {
	ID        string
	JourneyID string
	// Order is 1-based and unique per journey.
	Order          int
	RID            string
	TOC            string
	OriginCRS      string
	DestinationCRS string
	DepartureAt    time.Time
	ArrivalAt      time.Time
}
