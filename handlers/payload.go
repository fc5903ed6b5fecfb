package handlers

import (
	"time"

	"github.com/mickamy/journeyoutbox"
)

// SegmentPayload mirrors one inserted segment inside the outbox payload.
type SegmentPayload struct {
	SegmentID          string    `json:"segment_id"`
	SegmentOrder       int       `json:"segment_order"`
	RID                string    `json:"rid"`
	TOCCode            string    `json:"toc_code"`
	OriginCRS          string    `json:"origin_crs"`
	DestinationCRS     string    `json:"destination_crs"`
	ScheduledDeparture time.Time `json:"scheduled_departure"`
	ScheduledArrival   time.Time `json:"scheduled_arrival"`
}

// JourneyPayload is the body of the journey.confirmed outbox event read by
// the relay.
type JourneyPayload struct {
	JourneyID         string           `json:"journey_id"`
	UserID            string           `json:"user_id"`
	OriginCRS         string           `json:"origin_crs"`
	DestinationCRS    string           `json:"destination_crs"`
	DepartureDatetime time.Time        `json:"departure_datetime"`
	ArrivalDatetime   time.Time        `json:"arrival_datetime"`
	JourneyType       string           `json:"journey_type"`
	TOCCode           *string          `json:"toc_code"`
	Segments          []SegmentPayload `json:"segments"`
	CorrelationID     string           `json:"correlation_id,omitempty"`
}

// outboxMessage builds the outbox row for an ingested journey. The key hashes
// the payload without its correlation id, so a redelivered event maps to the
// same row while a changed one gets a new row.
func outboxMessage(ev createdEvent, segments []journeyoutbox.Segment, correlationID string) (journeyoutbox.Message, error) {
	body := JourneyPayload{
		JourneyID:         ev.JourneyID,
		UserID:            ev.UserID,
		OriginCRS:         ev.OriginCRS,
		DestinationCRS:    ev.DestinationCRS,
		DepartureDatetime: ev.DepartureAt.UTC(),
		ArrivalDatetime:   ev.ArrivalAt.UTC(),
		JourneyType:       string(ev.Type),
		Segments:          make([]SegmentPayload, 0, len(segments)),
	}
	for _, seg := range segments {
		body.Segments = append(body.Segments, SegmentPayload{
			SegmentID:          seg.ID,
			SegmentOrder:       seg.Order,
			RID:                seg.RID,
			TOCCode:            seg.TOC,
			OriginCRS:          seg.OriginCRS,
			DestinationCRS:     seg.DestinationCRS,
			ScheduledDeparture: seg.DepartureAt.UTC(),
			ScheduledArrival:   seg.ArrivalAt.UTC(),
		})
	}
	if len(segments) > 0 {
		toc := segments[0].TOC
		body.TOCCode = &toc
	}

	key, err := journeyoutbox.ContentKey(journeyoutbox.EventJourneyConfirmed, ev.JourneyID, body)
	if err != nil {
		return journeyoutbox.Message{}, err
	}
	body.CorrelationID = correlationID

	return journeyoutbox.Message{
		AggregateType: journeyoutbox.AggregateJourney,
		AggregateID:   ev.JourneyID,
		EventType:     journeyoutbox.EventJourneyConfirmed,
		Key:           key,
		CorrelationID: correlationID,
		Body:          body,
	}, nil
}
