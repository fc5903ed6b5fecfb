package journeyoutbox

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mickamy/journeyoutbox/internal/jsoncodec"
)

// Message represents an outbox event queued inside a DB transaction.
type Message struct {
	// AggregateType names the kind of entity the event describes (e.g. "journey").
	AggregateType string
	// AggregateID is the id of the entity the event describes.
	AggregateID string
	// EventType identifies the logical event (e.g. "journey.confirmed").
	EventType string
	// Key optionally deduplicates rows; a second insert with the same key is skipped.
	Key string
	// CorrelationID ties the row back to the inbound message that produced it.
	CorrelationID string
	// Body is the user payload that will be marshaled to JSON.
	Body any
}

// validate ensures the minimal contract for inserting an outbox row.
func (m Message) validate() error {
	if m.AggregateType == "" {
		return errors.New("journeyoutbox: aggregate type is required")
	}
	if m.AggregateID == "" {
		return errors.New("journeyoutbox: aggregate id is required")
	}
	if m.EventType == "" {
		return errors.New("journeyoutbox: event type is required")
	}
	if m.Body == nil {
		return errors.New("journeyoutbox: body is required")
	}
	return nil
}

// MarshalPayload turns the body into JSON for storage.
func (m Message) MarshalPayload() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	payload, err := jsoncodec.Marshal(m.Body)
	if err != nil {
		return nil, fmt.Errorf("journeyoutbox: failed to marshal payload: %w", err)
	}
	return payload, nil
}

// ContentKey derives a deterministic idempotency key from the event identity
// and a payload that must not contain per-delivery values.
func ContentKey(eventType, aggregateID string, stable any) (string, error) {
	body, err := jsoncodec.Marshal(stable)
	if err != nil {
		return "", fmt.Errorf("journeyoutbox: failed to marshal key material: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(eventType))
	h.Write([]byte{0})
	h.Write([]byte(aggregateID))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// OutboxEvent is a committed outbox row as read back from the store.
type OutboxEvent struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CorrelationID *string
	CreatedAt     time.Time
	// ProcessedAt is owned by the external relay and never written here.
	ProcessedAt *time.Time
}

// Decode unmarshals the payload into the provided destination.
func (e OutboxEvent) Decode(dest any) error {
	return jsoncodec.Unmarshal(e.Payload, dest)
}
