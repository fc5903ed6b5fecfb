// Package handlers turns inbound journey events into rows and outbox
// notifications. Each handler validates its payload before touching the
// database and reports unprocessable messages as a *DropError.
package handlers

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mickamy/journeyoutbox/internal/jsoncodec"
	"github.com/mickamy/journeyoutbox/validate"
)

// Delivery is one record received from the broker.
type Delivery struct {
	Topic    string
	Payload  []byte
	Metadata map[string]string
}

// Handler processes a single delivery.
type Handler interface {
	Handle(ctx context.Context, d Delivery) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d Delivery) error

func (f HandlerFunc) Handle(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

// CorrelationHeaders are checked in order before the payload field.
var CorrelationHeaders = []string{"correlation_id", "x-correlation-id"}

func decode(payload []byte) (validate.Fields, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return validate.Fields{}, ErrEmptyPayload
	}
	var obj map[string]any
	if err := jsoncodec.Unmarshal(payload, &obj); err != nil {
		return validate.Fields{}, err
	}
	if obj == nil {
		return validate.Fields{}, ErrNotAnObject
	}
	return validate.Object(obj), nil
}

// correlationID resolves header, then payload field, then a fresh UUID.
func correlationID(metadata map[string]string, f validate.Fields) string {
	for _, h := range CorrelationHeaders {
		if v := strings.TrimSpace(metadata[h]); v != "" {
			return v
		}
	}
	if r := f.OptionalString("correlation_id"); r.OK() && r.Value() != "" {
		return r.Value()
	}
	return uuid.NewString()
}
