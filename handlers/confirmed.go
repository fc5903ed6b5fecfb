package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mickamy/journeyoutbox"
	"github.com/mickamy/journeyoutbox/validate"
)

// JourneyConfirmed handles journey.confirmed by moving a draft journey to
// confirmed. Redelivery and confirmation of cancelled journeys change nothing.
type JourneyConfirmed struct {
	db    *sql.DB
	store journeyoutbox.Store
	log   zerolog.Logger
}

func NewJourneyConfirmed(db *sql.DB, store journeyoutbox.Store, log zerolog.Logger) *JourneyConfirmed {
	return &JourneyConfirmed{db: db, store: store, log: log}
}

type confirmedEvent struct {
	JourneyID   string
	UserID      string
	ConfirmedAt time.Time
}

func parseConfirmed(f validate.Fields) validate.Result[confirmedEvent] {
	id := f.UUID("journey_id")
	if !id.OK() {
		return validate.Forward[confirmedEvent](id)
	}
	user := f.String("user_id")
	if !user.OK() {
		return validate.Forward[confirmedEvent](user)
	}
	at := f.DateTime("confirmed_at")
	if !at.OK() {
		return validate.Forward[confirmedEvent](at)
	}
	if r := f.OptionalString("correlation_id"); !r.OK() {
		return validate.Forward[confirmedEvent](r)
	}
	return validate.Valid(confirmedEvent{JourneyID: id.Value(), UserID: user.Value(), ConfirmedAt: at.Value()})
}

func (h *JourneyConfirmed) Handle(ctx context.Context, d Delivery) error {
	log := h.log.With().Str("topic", d.Topic).Logger()

	f, err := decode(d.Payload)
	if err != nil {
		log.Warn().Err(err).Msg("dropping unparseable journey.confirmed payload")
		return Drop(DropParse, err)
	}
	log = log.With().Str("correlation_id", correlationID(d.Metadata, f)).Logger()

	parsed := parseConfirmed(f)
	if !parsed.OK() {
		log.Warn().Str("field", parsed.Field()).Err(parsed.Err()).Msg("dropping invalid journey.confirmed event")
		return Drop(DropValidation, parsed.Err())
	}
	ev := parsed.Value()
	log = log.With().Str("journey_id", ev.JourneyID).Logger()

	j, err := h.store.GetJourney(ctx, h.db, ev.JourneyID)
	if errors.Is(err, journeyoutbox.ErrJourneyNotFound) {
		log.Warn().Msg("dropping confirmation for unknown journey")
		return Drop(DropReferential, err)
	}
	if err != nil {
		return fmt.Errorf("load journey: %w", err)
	}

	switch j.Status {
	case journeyoutbox.StatusConfirmed:
		log.Info().Msg("journey already confirmed")
		return nil
	case journeyoutbox.StatusCancelled:
		log.Warn().Str("status", string(j.Status)).Msg("invalid transition; cancelled journeys stay cancelled")
		return Drop(DropReferential, ErrInvalidTransition)
	}
	if j.UserID != ev.UserID {
		log.Warn().Str("user_id", ev.UserID).Msg("dropping confirmation from a user who does not own the journey")
		return Drop(DropReferential, ErrOwnerMismatch)
	}

	updated, err := h.store.ConfirmJourney(ctx, h.db, ev.JourneyID, ev.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("confirm journey: %w", err)
	}
	if !updated {
		log.Info().Msg("journey left draft before confirmation applied")
		return nil
	}
	log.Info().Msg("journey confirmed")
	return nil
}
