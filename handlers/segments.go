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

// SegmentsConfirmed handles segments.confirmed. The batch must be ordered
// 1..n; each segment is then inserted on its own so one bad row does not
// block the others.
type SegmentsConfirmed struct {
	db    *sql.DB
	store journeyoutbox.Store
	log   zerolog.Logger
}

func NewSegmentsConfirmed(db *sql.DB, store journeyoutbox.Store, log zerolog.Logger) *SegmentsConfirmed {
	return &SegmentsConfirmed{db: db, store: store, log: log}
}

type segmentsEvent struct {
	JourneyID   string
	UserID      string
	ConfirmedAt time.Time
	Segments    []journeyoutbox.Segment
}

func parseSegments(f validate.Fields) validate.Result[segmentsEvent] {
	id := f.UUID("journey_id")
	if !id.OK() {
		return validate.Forward[segmentsEvent](id)
	}
	user := f.String("user_id")
	if !user.OK() {
		return validate.Forward[segmentsEvent](user)
	}
	at := f.DateTime("confirmed_at")
	if !at.OK() {
		return validate.Forward[segmentsEvent](at)
	}
	if r := f.OptionalString("correlation_id"); !r.OK() {
		return validate.Forward[segmentsEvent](r)
	}
	items := f.Objects("segments", true)
	if !items.OK() {
		return validate.Forward[segmentsEvent](items)
	}
	if len(items.Value()) == 0 {
		return validate.Invalid[segmentsEvent](f.Path("segments"), "must not be empty")
	}

	ev := segmentsEvent{JourneyID: id.Value(), UserID: user.Value(), ConfirmedAt: at.Value()}
	orders := make([]int, 0, len(items.Value()))
	for _, item := range items.Value() {
		seg := parseSegment(item, ev.JourneyID)
		if !seg.OK() {
			return validate.Forward[segmentsEvent](seg)
		}
		ev.Segments = append(ev.Segments, seg.Value())
		orders = append(orders, seg.Value().Order)
	}
	if !validate.Contiguous(orders) {
		return validate.Invalid[segmentsEvent](f.Path("segments"), ErrNonContiguousOrder.Error())
	}
	return validate.Valid(ev)
}

func parseSegment(f validate.Fields, journeyID string) validate.Result[journeyoutbox.Segment] {
	seg := journeyoutbox.Segment{JourneyID: journeyID}

	id := f.UUID("segment_id")
	if !id.OK() {
		return validate.Forward[journeyoutbox.Segment](id)
	}
	seg.ID = id.Value()

	order := f.PositiveInt("segment_order")
	if !order.OK() {
		return validate.Forward[journeyoutbox.Segment](order)
	}
	seg.Order = order.Value()

	for _, field := range []struct {
		dst *string
		r   validate.Result[string]
	}{
		{&seg.RID, f.String("rid")},
		{&seg.TOC, f.TOC("toc_code")},
		{&seg.OriginCRS, f.CRS("origin_crs")},
		{&seg.DestinationCRS, f.CRS("destination_crs")},
	} {
		if !field.r.OK() {
			return validate.Forward[journeyoutbox.Segment](field.r)
		}
		*field.dst = field.r.Value()
	}

	dep := f.DateTime("scheduled_departure")
	if !dep.OK() {
		return validate.Forward[journeyoutbox.Segment](dep)
	}
	arr := f.DateTime("scheduled_arrival")
	if !arr.OK() {
		return validate.Forward[journeyoutbox.Segment](arr)
	}
	seg.DepartureAt, seg.ArrivalAt = dep.Value(), arr.Value()
	return validate.Valid(seg)
}

func (h *SegmentsConfirmed) Handle(ctx context.Context, d Delivery) error {
	log := h.log.With().Str("topic", d.Topic).Logger()

	f, err := decode(d.Payload)
	if err != nil {
		log.Warn().Err(err).Msg("dropping unparseable segments.confirmed payload")
		return Drop(DropParse, err)
	}
	log = log.With().Str("correlation_id", correlationID(d.Metadata, f)).Logger()

	parsed := parseSegments(f)
	if !parsed.OK() {
		log.Warn().Str("field", parsed.Field()).Err(parsed.Err()).Msg("dropping invalid segments.confirmed batch")
		return Drop(DropValidation, parsed.Err())
	}
	ev := parsed.Value()
	log = log.With().Str("journey_id", ev.JourneyID).Logger()

	j, err := h.store.GetJourney(ctx, h.db, ev.JourneyID)
	if errors.Is(err, journeyoutbox.ErrJourneyNotFound) {
		log.Warn().Msg("dropping segments for unknown journey")
		return Drop(DropReferential, err)
	}
	if err != nil {
		return fmt.Errorf("load journey: %w", err)
	}
	if j.Status != journeyoutbox.StatusConfirmed {
		log.Warn().Str("status", string(j.Status)).Msg("dropping segments for unconfirmed journey")
		return Drop(DropReferential, ErrJourneyNotConfirmed)
	}

	var inserted, duplicates, failed int
	for _, seg := range ev.Segments {
		err := h.store.InsertSegment(ctx, h.db, seg)
		switch {
		case err == nil:
			inserted++
		case errors.Is(err, journeyoutbox.ErrDuplicateSegment):
			duplicates++
			log.Info().Int("segment_order", seg.Order).Msg("segment already recorded; skipping")
		default:
			failed++
			log.Error().Err(err).Int("segment_order", seg.Order).Str("segment_id", seg.ID).Msg("segment insert failed; skipping row")
		}
	}
	log.Info().
		Int("inserted", inserted).
		Int("duplicates", duplicates).
		Int("failed", failed).
		Msg("segments batch applied")
	return nil
}
