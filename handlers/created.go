package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mickamy/journeyoutbox"
	"github.com/mickamy/journeyoutbox/stations"
	"github.com/mickamy/journeyoutbox/validate"
)

// segmentNamespace seeds the deterministic segment ids of ingested legs.
var segmentNamespace = uuid.MustParse("6f1d0a8e-3c2b-5e4f-9a7d-1b2c3d4e5f60")

// SegmentID returns the id given to the leg at order of a journey.
func SegmentID(journeyID string, order int) string {
	return uuid.NewSHA1(segmentNamespace, []byte(journeyID+"/"+strconv.Itoa(order))).String()
}

// JourneyCreated handles journey.created. It writes the journey, its legs as
// segments and one outbox row in a single transaction.
type JourneyCreated struct {
	db    *sql.DB
	store journeyoutbox.Store
	log   zerolog.Logger
}

func NewJourneyCreated(db *sql.DB, store journeyoutbox.Store, log zerolog.Logger) *JourneyCreated {
	return &JourneyCreated{db: db, store: store, log: log}
}

type createdEvent struct {
	JourneyID      string
	UserID         string
	OriginCRS      string
	DestinationCRS string
	DepartureAt    time.Time
	ArrivalAt      time.Time
	Type           journeyoutbox.JourneyType
	Legs           []validate.Leg
}

func parseCreated(f validate.Fields) validate.Result[createdEvent] {
	var ev createdEvent
	for _, field := range []struct {
		dst *string
		r   validate.Result[string]
	}{
		{&ev.JourneyID, f.String("journey_id")},
		{&ev.UserID, f.String("user_id")},
		{&ev.OriginCRS, f.CRS("origin_crs")},
		{&ev.DestinationCRS, f.CRS("destination_crs")},
	} {
		if !field.r.OK() {
			return validate.Forward[createdEvent](field.r)
		}
		*field.dst = field.r.Value()
	}

	dep := f.DateTime("departure_datetime")
	if !dep.OK() {
		return validate.Forward[createdEvent](dep)
	}
	arr := f.DateTime("arrival_datetime")
	if !arr.OK() {
		return validate.Forward[createdEvent](arr)
	}
	ev.DepartureAt, ev.ArrivalAt = dep.Value(), arr.Value()

	typ := f.String("journey_type")
	if !typ.OK() {
		return validate.Forward[createdEvent](typ)
	}
	ev.Type = journeyoutbox.JourneyType(typ.Value())
	if !ev.Type.Valid() {
		return validate.Invalid[createdEvent](f.Path("journey_type"), "must be single or return")
	}

	if r := f.OptionalString("correlation_id"); !r.OK() {
		return validate.Forward[createdEvent](r)
	}

	legs := validate.Legs(f)
	if !legs.OK() {
		return validate.Forward[createdEvent](legs)
	}
	ev.Legs = legs.Value()
	return validate.Valid(ev)
}

func (h *JourneyCreated) Handle(ctx context.Context, d Delivery) error {
	log := h.log.With().Str("topic", d.Topic).Logger()

	f, err := decode(d.Payload)
	if err != nil {
		log.Warn().Err(err).Msg("dropping unparseable journey.created payload")
		return Drop(DropParse, err)
	}
	corr := correlationID(d.Metadata, f)
	log = log.With().Str("correlation_id", corr).Logger()

	parsed := parseCreated(f)
	if !parsed.OK() {
		log.Warn().Str("field", parsed.Field()).Err(parsed.Err()).Msg("dropping invalid journey.created event")
		return Drop(DropValidation, parsed.Err())
	}
	ev := parsed.Value()
	log = log.With().Str("journey_id", ev.JourneyID).Logger()

	segments := h.segments(log, ev)
	msg, err := outboxMessage(ev, segments, corr)
	if err != nil {
		log.Error().Err(err).Msg("failed to build outbox message")
		return err
	}

	if err := h.persist(ctx, log, ev, segments, msg); err != nil {
		log.Error().Err(err).Msg("journey ingestion rolled back")
		return err
	}
	log.Info().Int("segments", len(segments)).Msg("journey ingested")
	return nil
}

func (h *JourneyCreated) persist(ctx context.Context, log zerolog.Logger, ev createdEvent, segments []journeyoutbox.Segment, msg journeyoutbox.Message) error {
	conn, err := h.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := h.store.UpsertJourney(ctx, tx, journeyoutbox.Journey{
		ID:             ev.JourneyID,
		UserID:         ev.UserID,
		OriginCRS:      ev.OriginCRS,
		DestinationCRS: ev.DestinationCRS,
		DepartureAt:    ev.DepartureAt,
		ArrivalAt:      ev.ArrivalAt,
		Type:           ev.Type,
		Status:         journeyoutbox.StatusDraft,
	}); err != nil {
		return fmt.Errorf("upsert journey: %w", err)
	}
	for _, seg := range segments {
		if err := h.store.UpsertSegment(ctx, tx, seg); err != nil {
			return fmt.Errorf("upsert segment %d: %w", seg.Order, err)
		}
	}
	if err := h.store.DeleteSegmentsAfter(ctx, tx, ev.JourneyID, len(segments)); err != nil {
		return fmt.Errorf("delete stale segments: %w", err)
	}
	inserted, err := h.store.AddOutbox(ctx, tx, msg)
	if err != nil {
		return fmt.Errorf("add outbox event: %w", err)
	}
	if !inserted {
		log.Debug().Str("key", msg.Key).Msg("outbox event already recorded for this journey version")
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// segments maps legs to segment rows. Clock times are placed on the journey's
// departure date and roll to the next day whenever they would run backwards.
func (h *JourneyCreated) segments(log zerolog.Logger, ev createdEvent) []journeyoutbox.Segment {
	out := make([]journeyoutbox.Segment, 0, len(ev.Legs))
	day := ev.DepartureAt.UTC()
	var prev time.Time
	for i, leg := range ev.Legs {
		order := i + 1
		origin := h.resolve(log, order, leg.From)
		dest := h.resolve(log, order, leg.To)

		dep := onOrAfter(leg.Departure, day, prev)
		arr := onOrAfter(leg.Arrival, day, dep)
		prev = arr

		rid := leg.RID
		if rid == "" {
			rid = leg.Operator
		}
		out = append(out, journeyoutbox.Segment{
			ID:             SegmentID(ev.JourneyID, order),
			JourneyID:      ev.JourneyID,
			Order:          order,
			RID:            rid,
			TOC:            leg.TOC,
			OriginCRS:      origin,
			DestinationCRS: dest,
			DepartureAt:    dep,
			ArrivalAt:      arr,
		})
	}
	return out
}

func (h *JourneyCreated) resolve(log zerolog.Logger, order int, name string) string {
	code, ok := stations.Resolve(name)
	if !ok {
		log.Warn().Int("segment_order", order).Str("station", name).Msg("station name unresolved")
	}
	return code
}

func onOrAfter(lt validate.LegTime, day, floor time.Time) time.Time {
	t := lt.On(day)
	if lt.Absolute == nil && !floor.IsZero() && t.Before(floor) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
