package handlers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mickamy/journeyoutbox"
	"github.com/mickamy/journeyoutbox/handlers"
	"github.com/mickamy/journeyoutbox/stations"
)

func createdPayload(journeyID string, legs ...map[string]any) map[string]any {
	p := map[string]any{
		"journey_id":         journeyID,
		"user_id":            "user-1",
		"origin_crs":         "KGX",
		"destination_crs":    "YRK",
		"departure_datetime": "2024-06-01T09:30:00Z",
		"arrival_datetime":   "2024-06-01T11:25:00Z",
		"journey_type":       "single",
		"correlation_id":     "corr-payload",
	}
	if legs != nil {
		items := make([]any, len(legs))
		for i, l := range legs {
			items[i] = l
		}
		p["legs"] = items
	}
	return p
}

func kgxYorkLeg() map[string]any {
	return map[string]any{
		"from":      "London Kings Cross",
		"to":        "York",
		"departure": "09:30",
		"arrival":   "11:25",
		"operator":  "1:GW",
	}
}

func TestJourneyCreatedKingsCrossToYork(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewJourneyCreated(env.db, env.store, env.log)
	ctx := context.Background()
	id := uuid.NewString()

	err := h.Handle(ctx, handlers.Delivery{Topic: "journey.created", Payload: mustJSON(t, createdPayload(id, kgxYorkLeg()))})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	segs, err := env.store.Segments(ctx, id)
	if err != nil {
		t.Fatalf("Segments error: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("len(segments) = %d, want 1", len(segs))
	}
	seg := segs[0]
	if seg.OriginCRS != "KGX" || seg.DestinationCRS != "YRK" || seg.TOC != "GW" {
		t.Fatalf("segment = %+v, want KGX->YRK on GW", seg)
	}
	if seg.Order != 1 || seg.RID != "1:GW" || seg.ID != handlers.SegmentID(id, 1) {
		t.Fatalf("segment identity = (%d, %q, %q), want order 1 with operator as RID", seg.Order, seg.RID, seg.ID)
	}
	if want := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC); !seg.DepartureAt.Equal(want) {
		t.Fatalf("DepartureAt = %v, want %v", seg.DepartureAt, want)
	}

	events, err := env.store.OutboxEvents(ctx, id)
	if err != nil {
		t.Fatalf("OutboxEvents error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(outbox) = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.AggregateType != "journey" || ev.EventType != "journey.confirmed" {
		t.Fatalf("outbox row = %s/%s, want journey/journey.confirmed", ev.AggregateType, ev.EventType)
	}
	if ev.CorrelationID == nil || *ev.CorrelationID != "corr-payload" {
		t.Fatalf("CorrelationID = %v, want corr-payload", ev.CorrelationID)
	}
	var body handlers.JourneyPayload
	if err := ev.Decode(&body); err != nil {
		t.Fatalf("decode outbox payload: %v", err)
	}
	if body.TOCCode == nil || *body.TOCCode != "GW" {
		t.Fatalf("payload toc_code = %v, want GW", body.TOCCode)
	}
	if len(body.Segments) != 1 || body.Segments[0].OriginCRS != "KGX" || body.CorrelationID != "corr-payload" {
		t.Fatalf("payload = %+v, want one KGX segment mirror and correlation id", body)
	}

	j, err := env.store.GetJourney(ctx, env.db, id)
	if err != nil {
		t.Fatalf("GetJourney error: %v", err)
	}
	if j.Status != journeyoutbox.StatusDraft {
		t.Fatalf("Status = %q, want draft", j.Status)
	}
}

func TestJourneyCreatedSegmentCount(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 3} {
		env := newTestEnv(t)
		h := handlers.NewJourneyCreated(env.db, env.store, env.log)
		id := uuid.NewString()
		legs := make([]map[string]any, n)
		for i := range legs {
			legs[i] = kgxYorkLeg()
		}
		payload := createdPayload(id, legs...)
		if n == 0 {
			delete(payload, "legs")
		}

		if err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, payload)}); err != nil {
			t.Fatalf("Handle(%d legs) error: %v", n, err)
		}
		if got := env.count(t, "journey_segments", "journey_id", id); got != n {
			t.Fatalf("segments for %d legs = %d", n, got)
		}
		if got := env.count(t, "outbox", "aggregate_id", id); got != 1 {
			t.Fatalf("outbox rows for %d legs = %d, want 1", n, got)
		}
	}
}

func TestJourneyCreatedNoLegsHasNullTOC(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewJourneyCreated(env.db, env.store, env.log)
	id := uuid.NewString()
	if err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, createdPayload(id))}); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	events, err := env.store.OutboxEvents(context.Background(), id)
	if err != nil || len(events) != 1 {
		t.Fatalf("OutboxEvents = (%d, %v), want one row", len(events), err)
	}
	var body map[string]any
	if err := events[0].Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, ok := body["toc_code"]; !ok || v != nil {
		t.Fatalf("toc_code = %v (present %v), want explicit null", v, ok)
	}
	if segs, ok := body["segments"].([]any); !ok || len(segs) != 0 {
		t.Fatalf("segments = %v, want empty array", body["segments"])
	}
}

func TestJourneyCreatedRollsBackOnSegmentFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewJourneyCreated(env.db, failingStore{Store: env.store, failOrder: 2}, env.log)
	id := uuid.NewString()
	payload := createdPayload(id, kgxYorkLeg(), kgxYorkLeg(), kgxYorkLeg())

	err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, payload)})
	if !errors.Is(err, errInjected) {
		t.Fatalf("Handle error = %v, want injected failure", err)
	}
	if _, ok := handlers.IsDrop(err); ok {
		t.Fatalf("Handle error = %v, want persistence failure, not a drop", err)
	}
	for _, tc := range []struct{ table, column string }{
		{"journeys", "id"},
		{"journey_segments", "journey_id"},
		{"outbox", "aggregate_id"},
	} {
		if got := env.count(t, tc.table, tc.column, id); got != 0 {
			t.Fatalf("%s rows after rollback = %d, want 0", tc.table, got)
		}
	}
	if env.logLines("corr-payload") == 0 {
		t.Fatal("rollback log does not carry the correlation id")
	}

	// The pooled connection must have been released.
	if err := env.db.PingContext(context.Background()); err != nil {
		t.Fatalf("ping after rollback: %v", err)
	}
}

func TestJourneyCreatedRedelivery(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewJourneyCreated(env.db, env.store, env.log)
	id := uuid.NewString()
	payload := createdPayload(id, kgxYorkLeg(), kgxYorkLeg())

	for i := 0; i < 2; i++ {
		// A new correlation id per delivery must not defeat deduplication.
		d := handlers.Delivery{Payload: mustJSON(t, payload), Metadata: map[string]string{"correlation_id": uuid.NewString()}}
		if err := h.Handle(context.Background(), d); err != nil {
			t.Fatalf("Handle #%d error: %v", i+1, err)
		}
	}
	if got := env.count(t, "journeys", "id", id); got != 1 {
		t.Fatalf("journey rows = %d, want 1", got)
	}
	if got := env.count(t, "journey_segments", "journey_id", id); got != 2 {
		t.Fatalf("segment rows = %d, want 2", got)
	}
	if got := env.count(t, "outbox", "aggregate_id", id); got != 1 {
		t.Fatalf("outbox rows = %d, want 1", got)
	}

	payload["destination_crs"] = "EDB"
	if err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, payload)}); err != nil {
		t.Fatalf("Handle changed event error: %v", err)
	}
	if got := env.count(t, "outbox", "aggregate_id", id); got != 2 {
		t.Fatalf("outbox rows after change = %d, want 2", got)
	}
	j, err := env.store.GetJourney(context.Background(), env.db, id)
	if err != nil {
		t.Fatalf("GetJourney error: %v", err)
	}
	if j.DestinationCRS != "EDB" {
		t.Fatalf("DestinationCRS = %q, want EDB", j.DestinationCRS)
	}
}

func TestJourneyCreatedRedeliveryWithFewerLegs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewJourneyCreated(env.db, env.store, env.log)
	ctx := context.Background()
	id := uuid.NewString()

	if err := h.Handle(ctx, handlers.Delivery{Payload: mustJSON(t, createdPayload(id, kgxYorkLeg(), kgxYorkLeg(), kgxYorkLeg()))}); err != nil {
		t.Fatalf("Handle three legs error: %v", err)
	}
	if err := h.Handle(ctx, handlers.Delivery{Payload: mustJSON(t, createdPayload(id, kgxYorkLeg()))}); err != nil {
		t.Fatalf("Handle one leg error: %v", err)
	}

	segs, err := env.store.Segments(ctx, id)
	if err != nil {
		t.Fatalf("Segments error: %v", err)
	}
	if len(segs) != 1 || segs[0].Order != 1 {
		t.Fatalf("segments = %+v, want only order 1", segs)
	}

	events, err := env.store.OutboxEvents(ctx, id)
	if err != nil {
		t.Fatalf("OutboxEvents error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(outbox) = %d, want 2", len(events))
	}
	var latest handlers.JourneyPayload
	if err := events[len(events)-1].Decode(&latest); err != nil {
		t.Fatalf("decode outbox payload: %v", err)
	}
	if len(latest.Segments) != len(segs) {
		t.Fatalf("latest payload lists %d segments, committed rows = %d", len(latest.Segments), len(segs))
	}
}

func TestJourneyCreatedMissingOriginDropped(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewJourneyCreated(env.db, env.store, env.log)
	id := uuid.NewString()
	payload := createdPayload(id, kgxYorkLeg())
	delete(payload, "origin_crs")

	err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, payload)})
	wantDrop(t, err, handlers.DropValidation)

	if got := env.count(t, "journeys", "id", id); got != 0 {
		t.Fatalf("journey rows = %d, want 0", got)
	}
	if got := env.count(t, "outbox", "aggregate_id", id); got != 0 {
		t.Fatalf("outbox rows = %d, want 0", got)
	}
	if got := env.logLines(`"field":"origin_crs"`); got != 1 {
		t.Fatalf("validation log lines citing origin_crs = %d, want 1\n%s", got, env.logs.String())
	}
}

func TestJourneyCreatedValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{name: "lowercase crs", mutate: func(p map[string]any) { p["destination_crs"] = "yrk" }, field: "destination_crs"},
		{name: "impossible date", mutate: func(p map[string]any) { p["departure_datetime"] = "2024-02-30T09:00:00Z" }, field: "departure_datetime"},
		{name: "unknown type", mutate: func(p map[string]any) { p["journey_type"] = "open" }, field: "journey_type"},
		{name: "leg without operator", mutate: func(p map[string]any) {
			leg := kgxYorkLeg()
			delete(leg, "operator")
			p["legs"] = []any{kgxYorkLeg(), kgxYorkLeg(), leg}
		}, field: "legs[2].operator"},
		{name: "correlation id not a string", mutate: func(p map[string]any) { p["correlation_id"] = 7 }, field: "correlation_id"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			h := handlers.NewJourneyCreated(env.db, env.store, env.log)
			payload := createdPayload(uuid.NewString(), kgxYorkLeg())
			tt.mutate(payload)

			err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, payload)})
			wantDrop(t, err, handlers.DropValidation)
			if env.logLines(`"field":"`+tt.field+`"`) != 1 {
				t.Fatalf("log does not cite %s:\n%s", tt.field, env.logs.String())
			}
		})
	}
}

func TestJourneyCreatedCorrelationHeaderWins(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewJourneyCreated(env.db, env.store, env.log)
	id := uuid.NewString()
	d := handlers.Delivery{
		Payload:  mustJSON(t, createdPayload(id)),
		Metadata: map[string]string{"x-correlation-id": "corr-header"},
	}
	if err := h.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	events, err := env.store.OutboxEvents(context.Background(), id)
	if err != nil || len(events) != 1 {
		t.Fatalf("OutboxEvents = (%d, %v), want one row", len(events), err)
	}
	if got := events[0].CorrelationID; got == nil || *got != "corr-header" {
		t.Fatalf("CorrelationID = %v, want corr-header", got)
	}
}

func TestJourneyCreatedGeneratesCorrelationID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewJourneyCreated(env.db, env.store, env.log)
	id := uuid.NewString()
	payload := createdPayload(id)
	delete(payload, "correlation_id")
	if err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, payload)}); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	events, err := env.store.OutboxEvents(context.Background(), id)
	if err != nil || len(events) != 1 {
		t.Fatalf("OutboxEvents = (%d, %v), want one row", len(events), err)
	}
	if got := events[0].CorrelationID; got == nil || !isUUID(*got) {
		t.Fatalf("CorrelationID = %v, want generated UUID", got)
	}
}

func TestJourneyCreatedLegTimesAndStations(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewJourneyCreated(env.db, env.store, env.log)
	id := uuid.NewString()
	payload := createdPayload(id,
		map[string]any{"from": "York", "to": "Edinburgh", "departure": "23:10", "arrival": "00:40", "operator": "GR", "rid": "202406018800001"},
		map[string]any{"from": "Edinburgh", "to": "Nowhere Halt", "departure": "01:05", "arrival": "2024-06-02T02:00:00Z", "operator": "7:SR"},
	)
	if err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, payload)}); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	segs, err := env.store.Segments(context.Background(), id)
	if err != nil || len(segs) != 2 {
		t.Fatalf("Segments = (%d, %v), want 2", len(segs), err)
	}

	first, second := segs[0], segs[1]
	if want := time.Date(2024, 6, 2, 0, 40, 0, 0, time.UTC); !first.ArrivalAt.Equal(want) {
		t.Fatalf("first ArrivalAt = %v, want %v", first.ArrivalAt, want)
	}
	if first.RID != "202406018800001" || first.TOC != "GR" || first.DestinationCRS != "EDB" {
		t.Fatalf("first segment = %+v", first)
	}
	if want := time.Date(2024, 6, 2, 1, 5, 0, 0, time.UTC); !second.DepartureAt.Equal(want) {
		t.Fatalf("second DepartureAt = %v, want %v", second.DepartureAt, want)
	}
	if second.DestinationCRS != stations.Unresolved || second.TOC != "SR" || second.RID != "7:SR" {
		t.Fatalf("second segment = %+v, want unresolved destination on SR", second)
	}
	if env.logLines("Nowhere Halt") != 1 {
		t.Fatalf("unresolved station not logged:\n%s", env.logs.String())
	}
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
