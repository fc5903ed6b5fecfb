package handlers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/mickamy/journeyoutbox"
	"github.com/mickamy/journeyoutbox/handlers"
)

func segmentItem(order int) map[string]any {
	return map[string]any{
		"segment_id":          uuid.NewString(),
		"segment_order":       order,
		"rid":                 "20240601765432" + string(rune('0'+order)),
		"toc_code":            "GR",
		"origin_crs":          "KGX",
		"destination_crs":     "YRK",
		"scheduled_departure": "2024-06-01T09:30:00Z",
		"scheduled_arrival":   "2024-06-01T11:25:00Z",
	}
}

func segmentsPayload(journeyID string, items ...map[string]any) map[string]any {
	segs := make([]any, len(items))
	for i, it := range items {
		segs[i] = it
	}
	return map[string]any{
		"journey_id":   journeyID,
		"user_id":      "user-1",
		"confirmed_at": "2024-05-30T12:00:00Z",
		"segments":     segs,
	}
}

func TestSegmentsConfirmedInsertsBatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewSegmentsConfirmed(env.db, env.store, env.log)
	id := seedJourney(t, env, journeyoutbox.StatusConfirmed)
	payload := mustJSON(t, segmentsPayload(id, segmentItem(2), segmentItem(1), segmentItem(3)))

	for i := 0; i < 2; i++ {
		if err := h.Handle(context.Background(), handlers.Delivery{Topic: "segments.confirmed", Payload: payload}); err != nil {
			t.Fatalf("Handle #%d error: %v", i+1, err)
		}
	}
	segs, err := env.store.Segments(context.Background(), id)
	if err != nil {
		t.Fatalf("Segments error: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("len(segments) = %d, want 3", len(segs))
	}
	for i, seg := range segs {
		if seg.Order != i+1 || seg.TOC != "GR" {
			t.Fatalf("segment %d = %+v", i, seg)
		}
	}
	if env.logLines("segment already recorded") != 3 {
		t.Fatalf("duplicate skips not logged:\n%s", env.logs.String())
	}
}

func TestSegmentsConfirmedRejectsBatch(t *testing.T) {
	t.Parallel()
	badTOC := segmentItem(2)
	badTOC["toc_code"] = "G"
	zeroOrder := segmentItem(1)
	zeroOrder["segment_order"] = 0
	noRID := segmentItem(1)
	delete(noRID, "rid")

	tests := []struct {
		name  string
		items []map[string]any
		field string
	}{
		{name: "gap in orders", items: []map[string]any{segmentItem(1), segmentItem(3)}, field: "segments"},
		{name: "repeated order", items: []map[string]any{segmentItem(1), segmentItem(1)}, field: "segments"},
		{name: "not starting at one", items: []map[string]any{segmentItem(2), segmentItem(3)}, field: "segments"},
		{name: "empty", items: nil, field: "segments"},
		{name: "bad toc", items: []map[string]any{segmentItem(1), badTOC}, field: "segments[1].toc_code"},
		{name: "order below one", items: []map[string]any{zeroOrder}, field: "segments[0].segment_order"},
		{name: "missing rid", items: []map[string]any{noRID}, field: "segments[0].rid"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			h := handlers.NewSegmentsConfirmed(env.db, env.store, env.log)
			id := seedJourney(t, env, journeyoutbox.StatusConfirmed)

			err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, segmentsPayload(id, tt.items...))})
			wantDrop(t, err, handlers.DropValidation)
			if got := env.count(t, "journey_segments", "journey_id", id); got != 0 {
				t.Fatalf("segment rows = %d, want 0", got)
			}
			if env.logLines(`"field":"`+tt.field+`"`) != 1 {
				t.Fatalf("log does not cite %s:\n%s", tt.field, env.logs.String())
			}
		})
	}
}

func TestSegmentsConfirmedRequiresConfirmedJourney(t *testing.T) {
	t.Parallel()
	for _, status := range []journeyoutbox.JourneyStatus{journeyoutbox.StatusDraft, journeyoutbox.StatusCancelled} {
		env := newTestEnv(t)
		h := handlers.NewSegmentsConfirmed(env.db, env.store, env.log)
		id := seedJourney(t, env, status)
		err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, segmentsPayload(id, segmentItem(1)))})
		wantDrop(t, err, handlers.DropReferential)
		if !errors.Is(err, handlers.ErrJourneyNotConfirmed) {
			t.Fatalf("Handle error = %v, want ErrJourneyNotConfirmed", err)
		}
		if got := env.count(t, "journey_segments", "journey_id", id); got != 0 {
			t.Fatalf("segment rows for %s journey = %d, want 0", status, got)
		}
	}

	env := newTestEnv(t)
	h := handlers.NewSegmentsConfirmed(env.db, env.store, env.log)
	err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, segmentsPayload(uuid.NewString(), segmentItem(1)))})
	if !errors.Is(err, journeyoutbox.ErrJourneyNotFound) {
		t.Fatalf("Handle error = %v, want ErrJourneyNotFound", err)
	}
}

func TestSegmentsConfirmedSkipsFailedRow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewSegmentsConfirmed(env.db, failingStore{Store: env.store, failOrder: 2}, env.log)
	id := seedJourney(t, env, journeyoutbox.StatusConfirmed)

	err := h.Handle(context.Background(), handlers.Delivery{Payload: mustJSON(t, segmentsPayload(id, segmentItem(1), segmentItem(2), segmentItem(3)))})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	segs, err := env.store.Segments(context.Background(), id)
	if err != nil {
		t.Fatalf("Segments error: %v", err)
	}
	if len(segs) != 2 || segs[0].Order != 1 || segs[1].Order != 3 {
		t.Fatalf("segments = %+v, want orders 1 and 3", segs)
	}
	if env.logLines(errInjected.Error()) != 1 {
		t.Fatalf("failed row not logged:\n%s", env.logs.String())
	}
}

func TestSegmentsConfirmedForeignSegmentIDIsNotDuplicate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	h := handlers.NewSegmentsConfirmed(env.db, env.store, env.log)
	ctx := context.Background()
	first := seedJourney(t, env, journeyoutbox.StatusConfirmed)
	second := seedJourney(t, env, journeyoutbox.StatusConfirmed)

	item := segmentItem(1)
	if err := h.Handle(ctx, handlers.Delivery{Payload: mustJSON(t, segmentsPayload(first, item))}); err != nil {
		t.Fatalf("Handle first journey error: %v", err)
	}
	if err := h.Handle(ctx, handlers.Delivery{Payload: mustJSON(t, segmentsPayload(second, item))}); err != nil {
		t.Fatalf("Handle second journey error: %v", err)
	}

	if got := env.count(t, "journey_segments", "journey_id", second); got != 0 {
		t.Fatalf("second journey segment rows = %d, want 0", got)
	}
	if env.logLines("segment already recorded") != 0 || env.logLines("segment insert failed") != 1 {
		t.Fatalf("id clash with another journey not logged as a failure:\n%s", env.logs.String())
	}
}
