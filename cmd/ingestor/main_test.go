package main

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/mickamy/journeyoutbox/consumer"
	"github.com/mickamy/journeyoutbox/internal/config"
	"github.com/mickamy/journeyoutbox/stores"
	"github.com/mickamy/journeyoutbox/test/database"
)

func TestRegisterBindsEveryTopic(t *testing.T) {
	t.Parallel()
	db := database.OpenSQLite(t)
	store := stores.NewSQLiteStore(db)
	noBroker := func(context.Context) (message.Subscriber, error) { return nil, errors.New("no broker") }

	c := consumer.New(noBroker, consumer.Options{})
	if err := register(c, config.Default().Topics, db, store, zerolog.Nop()); err != nil {
		t.Fatalf("register error: %v", err)
	}
	if err := c.Register(config.Default().Topics.SegmentsConfirmed, nil); err == nil {
		t.Fatal("Register(nil handler) error = nil, want error")
	}

	same := config.TopicsConfig{JourneyCreated: "journeys", JourneyConfirmed: "journeys", SegmentsConfirmed: "segments"}
	if err := register(consumer.New(noBroker, consumer.Options{}), same, db, store, zerolog.Nop()); !errors.Is(err, consumer.ErrDuplicateTopic) {
		t.Fatalf("register with shared topic error = %v, want ErrDuplicateTopic", err)
	}
}

func TestStartMetricsServerDisabled(t *testing.T) {
	t.Parallel()
	if srv := startMetricsServer("", zerolog.Nop()); srv != nil {
		t.Fatalf("startMetricsServer(\"\") = %v, want nil", srv)
	}
}
