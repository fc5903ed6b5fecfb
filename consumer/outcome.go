package consumer

import (
	"errors"
	"time"

	"github.com/mickamy/journeyoutbox/handlers"
)

// Status classifies a dispatch.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusDropped   Status = "dropped"
	StatusFailed    Status = "failed"
)

// Outcome is reported once per dispatched record.
type Outcome struct {
	Topic   string
	Status  Status
	Err     error
	Latency time.Duration
}

// Observer receives dispatch outcomes. Implementations must be safe for
// concurrent use; topics are dispatched in parallel.
type Observer interface {
	Observe(Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Outcome)

func (f ObserverFunc) Observe(o Outcome) { f(o) }

// MultiObserver fans an outcome out to every observer in order.
type MultiObserver []Observer

func (m MultiObserver) Observe(o Outcome) {
	for _, obs := range m {
		if obs != nil {
			obs.Observe(o)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Outcome) {}

// ErrHandlerPanic wraps a recovered handler panic.
var ErrHandlerPanic = errors.New("consumer: handler panicked")

func classify(err error) Status {
	if err == nil {
		return StatusProcessed
	}
	if _, ok := handlers.IsDrop(err); ok {
		return StatusDropped
	}
	return StatusFailed
}
