// Package metrics exposes consumer outcomes through expvar and Prometheus.
package metrics

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mickamy/journeyoutbox/consumer"
)

type counters struct {
	processed atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
	latencyNs atomic.Int64
}

func (c *counters) add(o consumer.Outcome) {
	switch o.Status {
	case consumer.StatusProcessed:
		c.processed.Add(1)
	case consumer.StatusDropped:
		c.dropped.Add(1)
	case consumer.StatusFailed:
		c.failed.Add(1)
	}
	c.latencyNs.Add(o.Latency.Nanoseconds())
}

func (c *counters) snapshot() map[string]int64 {
	return map[string]int64{
		"processed":  c.processed.Load(),
		"dropped":    c.dropped.Load(),
		"failed":     c.failed.Load(),
		"latency_ns": c.latencyNs.Load(),
	}
}

// StatsHook publishes per-topic and aggregate dispatch counters via expvar.
type StatsHook struct {
	total counters

	mu     sync.RWMutex
	topics map[string]*counters
}

var _ consumer.Observer = (*StatsHook)(nil)

// NewStatsHook registers an expvar entry named "<prefix>_consumer_stats".
// expvar names are process-global, so each prefix may be used once.
func NewStatsHook(prefix string) *StatsHook {
	if prefix == "" {
		prefix = "journeyoutbox"
	}
	h := &StatsHook{topics: make(map[string]*counters)}
	expvar.Publish(fmt.Sprintf("%s_consumer_stats", prefix), expvar.Func(func() any {
		return h.snapshot()
	}))
	return h
}

// Observe records one dispatch.
func (h *StatsHook) Observe(o consumer.Outcome) {
	h.total.add(o)
	h.topic(o.Topic).add(o)
}

func (h *StatsHook) topic(name string) *counters {
	h.mu.RLock()
	c, ok := h.topics[name]
	h.mu.RUnlock()
	if ok {
		return c
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.topics[name]; ok {
		return c
	}
	c = &counters{}
	h.topics[name] = c
	return c
}

func (h *StatsHook) snapshot() map[string]any {
	h.mu.RLock()
	topics := make(map[string]map[string]int64, len(h.topics))
	for name, c := range h.topics {
		topics[name] = c.snapshot()
	}
	h.mu.RUnlock()

	return map[string]any{
		"total":  h.total.snapshot(),
		"topics": topics,
	}
}
