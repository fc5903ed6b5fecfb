package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mickamy/journeyoutbox/consumer"
)

// Collector exports dispatch outcomes as Prometheus metrics.
type Collector struct {
	mu         sync.Mutex
	registered bool
	registerer prometheus.Registerer

	messagesTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

var _ consumer.Observer = (*Collector)(nil)

// NewCollector builds the collectors. A nil registerer uses the default registry.
func NewCollector(registerer prometheus.Registerer) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Collector{
		registerer: registerer,
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journeyoutbox",
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Records dispatched to a handler, by topic and outcome.",
		}, []string{"topic", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "journeyoutbox",
			Subsystem: "consumer",
			Name:      "handler_duration_seconds",
			Help:      "Time spent in a handler per record.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

// Register registers the collectors. Safe to call multiple times; collectors
// already registered elsewhere are reused.
func (c *Collector) Register() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered {
		return nil
	}

	var err error
	c.messagesTotal, err = registerOrReuse(c.registerer, c.messagesTotal)
	if err != nil {
		return err
	}
	c.duration, err = registerOrReuse(c.registerer, c.duration)
	if err != nil {
		return err
	}
	c.registered = true
	return nil
}

func registerOrReuse[T prometheus.Collector](r prometheus.Registerer, col T) (T, error) {
	if err := r.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, err
	}
	return col, nil
}

// Observe records one dispatch.
func (c *Collector) Observe(o consumer.Outcome) {
	c.messagesTotal.WithLabelValues(o.Topic, string(o.Status)).Inc()
	c.duration.WithLabelValues(o.Topic).Observe(o.Latency.Seconds())
}
