// Package consumer dispatches broker records to journey handlers. Every
// topic binding is registered on a Watermill router before it starts; a
// failing or panicking handler never stops consumption.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/mickamy/journeyoutbox/handlers"
)

var (
	ErrAlreadyRunning = errors.New("consumer: already running")
	ErrNoHandlers     = errors.New("consumer: no handlers registered")
	ErrDuplicateTopic = errors.New("consumer: topic already registered")
	ErrEmptyTopic     = errors.New("consumer: topic is required")
)

// SubscriberFactory connects to the broker. It is called once per Start.
type SubscriberFactory func(ctx context.Context) (message.Subscriber, error)

// Options configures a Consumer.
type Options struct {
	// ID prefixes router handler names. Defaults to a random id.
	ID string
	// Logger defaults to watermill.NopLogger.
	Logger watermill.LoggerAdapter
	// Observer receives one Outcome per record.
	Observer Observer
	// CloseTimeout bounds how long Stop waits for in-flight handlers. Defaults to 30s.
	CloseTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ID == "" {
		o.ID = randomConsumerID()
	}
	if o.Logger == nil {
		o.Logger = watermill.NopLogger{}
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = 30 * time.Second
	}
	return o
}

type binding struct {
	topic   string
	handler handlers.Handler
}

// Consumer owns the subscriber and router lifecycle.
type Consumer struct {
	factory SubscriberFactory
	opts    Options

	mu         sync.Mutex
	bindings   []binding
	running    bool
	router     *message.Router
	subscriber message.Subscriber
	done       chan struct{}
	runErr     error
}

func New(factory SubscriberFactory, opts Options) *Consumer {
	return &Consumer{
		factory: factory,
		opts:    opts.withDefaults(),
	}
}

// ID returns the consumer id used in handler names.
func (c *Consumer) ID() string {
	return c.opts.ID
}

// Register binds a topic to a handler. Bindings must be registered before Start.
func (c *Consumer) Register(topic string, h handlers.Handler) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if h == nil {
		return fmt.Errorf("consumer: handler for %q is nil", topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	for _, b := range c.bindings {
		if b.topic == topic {
			return fmt.Errorf("%w: %s", ErrDuplicateTopic, topic)
		}
	}
	c.bindings = append(c.bindings, binding{topic: topic, handler: h})
	return nil
}

// Start connects, registers every binding and starts the serving loop in the
// background. It returns once the router is running.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if len(c.bindings) == 0 {
		c.mu.Unlock()
		return ErrNoHandlers
	}
	router, sub, err := c.build(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	done := make(chan struct{})
	c.router, c.subscriber, c.done, c.running, c.runErr = router, sub, done, true, nil
	topics := len(c.bindings)
	c.mu.Unlock()

	go func() {
		err := router.Run(context.WithoutCancel(ctx))
		c.mu.Lock()
		c.runErr = err
		c.running = false
		c.mu.Unlock()
		close(done)
	}()

	c.opts.Logger.Info("Consumer starting", watermill.LogFields{"consumer_id": c.opts.ID, "topics": topics})
	select {
	case <-router.Running():
		return nil
	case <-done:
		return fmt.Errorf("consumer: router stopped during start: %w", c.Err())
	case <-ctx.Done():
		_ = router.Close()
		return ctx.Err()
	}
}

func (c *Consumer) build(ctx context.Context) (*message.Router, message.Subscriber, error) {
	sub, err := c.factory(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("consumer: connect: %w", err)
	}
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: c.opts.CloseTimeout}, c.opts.Logger)
	if err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("consumer: create router: %w", err)
	}
	for _, b := range c.bindings {
		router.AddNoPublisherHandler(c.opts.ID+"."+b.topic, b.topic, sub, c.dispatch(b.topic, b.handler))
	}
	return router, sub, nil
}

// Stop closes the router, letting in-flight handlers finish, then the
// subscriber. The subscriber is closed even when ctx expires first. It is a
// no-op when the consumer is not running.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	router, sub, done := c.router, c.subscriber, c.done
	c.mu.Unlock()

	closed := make(chan error, 1)
	go func() { closed <- router.Close() }()

	var routerErr error
	select {
	case routerErr = <-closed:
	case <-ctx.Done():
		return errors.Join(ctx.Err(), sub.Close())
	}
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(ctx.Err(), sub.Close())
	}
	return errors.Join(routerErr, sub.Close())
}

// Done is closed when the serving loop exits. It is nil before the first Start.
func (c *Consumer) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err returns the error the serving loop exited with, if any.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// dispatch adapts a handler to the router. It always acks: the outcome is
// reported to the observer and failures are logged, never returned.
func (c *Consumer) dispatch(topic string, h handlers.Handler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		start := time.Now()
		err := invoke(msg.Context(), h, handlers.Delivery{
			Topic:    topic,
			Payload:  msg.Payload,
			Metadata: msg.Metadata,
		})
		outcome := Outcome{Topic: topic, Status: classify(err), Err: err, Latency: time.Since(start)}
		c.opts.Observer.Observe(outcome)

		if outcome.Status == StatusFailed {
			c.opts.Logger.Error("Handler failed; message acknowledged", err, watermill.LogFields{
				"topic":        topic,
				"message_uuid": msg.UUID,
				"latency":      outcome.Latency.String(),
			})
		}
		return nil
	}
}

func invoke(ctx context.Context, h handlers.Handler, d handlers.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.Handle(ctx, d)
}
