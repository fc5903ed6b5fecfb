// Package transport builds the Watermill subscriber for the configured broker.
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/mickamy/journeyoutbox/internal/config"
)

// Factory creates a connected subscriber. The consumer calls it on Start.
type Factory func(ctx context.Context) (message.Subscriber, error)

// NewFactory returns a Factory for cfg.System.
func NewFactory(cfg config.BrokerConfig, logger watermill.LoggerAdapter) (Factory, error) {
	switch strings.ToLower(cfg.System) {
	case "kafka":
		return func(context.Context) (message.Subscriber, error) {
			return newKafkaSubscriber(cfg.Kafka, logger)
		}, nil
	case "sqs":
		return func(ctx context.Context) (message.Subscriber, error) {
			return newSQSSubscriber(ctx, cfg.SQS, logger)
		}, nil
	case "gochannel":
		return GoChannel(gochannel.NewGoChannel(gochannel.Config{Persistent: true}, logger)), nil
	default:
		return nil, fmt.Errorf("transport: unsupported broker %q", cfg.System)
	}
}

// GoChannel wraps an in-memory pub/sub so tests and local runs can publish to it.
func GoChannel(pubSub *gochannel.GoChannel) Factory {
	return func(context.Context) (message.Subscriber, error) {
		return pubSub, nil
	}
}
