package transport

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/mickamy/journeyoutbox/internal/config"
)

var KafkaSubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

// newKafkaSubscriber joins the consumer group. Watermill acks each record
// before fetching the next one of the same partition, which keeps
// per-partition order.
func newKafkaSubscriber(cfg config.KafkaConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	sarama := kafka.DefaultSaramaSubscriberConfig()
	if cfg.ClientID != "" {
		sarama.ClientID = cfg.ClientID
	}
	return KafkaSubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               cfg.Brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			ConsumerGroup:         cfg.ConsumerGroup,
			OverwriteSaramaConfig: sarama,
		},
		logger,
	)
}
