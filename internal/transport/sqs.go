package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/mickamy/journeyoutbox/internal/config"
)

var (
	AWSDefaultConfigLoader = awsconfig.LoadDefaultConfig
	SQSSubscriberFactory   = func(cfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return sqs.NewSubscriber(cfg, logger)
	}
)

// newSQSSubscriber consumes one queue per topic name. A custom endpoint
// (LocalStack) switches to static test credentials.
func newSQSSubscriber(ctx context.Context, cfg config.SQSConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return SQSSubscriberFactory(sqs.SubscriberConfig{
		AWSConfig: awsCfg,
		OptFns:    sqsOptions(cfg),
	}, logger)
}

func loadAWSConfig(ctx context.Context, cfg config.SQSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")))
	}
	awsCfg, err := AWSDefaultConfigLoader(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func sqsOptions(cfg config.SQSConfig) []func(*amazonsqs.Options) {
	if cfg.Endpoint == "" {
		return nil
	}
	return []func(*amazonsqs.Options){
		func(o *amazonsqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		},
	}
}
