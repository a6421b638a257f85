package events

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/fitlog/backend/internal/config"
	"go.uber.org/zap"
)

// NewPublisher builds the publisher selected by cfg.Driver.
// The returned close function releases driver resources and is never nil.
func NewPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) (Publisher, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case "", config.EventsDriverLog:
		return NewLogPublisher(logger), noop, nil
	case config.EventsDriverKafka:
		publisher, err := NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, noop, err
		}
		return publisher, publisher.Close, nil
	case config.EventsDriverSQS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("events: load aws config: %w", err)
		}
		publisher, err := NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL)
		if err != nil {
			return nil, noop, err
		}
		return publisher, noop, nil
	default:
		return nil, noop, fmt.Errorf("events: unsupported driver %q", cfg.Driver)
	}
}
