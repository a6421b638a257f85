package events

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

var errMissingQueueURL = errors.New("events: sqs queue url is required")

type messageSender interface {
	SendMessage(ctx context.Context, input *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends events to an SQS queue.
type SQSPublisher struct {
	client   messageSender
	queueURL string
}

// NewSQSPublisher constructs a publisher for queueURL.
func NewSQSPublisher(client *sqs.Client, queueURL string) (*SQSPublisher, error) {
	return newSQSPublisher(client, queueURL)
}

func newSQSPublisher(client messageSender, queueURL string) (*SQSPublisher, error) {
	if queueURL == "" {
		return nil, errMissingQueueURL
	}
	if client == nil {
		return nil, errors.New("events: sqs client is required")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}, nil
}

// Publish sends event as the message body with its type as a message attribute.
func (p *SQSPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := event.encode()
	if err != nil {
		return err
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(event.Type)},
		},
	})
	return err
}
