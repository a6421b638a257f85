package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/fitlog/backend/internal/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, messages ...kafka.Message) error {
	w.messages = append(w.messages, messages...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeSender struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (s *fakeSender) SendMessage(_ context.Context, input *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.inputs = append(s.inputs, input)
	return &sqs.SendMessageOutput{}, s.err
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Event) error {
	return errors.New("broker unavailable")
}

var sampleEvent = Event{
	Type:       TypeDiaryEntryCreated,
	UserID:     "user-1",
	EntityID:   "entry-1",
	OccurredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	Data:       map[string]interface{}{"kind": "meal"},
}

func TestKafkaPublisherKeysByUser(t *testing.T) {
	writer := &fakeWriter{}
	publisher, err := newKafkaPublisher(writer)
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if err := publisher.Publish(context.Background(), sampleEvent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	message := writer.messages[0]
	if string(message.Key) != "user-1" {
		t.Fatalf("unexpected key %q", message.Key)
	}
	var decoded Event
	if err := json.Unmarshal(message.Value, &decoded); err != nil {
		t.Fatalf("message value is not json: %v", err)
	}
	if decoded.Type != TypeDiaryEntryCreated || decoded.EntityID != "entry-1" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestSQSPublisherSendsTypeAttribute(t *testing.T) {
	sender := &fakeSender{}
	publisher, err := newSQSPublisher(sender, "https://sqs.local/queue")
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if err := publisher.Publish(context.Background(), sampleEvent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	input := sender.inputs[0]
	if *input.QueueUrl != "https://sqs.local/queue" {
		t.Fatalf("unexpected queue url %s", *input.QueueUrl)
	}
	if *input.MessageAttributes["event_type"].StringValue != TypeDiaryEntryCreated {
		t.Fatalf("expected event type attribute")
	}

	if _, err := newSQSPublisher(sender, ""); !errors.Is(err, errMissingQueueURL) {
		t.Fatalf("expected missing queue url error, got %v", err)
	}
}

func TestEmitLogsFailuresWithoutReturning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	Emit(context.Background(), failingPublisher{}, zap.New(core), sampleEvent)

	entries := logs.FilterMessage("event publish failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(entries))
	}
	if entries[0].ContextMap()["event_type"] != TypeDiaryEntryCreated {
		t.Fatalf("expected event type field, got %v", entries[0].ContextMap())
	}

	Emit(context.Background(), nil, zap.New(core), sampleEvent)
}

func TestLogPublisherWritesInfoLine(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	publisher := NewLogPublisher(zap.New(core))
	if err := publisher.Publish(context.Background(), sampleEvent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if logs.FilterMessage("domain event").Len() != 1 {
		t.Fatalf("expected domain event log line")
	}
}

func TestNewPublisherSelectsDriver(t *testing.T) {
	publisher, closeFn, err := NewPublisher(context.Background(), config.EventsConfig{Driver: config.EventsDriverLog}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := publisher.(*LogPublisher); !ok {
		t.Fatalf("expected log publisher, got %T", publisher)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	publisher, _, err = NewPublisher(context.Background(), config.EventsConfig{Driver: config.EventsDriverKafka, KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "fitlog"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := publisher.(*KafkaPublisher); !ok {
		t.Fatalf("expected kafka publisher, got %T", publisher)
	}

	if _, _, err := NewPublisher(context.Background(), config.EventsConfig{Driver: "carrier-pigeon"}, nil); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestRecorderKeepsOrder(t *testing.T) {
	recorder := &Recorder{}
	Emit(context.Background(), recorder, nil, Event{Type: "a"})
	Emit(context.Background(), recorder, nil, Event{Type: "b"})
	types := recorder.Types()
	if len(types) != 2 || types[0] != "a" || types[1] != "b" {
		t.Fatalf("unexpected recorded types %v", types)
	}
	if recorder.Events()[0].OccurredAt.IsZero() {
		t.Fatalf("expected emit to stamp occurred_at")
	}
}
