package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher constructs a LogPublisher. A nil logger discards events.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs event at info level.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info("domain event",
		zap.String("event_type", event.Type),
		zap.String("user_id", event.UserID),
		zap.String("entity_id", event.EntityID),
		zap.Time("occurred_at", event.OccurredAt),
		zap.Any("data", event.Data))
	return nil
}
