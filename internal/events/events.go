// Package events publishes domain events to a log, Kafka topic or SQS queue.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types emitted by the domain services.
const (
	TypeDiaryEntryCreated   = "diary.entry_created"
	TypeDiaryEntryDeleted   = "diary.entry_deleted"
	TypeFriendRequestSent   = "friend.request_sent"
	TypeFriendRequestAccept = "friend.request_accepted"
	TypeFriendRemoved       = "friend.removed"
	TypeChatMessageSent     = "chat.message_sent"
	TypeUserRegistered      = "user.registered"
	TypeUserDeleted         = "user.deleted"
)

// Event is one domain occurrence.
type Event struct {
	Type       string                 `json:"type"`
	UserID     string                 `json:"user_id"`
	EntityID   string                 `json:"entity_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Emit publishes event and logs, rather than returns, any failure.
func Emit(ctx context.Context, publisher Publisher, logger *zap.Logger, event Event) {
	if publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := publisher.Publish(ctx, event); err != nil && logger != nil {
		logger.Warn("event publish failed",
			zap.String("event_type", event.Type),
			zap.String("user_id", event.UserID),
			zap.String("entity_id", event.EntityID),
			zap.Error(err))
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish appends event.
func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of every recorded event in order.
func (r *Recorder) Types() []string {
	recorded := r.Events()
	types := make([]string, 0, len(recorded))
	for _, event := range recorded {
		types = append(types, event.Type)
	}
	return types
}
