package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	dispatcher.Notify("user-1", RealtimeEventFriendRequest, map[string]string{"request_id": "req-1"})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventFriendRequest {
			t.Fatalf("expected event type %s, got %s", RealtimeEventFriendRequest, received.EventType)
		}
		payload, ok := received.Payload.(map[string]string)
		if !ok || payload["request_id"] != "req-1" {
			t.Fatalf("unexpected payload %#v", received.Payload)
		}
		if received.Timestamp.IsZero() {
			t.Fatalf("expected timestamp to be set")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "user-3")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:    "user-3",
		EventType: RealtimeEventChatMessage,
		Timestamp: time.Now().UTC(),
	})

	select {
	case <-userStream:
		t.Fatal("did not expect realtime message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.UserID != "user-3" {
			t.Fatalf("expected user-3, received %s", msg.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed user")
	}
}

func TestRealtimeDispatcherDropsWhenBufferIsFull(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-4")
	defer cleanup()

	for index := 0; index < dispatcher.bufferSize+5; index++ {
		dispatcher.Notify("user-4", RealtimeEventChatMessage, index)
	}
	if len(stream) != dispatcher.bufferSize {
		t.Fatalf("expected %d buffered messages, got %d", dispatcher.bufferSize, len(stream))
	}
	first := <-stream
	if first.Payload != 0 {
		t.Fatalf("expected oldest message to be kept, got %v", first.Payload)
	}
}

func TestRealtimeDispatcherUnsubscribesOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "user-5")
	defer cleanup()
	if dispatcher.SubscriberCount("user-5") != 1 {
		t.Fatalf("expected one subscriber")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount("user-5") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRealtimeDispatcherIgnoresAnonymousSubscribers(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background(), "")
	defer cleanup()
	if _, open := <-stream; open {
		t.Fatal("expected closed stream for empty user id")
	}
}
