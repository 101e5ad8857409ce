package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/scenesync/adapter"
)

func testEvent() *adapter.SessionEndedEvent {
	return &adapter.SessionEndedEvent{
		ProtocolVersion: "1.0",
		EventType:       adapter.EventTypeSessionEnded,
		SessionID:       "sess-001",
		Peer:            "localhost:10006",
		Reason:          "peer_closed",
		StartedAt:       "2026-03-01T12:00:00Z",
		EndedAt:         "2026-03-01T12:01:30Z",
		DurationMs:      90000,
		PacketsSent:     17,
		FramesReceived:  4,
	}
}

// asyncReceive starts a goroutine that reads one message from the subscriber
// and sends it to the returned channel. Must be called BEFORE Publish to avoid
// deadlocking miniredis's synchronous pub/sub delivery.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{} // unreachable
	}
}

func TestPublish_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Retries: 0})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	event := testEvent()
	if err := a.Publish(testContext(t), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)

	var received adapter.SessionEndedEvent
	if err := json.Unmarshal([]byte(msg.Message), &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if received.SessionID != "sess-001" {
		t.Errorf("expected sess-001, got %s", received.SessionID)
	}
	if received.EventType != "session_ended" {
		t.Errorf("expected session_ended, got %s", received.EventType)
	}
	if received.Reason != "peer_closed" {
		t.Errorf("expected peer_closed, got %s", received.Reason)
	}
	if received.FramesReceived != 4 {
		t.Errorf("expected 4 frames received, got %d", received.FramesReceived)
	}
}

func TestPublish_DefaultChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.config.Channel != DefaultChannel {
		t.Errorf("expected default channel %q, got %q", DefaultChannel, a.config.Channel)
	}

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(testContext(t), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != DefaultChannel {
		t.Errorf("expected channel %q, got %q", DefaultChannel, msg.Channel)
	}
}

func TestPublish_CustomChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	customChannel := "custom:notifications"
	a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: customChannel})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.config.Channel != customChannel {
		t.Errorf("expected channel %q, got %q", customChannel, a.config.Channel)
	}

	sub := mr.NewSubscriber()
	sub.Subscribe(customChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(testContext(t), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != customChannel {
		t.Errorf("expected channel %q, got %q", customChannel, msg.Channel)
	}
}

func TestPublish_WithRetriesConfigured(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Retries: 3, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(testContext(t), testEvent()); err != nil {
		t.Fatalf("publish should succeed: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != DefaultChannel {
		t.Errorf("expected channel %q, got %q", DefaultChannel, msg.Channel)
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	// Use an address that won't connect
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 2, Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	err = a.Publish(testContext(t), testEvent())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	// Use an address that won't connect — context cancellation should fire first
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 5, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(testContext(t), 100*time.Millisecond)
	defer cancel()

	err = a.Publish(ctx, testEvent())
	if err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(Config{URL: "not-a-redis-url"})
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestNew_RejectsNegativeRetries(t *testing.T) {
	_, err := New(Config{URL: "redis://localhost:6379", Retries: -1})
	if err == nil {
		t.Fatal("expected error for negative retries")
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.config.Channel != DefaultChannel {
		t.Errorf("expected default channel %q, got %q", DefaultChannel, a.config.Channel)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, a.config.Timeout)
	}
}

func TestClose_ClosesConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Publish after close fails without backing off
	a.config.Retries = 5
	start := time.Now()
	err = a.Publish(testContext(t), testEvent())
	if err == nil {
		t.Fatal("expected error after close")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("closed client was retried (%v)", elapsed)
	}
}

// testContext returns a context canceled when the test finishes,
// mirroring testing.T.Context for toolchains that predate it.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
