// Package adapter defines the notification boundary for finished sync
// sessions.
//
// Adapters publish a session summary to a downstream system (an HTTP
// endpoint, a Redis channel) when a session ends. The CLI owns adapter
// lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/scenesync/engine"
	"github.com/pithecene-io/scenesync/types"
)

// EventTypeSessionEnded is the event_type of every SessionEndedEvent.
const EventTypeSessionEnded = "session_ended"

// SessionEndedEvent is the payload published when a sync session ends.
type SessionEndedEvent struct {
	ProtocolVersion string `json:"protocol_version"`
	EventType       string `json:"event_type"` // always "session_ended"
	SessionID       string `json:"session_id"`
	Peer            string `json:"peer"`
	Reason          string `json:"reason"` // stopped, peer_closed, io_error
	Error           string `json:"error,omitempty"`
	StartedAt       string `json:"started_at"` // RFC 3339
	EndedAt         string `json:"ended_at"`   // RFC 3339
	DurationMs      int64  `json:"duration_ms"`

	PacketsSent      int64 `json:"packets_sent"`
	BytesSent        int64 `json:"bytes_sent"`
	Errors           int64 `json:"errors"`
	TexturesSent     int64 `json:"textures_sent"`
	TexturesCached   int64 `json:"textures_cached"`
	FramesReceived   int64 `json:"frames_received"`
	DecodeErrors     int64 `json:"decode_errors"`
	PublishesSkipped int64 `json:"publishes_skipped"`
}

// NewSessionEndedEvent builds the event for a finished session.
func NewSessionEndedEvent(s engine.SessionSummary) *SessionEndedEvent {
	ended := s.Started.Add(s.Duration)
	ev := &SessionEndedEvent{
		ProtocolVersion: types.ProtocolVersion,
		EventType:       EventTypeSessionEnded,
		SessionID:       s.ID,
		Peer:            s.Peer,
		Reason:          string(s.Reason),
		StartedAt:       s.Started.UTC().Format(time.RFC3339),
		EndedAt:         ended.UTC().Format(time.RFC3339),
		DurationMs:      s.Duration.Milliseconds(),

		PacketsSent:      s.Stats.PacketsSent,
		BytesSent:        s.Stats.BytesSent,
		Errors:           s.Stats.Errors,
		TexturesSent:     s.Stats.TexturesSent,
		TexturesCached:   s.Stats.TexturesCached,
		FramesReceived:   s.Stats.FramesReceived,
		DecodeErrors:     s.Stats.DecodeErrors,
		PublishesSkipped: s.Stats.SkippedGate + s.Stats.SkippedUnchanged + s.Stats.SkippedThrottled,
	}
	if s.Err != nil {
		ev.Error = s.Err.Error()
	}
	return ev
}

// Adapter publishes session-ended events to a downstream system.
type Adapter interface {
	// Publish sends a session-ended event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionEndedEvent) error

	// Close releases adapter resources.
	Close() error
}
