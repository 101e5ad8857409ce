package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pithecene-io/scenesync/types"
	"github.com/pithecene-io/scenesync/wire"
)

// PublishOutcome is the result of a publish attempt.
type PublishOutcome int

const (
	// OutcomeFailed means nothing was sent; the error says why.
	OutcomeFailed PublishOutcome = iota
	// OutcomeSent means a frame was written.
	OutcomeSent
	// OutcomeSkippedGate means the anti-feedback gate vetoed the publish.
	OutcomeSkippedGate
	// OutcomeSkippedUnchanged means the scene text matched the last send.
	OutcomeSkippedUnchanged
	// OutcomeSkippedThrottled means a trigger arrived within its rate interval.
	OutcomeSkippedThrottled
)

func (o PublishOutcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeSent:
		return "sent"
	case OutcomeSkippedGate:
		return "skipped_gate"
	case OutcomeSkippedUnchanged:
		return "skipped_unchanged"
	case OutcomeSkippedThrottled:
		return "skipped_throttled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// SnapshotProducer captures the host scene.
type SnapshotProducer interface {
	Snapshot(ctx context.Context) (*types.SceneSnapshot, error)
}

// SnapshotFunc adapts a function to SnapshotProducer.
type SnapshotFunc func(ctx context.Context) (*types.SceneSnapshot, error)

// Snapshot calls f.
func (f SnapshotFunc) Snapshot(ctx context.Context) (*types.SceneSnapshot, error) {
	return f(ctx)
}

// Publish serializes snap and sends it as a scene_update frame.
//
// A publish is skipped (nil error) when the gate is closed or when the
// serialized text equals the last successfully sent text. Texture cache
// hits and loads are only counted for scenes that were written. Errors:
//   - ErrNotRunning: no session
//   - *wire.FrameError (ErrFrameTooLarge): compressed payload over MaxPayload
//   - *wire.SendError: failed or short write; the connection stays open
func (e *Engine) Publish(ctx context.Context, snap *types.SceneSnapshot) (PublishOutcome, error) {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()

	s := e.current()
	if s == nil {
		return OutcomeFailed, ErrNotRunning
	}
	if !e.gate.Allows() {
		e.stats.IncSkippedGate()
		return OutcomeSkippedGate, nil
	}

	msg, textures := e.serializer.SerializeTallied(ctx, snap)
	text, err := wire.EncodeMessage(msg)
	if err != nil {
		e.stats.IncErrors()
		return OutcomeFailed, err
	}
	if s.lastText != nil && bytes.Equal(text, s.lastText) {
		e.stats.IncSkippedUnchanged()
		return OutcomeSkippedUnchanged, nil
	}

	payload, err := wire.Compress(text)
	if err != nil {
		e.stats.IncErrors()
		return OutcomeFailed, err
	}
	frame, err := wire.EncodeFrameLimit(payload, e.cfg.MaxPayload)
	if err != nil {
		e.stats.IncErrors()
		s.logger.Error("scene too large to send", map[string]any{
			"compressed_bytes": len(payload),
			"max_bytes":        e.cfg.MaxPayload,
		})
		return OutcomeFailed, err
	}

	n, err := s.writer.WriteFrame(frame)
	if err != nil {
		e.stats.IncErrors()
		s.logger.Error("failed to send scene", map[string]any{
			"written": n,
			"total":   len(frame),
			"error":   err.Error(),
		})
		return OutcomeFailed, err
	}

	e.stats.RecordSend(n, len(text))
	textures.Commit(e.stats)
	s.lastText = text
	s.logger.Debug("scene sent", map[string]any{
		"objects":           len(msg.Objects),
		"bytes":             n,
		"uncompressed_size": len(text),
	})
	return OutcomeSent, nil
}

// OnSceneChange is the host's scene-change hook. It applies the gate and
// the scene throttle before capturing and publishing the scene, so vetoed
// triggers never pay for a snapshot.
func (e *Engine) OnSceneChange(ctx context.Context, producer SnapshotProducer) (PublishOutcome, error) {
	return e.trigger(ctx, producer, e.sceneThrottle.Allow)
}

// OnFrameChange is the host's frame-change hook, throttled separately
// from scene changes.
func (e *Engine) OnFrameChange(ctx context.Context, producer SnapshotProducer) (PublishOutcome, error) {
	return e.trigger(ctx, producer, e.frameThrottle.Allow)
}

func (e *Engine) trigger(ctx context.Context, producer SnapshotProducer, allow func() bool) (PublishOutcome, error) {
	if !e.Running() {
		return OutcomeFailed, ErrNotRunning
	}
	if !e.gate.Allows() {
		e.stats.IncSkippedGate()
		return OutcomeSkippedGate, nil
	}
	if !allow() {
		e.stats.IncSkippedThrottled()
		return OutcomeSkippedThrottled, nil
	}

	snap, err := producer.Snapshot(ctx)
	if err != nil {
		e.stats.IncErrors()
		return OutcomeFailed, fmt.Errorf("capture scene: %w", err)
	}
	return e.Publish(ctx, snap)
}
