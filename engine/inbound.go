package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/scenesync/types"
	"github.com/pithecene-io/scenesync/wire"
)

// TransformState is the most recent inbound transform.
type TransformState struct {
	ObjectName string
	Position   types.Vec3
	Rotation   types.Vec3
	Scale      types.Vec3
	// Timestamp is the peer's epoch-millisecond send time, 0 when absent.
	Timestamp float64
	// ReceivedAt is the local receive time.
	ReceivedAt time.Time
	// TotalReceived counts transform updates in this session.
	TotalReceived int64
}

// transformTracker holds TransformState. Written only by the receive
// goroutine; read from anywhere.
type transformTracker struct {
	mu    sync.Mutex
	state TransformState
}

func (t *transformTracker) record(u *types.TransformUpdate, at time.Time) TransformState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = TransformState{
		ObjectName:    u.ObjectName,
		Position:      u.Position,
		Rotation:      u.Rotation,
		Scale:         u.Scale,
		Timestamp:     u.Timestamp,
		ReceivedAt:    at,
		TotalReceived: t.state.TotalReceived + 1,
	}
	return t.state
}

func (t *transformTracker) get() TransformState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *transformTracker) reset() {
	t.mu.Lock()
	t.state = TransformState{}
	t.mu.Unlock()
}

// LastTransform returns the most recent inbound transform. ok is false
// until one has been received in the current session.
func (e *Engine) LastTransform() (state TransformState, ok bool) {
	state = e.transforms.get()
	return state, state.TotalReceived > 0
}

// receiveLoop reads frames until the session is stopped or the connection
// fails. Oversized and undecodable frames are dropped and counted; closed
// or failed connections end the session.
func (e *Engine) receiveLoop(ctx context.Context, s *session) {
	defer close(s.done)

	dec := wire.NewFrameDecoder(s.conn,
		wire.WithPollInterval(e.cfg.ReceiveTimeout),
		wire.WithChunkSize(e.cfg.ChunkSize),
	)

	for {
		payload, err := dec.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var frameErr *wire.FrameError
			if errors.As(err, &frameErr) && frameErr.Kind == wire.FrameErrorTooLarge {
				e.stats.IncErrors()
				s.logger.Warn("dropping oversized inbound frame", map[string]any{
					"size":      frameErr.Size,
					"max_bytes": wire.MaxInboundPayload,
				})
				if err := dec.Discard(ctx, frameErr.Size); err != nil {
					if ctx.Err() != nil {
						return
					}
					e.endFromReceiver(s, err)
					return
				}
				continue
			}
			e.endFromReceiver(s, err)
			return
		}

		e.stats.IncFramesReceived()
		msg, err := wire.DecodeMessage(payload)
		if err != nil {
			e.stats.IncDecodeErrors()
			s.logger.Warn("failed to decode inbound message", map[string]any{
				"size":  len(payload),
				"error": err.Error(),
			})
			continue
		}

		switch m := msg.(type) {
		case *types.TransformUpdate:
			if !e.handleTransform(ctx, s, m) {
				return
			}
		case *types.UnknownMessage:
			s.logger.Debug("ignoring inbound message", map[string]any{"type": string(m.Type), "size": m.Size})
		default:
			s.logger.Debug("ignoring inbound message", map[string]any{"size": len(payload)})
		}
	}
}

// handleTransform records the update and queues it for the coordination
// goroutine. Returns false if the session stopped while queueing.
func (e *Engine) handleTransform(ctx context.Context, s *session, u *types.TransformUpdate) bool {
	if u.ObjectName == "" {
		e.stats.IncDecodeErrors()
		s.logger.Warn("transform_update without objectName", nil)
		return true
	}

	now := e.clk.Now()
	state := e.transforms.record(u, now)
	s.logger.Debug("transform received", map[string]any{
		"object":         u.ObjectName,
		"total_received": state.TotalReceived,
	})

	task := TransformTask{Update: u, ReceivedAt: now, SessionID: s.id}
	select {
	case e.tasks <- task:
		return true
	case <-ctx.Done():
		return false
	}
}

// endFromReceiver tears the session down after a fatal read error, unless
// Stop already took it.
func (e *Engine) endFromReceiver(s *session, cause error) {
	if e.detach(s) == nil {
		return
	}
	s.cancel()

	reason := ReasonIOError
	if errors.Is(cause, wire.ErrConnectionClosed) {
		reason = ReasonPeerClosed
	}
	e.finish(s, reason, cause)
}
