// Package engine is the scene sync engine: it owns one TCP session to a
// viewer, publishes scene snapshots through the outbound pipeline, receives
// transform updates on a dedicated goroutine, and hands them to the host's
// coordination goroutine behind the anti-feedback gate.
package engine

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/pithecene-io/scenesync/asset"
	"github.com/pithecene-io/scenesync/gate"
	"github.com/pithecene-io/scenesync/iox"
	"github.com/pithecene-io/scenesync/log"
	"github.com/pithecene-io/scenesync/metrics"
	"github.com/pithecene-io/scenesync/wire"
)

// Engine synchronizes a host scene with one remote viewer.
//
// Start, Stop, Publish, the triggers and Apply are meant to be called from
// the host's coordination goroutine; Stats, LastTransform, Running and
// SessionID may be called from anywhere.
type Engine struct {
	cfg    Config
	clk    clock.Clock
	logger *log.Logger

	stats         *metrics.Collector
	cache         *asset.Cache
	serializer    *Serializer
	gate          *gate.Gate
	sceneThrottle *gate.Throttle
	frameThrottle *gate.Throttle
	transforms    transformTracker
	tasks         chan TransformTask
	dial          func(ctx context.Context, network, addr string) (net.Conn, error)

	// mu guards sess.
	mu   sync.Mutex
	sess *session

	// publishMu serializes Publish and guards session.lastText.
	publishMu sync.Mutex
}

// New creates an idle engine.
func New(cfg Config) (*Engine, error) {
	cfg.applyDefaults()

	stats := metrics.NewCollector(cfg.Clock.Now)
	cache := cfg.Cache
	if cache == nil {
		var err error
		cache, err = asset.NewCache(asset.Options{Stats: stats, Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("create asset cache: %w", err)
		}
	} else {
		cache.SetStats(stats)
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	return &Engine{
		cfg:           cfg,
		clk:           cfg.Clock,
		logger:        cfg.Logger,
		stats:         stats,
		cache:         cache,
		serializer:    NewSerializer(cache),
		gate:          gate.New(cfg.Clock, cfg.Cooldown),
		sceneThrottle: gate.NewThrottle(cfg.Clock, cfg.SceneFrequency),
		frameThrottle: gate.NewThrottle(cfg.Clock, cfg.FrameFrequency),
		tasks:         make(chan TransformTask, cfg.TaskQueueSize),
		dial:          dialer.DialContext,
	}, nil
}

// Start connects to the viewer at address:port and starts the receive
// goroutine. Stats, transform state, the gate and the throttles are reset.
//
// Errors:
//   - ErrAlreadyRunning: a session exists
//   - *ConnectError: the dial failed
func (e *Engine) Start(ctx context.Context, address string, port int) error {
	if e.Running() {
		return ErrAlreadyRunning
	}
	if address == "" {
		address = DefaultAddress
	}
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(address, strconv.Itoa(port))

	conn, err := e.dial(ctx, "tcp", addr)
	if err != nil {
		e.logger.Error("connect failed", map[string]any{"address": addr, "error": err.Error()})
		return &ConnectError{Address: addr, Err: err}
	}

	// The dial runs unlocked; another Start may have won meanwhile.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != nil {
		_ = conn.Close()
		return ErrAlreadyRunning
	}

	e.stats.Reset()
	e.transforms.reset()
	e.gate.Reset()
	e.sceneThrottle.Reset()
	e.frameThrottle.Reset()
	e.drainTasks()

	id := uuid.NewString()
	sessCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:      id,
		peer:    addr,
		conn:    conn,
		closer:  iox.NewOnceCloser(conn),
		writer:  wire.NewFrameWriter(conn, e.cfg.WriteTimeout, e.cfg.ChunkSize),
		cancel:  cancel,
		done:    make(chan struct{}),
		started: e.clk.Now(),
		logger:  e.logger.WithSession(id, addr),
	}
	e.sess = s

	go e.receiveLoop(sessCtx, s)

	s.logger.Info("sync session started", nil)
	return nil
}

// Stop ends the session. It signals the receive goroutine, waits up to
// JoinTimeout for it, then closes the connection. Calling Stop with no
// session is a no-op. Stop never fails; close errors are logged.
func (e *Engine) Stop() {
	s := e.detach(nil)
	if s == nil {
		return
	}

	s.cancel()
	timer := time.NewTimer(e.cfg.JoinTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		s.logger.Warn("receive goroutine did not exit in time, abandoning it", map[string]any{
			"join_timeout": e.cfg.JoinTimeout.String(),
		})
	}

	e.finish(s, ReasonStopped, nil)
}

// Running reports whether a session exists.
func (e *Engine) Running() bool {
	return e.current() != nil
}

// SessionID returns the current session id, or "" when stopped.
func (e *Engine) SessionID() string {
	if s := e.current(); s != nil {
		return s.id
	}
	return ""
}

// Peer returns the current peer address, or "" when stopped.
func (e *Engine) Peer() string {
	if s := e.current(); s != nil {
		return s.peer
	}
	return ""
}

// Stats returns a snapshot of the session statistics.
func (e *Engine) Stats() metrics.Snapshot {
	return e.stats.Snapshot()
}

// Cache returns the texture cache.
func (e *Engine) Cache() *asset.Cache {
	return e.cache
}

// GateState returns the anti-feedback gate state.
func (e *Engine) GateState() gate.State {
	return e.gate.State()
}

// SetSceneFrequency changes the scene-change throttle (Hz, clamped to 1-60).
func (e *Engine) SetSceneFrequency(hz float64) {
	e.sceneThrottle.SetFrequency(hz)
}

// SceneFrequency returns the effective scene-change frequency.
func (e *Engine) SceneFrequency() float64 {
	return e.sceneThrottle.Frequency()
}

func (e *Engine) current() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

// detach clears the current session if it is s (or any session when s is
// nil) and returns what was cleared.
func (e *Engine) detach(s *session) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.sess
	if cur == nil || (s != nil && cur != s) {
		return nil
	}
	e.sess = nil
	return cur
}

// finish closes the connection and reports the session end, once.
func (e *Engine) finish(s *session, reason EndReason, cause error) {
	s.endOnce.Do(func() {
		if err := s.closer.Close(); err != nil {
			s.logger.Warn("error closing connection", map[string]any{"error": err.Error()})
		}

		summary := SessionSummary{
			ID:       s.id,
			Peer:     s.peer,
			Reason:   reason,
			Err:      cause,
			Started:  s.started,
			Duration: e.clk.Since(s.started),
			Stats:    e.stats.Snapshot(),
		}
		fields := map[string]any{
			"reason":       string(reason),
			"duration":     summary.Duration.String(),
			"packets_sent": summary.Stats.PacketsSent,
		}
		if cause != nil {
			fields["error"] = cause.Error()
		}
		s.logger.Info("sync session ended", fields)

		if e.cfg.OnSessionEnd != nil {
			e.cfg.OnSessionEnd(summary)
		}
	})
}

func (e *Engine) drainTasks() {
	for {
		select {
		case <-e.tasks:
		default:
			return
		}
	}
}
