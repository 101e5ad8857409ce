// Package viewer is a minimal stand-in for the remote viewer: it accepts
// one engine connection at a time, decodes scene_update frames and can
// send transform_update messages back.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pithecene-io/scenesync/iox"
	"github.com/pithecene-io/scenesync/log"
	"github.com/pithecene-io/scenesync/types"
	"github.com/pithecene-io/scenesync/wire"
)

// ErrNoPeer is returned by SendTransform while no engine is connected.
var ErrNoPeer = errors.New("no engine connected")

// Config configures a Viewer.
type Config struct {
	// Address to listen on (default "localhost:10006").
	Address string
	// PollInterval bounds each socket read so cancellation is noticed (default 1s).
	PollInterval time.Duration
	// WriteTimeout is the per-chunk write deadline (default 5s).
	WriteTimeout time.Duration
	// Compress sends transform updates zlib-compressed instead of raw JSON.
	Compress bool
	Logger   *log.Logger
}

// Handler receives each decoded scene update.
type Handler func(update *types.SceneUpdate, payloadBytes int)

// Viewer is a single-connection TCP peer.
type Viewer struct {
	cfg    Config
	ln     net.Listener
	logger *log.Logger

	mu     sync.Mutex
	conn   net.Conn
	writer *wire.FrameWriter
}

// Listen opens the listening socket.
func Listen(cfg Config) (*Viewer, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:10006"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}

	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	return &Viewer{cfg: cfg, ln: ln, logger: cfg.Logger}, nil
}

// Addr returns the listening address.
func (v *Viewer) Addr() net.Addr {
	return v.ln.Addr()
}

// Connected reports whether an engine is attached.
func (v *Viewer) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conn != nil
}

// Serve accepts connections one at a time and passes every decoded scene
// update to handle. It returns when ctx is done or the listener fails.
func (v *Viewer) Serve(ctx context.Context, handle Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = v.ln.Close() })
	defer stop()

	for {
		conn, err := v.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		v.logger.Info("engine connected", map[string]any{"remote": conn.RemoteAddr().String()})
		err = v.serveConn(ctx, conn, handle)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, wire.ErrConnectionClosed):
			v.logger.Info("engine disconnected", nil)
		case err != nil:
			v.logger.Warn("connection failed", map[string]any{"error": err.Error()})
		}
	}
}

func (v *Viewer) serveConn(ctx context.Context, conn net.Conn, handle Handler) error {
	v.mu.Lock()
	v.conn = conn
	v.writer = wire.NewFrameWriter(conn, v.cfg.WriteTimeout, wire.DefaultChunkSize)
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.conn, v.writer = nil, nil
		v.mu.Unlock()
		iox.DiscardClose(conn)
	}()

	dec := wire.NewFrameDecoder(conn,
		wire.WithPollInterval(v.cfg.PollInterval),
		wire.WithMaxPayload(wire.MaxOutboundPayload),
	)

	for {
		payload, err := dec.ReadFrame(ctx)
		if err != nil {
			var frameErr *wire.FrameError
			if errors.As(err, &frameErr) && frameErr.Kind == wire.FrameErrorTooLarge {
				v.logger.Warn("dropping oversized frame", map[string]any{"size": frameErr.Size})
				if err := dec.Discard(ctx, frameErr.Size); err != nil {
					return err
				}
				continue
			}
			return err
		}

		msg, err := wire.DecodeMessage(payload)
		if err != nil {
			v.logger.Warn("undecodable frame", map[string]any{"error": err.Error(), "bytes": len(payload)})
			continue
		}
		switch m := msg.(type) {
		case *types.SceneUpdate:
			if handle != nil {
				handle(m, len(payload))
			}
		default:
			v.logger.Debug("ignoring message", map[string]any{"type": fmt.Sprintf("%T", m)})
		}
	}
}

// SendTransform writes a transform_update to the connected engine.
func (v *Viewer) SendTransform(u *types.TransformUpdate) error {
	if u.Type == "" {
		u.Type = types.MessageTransformUpdate
	}
	payload, err := wire.EncodeMessage(u)
	if err != nil {
		return err
	}
	if v.cfg.Compress {
		if payload, err = wire.Compress(payload); err != nil {
			return err
		}
	}
	frame, err := wire.EncodeFrame(payload)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.writer == nil {
		return ErrNoPeer
	}
	_, err = v.writer.WriteFrame(frame)
	return err
}

// Close stops listening and drops the current connection.
func (v *Viewer) Close() error {
	err := v.ln.Close()
	v.mu.Lock()
	if v.conn != nil {
		_ = v.conn.Close()
	}
	v.mu.Unlock()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
