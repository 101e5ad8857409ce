package engine

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pithecene-io/scenesync/iox"
	"github.com/pithecene-io/scenesync/log"
	"github.com/pithecene-io/scenesync/metrics"
	"github.com/pithecene-io/scenesync/wire"
)

// EndReason describes why a session ended.
type EndReason string

// Session end reasons.
const (
	// ReasonStopped means Stop was called.
	ReasonStopped EndReason = "stopped"
	// ReasonPeerClosed means the viewer closed the connection.
	ReasonPeerClosed EndReason = "peer_closed"
	// ReasonIOError means the connection failed.
	ReasonIOError EndReason = "io_error"
)

// SessionSummary describes a finished session.
type SessionSummary struct {
	ID       string
	Peer     string
	Reason   EndReason
	Err      error
	Started  time.Time
	Duration time.Duration
	Stats    metrics.Snapshot
}

// session is one live connection. At most one exists per Engine.
type session struct {
	id      string
	peer    string
	conn    net.Conn
	closer  *iox.OnceCloser
	writer  *wire.FrameWriter
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	logger  *log.Logger
	endOnce sync.Once

	// lastText is the last scene text written successfully.
	// Guarded by Engine.publishMu.
	lastText []byte
}
