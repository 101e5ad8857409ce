package engine

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pithecene-io/scenesync/asset"
	"github.com/pithecene-io/scenesync/gate"
	"github.com/pithecene-io/scenesync/log"
	"github.com/pithecene-io/scenesync/wire"
)

// Connection defaults.
const (
	DefaultAddress        = "localhost"
	DefaultPort           = 10006
	DefaultReceiveTimeout = time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultJoinTimeout    = 2 * time.Second
	DefaultTaskQueueSize  = 64
)

// Config configures an Engine. Zero values take the defaults above.
type Config struct {
	// SceneFrequency bounds scene-change publishes (Hz, clamped to 1-60).
	SceneFrequency float64
	// FrameFrequency bounds frame-change publishes (Hz, clamped to 1-60).
	FrameFrequency float64
	// Cooldown is the anti-feedback window after an inbound apply.
	Cooldown time.Duration

	// ReceiveTimeout is the read deadline used to poll for stop.
	ReceiveTimeout time.Duration
	// WriteTimeout bounds each outbound chunk write.
	WriteTimeout time.Duration
	// ConnectTimeout bounds the dial.
	ConnectTimeout time.Duration
	// JoinTimeout bounds how long Stop waits for the receive goroutine.
	JoinTimeout time.Duration
	// ChunkSize bounds each socket read and write.
	ChunkSize int
	// MaxPayload bounds the compressed scene payload. Zero or anything above
	// wire.MaxOutboundPayload uses wire.MaxOutboundPayload.
	MaxPayload int
	// TaskQueueSize is the capacity of the transform task channel.
	TaskQueueSize int

	// Cache resolves textures. Nil creates a default cache.
	Cache *asset.Cache
	// Clock drives the gate, throttles and stats. Nil uses the wall clock.
	Clock clock.Clock
	// Logger may be nil.
	Logger *log.Logger
	// OnSessionEnd, when set, is called once per session after its
	// connection has been closed.
	OnSessionEnd func(SessionSummary)
}

func (c *Config) applyDefaults() {
	if c.SceneFrequency == 0 {
		c.SceneFrequency = gate.DefaultSceneFrequency
	}
	if c.FrameFrequency == 0 {
		c.FrameFrequency = gate.DefaultFrameFrequency
	}
	if c.Cooldown <= 0 {
		c.Cooldown = gate.DefaultCooldown
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = wire.DefaultChunkSize
	}
	if c.MaxPayload <= 0 || c.MaxPayload > wire.MaxOutboundPayload {
		c.MaxPayload = wire.MaxOutboundPayload
	}
	if c.TaskQueueSize <= 0 {
		c.TaskQueueSize = DefaultTaskQueueSize
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = log.Nop()
	}
}
