// Package metrics provides per-session sync statistics.
//
// The Collector accumulates counters for one sync session and is reset when
// a new session starts. It is a leaf package with no internal dependencies;
// the asset cache and both engine pipelines record into the same Collector.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of the session statistics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Outbound
	PacketsSent       int64
	BytesSent         int64 // frame bytes on the wire
	UncompressedBytes int64 // JSON text bytes before compression
	Errors            int64

	// Asset cache
	TexturesCached int64 // resolutions served from cache
	TexturesSent   int64 // textures loaded and encoded

	// Skipped publishes
	SkippedGate      int64
	SkippedUnchanged int64
	SkippedThrottled int64

	// Inbound
	FramesReceived int64
	DecodeErrors   int64

	// SyncRate is the instantaneous send rate in Hz (1 / interval between
	// the last two successful sends). Zero until two sends happened.
	SyncRate float64

	SessionStart time.Time
	LastSync     time.Time
	TakenAt      time.Time
}

// CacheHitRate returns the fraction of texture resolutions served from cache.
func (s Snapshot) CacheHitRate() float64 {
	total := s.TexturesCached + s.TexturesSent
	if total == 0 {
		return 0
	}
	return float64(s.TexturesCached) / float64(total)
}

// Runtime returns the session age at the time the snapshot was taken.
func (s Snapshot) Runtime() time.Duration {
	if s.SessionStart.IsZero() {
		return 0
	}
	return s.TakenAt.Sub(s.SessionStart)
}

// CompressionRatio returns wire bytes over uncompressed bytes.
func (s Snapshot) CompressionRatio() float64 {
	if s.UncompressedBytes == 0 {
		return 0
	}
	return float64(s.BytesSent) / float64(s.UncompressedBytes)
}

// Collector accumulates sync statistics.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu  sync.Mutex
	now func() time.Time

	packetsSent       int64
	bytesSent         int64
	uncompressedBytes int64
	errors            int64

	texturesCached int64
	texturesSent   int64

	skippedGate      int64
	skippedUnchanged int64
	skippedThrottled int64

	framesReceived int64
	decodeErrors   int64

	syncRate     float64
	sessionStart time.Time
	lastSync     time.Time
}

// NewCollector creates a Collector. now supplies timestamps; nil uses time.Now.
func NewCollector(now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{now: now}
}

// Reset zeroes every counter and marks the start of a new session.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.packetsSent, c.bytesSent, c.uncompressedBytes, c.errors = 0, 0, 0, 0
	c.texturesCached, c.texturesSent = 0, 0
	c.skippedGate, c.skippedUnchanged, c.skippedThrottled = 0, 0, 0
	c.framesReceived, c.decodeErrors = 0, 0
	c.syncRate = 0
	c.lastSync = time.Time{}
	c.sessionStart = c.now()
	c.mu.Unlock()
}

// --- Outbound ---

// RecordSend records a successfully written frame.
// wireBytes is the full frame size, textBytes the JSON size before compression.
func (c *Collector) RecordSend(wireBytes, textBytes int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	now := c.now()
	if !c.lastSync.IsZero() {
		if interval := now.Sub(c.lastSync); interval > 0 {
			c.syncRate = 1 / interval.Seconds()
		}
	}
	c.lastSync = now
	c.packetsSent++
	c.bytesSent += int64(wireBytes)
	c.uncompressedBytes += int64(textBytes)
	c.mu.Unlock()
}

// IncErrors records a failed send, oversized frame, or protocol error.
func (c *Collector) IncErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// IncSkippedGate records a publish vetoed by the anti-feedback gate.
func (c *Collector) IncSkippedGate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.skippedGate++
	c.mu.Unlock()
}

// IncSkippedUnchanged records a publish whose text matched the last send.
func (c *Collector) IncSkippedUnchanged() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.skippedUnchanged++
	c.mu.Unlock()
}

// IncSkippedThrottled records a trigger dropped by a rate throttle.
func (c *Collector) IncSkippedThrottled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.skippedThrottled++
	c.mu.Unlock()
}

// --- Asset cache ---

// IncTexturesCached records a texture served from cache.
func (c *Collector) IncTexturesCached() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.texturesCached++
	c.mu.Unlock()
}

// IncTexturesSent records a texture loaded and encoded.
func (c *Collector) IncTexturesSent() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.texturesSent++
	c.mu.Unlock()
}

// --- Inbound ---

// IncFramesReceived records a decoded inbound frame.
func (c *Collector) IncFramesReceived() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesReceived++
	c.mu.Unlock()
}

// IncDecodeErrors records an inbound payload that could not be decoded.
func (c *Collector) IncDecodeErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decodeErrors++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		PacketsSent:       c.packetsSent,
		BytesSent:         c.bytesSent,
		UncompressedBytes: c.uncompressedBytes,
		Errors:            c.errors,

		TexturesCached: c.texturesCached,
		TexturesSent:   c.texturesSent,

		SkippedGate:      c.skippedGate,
		SkippedUnchanged: c.skippedUnchanged,
		SkippedThrottled: c.skippedThrottled,

		FramesReceived: c.framesReceived,
		DecodeErrors:   c.decodeErrors,

		SyncRate:     c.syncRate,
		SessionStart: c.sessionStart,
		LastSync:     c.lastSync,
		TakenAt:      c.now(),
	}
}
