package render

import (
	"fmt"
	"time"

	"github.com/pithecene-io/scenesync/engine"
	"github.com/pithecene-io/scenesync/metrics"
)

// StatsView is the human-readable form of a session's statistics.
type StatsView struct {
	SessionID      string `json:"session_id" yaml:"session_id"`
	Peer           string `json:"peer" yaml:"peer"`
	Runtime        string `json:"runtime" yaml:"runtime"`
	PacketsSent    int64  `json:"packets_sent" yaml:"packets_sent"`
	BytesSent      string `json:"bytes_sent" yaml:"bytes_sent"`
	Compression    string `json:"compression" yaml:"compression"`
	SyncRate       string `json:"sync_rate" yaml:"sync_rate"`
	CacheHitRate   string `json:"cache_hit_rate" yaml:"cache_hit_rate"`
	TexturesSent   int64  `json:"textures_sent" yaml:"textures_sent"`
	TexturesCached int64  `json:"textures_cached" yaml:"textures_cached"`
	Skipped        int64  `json:"publishes_skipped" yaml:"publishes_skipped"`
	FramesReceived int64  `json:"frames_received" yaml:"frames_received"`
	DecodeErrors   int64  `json:"decode_errors" yaml:"decode_errors"`
	Errors         int64  `json:"errors" yaml:"errors"`
	LastTransform  string `json:"last_transform,omitempty" yaml:"last_transform,omitempty"`
}

// NewStatsView formats a stats snapshot. last may be nil when no
// transform has been received.
func NewStatsView(sessionID, peer string, s metrics.Snapshot, last *engine.TransformState, now time.Time) StatsView {
	v := StatsView{
		SessionID:      sessionID,
		Peer:           peer,
		Runtime:        metrics.FormatRuntime(s.Runtime()),
		PacketsSent:    s.PacketsSent,
		BytesSent:      metrics.FormatBytes(s.BytesSent),
		Compression:    fmt.Sprintf("%.0f%%", s.CompressionRatio()*100),
		SyncRate:       fmt.Sprintf("%.1f Hz", s.SyncRate),
		CacheHitRate:   fmt.Sprintf("%.0f%%", s.CacheHitRate()*100),
		TexturesSent:   s.TexturesSent,
		TexturesCached: s.TexturesCached,
		Skipped:        s.SkippedGate + s.SkippedUnchanged + s.SkippedThrottled,
		FramesReceived: s.FramesReceived,
		DecodeErrors:   s.DecodeErrors,
		Errors:         s.Errors,
	}
	if last != nil && !last.ReceivedAt.IsZero() {
		v.LastTransform = fmt.Sprintf("%s (%s)", last.ObjectName, metrics.FormatAgo(now.Sub(last.ReceivedAt)))
	}
	return v
}
