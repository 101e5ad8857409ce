package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotSource supplies the statistics exported on each scrape.
type SnapshotSource interface {
	Stats() Snapshot
}

// SnapshotFunc adapts a function to SnapshotSource.
type SnapshotFunc func() Snapshot

// Stats calls f.
func (f SnapshotFunc) Stats() Snapshot { return f() }

// Exporter exposes session statistics as Prometheus metrics.
// Values are read from the source at scrape time, so counters restart from
// zero with every new session.
type Exporter struct {
	source SnapshotSource

	packetsSent       *prometheus.Desc
	bytesSent         *prometheus.Desc
	uncompressedBytes *prometheus.Desc
	errors            *prometheus.Desc
	textures          *prometheus.Desc
	skipped           *prometheus.Desc
	framesReceived    *prometheus.Desc
	decodeErrors      *prometheus.Desc
	syncRate          *prometheus.Desc
	cacheHitRate      *prometheus.Desc
	runtime           *prometheus.Desc
}

// NewExporter creates an Exporter. namespace defaults to "scenesync".
func NewExporter(source SnapshotSource, namespace string, constLabels prometheus.Labels) *Exporter {
	if namespace == "" {
		namespace = "scenesync"
	}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, constLabels)
	}
	return &Exporter{
		source:            source,
		packetsSent:       desc("packets_sent_total", "Scene frames written in the current session"),
		bytesSent:         desc("bytes_sent_total", "Frame bytes written in the current session"),
		uncompressedBytes: desc("uncompressed_bytes_total", "Scene JSON bytes before compression"),
		errors:            desc("errors_total", "Send and protocol errors in the current session"),
		textures:          desc("textures_total", "Texture resolutions by outcome", "outcome"),
		skipped:           desc("publishes_skipped_total", "Publishes skipped by reason", "reason"),
		framesReceived:    desc("frames_received_total", "Inbound frames decoded"),
		decodeErrors:      desc("decode_errors_total", "Inbound frames that failed to decode"),
		syncRate:          desc("sync_rate_hz", "Instantaneous send rate"),
		cacheHitRate:      desc("texture_cache_hit_ratio", "Fraction of texture resolutions served from cache"),
		runtime:           desc("session_runtime_seconds", "Age of the current session"),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.packetsSent
	ch <- e.bytesSent
	ch <- e.uncompressedBytes
	ch <- e.errors
	ch <- e.textures
	ch <- e.skipped
	ch <- e.framesReceived
	ch <- e.decodeErrors
	ch <- e.syncRate
	ch <- e.cacheHitRate
	ch <- e.runtime
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.source.Stats()

	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(e.packetsSent, s.PacketsSent)
	counter(e.bytesSent, s.BytesSent)
	counter(e.uncompressedBytes, s.UncompressedBytes)
	counter(e.errors, s.Errors)
	counter(e.textures, s.TexturesCached, "cached")
	counter(e.textures, s.TexturesSent, "sent")
	counter(e.skipped, s.SkippedGate, "gate")
	counter(e.skipped, s.SkippedUnchanged, "unchanged")
	counter(e.skipped, s.SkippedThrottled, "throttled")
	counter(e.framesReceived, s.FramesReceived)
	counter(e.decodeErrors, s.DecodeErrors)
	gauge(e.syncRate, s.SyncRate)
	gauge(e.cacheHitRate, s.CacheHitRate())
	gauge(e.runtime, s.Runtime().Seconds())
}

// Register registers the exporter with reg, or the default registerer when
// reg is nil.
func (e *Exporter) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return reg.Register(e)
}
