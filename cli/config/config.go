package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents a scenesync.yaml configuration file.
// All values are optional and act as defaults for scenesync push flags.
// CLI flags always override config values.
type Config struct {
	Peer    PeerConfig    `yaml:"peer"`
	Sync    SyncConfig    `yaml:"sync"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Adapter AdapterConfig `yaml:"adapter"`
	Log     LogConfig     `yaml:"log"`
}

// PeerConfig locates the viewer.
type PeerConfig struct {
	Address        string   `yaml:"address"`
	Port           int      `yaml:"port"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// SyncConfig tunes publishing and the inbound loop.
type SyncConfig struct {
	SceneHz        float64  `yaml:"scene_hz"`
	FrameHz        float64  `yaml:"frame_hz"`
	Cooldown       Duration `yaml:"cooldown"`
	ReceiveTimeout Duration `yaml:"receive_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	PollInterval   Duration `yaml:"poll_interval"`
}

// CacheConfig configures the texture cache.
type CacheConfig struct {
	MaxEntries int      `yaml:"max_entries"`
	BaseDir    string   `yaml:"base_dir"`
	S3         S3Config `yaml:"s3"`
}

// S3Config holds object store settings for s3:// texture paths.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen    string            `yaml:"listen"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels,omitempty"`
}

// AdapterConfig holds session notification settings.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks value ranges that YAML decoding cannot express.
// Zero values mean "use the default" and always pass.
func (c *Config) Validate() error {
	var errs []error

	if c.Peer.Port < 0 || c.Peer.Port > 65535 {
		errs = append(errs, fmt.Errorf("peer.port %d out of range", c.Peer.Port))
	}
	if c.Sync.SceneHz < 0 || c.Sync.SceneHz > 60 {
		errs = append(errs, fmt.Errorf("sync.scene_hz %v out of range 1-60", c.Sync.SceneHz))
	}
	if c.Sync.FrameHz < 0 || c.Sync.FrameHz > 60 {
		errs = append(errs, fmt.Errorf("sync.frame_hz %v out of range 1-60", c.Sync.FrameHz))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must be >= 0, got %d", c.Cache.MaxEntries))
	}

	switch c.Adapter.Type {
	case "":
		if c.Adapter.URL != "" {
			errs = append(errs, errors.New("adapter.url set without adapter.type"))
		}
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for %s adapter", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown adapter.type %q (must be webhook or redis)", c.Adapter.Type))
	}

	return errors.Join(errs...)
}
