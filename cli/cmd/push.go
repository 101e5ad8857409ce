package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/scenesync/adapter"
	"github.com/pithecene-io/scenesync/adapter/redis"
	"github.com/pithecene-io/scenesync/adapter/webhook"
	"github.com/pithecene-io/scenesync/asset"
	"github.com/pithecene-io/scenesync/cli/config"
	"github.com/pithecene-io/scenesync/cli/render"
	"github.com/pithecene-io/scenesync/cli/tui"
	"github.com/pithecene-io/scenesync/engine"
	"github.com/pithecene-io/scenesync/gate"
	"github.com/pithecene-io/scenesync/iox"
	"github.com/pithecene-io/scenesync/log"
	"github.com/pithecene-io/scenesync/metrics"
	"github.com/pithecene-io/scenesync/scenefile"
)

// Exit codes for push.
const (
	exitSuccess       = 0
	exitError         = 1
	exitConnectFailed = 2
	exitSessionFailed = 3
)

const (
	defaultPollInterval = 500 * time.Millisecond
	// adapterPublishTimeout bounds the session-end notification, retries included.
	adapterPublishTimeout = 30 * time.Second
	metricsShutdownGrace  = 2 * time.Second
)

// PushCommand returns the push command.
// Push is the only command that connects to a viewer and sends scene data.
func PushCommand() *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: "Sync a scene file to a viewer until interrupted",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "scene",
				Usage:    "Path to scene file (.json, .yaml, .msgpack)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to scenesync.yaml config file",
			},
			// Peer flags
			&cli.StringFlag{
				Name:  "address",
				Usage: "Viewer host",
				Value: engine.DefaultAddress,
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Viewer port",
				Value: engine.DefaultPort,
			},
			&cli.DurationFlag{
				Name:  "connect-timeout",
				Usage: "Dial timeout",
				Value: engine.DefaultConnectTimeout,
			},
			// Sync flags
			&cli.Float64Flag{
				Name:  "frequency",
				Usage: "Scene update frequency in Hz (1-60)",
				Value: gate.DefaultSceneFrequency,
			},
			&cli.Float64Flag{
				Name:  "frame-frequency",
				Usage: "Frame change frequency in Hz (1-60)",
				Value: gate.DefaultFrameFrequency,
			},
			&cli.DurationFlag{
				Name:  "cooldown",
				Usage: "Publish suppression window after applying an inbound transform",
				Value: gate.DefaultCooldown,
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "How often the scene file is checked for changes",
				Value: defaultPollInterval,
			},
			// Texture cache flags
			&cli.IntFlag{
				Name:  "cache-size",
				Usage: "Max cached textures",
				Value: asset.DefaultMaxEntries,
			},
			&cli.StringFlag{
				Name:  "base-dir",
				Usage: "Directory for // relative texture paths (default: scene file directory)",
			},
			&cli.StringFlag{
				Name:  "s3-region",
				Usage: "AWS region for s3:// textures",
			},
			&cli.StringFlag{
				Name:  "s3-endpoint",
				Usage: "Custom S3 endpoint for S3-compatible providers",
			},
			&cli.BoolFlag{
				Name:  "s3-path-style",
				Usage: "Force path-style S3 addressing",
			},
			// Metrics flags
			&cli.StringFlag{
				Name:  "metrics-listen",
				Usage: "Serve Prometheus /metrics on this address (e.g. :9108)",
			},
			&cli.StringFlag{
				Name:  "metrics-namespace",
				Usage: "Prometheus metric namespace",
				Value: "scenesync",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Session-end notification: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Webhook endpoint or Redis URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel",
				Value: redis.DefaultChannel,
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-attempt adapter timeout",
				Value: webhook.DefaultTimeout,
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Adapter retry attempts",
				Value: webhook.DefaultRetries,
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Webhook header as Key=Value (repeatable)",
			},
			// Output flags
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show live session stats",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the session summary",
			},
		}, OutputFlags()...),
		Action: pushAction,
	}
}

// adapterChoice holds the session-end adapter settings.
type adapterChoice struct {
	kind    string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

// pushOptions is the merged result of flags and config.
type pushOptions struct {
	scenePath      string
	address        string
	port           int
	connectTimeout time.Duration

	sceneHz        float64
	frameHz        float64
	cooldown       time.Duration
	receiveTimeout time.Duration
	writeTimeout   time.Duration
	pollInterval   time.Duration

	cacheSize int
	baseDir   string
	s3        asset.S3Config

	metricsListen    string
	metricsNamespace string
	metricsLabels    map[string]string

	adapter adapterChoice

	logLevel string
	tui      bool
	quiet    bool
}

// loadPushOptions merges the optional config file with flags. Flags
// explicitly set on the command line win.
func loadPushOptions(c *cli.Context) (pushOptions, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return pushOptions{}, err
		}
		if err := loaded.Validate(); err != nil {
			return pushOptions{}, fmt.Errorf("invalid config %s: %w", path, err)
		}
		cfg = loaded
	}

	opts := pushOptions{
		scenePath:      c.String("scene"),
		address:        resolveString(c, "address", configVal(cfg, func(c *config.Config) string { return c.Peer.Address })),
		port:           resolveInt(c, "port", configVal(cfg, func(c *config.Config) int { return c.Peer.Port })),
		connectTimeout: resolveDuration(c, "connect-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Peer.ConnectTimeout.Duration })),

		sceneHz:        resolveFloat(c, "frequency", configVal(cfg, func(c *config.Config) float64 { return c.Sync.SceneHz })),
		frameHz:        resolveFloat(c, "frame-frequency", configVal(cfg, func(c *config.Config) float64 { return c.Sync.FrameHz })),
		cooldown:       resolveDuration(c, "cooldown", configVal(cfg, func(c *config.Config) time.Duration { return c.Sync.Cooldown.Duration })),
		receiveTimeout: configVal(cfg, func(c *config.Config) time.Duration { return c.Sync.ReceiveTimeout.Duration }),
		writeTimeout:   configVal(cfg, func(c *config.Config) time.Duration { return c.Sync.WriteTimeout.Duration }),
		pollInterval:   resolveDuration(c, "poll-interval", configVal(cfg, func(c *config.Config) time.Duration { return c.Sync.PollInterval.Duration })),

		cacheSize: resolveInt(c, "cache-size", configVal(cfg, func(c *config.Config) int { return c.Cache.MaxEntries })),
		baseDir:   resolveString(c, "base-dir", configVal(cfg, func(c *config.Config) string { return c.Cache.BaseDir })),
		s3: asset.S3Config{
			Region:       resolveString(c, "s3-region", configVal(cfg, func(c *config.Config) string { return c.Cache.S3.Region })),
			Endpoint:     resolveString(c, "s3-endpoint", configVal(cfg, func(c *config.Config) string { return c.Cache.S3.Endpoint })),
			UsePathStyle: resolveBool(c, "s3-path-style", configVal(cfg, func(c *config.Config) bool { return c.Cache.S3.PathStyle })),
		},

		metricsListen:    resolveString(c, "metrics-listen", configVal(cfg, func(c *config.Config) string { return c.Metrics.Listen })),
		metricsNamespace: resolveString(c, "metrics-namespace", configVal(cfg, func(c *config.Config) string { return c.Metrics.Namespace })),
		metricsLabels:    configVal(cfg, func(c *config.Config) map[string]string { return c.Metrics.Labels }),

		logLevel: resolveString(c, "log-level", configVal(cfg, func(c *config.Config) string { return c.Log.Level })),
		tui:      c.Bool("tui"),
		quiet:    c.Bool("quiet"),
	}

	headers, err := parseHeaders(
		configVal(cfg, func(c *config.Config) map[string]string { return c.Adapter.Headers }),
		c.StringSlice("adapter-header"),
	)
	if err != nil {
		return pushOptions{}, err
	}

	retries := c.Int("adapter-retries")
	if !c.IsSet("adapter-retries") {
		if r := configVal(cfg, func(c *config.Config) *int { return c.Adapter.Retries }); r != nil {
			retries = *r
		}
	}

	opts.adapter = adapterChoice{
		kind:    resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type })),
		url:     resolveString(c, "adapter-url", configVal(cfg, func(c *config.Config) string { return c.Adapter.URL })),
		channel: resolveString(c, "adapter-channel", configVal(cfg, func(c *config.Config) string { return c.Adapter.Channel })),
		headers: headers,
		timeout: resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Timeout.Duration })),
		retries: retries,
	}

	if opts.port <= 0 || opts.port > 65535 {
		return pushOptions{}, fmt.Errorf("invalid port %d", opts.port)
	}
	if opts.pollInterval <= 0 {
		opts.pollInterval = defaultPollInterval
	}
	return opts, nil
}

func pushAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	opts, err := loadPushOptions(c)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	logger, err := newPushLogger(opts)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}
	defer iox.DiscardErr(logger.Sync)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runPush(ctx, opts, logger)
	if err != nil {
		var connErr *engine.ConnectError
		if errors.As(err, &connErr) {
			return cli.Exit(err.Error(), exitConnectFailed)
		}
		return cli.Exit(err.Error(), exitError)
	}

	if !opts.quiet {
		view := render.NewStatsView(result.Summary.ID, result.Summary.Peer, result.Summary.Stats, result.Last, time.Now())
		if err := r.Render(view); err != nil {
			return err
		}
	}

	return cli.Exit("", sessionExitCode(result.Summary))
}

// newPushLogger builds the command logger. The live view owns the
// terminal, so logs are discarded while it runs.
func newPushLogger(opts pushOptions) (*log.Logger, error) {
	lvl, err := log.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, err
	}
	logger := log.NewLogger("scenesync")
	logger.SetLevel(lvl)
	if opts.tui {
		logger = logger.WithOutput(io.Discard)
	}
	return logger, nil
}

func sessionExitCode(s engine.SessionSummary) int {
	if s.Reason == engine.ReasonIOError {
		return exitSessionFailed
	}
	return exitSuccess
}

// pushResult is what a finished push reports.
type pushResult struct {
	Summary engine.SessionSummary
	// Last is the most recent inbound transform, nil if none arrived.
	Last *engine.TransformState
}

// runPush connects to the viewer and keeps the scene file in sync until
// ctx is done, the session ends, or the live view quits.
func runPush(ctx context.Context, opts pushOptions, logger *log.Logger) (result *pushResult, err error) {
	scene, err := scenefile.Load(opts.scenePath)
	if err != nil {
		return nil, err
	}

	cache, err := buildCache(ctx, opts, scene.Path(), logger)
	if err != nil {
		return nil, err
	}

	notifier, err := buildAdapter(opts.adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}
	if notifier != nil {
		defer func() { err = multierr.Append(err, notifier.Close()) }()
	}

	ended := make(chan engine.SessionSummary, 1)
	eng, err := engine.New(engine.Config{
		SceneFrequency: opts.sceneHz,
		FrameFrequency: opts.frameHz,
		Cooldown:       opts.cooldown,
		ReceiveTimeout: opts.receiveTimeout,
		WriteTimeout:   opts.writeTimeout,
		ConnectTimeout: opts.connectTimeout,
		Cache:          cache,
		Logger:         logger.Named("engine"),
		OnSessionEnd: func(s engine.SessionSummary) {
			select {
			case ended <- s:
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}

	var metricsLn net.Listener
	if opts.metricsListen != "" {
		metricsLn, err = net.Listen("tcp", opts.metricsListen)
		if err != nil {
			return nil, fmt.Errorf("metrics listener: %w", err)
		}
	}

	if err := eng.Start(ctx, opts.address, opts.port); err != nil {
		if metricsLn != nil {
			_ = metricsLn.Close()
		}
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var summary *engine.SessionSummary
	g.Go(func() error {
		defer cancel()
		s, err := syncLoop(gctx, eng, scene, opts.pollInterval, ended, logger)
		summary = s
		return err
	})

	if metricsLn != nil {
		srv, err := newMetricsServer(eng, opts)
		if err != nil {
			_ = metricsLn.Close()
			cancel()
			_ = g.Wait()
			eng.Stop()
			return nil, err
		}
		logger.Info("serving metrics", map[string]any{"address": metricsLn.Addr().String()})
		g.Go(func() error {
			if err := srv.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownGrace)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if opts.tui {
		g.Go(func() error {
			defer cancel()
			return tui.Run(gctx, eng, tui.DefaultRefresh)
		})
	}

	waitErr := g.Wait()
	eng.Stop()
	if summary == nil {
		select {
		case s := <-ended:
			summary = &s
		default:
			return nil, multierr.Append(waitErr, errors.New("session ended without a summary"))
		}
	}

	if notifier != nil {
		pubCtx, done := context.WithTimeout(context.WithoutCancel(ctx), adapterPublishTimeout)
		defer done()
		if err := notifier.Publish(pubCtx, adapter.NewSessionEndedEvent(*summary)); err != nil {
			logger.Error("failed to publish session end", map[string]any{"error": err.Error()})
		}
	}

	result = &pushResult{Summary: *summary}
	if last, ok := eng.LastTransform(); ok {
		result.Last = &last
	}
	return result, waitErr
}

// syncLoop is the coordination goroutine: it publishes the scene on start
// and on file changes, and applies inbound transforms to the in-memory
// scene. It returns when the session ends or ctx is done.
func syncLoop(ctx context.Context, eng *engine.Engine, scene *scenefile.Scene, poll time.Duration,
	ended <-chan engine.SessionSummary, logger *log.Logger,
) (*engine.SessionSummary, error) {
	if _, err := eng.OnSceneChange(ctx, scene); err != nil {
		logger.Warn("initial publish failed", map[string]any{"error": err.Error()})
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	// pending holds a file change that the gate or the throttle held back.
	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case s := <-ended:
			return &s, nil
		case task := <-eng.Tasks():
			// Apply logs its own failures.
			_ = eng.Apply(task, scene)
			// Echo of the applied transform; the gate suppresses it during cooldown.
			_, _ = eng.OnSceneChange(ctx, scene)
		case <-ticker.C:
			changed, err := scene.Refresh()
			if err != nil {
				logger.Warn("scene reload failed", map[string]any{"path": scene.Path(), "error": err.Error()})
				continue
			}
			if !changed && !pending {
				continue
			}
			outcome, err := eng.OnSceneChange(ctx, scene)
			switch {
			case errors.Is(err, engine.ErrNotRunning):
				return nil, nil
			case err != nil:
				logger.Warn("publish failed", map[string]any{"error": err.Error()})
			}
			pending = outcome == engine.OutcomeSkippedGate || outcome == engine.OutcomeSkippedThrottled
		}
	}
}

func buildCache(ctx context.Context, opts pushOptions, scenePath string, logger *log.Logger) (*asset.Cache, error) {
	var store asset.ObjectStore
	if opts.s3.Region != "" || opts.s3.Endpoint != "" {
		s3Store, err := asset.NewS3Store(ctx, opts.s3)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 store: %w", err)
		}
		store = s3Store
	}

	baseDir := opts.baseDir
	if baseDir == "" {
		baseDir = filepath.Dir(scenePath)
	}
	return asset.NewCache(asset.Options{
		MaxEntries: opts.cacheSize,
		BaseDir:    baseDir,
		Store:      store,
		Logger:     logger.Named("asset"),
	})
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(choice adapterChoice) (adapter.Adapter, error) {
	switch choice.kind {
	case "":
		return nil, nil
	case "webhook":
		a, err := webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		a, err := redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", choice.kind)
	}
}

func newMetricsServer(src metrics.SnapshotSource, opts pushOptions) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := metrics.NewExporter(src, opts.metricsNamespace, opts.metricsLabels).Register(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}
