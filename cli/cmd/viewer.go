package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/scenesync/cli/render"
	"github.com/pithecene-io/scenesync/iox"
	"github.com/pithecene-io/scenesync/log"
	"github.com/pithecene-io/scenesync/types"
	"github.com/pithecene-io/scenesync/viewer"
)

// ViewerCommand returns the viewer command, a minimal peer for exercising
// push without a real viewer.
func ViewerCommand() *cli.Command {
	return &cli.Command{
		Name:  "viewer",
		Usage: "Listen for a sync session and print a summary of each scene",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address to listen on",
				Value: "localhost:10006",
			},
			&cli.BoolFlag{
				Name:  "compress",
				Usage: "Send transform updates zlib-compressed",
			},
			&cli.StringFlag{
				Name:  "send-object",
				Usage: "Send one transform_update for this object once connected",
			},
			&cli.StringFlag{
				Name:  "send-position",
				Usage: "Position as x,y,z",
				Value: "0,0,0",
			},
			&cli.StringFlag{
				Name:  "send-rotation",
				Usage: "Euler XYZ rotation in radians as x,y,z",
				Value: "0,0,0",
			},
			&cli.StringFlag{
				Name:  "send-scale",
				Usage: "Scale as x,y,z",
				Value: "1,1,1",
			},
			&cli.DurationFlag{
				Name:  "send-after",
				Usage: "Delay between connect and sending the transform",
				Value: time.Second,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
		}, OutputFlags()...),
		Action: viewerAction,
	}
}

func viewerAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	lvl, err := log.ParseLevel(c.String("log-level"))
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}
	logger := log.NewLogger("viewer")
	logger.SetLevel(lvl)
	defer iox.DiscardErr(logger.Sync)

	var outbound *types.TransformUpdate
	if name := c.String("send-object"); name != "" {
		outbound, err = transformFromFlags(c, name)
		if err != nil {
			return cli.Exit(err.Error(), exitError)
		}
	}

	v, err := viewer.Listen(viewer.Config{
		Address:  c.String("listen"),
		Compress: c.Bool("compress"),
		Logger:   logger,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}
	defer iox.CloseFunc(v)()
	logger.Sugar().Infof("listening on %s", v.Addr())

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return v.Serve(gctx, func(u *types.SceneUpdate, n int) {
			if err := r.Render(viewer.Summarize(u, n)); err != nil {
				logger.Warn("render failed", map[string]any{"error": err.Error()})
			}
		})
	})
	if outbound != nil {
		g.Go(func() error {
			return sendWhenConnected(gctx, v, outbound, c.Duration("send-after"), logger)
		})
	}
	return g.Wait()
}

// sendWhenConnected waits for an engine, then sends u after delay.
func sendWhenConnected(ctx context.Context, v *viewer.Viewer, u *types.TransformUpdate, delay time.Duration, logger *log.Logger) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !v.Connected() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(delay):
	}

	u.Timestamp = float64(time.Now().UnixNano()) / 1e9
	if err := v.SendTransform(u); err != nil {
		return fmt.Errorf("send transform: %w", err)
	}
	logger.Info("transform sent", map[string]any{"object": u.ObjectName})
	return nil
}

func transformFromFlags(c *cli.Context, name string) (*types.TransformUpdate, error) {
	u := types.NewTransformUpdate()
	u.ObjectName = name

	var err error
	if u.Position, err = parseVec3(c.String("send-position")); err != nil {
		return nil, fmt.Errorf("--send-position: %w", err)
	}
	if u.Rotation, err = parseVec3(c.String("send-rotation")); err != nil {
		return nil, fmt.Errorf("--send-rotation: %w", err)
	}
	if u.Scale, err = parseVec3(c.String("send-scale")); err != nil {
		return nil, fmt.Errorf("--send-scale: %w", err)
	}
	return u, nil
}

// parseVec3 parses "x,y,z".
func parseVec3(s string) (types.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return types.Vec3{}, fmt.Errorf("invalid vector %q: want x,y,z", s)
	}
	var v types.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.Vec3{}, fmt.Errorf("invalid vector %q: %w", s, err)
		}
		v[i] = f
	}
	return v, nil
}
