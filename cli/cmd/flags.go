// Package cmd provides CLI commands for the scenesync binary.
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scenesync/cli/config"
)

// Shared output flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// OutputFlags returns the flags every command that renders results accepts.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// configVal reads a value from an optional config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// resolveString returns the CLI value when the flag was set, then the
// config value when non-empty, then the flag default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveFloat(c *cli.Context, name string, cfgVal float64) float64 {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Float64(name)
	}
	return cfgVal
}

// resolveBool only lets config turn a default-false flag on.
func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// parseHeaders parses repeated "Key=Value" flags on top of base.
func parseHeaders(base map[string]string, pairs []string) (map[string]string, error) {
	if len(base) == 0 && len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(base)+len(pairs))
	for k, v := range base {
		out[k] = v
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header %q: want Key=Value", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
