// Package main provides the scenesync CLI entrypoint.
//
// Usage:
//
//	scenesync <command> [options]
//
// Exit codes for `push`:
//   - 0: session stopped or closed by the viewer
//   - 1: configuration or startup error
//   - 2: could not connect to the viewer
//   - 3: session ended on a connection error
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scenesync/cli/cmd"
	"github.com/pithecene-io/scenesync/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "scenesync",
		Usage:          "Sync a 3D scene to a remote viewer over TCP",
		Version:        fmt.Sprintf("%s (protocol %s, commit: %s)", types.Version, types.ProtocolVersion, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.PushCommand(),
			cmd.ViewerCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for handled errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode reports the process exit code for err, printing its message to
// w unless it is the bare "exit status N" of an empty cli.Exit.
func exitCode(err error, w io.Writer) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			_, _ = fmt.Fprintln(w, msg)
		}
		return code
	}

	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
