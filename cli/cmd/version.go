package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scenesync/cli/render"
	"github.com/pithecene-io/scenesync/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version  string `json:"version"`
	Protocol string `json:"protocol"`
	Commit   string `json:"commit"`
}

// VersionCommand returns the version command.
// It must not contact a viewer.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  OutputFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.Render(newVersionResponse(commit))
	}
}

func newVersionResponse(commit string) VersionResponse {
	return VersionResponse{
		Version:  types.Version,
		Protocol: types.ProtocolVersion,
		Commit:   commit,
	}
}
