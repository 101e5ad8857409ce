package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/scenesync/engine"
	"github.com/pithecene-io/scenesync/gate"
	"github.com/pithecene-io/scenesync/metrics"
)

// DefaultRefresh is how often the view polls its source.
const DefaultRefresh = 250 * time.Millisecond

// Source is what the live view reads. *engine.Engine implements it.
type Source interface {
	Running() bool
	SessionID() string
	Peer() string
	Stats() metrics.Snapshot
	LastTransform() (engine.TransformState, bool)
	GateState() gate.State
	SceneFrequency() float64
	SetSceneFrequency(hz float64)
}

var _ Source = (*engine.Engine)(nil)

// Run shows the live view until the user quits or ctx is done.
func Run(ctx context.Context, src Source, refresh time.Duration) error {
	p := tea.NewProgram(NewModel(src, refresh), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
