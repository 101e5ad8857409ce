// Package gate implements the anti-feedback state machine and the trigger
// throttles that sit in front of the outbound pipeline.
//
// The gate closes while an inbound transform is being applied to the host
// scene and stays closed for a cooldown afterwards, so the host's own change
// notifications for that edit are not echoed back to the viewer.
package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pithecene-io/scenesync/types"
)

// DefaultCooldown is how long outbound publishes stay suppressed after an
// inbound transform has been applied.
const DefaultCooldown = time.Second

// State is the gate state.
type State int

const (
	// Idle allows publishes.
	Idle State = iota
	// Applying vetoes publishes while an inbound transform is applied.
	Applying
	// Cooldown vetoes publishes until the cooldown deadline passes.
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Applying:
		return "applying"
	case Cooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Gate is the anti-feedback gate. Safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	clk      clock.Clock
	cooldown time.Duration

	state    State
	deadline time.Time
	last     *types.TransformUpdate
}

// New creates an idle gate. A nil clock uses the wall clock; a non-positive
// cooldown uses DefaultCooldown.
func New(clk clock.Clock, cooldown time.Duration) *Gate {
	if clk == nil {
		clk = clock.New()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{clk: clk, cooldown: cooldown}
}

// BeginApply moves the gate to Applying and records the transform.
func (g *Gate) BeginApply(t *types.TransformUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = Applying
	g.deadline = time.Time{}
	if t != nil {
		cp := *t
		g.last = &cp
	}
}

// EndApply moves the gate to Cooldown with a deadline of now + cooldown.
// It must be called after BeginApply whether or not the apply succeeded.
func (g *Gate) EndApply() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = Cooldown
	g.deadline = g.clk.Now().Add(g.cooldown)
}

// Allows reports whether an outbound publish may proceed.
// An expired cooldown is moved to Idle here.
func (g *Gate) Allows() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.advanceLocked() == Idle
}

// State returns the current state, expiring a finished cooldown.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.advanceLocked()
}

// Remaining returns the time left in the current cooldown, zero otherwise.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.advanceLocked() != Cooldown {
		return 0
	}
	return g.deadline.Sub(g.clk.Now())
}

// LastApplied returns a copy of the last transform passed to BeginApply,
// or nil if none.
func (g *Gate) LastApplied() *types.TransformUpdate {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return nil
	}
	cp := *g.last
	return &cp
}

// Reset returns the gate to Idle and forgets the last transform.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Idle
	g.deadline = time.Time{}
	g.last = nil
}

func (g *Gate) advanceLocked() State {
	if g.state == Cooldown && !g.clk.Now().Before(g.deadline) {
		g.state = Idle
		g.deadline = time.Time{}
	}
	return g.state
}
