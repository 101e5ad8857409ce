package gate

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pithecene-io/scenesync/types"
)

func TestGate_CooldownWindow(t *testing.T) {
	clk := clock.NewMock()
	g := New(clk, 0)

	if !g.Allows() {
		t.Fatal("new gate should allow publishes")
	}

	u := types.NewTransformUpdate()
	u.ObjectName = "Box"
	g.BeginApply(u)
	if g.Allows() {
		t.Error("gate allowed a publish while applying")
	}
	if g.State() != Applying {
		t.Errorf("State = %v, want applying", g.State())
	}

	clk.Add(5 * time.Second)
	if g.Allows() {
		t.Error("Applying must not expire on its own")
	}

	g.EndApply()
	clk.Add(999 * time.Millisecond)
	if g.Allows() {
		t.Error("gate allowed a publish 999ms into cooldown")
	}
	if got := g.Remaining(); got != time.Millisecond {
		t.Errorf("Remaining = %v, want 1ms", got)
	}

	clk.Add(time.Millisecond)
	if !g.Allows() {
		t.Error("gate still closed at the cooldown deadline")
	}
	if g.State() != Idle {
		t.Errorf("State = %v, want idle", g.State())
	}
	if g.Remaining() != 0 {
		t.Errorf("Remaining = %v, want 0", g.Remaining())
	}
}

func TestGate_LastApplied(t *testing.T) {
	g := New(clock.NewMock(), time.Second)
	if g.LastApplied() != nil {
		t.Fatal("expected no last transform")
	}

	u := types.NewTransformUpdate()
	u.ObjectName = "Cube"
	u.Position = types.Vec3{1, 2, 3}
	g.BeginApply(u)
	u.Position = types.Vec3{9, 9, 9}

	last := g.LastApplied()
	if last == nil || last.ObjectName != "Cube" || last.Position != (types.Vec3{1, 2, 3}) {
		t.Errorf("LastApplied = %+v, want copy taken at BeginApply", last)
	}

	g.Reset()
	if g.LastApplied() != nil || g.State() != Idle {
		t.Error("Reset should clear state and last transform")
	}
}

func TestGate_ReapplyDuringCooldownRestartsWindow(t *testing.T) {
	clk := clock.NewMock()
	g := New(clk, time.Second)

	g.BeginApply(nil)
	g.EndApply()
	clk.Add(800 * time.Millisecond)

	g.BeginApply(nil)
	g.EndApply()
	clk.Add(800 * time.Millisecond)
	if g.Allows() {
		t.Error("second apply should restart the cooldown")
	}
	clk.Add(200 * time.Millisecond)
	if !g.Allows() {
		t.Error("gate should reopen one cooldown after the second apply")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Idle, "idle"},
		{Applying, "applying"},
		{Cooldown, "cooldown"},
		{State(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
