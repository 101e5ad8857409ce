package gate

import (
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// Frequency bounds and defaults, in Hz.
const (
	MinFrequency          = 1
	MaxFrequency          = 60
	DefaultSceneFrequency = 10
	DefaultFrameFrequency = 60
)

// ClampFrequency bounds hz to [MinFrequency, MaxFrequency].
func ClampFrequency(hz float64) float64 {
	switch {
	case hz < MinFrequency:
		return MinFrequency
	case hz > MaxFrequency:
		return MaxFrequency
	default:
		return hz
	}
}

// Throttle admits at most one event per 1/frequency interval.
// Safe for concurrent use.
type Throttle struct {
	mu      sync.Mutex
	clk     clock.Clock
	hz      float64
	limiter *rate.Limiter
}

// NewThrottle creates a throttle at hz (clamped). A nil clock uses the
// wall clock.
func NewThrottle(clk clock.Clock, hz float64) *Throttle {
	if clk == nil {
		clk = clock.New()
	}
	t := &Throttle{clk: clk}
	t.SetFrequency(hz)
	return t
}

// Allow reports whether an event may pass now, consuming the slot if so.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limiter.AllowN(t.clk.Now(), 1)
}

// Frequency returns the effective frequency in Hz.
func (t *Throttle) Frequency() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hz
}

// SetFrequency changes the frequency (clamped) and resets the limiter.
func (t *Throttle) SetFrequency(hz float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hz = ClampFrequency(hz)
	t.limiter = rate.NewLimiter(rate.Limit(t.hz), 1)
}

// Reset forgets previous events so the next Allow passes.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiter = rate.NewLimiter(rate.Limit(t.hz), 1)
}
