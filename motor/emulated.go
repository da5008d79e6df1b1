package motor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/altazimuth/lx200bridge/mount"
)

// EmulatedAxis simulates a stepper axis in software. The position
// advances toward the last commanded target at the commanded velocity;
// the advance is computed lazily from elapsed wall time on each read.
type EmulatedAxis struct {
	// Clock is settable for tests; defaults to time.Now.
	Clock func() time.Time

	mu       sync.Mutex
	position float64
	target   int64
	velocity float64
	last     time.Time
	open     bool
}

// NewEmulatedAxis returns an axis at step position zero.
func NewEmulatedAxis() *EmulatedAxis {
	return &EmulatedAxis{Clock: time.Now}
}

func (a *EmulatedAxis) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = true
	a.last = a.Clock()
	return nil
}

func (a *EmulatedAxis) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = false
	return nil
}

func (a *EmulatedAxis) SetTarget(cmd mount.AxisCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advanceLocked()
	a.target = cmd.Steps
	a.velocity = math.Abs(cmd.Velocity)
	return nil
}

func (a *EmulatedAxis) Position() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advanceLocked()
	return int64(math.Round(a.position)), nil
}

func (a *EmulatedAxis) advanceLocked() {
	now := a.Clock()
	dt := now.Sub(a.last).Seconds()
	a.last = now
	if dt <= 0 || a.velocity == 0 {
		return
	}
	remaining := float64(a.target) - a.position
	step := a.velocity * dt
	if math.Abs(remaining) <= step {
		a.position = float64(a.target)
		return
	}
	a.position += math.Copysign(step, remaining)
}

func init() {
	Register("emulated", func(p Params) (mount.Axis, error) {
		return NewEmulatedAxis(), nil
	})
}
