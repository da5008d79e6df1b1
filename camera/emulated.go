package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/altazimuth/lx200bridge/mount"
)

const (
	emulatedWidth  = 1280
	emulatedHeight = 960
)

// EmulatedCamera produces blank frames. It exercises the capture path
// without hardware; the paired solver never finds a match.
type EmulatedCamera struct {
	Clock func() time.Time

	mu       sync.Mutex
	open     bool
	settings mount.CaptureSettings
}

func NewEmulatedCamera() *EmulatedCamera {
	return &EmulatedCamera{Clock: time.Now}
}

func (c *EmulatedCamera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.settings = mount.CaptureSettings{
		MaxImageSize: emulatedWidth,
		BitDepth:     8,
		ExposureTime: 100 * time.Millisecond,
	}
	return nil
}

func (c *EmulatedCamera) Configure(s mount.CaptureSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return fmt.Errorf("camera not open")
	}
	c.settings = s
	return nil
}

func (c *EmulatedCamera) Capture(ctx context.Context) (mount.Image, error) {
	c.mu.Lock()
	exposure := c.settings.ExposureTime
	depth := c.settings.BitDepth
	open := c.open
	c.mu.Unlock()
	if !open {
		return mount.Image{}, fmt.Errorf("camera not open")
	}
	select {
	case <-ctx.Done():
		return mount.Image{}, ctx.Err()
	case <-time.After(exposure):
	}
	bytesPerPixel := 1
	if depth > 8 {
		bytesPerPixel = 2
	}
	return mount.Image{
		Width:    emulatedWidth,
		Height:   emulatedHeight,
		BitDepth: depth,
		Pix:      make([]byte, emulatedWidth*emulatedHeight*bytesPerPixel),
		TakenAt:  c.Clock(),
	}, nil
}

func (c *EmulatedCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// NoMatchSolver reports every frame as unsolved. Blank frames carry no
// star pattern to match against.
type NoMatchSolver struct{}

func (NoMatchSolver) Solve(ctx context.Context, img mount.Image, focalLengthMM float64) (mount.SolveResult, error) {
	if err := ctx.Err(); err != nil {
		return mount.SolveResult{}, err
	}
	return mount.SolveResult{CapturedAt: img.TakenAt}, nil
}

func init() {
	Register("emulated", func(p Params) (mount.Camera, mount.Solver, error) {
		return NewEmulatedCamera(), NoMatchSolver{}, nil
	})
}
