// Package mount holds the shared mount state and the position tracking
// loop that reconciles it with the motor axes or the plate solver.
package mount

import (
	"context"
	"time"
)

// AxisCommand is one target for a single axis: an absolute step
// position and the maximum velocity to reach it with. A new command
// overwrites the previous one; commands never queue.
type AxisCommand struct {
	Steps    int64
	Velocity float64 // steps/sec
}

// Axis drives a single stepper axis. Implementations must not block
// the caller on hardware I/O; repeated identical commands are
// idempotent.
type Axis interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SetTarget(cmd AxisCommand) error
	// Position returns the current step count.
	Position() (int64, error)
}

// Image is a single captured frame.
type Image struct {
	Width    int
	Height   int
	BitDepth int
	Pix      []byte
	TakenAt  time.Time
}

// CaptureSettings configures a camera for plate-solving frames.
type CaptureSettings struct {
	MaxImageSize int
	BitDepth     int
	Gain         int
	ExposureTime time.Duration
}

// Camera captures frames for the plate solver.
type Camera interface {
	Open(ctx context.Context) error
	Configure(s CaptureSettings) error
	Capture(ctx context.Context) (Image, error)
	Close() error
}

// SolveResult is the outcome of one plate solve. Matched is false when
// the solver found no star-pattern match; the coordinate fields are
// only valid when Matched is true.
type SolveResult struct {
	RADeg      float64
	DecDeg     float64
	Quality    float64
	Matched    bool
	CapturedAt time.Time
}

// Solver maps an image taken at a known focal length to a sky
// position. The solving algorithm is a black box.
type Solver interface {
	Solve(ctx context.Context, img Image, focalLengthMM float64) (SolveResult, error)
}

// StatusCallback receives a status snapshot whenever it changes.
type StatusCallback func(status Status)

// Status is a consistent snapshot of the mount state. Angles are in
// decimal degrees; azimuth is measured from north, clockwise.
type Status struct {
	TargetRA  float64 `json:"target_ra"`
	TargetDec float64 `json:"target_dec"`

	CurrentAlt float64 `json:"current_alt"`
	CurrentAz  float64 `json:"current_az"`

	OffsetAlt float64 `json:"offset_alt"`
	OffsetAz  float64 `json:"offset_az"`

	SiteName      string  `json:"site_name"`
	SiteLatitude  float64 `json:"site_latitude"`
	SiteLongitude float64 `json:"site_longitude"`

	// Slewing is true while a committed target has not been reached.
	Slewing bool `json:"slewing"`
	// Stale is true when the current position could not be refreshed
	// on the last tick.
	Stale bool `json:"stale"`

	AltFault bool `json:"alt_fault"`
	AzFault  bool `json:"az_fault"`
}
