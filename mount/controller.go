package mount

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/altazimuth/lx200bridge/astro"
)

const (
	// DefaultInterval is the tracking loop tick interval.
	DefaultInterval = 200 * time.Millisecond
	// DefaultSolveTimeout bounds one capture+solve cycle.
	DefaultSolveTimeout = 2 * time.Second
	// arrivalTolerance is the angular distance below which an axis
	// counts as having reached its target. One arcminute.
	arrivalTolerance = 1.0 / 60
)

// Slew rate fractions of the maximum axis velocity, selected by the
// RC/RG/RM/RS commands.
const (
	SlewRateCentering = 0.01
	SlewRateGuiding   = 0.1
	SlewRateFind      = 0.5
	SlewRateMax       = 1.0
)

var (
	ErrBelowHorizon = errors.New("target below horizon")
	ErrAxisFault    = errors.New("axis faulted")
)

// Direction is a manual slew direction (Mn/Ms/Me/Mw).
type Direction int

const (
	North Direction = iota
	South
	East
	West
)

// AxisConfig binds an Axis to its mechanical parameters.
type AxisConfig struct {
	Axis Axis
	// GearReduction is the angle of axis rotation per motor step,
	// in degrees.
	GearReduction float64
	// MaxVelocity is the fastest slew velocity in steps/sec.
	MaxVelocity float64
}

// SolverConfig binds a camera to a plate solver.
type SolverConfig struct {
	Camera        Camera
	Solver        Solver
	FocalLengthMM float64
	Timeout       time.Duration
	// SaveImages writes each captured frame to SaveDir (or the system
	// temp directory) as a PGM file.
	SaveImages bool
	SaveDir    string
}

// Config configures a Controller.
type Config struct {
	// Alt and Az are nil in emulated (push-to) mode.
	Alt *AxisConfig
	Az  *AxisConfig
	// Solver is nil when plate solving is disabled.
	Solver *SolverConfig

	SiteName      string
	SiteLatitude  float64
	SiteLongitude float64

	Interval       time.Duration
	Now            func() time.Time
	StatusCallback StatusCallback
}

// Controller owns the mount state. The tracking loop is the sole
// writer of the current position; command handlers are the sole
// writers of the target, sync offset and site fields. Every update is
// applied under one lock acquisition so readers always observe a
// consistent snapshot.
type Controller struct {
	alt      *AxisConfig
	az       *AxisConfig
	solver   *SolverConfig
	interval time.Duration
	now      func() time.Time

	statusCallback StatusCallback

	mu           sync.Mutex
	status       Status
	hasTarget    bool
	manualSlew   bool
	slewRate     float64
	clockOffset  time.Duration
	abortPending bool
	altSteps     int64
	azSteps      int64
}

// NewController returns a stopped controller; call Run to start the
// tracking loop.
func NewController(cfg Config) *Controller {
	c := &Controller{
		alt:            cfg.Alt,
		az:             cfg.Az,
		solver:         cfg.Solver,
		interval:       cfg.Interval,
		now:            cfg.Now,
		statusCallback: cfg.StatusCallback,
		slewRate:       SlewRateMax,
		status: Status{
			SiteName:      cfg.SiteName,
			SiteLatitude:  cfg.SiteLatitude,
			SiteLongitude: cfg.SiteLongitude,
		},
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.solver != nil && c.solver.Timeout <= 0 {
		c.solver.Timeout = DefaultSolveTimeout
	}
	return c
}

// Status returns a snapshot of the mount state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Now returns the mount time: wall time adjusted by the offset set
// through the protocol.
func (c *Controller) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Controller) nowLocked() time.Time {
	return c.now().Add(c.clockOffset)
}

// SetClock adjusts the mount clock so that Now reports t.
func (c *Controller) SetClock(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clockOffset = t.Sub(c.now())
}

// SetSite updates the observing site coordinates.
func (c *Controller) SetSite(latDeg, lonDeg float64) {
	c.mu.Lock()
	c.status.SiteLatitude = astro.ClampDec(latDeg)
	c.status.SiteLongitude = lonDeg
	status := c.status
	c.mu.Unlock()
	c.notify(status)
}

// SetSlewRate selects the slew velocity as a fraction of the maximum
// axis velocity.
func (c *Controller) SetSlewRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slewRate = math.Max(0.001, math.Min(SlewRateMax, rate))
}

// RADec reports the mount's observed equatorial position: the current
// alt/az with the sync offset applied, converted through the transform
// engine at the mount time.
func (c *Controller) RADec() (raDeg, decDeg float64) {
	c.mu.Lock()
	status := c.status
	t := c.nowLocked()
	c.mu.Unlock()
	offset := astro.SyncOffset{AltDeg: status.OffsetAlt, AzDeg: status.OffsetAz}
	alt, az := offset.Apply(status.CurrentAlt, status.CurrentAz)
	return astro.ToEquatorial(alt, az, status.SiteLatitude, status.SiteLongitude, t)
}

// SlewTo commits a target and starts a slew. The target must be above
// the horizon and no configured axis may be faulted.
func (c *Controller) SlewTo(raDeg, decDeg float64) error {
	raDeg = astro.NormalizeAngle(raDeg)
	decDeg = astro.ClampDec(decDeg)
	c.mu.Lock()
	if c.status.AltFault || c.status.AzFault {
		c.mu.Unlock()
		return ErrAxisFault
	}
	alt, _ := astro.ToHorizontal(raDeg, decDeg, c.status.SiteLatitude, c.status.SiteLongitude, c.nowLocked())
	if alt <= 0 {
		c.mu.Unlock()
		return ErrBelowHorizon
	}
	c.status.TargetRA = raDeg
	c.status.TargetDec = decDeg
	c.hasTarget = true
	c.manualSlew = false
	c.status.Slewing = true
	status := c.status
	c.mu.Unlock()
	c.notify(status)
	return nil
}

// Sync declares that the mount is currently pointing at the given
// equatorial coordinate. The stored offset makes the observed position
// equal the commanded one at this instant.
func (c *Controller) Sync(raDeg, decDeg float64) {
	raDeg = astro.NormalizeAngle(raDeg)
	decDeg = astro.ClampDec(decDeg)
	c.mu.Lock()
	t := c.nowLocked()
	alt, az := astro.ToHorizontal(raDeg, decDeg, c.status.SiteLatitude, c.status.SiteLongitude, t)
	c.status.OffsetAlt = alt - c.status.CurrentAlt
	d := astro.NormalizeAngle(az - c.status.CurrentAz)
	if d > 180 {
		d -= 360
	}
	c.status.OffsetAz = d
	c.status.TargetRA = raDeg
	c.status.TargetDec = decDeg
	status := c.status
	c.mu.Unlock()
	c.notify(status)
}

// SlewInDirection starts a manual slew at the selected slew rate. With
// no motors configured this is a no-op.
func (c *Controller) SlewInDirection(dir Direction) {
	c.mu.Lock()
	rate := c.slewRate
	var cfg *AxisConfig
	var target float64
	wrap := false
	switch dir {
	case North:
		cfg, target = c.alt, 90
	case South:
		cfg, target = c.alt, 0
	case East:
		cfg, target = c.az, astro.NormalizeAngle(float64(c.azSteps)*c.azGearLocked()-90)
		wrap = true
	case West:
		cfg, target = c.az, astro.NormalizeAngle(float64(c.azSteps)*c.azGearLocked()+90)
		wrap = true
	}
	if cfg == nil {
		c.mu.Unlock()
		return
	}
	c.manualSlew = true
	c.hasTarget = false
	c.status.Slewing = true
	current := c.altSteps
	if wrap {
		current = c.azSteps
	}
	status := c.status
	c.mu.Unlock()
	cmd := AxisCommand{
		Steps:    stepsForAngle(target, cfg.GearReduction, current, wrap),
		Velocity: rate * cfg.MaxVelocity,
	}
	if err := cfg.Axis.SetTarget(cmd); err != nil {
		log.Printf("manual slew: %v", err)
	}
	c.notify(status)
}

// AbortSlew stops all motion. Both axes receive a zero-velocity
// command immediately and again on the next tick, and the slewing flag
// clears before the call returns.
func (c *Controller) AbortSlew() {
	c.mu.Lock()
	c.hasTarget = false
	c.manualSlew = false
	c.status.Slewing = false
	c.abortPending = true
	altSteps, azSteps := c.altSteps, c.azSteps
	status := c.status
	c.mu.Unlock()
	c.stopAxes(altSteps, azSteps)
	c.notify(status)
}

func (c *Controller) azGearLocked() float64 {
	if c.az == nil {
		return 0
	}
	return c.az.GearReduction
}

func (c *Controller) stopAxes(altSteps, azSteps int64) {
	if c.alt != nil {
		if err := c.alt.Axis.SetTarget(AxisCommand{Steps: altSteps}); err != nil {
			log.Printf("stopping alt axis: %v", err)
		}
	}
	if c.az != nil {
		if err := c.az.Axis.SetTarget(AxisCommand{Steps: azSteps}); err != nil {
			log.Printf("stopping az axis: %v", err)
		}
	}
}

func (c *Controller) notify(status Status) {
	if c.statusCallback != nil {
		c.statusCallback(status)
	}
}

// Run connects the hardware and runs the tracking loop until the
// context is canceled, then disconnects, tolerating hardware errors.
func (c *Controller) Run(ctx context.Context) error {
	for _, a := range []*AxisConfig{c.alt, c.az} {
		if a == nil {
			continue
		}
		if err := a.Axis.Connect(ctx); err != nil {
			log.Printf("connecting axis: %v", err)
			c.faultAxis(a)
		}
	}
	if c.solver != nil {
		if err := c.solver.Camera.Open(ctx); err != nil {
			log.Printf("opening camera: %v", err)
			c.solver = nil
		}
	}
	defer func() {
		for _, a := range []*AxisConfig{c.alt, c.az} {
			if a == nil {
				continue
			}
			if err := a.Axis.Disconnect(); err != nil {
				log.Printf("disconnecting axis: %v", err)
			}
		}
		if c.solver != nil {
			if err := c.solver.Camera.Close(); err != nil {
				log.Printf("closing camera: %v", err)
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.interval):
		}
		c.tick(ctx)
	}
}

// Tick runs one tracking loop cycle. Exported for tests; Run calls it
// periodically.
func (c *Controller) Tick(ctx context.Context) {
	c.tick(ctx)
}

func (c *Controller) tick(ctx context.Context) {
	c.mu.Lock()
	abort := c.abortPending
	c.abortPending = false
	old := c.status
	hasTarget := c.hasTarget
	targetRA, targetDec := c.status.TargetRA, c.status.TargetDec
	offset := astro.SyncOffset{AltDeg: c.status.OffsetAlt, AzDeg: c.status.OffsetAz}
	lat, lon := c.status.SiteLatitude, c.status.SiteLongitude
	rate := c.slewRate
	t := c.nowLocked()
	altSteps, azSteps := c.altSteps, c.azSteps
	c.mu.Unlock()

	if abort {
		c.stopAxes(altSteps, azSteps)
	}

	motors := c.alt != nil || c.az != nil

	var (
		altAngle, azAngle   float64
		altOK, azOK         bool
		altFault, azFault   bool
		stale               bool
		altArrive, azArrive = true, true
	)

	if motors {
		if c.alt != nil {
			steps, err := c.alt.Axis.Position()
			if err != nil {
				log.Printf("reading alt axis: %v", err)
				altFault, stale = true, true
			} else {
				altSteps = steps
				altAngle = astro.ClampAlt(float64(steps) * c.alt.GearReduction)
				altOK = true
			}
		}
		if c.az != nil {
			steps, err := c.az.Axis.Position()
			if err != nil {
				log.Printf("reading az axis: %v", err)
				azFault, stale = true, true
			} else {
				azSteps = steps
				azAngle = astro.NormalizeAngle(float64(steps) * c.az.GearReduction)
				azOK = true
			}
		}
	} else if c.solver != nil {
		if res, ok := c.solveOnce(ctx); ok {
			alt, az := astro.ToHorizontal(res.RADeg, res.DecDeg, lat, lon, res.CapturedAt)
			alt, az = offset.Remove(alt, az)
			altAngle, azAngle = astro.ClampAlt(alt), az
			altOK, azOK = true, true
		} else {
			stale = true
		}
	}

	// Drive the axes toward the committed target.
	if motors && hasTarget && !abort {
		talt, taz := astro.ToHorizontal(targetRA, targetDec, lat, lon, t)
		talt, taz = offset.Remove(talt, taz)
		talt = astro.ClampAlt(talt)
		if c.alt != nil {
			tgt := stepsForAngle(talt, c.alt.GearReduction, altSteps, false)
			cmd := AxisCommand{Steps: tgt, Velocity: rate * c.alt.MaxVelocity}
			if err := c.alt.Axis.SetTarget(cmd); err != nil {
				log.Printf("commanding alt axis: %v", err)
				altFault, stale = true, true
			}
			altArrive = math.Abs(float64(tgt-altSteps))*c.alt.GearReduction < arrivalTolerance
		}
		if c.az != nil {
			tgt := stepsForAngle(taz, c.az.GearReduction, azSteps, true)
			cmd := AxisCommand{Steps: tgt, Velocity: rate * c.az.MaxVelocity}
			if err := c.az.Axis.SetTarget(cmd); err != nil {
				log.Printf("commanding az axis: %v", err)
				azFault, stale = true, true
			}
			azArrive = math.Abs(float64(tgt-azSteps))*c.az.GearReduction < arrivalTolerance
		}
	}

	c.mu.Lock()
	c.altSteps, c.azSteps = altSteps, azSteps
	// A healthy position read clears the fault; the reconnect loops in
	// the drivers are expected to bring a lost axis back.
	if altOK {
		c.status.CurrentAlt = altAngle
		c.status.AltFault = false
	}
	if azOK {
		c.status.CurrentAz = azAngle
		c.status.AzFault = false
	}
	c.status.Stale = stale
	if altFault {
		c.status.AltFault = true
	}
	if azFault {
		c.status.AzFault = true
	}
	if motors && c.hasTarget && !c.manualSlew {
		c.status.Slewing = !(altArrive && azArrive)
	}
	status := c.status
	changed := status != old
	c.mu.Unlock()
	if changed {
		c.notify(status)
	}
}

func (c *Controller) solveOnce(ctx context.Context) (SolveResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.solver.Timeout)
	defer cancel()
	img, err := c.solver.Camera.Capture(ctx)
	if err != nil {
		log.Printf("capturing image: %v", err)
		return SolveResult{}, false
	}
	if c.solver.SaveImages {
		if err := saveImage(c.solver.SaveDir, img); err != nil {
			log.Printf("saving image: %v", err)
		}
	}
	res, err := c.solver.Solver.Solve(ctx, img, c.solver.FocalLengthMM)
	if err != nil {
		log.Printf("solving image: %v", err)
		return SolveResult{}, false
	}
	if !res.Matched {
		return SolveResult{}, false
	}
	return res, true
}

func (c *Controller) faultAxis(a *AxisConfig) {
	c.mu.Lock()
	if a == c.alt {
		c.status.AltFault = true
	} else {
		c.status.AzFault = true
	}
	c.mu.Unlock()
}

// stepsForAngle converts a target angle to a step position. For a wrap
// axis the result is chosen within half a revolution of the current
// position so the axis takes the short way around.
func stepsForAngle(angleDeg, gearReduction float64, current int64, wrap bool) int64 {
	steps := math.Round(angleDeg / gearReduction)
	if wrap {
		full := 360 / gearReduction
		for steps-float64(current) > full/2 {
			steps -= full
		}
		for steps-float64(current) < -full/2 {
			steps += full
		}
	}
	return int64(steps)
}
