package mount

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/altazimuth/lx200bridge/astro"
)

var testTime = time.Date(2024, time.March, 18, 22, 0, 0, 0, time.UTC)

const (
	testLat  = 40.5013
	testLon  = -3.8851
	testGear = 360.0 / 200 / 16 / 2000
)

type fakeAxis struct {
	mu     sync.Mutex
	pos    int64
	posErr error
	cmds   []AxisCommand
}

func (a *fakeAxis) Connect(ctx context.Context) error { return nil }

func (a *fakeAxis) Disconnect() error { return nil }

func (a *fakeAxis) SetTarget(cmd AxisCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cmds = append(a.cmds, cmd)
	return nil
}

func (a *fakeAxis) Position() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos, a.posErr
}

func (a *fakeAxis) lastCmd(t *testing.T) AxisCommand {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.cmds) == 0 {
		t.Fatal("no axis command issued")
	}
	return a.cmds[len(a.cmds)-1]
}

func (a *fakeAxis) setPos(pos int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pos = pos
}

func (a *fakeAxis) setErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.posErr = err
}

type fakeCamera struct{ clock func() time.Time }

func (c *fakeCamera) Open(ctx context.Context) error { return nil }

func (c *fakeCamera) Configure(s CaptureSettings) error { return nil }

func (c *fakeCamera) Close() error { return nil }

func (c *fakeCamera) Capture(ctx context.Context) (Image, error) {
	return Image{Width: 1280, Height: 960, TakenAt: c.clock()}, nil
}

type fakeSolver struct {
	mu      sync.Mutex
	results []SolveResult
}

func (s *fakeSolver) Solve(ctx context.Context, img Image, focalLengthMM float64) (SolveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return SolveResult{}, errors.New("no scripted result")
	}
	res := s.results[0]
	s.results = s.results[1:]
	if res.CapturedAt.IsZero() {
		res.CapturedAt = img.TakenAt
	}
	return res, nil
}

func motorConfig(axis *fakeAxis) *AxisConfig {
	return &AxisConfig{Axis: axis, GearReduction: testGear, MaxVelocity: 1.0 / testGear}
}

// aboveHorizon returns an equatorial target that sits at the given
// alt/az for the test site and time.
func aboveHorizon(altDeg, azDeg float64) (ra, dec float64) {
	return astro.ToEquatorial(altDeg, azDeg, testLat, testLon, testTime)
}

func TestSlewDrivesAxes(t *testing.T) {
	alt, az := &fakeAxis{}, &fakeAxis{}
	c := NewController(Config{
		Alt:          motorConfig(alt),
		Az:           motorConfig(az),
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
	})

	ra, dec := aboveHorizon(45, 120)
	if err := c.SlewTo(ra, dec); err != nil {
		t.Fatal(err)
	}
	if !c.Status().Slewing {
		t.Error("Slewing = false after SlewTo")
	}

	c.Tick(context.Background())

	wantAltSteps := int64(math.Round(45 / testGear))
	wantAzSteps := int64(math.Round(120 / testGear))
	altCmd, azCmd := alt.lastCmd(t), az.lastCmd(t)
	if altCmd.Steps != wantAltSteps {
		t.Errorf("alt target = %d steps, want %d", altCmd.Steps, wantAltSteps)
	}
	if azCmd.Steps != wantAzSteps {
		t.Errorf("az target = %d steps, want %d", azCmd.Steps, wantAzSteps)
	}
	if altCmd.Velocity != 1.0/testGear {
		t.Errorf("alt velocity = %v, want max", altCmd.Velocity)
	}

	// Arrive and observe the slewing flag clear.
	alt.setPos(wantAltSteps)
	az.setPos(wantAzSteps)
	c.Tick(context.Background())
	st := c.Status()
	if st.Slewing {
		t.Error("Slewing = true after arrival")
	}
	if math.Abs(st.CurrentAlt-45) > 1e-3 || math.Abs(st.CurrentAz-120) > 1e-3 {
		t.Errorf("current = (%v, %v), want (45, 120)", st.CurrentAlt, st.CurrentAz)
	}
}

func TestStepAngleConversion(t *testing.T) {
	alt, az := &fakeAxis{}, &fakeAxis{}
	c := NewController(Config{
		Alt:          motorConfig(alt),
		Az:           motorConfig(az),
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
	})

	// Azimuth wraps modulo a full revolution; altitude clamps.
	az.setPos(int64(math.Round(370 / testGear)))
	alt.setPos(int64(math.Round(95 / testGear)))
	c.Tick(context.Background())
	st := c.Status()
	if math.Abs(st.CurrentAz-10) > 1e-3 {
		t.Errorf("CurrentAz = %v, want 10", st.CurrentAz)
	}
	if st.CurrentAlt != 90 {
		t.Errorf("CurrentAlt = %v, want 90", st.CurrentAlt)
	}

	az.setPos(int64(math.Round(-90 / testGear)))
	c.Tick(context.Background())
	if st := c.Status(); math.Abs(st.CurrentAz-270) > 1e-3 {
		t.Errorf("CurrentAz = %v, want 270", st.CurrentAz)
	}
}

func TestSlewBelowHorizonRejected(t *testing.T) {
	c := NewController(Config{
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
	})
	ra, dec := astro.ToEquatorial(-30, 45, testLat, testLon, testTime)
	if err := c.SlewTo(ra, dec); !errors.Is(err, ErrBelowHorizon) {
		t.Errorf("SlewTo below horizon err = %v, want ErrBelowHorizon", err)
	}
	if c.Status().Slewing {
		t.Error("rejected slew set the slewing flag")
	}
}

func TestAxisFaultIsolated(t *testing.T) {
	alt, az := &fakeAxis{}, &fakeAxis{}
	az.posErr = errors.New("bus timeout")
	c := NewController(Config{
		Alt:          motorConfig(alt),
		Az:           motorConfig(az),
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
	})
	alt.setPos(int64(math.Round(30 / testGear)))

	c.Tick(context.Background())
	st := c.Status()
	if !st.AzFault || !st.Stale {
		t.Errorf("status = %+v, want az fault and stale", st)
	}
	if st.AltFault {
		t.Error("alt axis faulted by az failure")
	}
	if math.Abs(st.CurrentAlt-30) > 1e-3 {
		t.Errorf("CurrentAlt = %v, want 30 despite az fault", st.CurrentAlt)
	}

	ra, dec := aboveHorizon(45, 120)
	if err := c.SlewTo(ra, dec); !errors.Is(err, ErrAxisFault) {
		t.Errorf("SlewTo with faulted axis err = %v, want ErrAxisFault", err)
	}
}

func TestAxisFaultRecovers(t *testing.T) {
	alt, az := &fakeAxis{}, &fakeAxis{}
	c := NewController(Config{
		Alt:          motorConfig(alt),
		Az:           motorConfig(az),
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
	})

	az.setErr(errors.New("bus timeout"))
	c.Tick(context.Background())
	if st := c.Status(); !st.AzFault {
		t.Fatal("az fault not set by failed read")
	}

	// The axis comes back; a healthy read clears the fault and slews
	// are accepted again.
	az.setErr(nil)
	c.Tick(context.Background())
	st := c.Status()
	if st.AzFault {
		t.Error("AzFault still set after healthy tick")
	}
	if st.Stale {
		t.Error("Stale still set after healthy tick")
	}
	ra, dec := aboveHorizon(45, 120)
	if err := c.SlewTo(ra, dec); err != nil {
		t.Errorf("SlewTo after axis recovery rejected: %v", err)
	}
}

func TestConcurrentStatusSnapshots(t *testing.T) {
	alt, az := &fakeAxis{}, &fakeAxis{}
	c := NewController(Config{
		Alt:          motorConfig(alt),
		Az:           motorConfig(az),
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
	})

	// Both axes sit at the same step count every tick, so every
	// consistent snapshot has CurrentAlt == CurrentAz. A torn read
	// mixing ticks breaks the equality.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				st := c.Status()
				if st.CurrentAlt != st.CurrentAz {
					t.Errorf("torn snapshot: alt %v, az %v", st.CurrentAlt, st.CurrentAz)
					return
				}
				c.RADec()
			}
		}()
	}

	for i := 0; i <= 200; i++ {
		steps := int64(math.Round(float64(i) * 0.4 / testGear))
		alt.setPos(steps)
		az.setPos(steps)
		c.Tick(context.Background())
	}
	close(done)
	wg.Wait()
}

func TestAbortSlew(t *testing.T) {
	alt, az := &fakeAxis{}, &fakeAxis{}
	c := NewController(Config{
		Alt:          motorConfig(alt),
		Az:           motorConfig(az),
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
	})
	ra, dec := aboveHorizon(45, 120)
	if err := c.SlewTo(ra, dec); err != nil {
		t.Fatal(err)
	}
	c.Tick(context.Background())

	c.AbortSlew()
	if c.Status().Slewing {
		t.Error("Slewing = true after AbortSlew returned")
	}
	cmd := alt.lastCmd(t)
	if cmd.Velocity != 0 {
		t.Errorf("alt velocity after abort = %v, want 0", cmd.Velocity)
	}
	if cmd := az.lastCmd(t); cmd.Velocity != 0 {
		t.Errorf("az velocity after abort = %v, want 0", cmd.Velocity)
	}

	// The next tick must not resume driving toward the old target.
	before := len(alt.cmds)
	c.Tick(context.Background())
	for _, cmd := range alt.cmds[before:] {
		if cmd.Velocity != 0 {
			t.Errorf("post-abort command has velocity %v", cmd.Velocity)
		}
	}
}

func TestPushToPositionStationary(t *testing.T) {
	now := testTime
	c := NewController(Config{
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return now },
	})
	ra, dec := aboveHorizon(45, 120)
	if err := c.SlewTo(ra, dec); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		now = now.Add(time.Minute)
		c.Tick(context.Background())
	}
	st := c.Status()
	if st.CurrentAlt != 0 || st.CurrentAz != 0 {
		t.Errorf("current moved to (%v, %v) with no position source", st.CurrentAlt, st.CurrentAz)
	}
	if st.TargetRA != ra || st.TargetDec != dec {
		t.Errorf("target = (%v, %v), want (%v, %v)", st.TargetRA, st.TargetDec, ra, dec)
	}
}

func TestSolverPositionSource(t *testing.T) {
	solver := &fakeSolver{results: []SolveResult{
		{},
		{RADeg: 150, DecDeg: 20, Matched: true},
	}}
	cam := &fakeCamera{clock: func() time.Time { return testTime }}
	c := NewController(Config{
		Solver:       &SolverConfig{Camera: cam, Solver: solver, FocalLengthMM: 200},
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
	})

	// First frame has no match; the position must hold and go stale.
	c.Tick(context.Background())
	st := c.Status()
	if !st.Stale {
		t.Error("Stale = false after failed solve")
	}
	if st.CurrentAlt != 0 || st.CurrentAz != 0 {
		t.Errorf("current = (%v, %v) after failed solve, want (0, 0)", st.CurrentAlt, st.CurrentAz)
	}

	c.Tick(context.Background())
	st = c.Status()
	if st.Stale {
		t.Error("Stale = true after successful solve")
	}
	wantAlt, wantAz := astro.ToHorizontal(150, 20, testLat, testLon, testTime)
	if math.Abs(st.CurrentAlt-wantAlt) > 1e-9 || math.Abs(st.CurrentAz-wantAz) > 1e-9 {
		t.Errorf("current = (%v, %v), want (%v, %v)", st.CurrentAlt, st.CurrentAz, wantAlt, wantAz)
	}
}

func TestSolverSavesImages(t *testing.T) {
	dir := t.TempDir()
	solver := &fakeSolver{results: []SolveResult{{RADeg: 150, DecDeg: 20, Matched: true}}}
	cam := &fakeCamera{clock: func() time.Time { return testTime }}
	c := NewController(Config{
		Solver: &SolverConfig{
			Camera: cam, Solver: solver, FocalLengthMM: 200,
			SaveImages: true, SaveDir: dir,
		},
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
	})
	c.Tick(context.Background())

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("saved %d files, want 1", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "P5\n1280 960\n") {
		t.Errorf("saved frame header = %q", data[:min(len(data), 16)])
	}
}

func TestSyncMakesObservedMatchCommanded(t *testing.T) {
	c := NewController(Config{
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
	})
	ra, dec := aboveHorizon(50, 200)
	c.Sync(ra, dec)
	gotRA, gotDec := c.RADec()
	if math.Abs(gotRA-ra) > 1e-6 || math.Abs(gotDec-dec) > 1e-6 {
		t.Errorf("RADec after sync = (%v, %v), want (%v, %v)", gotRA, gotDec, ra, dec)
	}
}

func TestStatusCallbackSnapshots(t *testing.T) {
	var mu sync.Mutex
	var got []Status
	c := NewController(Config{
		SiteLatitude: testLat, SiteLongitude: testLon,
		Now: func() time.Time { return testTime },
		StatusCallback: func(s Status) {
			mu.Lock()
			got = append(got, s)
			mu.Unlock()
		},
	})
	ra, dec := aboveHorizon(50, 200)
	c.Sync(ra, dec)

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 {
		t.Fatal("no status callback after Sync")
	}
	last := got[len(got)-1]
	// Target and offset land in the same snapshot.
	if last.TargetRA != ra || last.TargetDec != dec {
		t.Errorf("snapshot target = (%v, %v), want (%v, %v)", last.TargetRA, last.TargetDec, ra, dec)
	}
	if last.OffsetAlt == 0 && last.OffsetAz == 0 {
		t.Error("snapshot offset not updated with target")
	}
}
