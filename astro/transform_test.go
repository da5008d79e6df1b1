package astro

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func TestGMST(t *testing.T) {
	for _, test := range []struct {
		when time.Time
		want float64
	}{
		// J2000.0 epoch.
		{time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 280.46061837},
		// Meeus, example 12.b.
		{time.Date(1987, 4, 10, 19, 21, 0, 0, time.UTC), 128.7378734},
	} {
		got := GMST(test.when)
		if math.Abs(got-test.want) > 1e-4 {
			t.Errorf("GMST(%v) = %.7f, want %.7f", test.when, got, test.want)
		}
	}
}

func angleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeAngle(a) - NormalizeAngle(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

func TestRoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2023, 6, 21, 3, 14, 15, 0, time.UTC),
		time.Date(2026, 8, 31, 22, 0, 0, 0, time.UTC),
	}
	for _, tm := range times {
		for _, ra := range []float64{0, 45.5, 123.456789, 280.0001, 359.9} {
			for _, dec := range []float64{-89, -45.5, -0.001, 0, 30.25, 89} {
				for _, lat := range []float64{-75, -33.9, 0, 40.5013, 62.25} {
					for _, lon := range []float64{-179.5, -3.8851, 0, 77.5, 120} {
						alt, az := ToHorizontal(ra, dec, lat, lon, tm)
						if math.IsNaN(alt) || math.IsNaN(az) {
							t.Fatalf("ToHorizontal(%v, %v, %v, %v) = NaN", ra, dec, lat, lon)
						}
						gotRA, gotDec := ToEquatorial(alt, az, lat, lon, tm)
						if angleDiff(gotRA, ra) > 1e-6 || math.Abs(gotDec-dec) > 1e-6 {
							t.Errorf("round trip of (ra=%v, dec=%v) at lat=%v lon=%v %v: got (%v, %v)",
								ra, dec, lat, lon, tm, gotRA, gotDec)
						}
					}
				}
			}
		}
	}
}

func TestZenithAzimuthConvention(t *testing.T) {
	tm := time.Date(2023, 6, 21, 3, 14, 15, 0, time.UTC)
	lat, lon := 40.5, -3.9
	// A target at the zenith: dec equal to the latitude, on the meridian.
	ra := LocalSiderealTime(tm, lon)
	alt, az := ToHorizontal(ra, lat, lat, lon, tm)
	if math.Abs(alt-90) > 1e-9 {
		t.Errorf("zenith altitude = %v, want 90", alt)
	}
	if az != 0 {
		t.Errorf("zenith azimuth = %v, want 0", az)
	}
	gotRA, gotDec := ToEquatorial(90, 123.4, lat, lon, tm)
	if math.IsNaN(gotRA) || math.IsNaN(gotDec) {
		t.Errorf("ToEquatorial at the zenith returned NaN")
	}
}

func TestMeridianAzimuth(t *testing.T) {
	// A southern target on the meridian is at azimuth 180 for a
	// northern observer.
	tm := time.Date(2026, 8, 31, 22, 0, 0, 0, time.UTC)
	lat, lon := 40.5, -3.9
	ra := LocalSiderealTime(tm, lon)
	alt, az := ToHorizontal(ra, 0, lat, lon, tm)
	if math.Abs(az-180) > 1e-6 {
		t.Errorf("meridian azimuth = %v, want 180", az)
	}
	if math.Abs(alt-(90-lat)) > 1e-6 {
		t.Errorf("meridian altitude = %v, want %v", alt, 90-lat)
	}
}

func TestSyncOffset(t *testing.T) {
	for _, test := range []struct {
		offset  SyncOffset
		alt, az float64
		wantAlt float64
		wantAz  float64
	}{
		{SyncOffset{}, 45, 180, 45, 180},
		{SyncOffset{AltDeg: 1.5, AzDeg: -2}, 45, 1, 46.5, 359},
		{SyncOffset{AltDeg: -0.25, AzDeg: 359}, 10, 2, 9.75, 1},
	} {
		t.Run(fmt.Sprintf("%+v", test.offset), func(t *testing.T) {
			alt, az := test.offset.Apply(test.alt, test.az)
			if math.Abs(alt-test.wantAlt) > 1e-9 || math.Abs(az-test.wantAz) > 1e-9 {
				t.Errorf("Apply(%v, %v) = (%v, %v), want (%v, %v)",
					test.alt, test.az, alt, az, test.wantAlt, test.wantAz)
			}
			alt, az = test.offset.Remove(alt, az)
			if math.Abs(alt-test.alt) > 1e-9 || math.Abs(az-test.az) > 1e-9 {
				t.Errorf("Remove did not invert Apply: got (%v, %v)", alt, az)
			}
		})
	}
}
