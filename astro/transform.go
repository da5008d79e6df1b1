// Package astro converts between equatorial and horizontal coordinates.
//
// All angles are in decimal degrees. Azimuth is measured from north,
// clockwise through east. Right ascension is normalized to [0, 360).
package astro

import (
	"math"
	"time"
)

// j2000 is the JD of the J2000.0 epoch.
const j2000 = 2451545.0

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

// NormalizeAngle reduces an angle in degrees to [0, 360).
func NormalizeAngle(angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	return angle
}

// ClampDec limits a declination or altitude to [-90, 90].
func ClampDec(angle float64) float64 {
	return math.Max(-90, math.Min(90, angle))
}

// ClampAlt limits a mount altitude to [0, 90].
func ClampAlt(angle float64) float64 {
	return math.Max(0, math.Min(90, angle))
}

// JulianDate converts a time to a Julian date.
func JulianDate(t time.Time) float64 {
	return float64(t.UnixNano())/86400e9 + 2440587.5
}

// GMST returns the Greenwich mean sidereal time in degrees.
// Polynomial from Meeus, Astronomical Algorithms, ch. 12.
func GMST(t time.Time) float64 {
	jd := JulianDate(t)
	tc := (jd - j2000) / 36525
	gmst := 280.46061837 +
		360.98564736629*(jd-j2000) +
		0.000387933*tc*tc -
		tc*tc*tc/38710000
	return NormalizeAngle(gmst)
}

// LocalSiderealTime returns the LST in degrees for an east-positive
// longitude.
func LocalSiderealTime(t time.Time, lonDeg float64) float64 {
	return NormalizeAngle(GMST(t) + lonDeg)
}

// equhor converts between hour-angle/declination and azimuth/altitude.
// Phi is the observer's latitude. Arguments are in radians. The
// transformation is an involution: applying it twice with the same phi
// returns the original pair.
// Algorithm from https://metacpan.org/dist/Astro-Montenbruck/source/lib/Astro/Montenbruck/CoCo.pm
func equhor(x, y, phi float64) (float64, float64) {
	sx, sy, sphi := math.Sin(x), math.Sin(y), math.Sin(phi)
	cx, cy, cphi := math.Cos(x), math.Cos(y), math.Cos(phi)

	sq := (sy * sphi) + (cy * cphi * cx)
	if sq > 1 {
		sq = 1
	} else if sq < -1 {
		sq = -1
	}
	q := math.Asin(sq)

	den := cphi * math.Cos(q)
	if den < 1e-12 {
		// Az is undefined at the zenith and for an observer at a
		// pole. Report 0 rather than NaN.
		return 0, q
	}
	cp := (sy - (sphi * sq)) / den
	if cp > 1 {
		cp = 1
	} else if cp < -1 {
		cp = -1
	}
	p := math.Acos(cp)
	if sx > 0 {
		p = 2*math.Pi - p
	}
	return p, q
}

func equhorDeg(x, y, phi float64) (float64, float64) {
	p, q := equhor(deg2rad(x), deg2rad(y), deg2rad(phi))
	return rad2deg(p), rad2deg(q)
}

// ToHorizontal converts equatorial coordinates to horizontal ones for
// the given site and time. The returned altitude may be negative for
// targets below the horizon.
func ToHorizontal(raDeg, decDeg, latDeg, lonDeg float64, t time.Time) (altDeg, azDeg float64) {
	lst := LocalSiderealTime(t, lonDeg)
	ha := lst - raDeg
	az, alt := equhorDeg(ha, decDeg, latDeg)
	return alt, NormalizeAngle(az)
}

// ToEquatorial converts horizontal coordinates to equatorial ones for
// the given site and time.
func ToEquatorial(altDeg, azDeg, latDeg, lonDeg float64, t time.Time) (raDeg, decDeg float64) {
	lst := LocalSiderealTime(t, lonDeg)
	ha, dec := equhorDeg(azDeg, altDeg, latDeg)
	return NormalizeAngle(lst - ha), ClampDec(dec)
}

// SyncOffset is the angular delta between a commanded sync position and
// the observed position at the moment of sync. It is added to every
// position report until the next sync.
type SyncOffset struct {
	AltDeg float64
	AzDeg  float64
}

// Apply adds the offset to an alt/az pair.
func (o SyncOffset) Apply(altDeg, azDeg float64) (float64, float64) {
	return ClampDec(altDeg + o.AltDeg), NormalizeAngle(azDeg + o.AzDeg)
}

// Remove subtracts the offset from an alt/az pair.
func (o SyncOffset) Remove(altDeg, azDeg float64) (float64, float64) {
	return ClampDec(altDeg - o.AltDeg), NormalizeAngle(azDeg - o.AzDeg)
}
