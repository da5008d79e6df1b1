package lx200

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sexagesimal codecs for the LX200 wire formats. Right ascension goes
// on the wire as "HH:MM:SS" (high precision) or "HH:MM.T" (low);
// declination and latitude as "sDD*MM'SS" or "sDD*MM"; longitude as
// "DDD*MM" with west positive.

var errFormat = errors.New("malformed coordinate")

// parseRA parses an LX200 right ascension into degrees.
func parseRA(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errFormat
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errFormat
	}
	m, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, errFormat
	}
	var sec float64
	if len(parts) == 3 {
		sec, err = strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, errFormat
		}
	}
	if h < 0 || h > 24 || m < 0 || m >= 60 || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("right ascension %q out of range", s)
	}
	hours := float64(h) + m/60 + sec/3600
	if hours > 24 {
		return 0, fmt.Errorf("right ascension %q out of range", s)
	}
	if hours == 24 {
		hours = 0
	}
	return hours * 15, nil
}

// parseSignedAngle parses "sDD*MM", "sDD*MM:SS", "sDD*MM'SS" or a
// plain decimal degree value (sent by INDI) into degrees, rejecting
// values outside ±limit.
func parseSignedAngle(s string, limit float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errFormat
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	var deg float64
	if strings.ContainsRune(s, '*') {
		dPart, rest, _ := strings.Cut(s, "*")
		d, err := strconv.Atoi(dPart)
		if err != nil || d < 0 {
			return 0, errFormat
		}
		rest = strings.TrimSuffix(rest, "'")
		mPart, sPart, hasSec := strings.Cut(rest, ":")
		if !hasSec {
			mPart, sPart, hasSec = strings.Cut(rest, "'")
		}
		m, err := strconv.ParseFloat(mPart, 64)
		if err != nil || m < 0 || m >= 60 {
			return 0, errFormat
		}
		var sec float64
		if hasSec && sPart != "" {
			sec, err = strconv.ParseFloat(sPart, 64)
			if err != nil || sec < 0 || sec >= 60 {
				return 0, errFormat
			}
		}
		deg = float64(d) + m/60 + sec/3600
	} else {
		d, err := strconv.ParseFloat(s, 64)
		if err != nil || d < 0 {
			return 0, errFormat
		}
		deg = d
	}
	if neg {
		deg = -deg
	}
	if deg < -limit || deg > limit {
		return 0, fmt.Errorf("angle %q out of range", s)
	}
	return deg, nil
}

// parseDec parses an LX200 declination into degrees.
func parseDec(s string) (float64, error) {
	return parseSignedAngle(s, 90)
}

// parseLatitude parses an LX200 site latitude into degrees.
func parseLatitude(s string) (float64, error) {
	return parseSignedAngle(s, 90)
}

// parseLongitude parses an LX200 site longitude (west positive) into
// an east-positive longitude in degrees.
func parseLongitude(s string) (float64, error) {
	west, err := parseSignedAngle(s, 360)
	if err != nil {
		return 0, err
	}
	// The LX200 protocol counts west longitudes 0..360.
	east := -west
	if east <= -180 {
		east += 360
	}
	return east, nil
}

// formatRA formats a right ascension in degrees as "HH:MM:SS" (high
// precision) or "HH:MM.T" (low).
func formatRA(raDeg float64, highPrecision bool) string {
	hours := math.Mod(raDeg/15, 24)
	if hours < 0 {
		hours += 24
	}
	if highPrecision {
		total := int(math.Round(hours * 3600))
		total %= 24 * 3600
		return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
	}
	total := int(math.Round(hours * 600))
	total %= 24 * 600
	return fmt.Sprintf("%02d:%04.1f", total/600, float64(total%600)/10)
}

// formatSignedAngle formats degrees as "sDD*MM'SS" (high precision) or
// "sDD*MM" (low). The sign is always emitted.
func formatSignedAngle(deg float64, highPrecision bool) string {
	sign := "+"
	if deg < 0 {
		sign = "-"
		deg = -deg
	}
	if highPrecision {
		total := int(math.Round(deg * 3600))
		return fmt.Sprintf("%s%02d*%02d'%02d", sign, total/3600, total/60%60, total%60)
	}
	total := int(math.Round(deg * 60))
	return fmt.Sprintf("%s%02d*%02d", sign, total/60, total%60)
}

// formatLongitude formats an east-positive longitude in degrees as the
// LX200 west-positive "DDD*MM" form.
func formatLongitude(lonEastDeg float64) string {
	west := -lonEastDeg
	sign := ""
	if west < 0 {
		sign = "-"
		west = -west
	}
	total := int(math.Round(west * 60))
	return fmt.Sprintf("%s%03d*%02d", sign, total/60, total%60)
}
