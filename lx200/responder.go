package lx200

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/altazimuth/lx200bridge/mount"
)

const (
	replyOK  = "1"
	replyBad = "0"
	// The ACK probe reply identifying an alt-az mount.
	replyAltAz = "A"
	// Slew accepted / rejected replies for MS. The success reply
	// carries no terminator.
	replySlewOK       = "0"
	replySlewRejected = "1#"
	replySync         = "Synced#"

	// SC expects two fixed-width progress strings after the ack.
	replyUpdating1 = "Updating Planetary Data       #"
	replyUpdating2 = "                              #"

	firmwareProduct = "LX200 AltAz Bridge"
	firmwareNumber  = "01.0"
	firmwareDate    = "Mar 18 2024"
	firmwareTime    = "18:00:00"
)

// Opcode tables for longest-prefix matching; commands are one to three
// characters and are not self-delimiting.
var (
	threeCharCmds = map[string]bool{
		"GVD": true, "GVF": true, "GVN": true, "GVP": true, "GVT": true,
	}
	twoCharCmds = map[string]bool{
		"CM": true,
		"GC": true, "GD": true, "GG": true, "GL": true, "GM": true,
		"GR": true, "GT": true, "GW": true, "Gc": true, "Gg": true, "Gt": true,
		"MS": true, "Me": true, "Mn": true, "Ms": true, "Mw": true,
		"Qe": true, "Qn": true, "Qs": true, "Qw": true,
		"RC": true, "RG": true, "RM": true, "RS": true,
		"SC": true, "SG": true, "SL": true, "Sd": true, "Sg": true,
		"Sr": true, "St": true,
	}
	oneCharCmds = map[string]bool{
		"D": true, "H": true, "Q": true, "U": true,
	}
)

// responder holds the per-connection protocol state: the coordinate
// precision toggle, the staged target and the staged time fields.
type responder struct {
	ctrl *mount.Controller

	highPrecision bool
	pendingRA     float64
	pendingDec    float64
	// utcOffset is the LX200 UTC offset: hours to add to local time
	// to obtain UTC.
	utcOffset float64
	localTime string
}

// handle processes one frame and returns the replies to send, in
// order. ok is false for an unknown or malformed opcode, which gets no
// reply at all.
func (r *responder) handle(frame string) (replies []string, ok bool) {
	if frame == string(rune(ack)) {
		return []string{replyAltAz}, true
	}
	if len(frame) < 3 || frame[0] != frameStart || frame[len(frame)-1] != frameEnd {
		return nil, false
	}
	body := frame[1 : len(frame)-1]

	var cmd, arg string
	switch {
	case len(body) >= 3 && threeCharCmds[body[:3]]:
		cmd, arg = body[:3], body[3:]
	case len(body) >= 2 && twoCharCmds[body[:2]]:
		cmd, arg = body[:2], body[2:]
	case oneCharCmds[body[:1]]:
		cmd, arg = body[:1], body[1:]
	default:
		return nil, false
	}

	switch cmd {
	case "GR":
		ra, _ := r.ctrl.RADec()
		return []string{formatRA(ra, r.highPrecision) + "#"}, true
	case "GD":
		_, dec := r.ctrl.RADec()
		return []string{formatSignedAngle(dec, r.highPrecision) + "#"}, true
	case "Sr":
		ra, err := parseRA(arg)
		if err != nil {
			log.Printf("rejecting target RA %q: %v", arg, err)
			return []string{replyBad}, true
		}
		r.pendingRA = ra
		return []string{replyOK}, true
	case "Sd":
		dec, err := parseDec(arg)
		if err != nil {
			log.Printf("rejecting target Dec %q: %v", arg, err)
			return []string{replyBad}, true
		}
		r.pendingDec = dec
		return []string{replyOK}, true
	case "MS":
		if err := r.ctrl.SlewTo(r.pendingRA, r.pendingDec); err != nil {
			log.Printf("rejecting slew: %v", err)
			return []string{replySlewRejected}, true
		}
		return []string{replySlewOK}, true
	case "CM":
		r.ctrl.Sync(r.pendingRA, r.pendingDec)
		return []string{replySync}, true
	case "Q", "Qn", "Qe", "Qs", "Qw":
		r.ctrl.AbortSlew()
		return nil, true
	case "Mn":
		r.ctrl.SlewInDirection(mount.North)
		return nil, true
	case "Ms":
		r.ctrl.SlewInDirection(mount.South)
		return nil, true
	case "Me":
		r.ctrl.SlewInDirection(mount.East)
		return nil, true
	case "Mw":
		r.ctrl.SlewInDirection(mount.West)
		return nil, true
	case "RC":
		r.ctrl.SetSlewRate(mount.SlewRateCentering)
		return nil, true
	case "RG":
		r.ctrl.SetSlewRate(mount.SlewRateGuiding)
		return nil, true
	case "RM":
		r.ctrl.SetSlewRate(mount.SlewRateFind)
		return nil, true
	case "RS":
		r.ctrl.SetSlewRate(mount.SlewRateMax)
		return nil, true
	case "St":
		lat, err := parseLatitude(arg)
		if err != nil {
			log.Printf("rejecting site latitude %q: %v", arg, err)
			return []string{replyBad}, true
		}
		r.ctrl.SetSite(lat, r.ctrl.Status().SiteLongitude)
		return []string{replyOK}, true
	case "Gt":
		return []string{formatSignedAngle(r.ctrl.Status().SiteLatitude, false) + "#"}, true
	case "Sg":
		lon, err := parseLongitude(arg)
		if err != nil {
			log.Printf("rejecting site longitude %q: %v", arg, err)
			return []string{replyBad}, true
		}
		r.ctrl.SetSite(r.ctrl.Status().SiteLatitude, lon)
		return []string{replyOK}, true
	case "Gg":
		return []string{formatLongitude(r.ctrl.Status().SiteLongitude) + "#"}, true
	case "SG":
		var offset float64
		if _, err := fmt.Sscanf(arg, "%f", &offset); err != nil {
			return []string{replyBad}, true
		}
		r.utcOffset = offset
		return []string{replyOK}, true
	case "SL":
		if _, err := time.Parse("15:04:05", arg); err != nil {
			return []string{replyBad}, true
		}
		r.localTime = arg
		return []string{replyOK}, true
	case "SC":
		local, err := time.Parse("01/02/06 15:04:05", arg+" "+r.localTime)
		if err != nil {
			return []string{replyBad}, true
		}
		utc := local.Add(time.Duration(r.utcOffset * float64(time.Hour)))
		r.ctrl.SetClock(utc)
		return []string{replyOK, replyUpdating1, replyUpdating2}, true
	case "GG":
		if r.utcOffset == math.Trunc(r.utcOffset) {
			return []string{fmt.Sprintf("%+03.0f", r.utcOffset) + "#"}, true
		}
		return []string{fmt.Sprintf("%+05.1f", r.utcOffset) + "#"}, true
	case "GL":
		local := r.localNow()
		return []string{local.Format("15:04:05") + "#"}, true
	case "GC":
		local := r.localNow()
		return []string{local.Format("01/02/06") + "#"}, true
	case "Gc":
		return []string{"(24)#"}, true
	case "GT":
		// Sidereal tracking frequency.
		return []string{"60.1#"}, true
	case "GM":
		return []string{r.ctrl.Status().SiteName + "#"}, true
	case "GVP":
		return []string{firmwareProduct + "#"}, true
	case "GVN":
		return []string{firmwareNumber + "#"}, true
	case "GVD":
		return []string{firmwareDate + "#"}, true
	case "GVT":
		return []string{firmwareTime + "#"}, true
	case "GVF":
		return []string{firmwareProduct + "|" + firmwareDate + "@" + firmwareTime + "#"}, true
	case "GW":
		// Alt-az mount, not tracking, zero alignment stars.
		return []string{"AN0#"}, true
	case "D":
		if r.ctrl.Status().Slewing {
			return []string{"\x7f#"}, true
		}
		return []string{"#"}, true
	case "U":
		r.highPrecision = !r.highPrecision
		return nil, true
	case "H":
		// 12/24 hour toggle; we always report 24 hour times.
		return nil, true
	}
	return nil, false
}

func (r *responder) localNow() time.Time {
	return r.ctrl.Now().Add(-time.Duration(r.utcOffset * float64(time.Hour)))
}
