package coordinates

import (
	"errors"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
)

// ErrTooCloseToSun is returned when a target lies within the configured
// avoidance radius of the sun.
var ErrTooCloseToSun = errors.New("target too close to the sun")

// SunPosition is the apparent equatorial position of the sun.
type SunPosition struct {
	RA   float64   // Right ascension in degrees [0, 360)
	Dec  float64   // Declination in degrees
	Time time.Time // Calculation time
}

// CalculateSunPosition returns the sun's apparent position at t.
// Accurate to a few arcseconds, far below any avoidance radius.
func CalculateSunPosition(t time.Time) SunPosition {
	ra, dec := solar.ApparentEquatorial(JulianDate(t))
	return SunPosition{
		RA:   NormalizeAngle(unit.Angle(ra).Deg()),
		Dec:  dec.Deg(),
		Time: t,
	}
}

// AngularSeparation returns the great-circle distance in degrees between
// the sun and (ra, dec).
func (sp SunPosition) AngularSeparation(ra, dec float64) float64 {
	return angle.Sep(
		unit.AngleFromDeg(sp.RA), unit.AngleFromDeg(sp.Dec),
		unit.AngleFromDeg(ra), unit.AngleFromDeg(dec),
	).Deg()
}

// Altitude returns the sun's geometric altitude in degrees at site.
func (sp SunPosition) Altitude(site Site) float64 {
	ha := (LocalSiderealTime(site.Longitude, sp.Time)*DegreesPerHour - sp.RA) * DegreesToRadians
	lat := site.Latitude * DegreesToRadians
	dec := sp.Dec * DegreesToRadians
	return math.Asin(math.Sin(lat)*math.Sin(dec)+math.Cos(lat)*math.Cos(dec)*math.Cos(ha)) * RadiansToDegrees
}

// IsSunAboveHorizon reports whether the sun's upper limb is above the
// horizon at site.
func (sp SunPosition) IsSunAboveHorizon(site Site) bool {
	return sp.Altitude(site) > -0.833 // Accounts for sun's radius and refraction
}

// SolarSafetyZone represents safety thresholds for solar proximity
type SolarSafetyZone int

const (
	SafeZoneClear    SolarSafetyZone = 0 // > 20° from sun
	SafeZoneCaution  SolarSafetyZone = 1 // 10-20° from sun
	SafeZoneWarning  SolarSafetyZone = 2 // 5-10° from sun
	SafeZoneDanger   SolarSafetyZone = 3 // 2-5° from sun
	SafeZoneCritical SolarSafetyZone = 4 // < 2° from sun
)

// GetSafetyZone returns the safety zone based on angular separation from the sun.
func GetSafetyZone(separation float64) SolarSafetyZone {
	switch {
	case separation < 2.0:
		return SafeZoneCritical
	case separation < 5.0:
		return SafeZoneDanger
	case separation < 10.0:
		return SafeZoneWarning
	case separation < 20.0:
		return SafeZoneCaution
	}
	return SafeZoneClear
}

func (z SolarSafetyZone) String() string {
	switch z {
	case SafeZoneClear:
		return "CLEAR"
	case SafeZoneCaution:
		return "CAUTION"
	case SafeZoneWarning:
		return "WARNING"
	case SafeZoneDanger:
		return "DANGER"
	case SafeZoneCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}
