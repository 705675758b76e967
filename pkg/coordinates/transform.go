package coordinates

import (
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
)

// Resolve converts an observation request into hour angle and declination
// for the given site.
//
// The hour angle is HA = LST - RA wrapped to [0, 360). Declination is passed
// through unchanged: no refraction, precession or aberration is applied.
//
// Parameters:
//   - req: target RA/Dec in degrees and the observation instant
//   - site: the mount location (only the longitude enters the computation)
//
// Returns: HourAngleDec in degrees, or ErrInvalidInput.
//
// Resolve is a pure function: the caller supplies "now" through req.Time.
func Resolve(req ObservationRequest, site Site) (HourAngleDec, error) {
	if err := req.Validate(); err != nil {
		return HourAngleDec{}, err
	}
	if err := site.Validate(); err != nil {
		return HourAngleDec{}, err
	}

	lst := LocalSiderealTime(site.Longitude, req.Time)
	ha := NormalizeAngle(lst*DegreesPerHour - req.RA)

	return HourAngleDec{
		HourAngle:   ha,
		Declination: req.Dec,
	}, nil
}

// LocalSiderealTime calculates the mean Local Sidereal Time (LST) for
// a given longitude and UTC time.
//
// LST is the right ascension that is currently on the observer's meridian.
// Greenwich mean sidereal time uses the IAU 1982 expression from Meeus,
// "Astronomical Algorithms" chapter 12, with UTC standing in for UT1.
//
// Parameters:
//   - longitudeDeg: Observer's longitude in decimal degrees (east positive)
//   - utcTime: The observation instant
//
// Returns: LST in decimal hours (0-24)
func LocalSiderealTime(longitudeDeg float64, utcTime time.Time) float64 {
	gmst := GreenwichMeanSiderealTime(utcTime)
	return NormalizeRA(gmst + longitudeDeg/DegreesPerHour)
}

// GreenwichMeanSiderealTime returns GMST in decimal hours (0-24).
func GreenwichMeanSiderealTime(utcTime time.Time) float64 {
	jd := JulianDate(utcTime)
	gmstDeg := sidereal.Mean(jd).Angle().Deg()
	return NormalizeRA(gmstDeg / DegreesPerHour)
}

// JulianDate converts a time to a Julian Date (UTC scale).
func JulianDate(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}
