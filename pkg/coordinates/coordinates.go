package coordinates

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// DegreesPerHour is the number of degrees of arc per hour of right ascension
	DegreesPerHour = 15.0
)

// ErrInvalidInput is returned when an observation request or site cannot be
// resolved (NaN/Inf values, declination outside [-90, 90], zero timestamp).
var ErrInvalidInput = errors.New("invalid input")

// Site represents the geographic location of the mount.
// It is loaded once from configuration and never mutated afterwards.
type Site struct {
	// Name is a friendly identifier for the site
	Name string

	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64

	// Elevation in meters above mean sea level.
	// Only carried for completeness; sidereal time does not depend on it.
	Elevation float64
}

// Validate checks that the site coordinates are usable.
func (s Site) Validate() error {
	if !finite(s.Latitude) || !finite(s.Longitude) || !finite(s.Elevation) {
		return fmt.Errorf("%w: site coordinates must be finite", ErrInvalidInput)
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w: site latitude %.6f outside [-90, 90]", ErrInvalidInput, s.Latitude)
	}
	if s.Longitude < -360 || s.Longitude > 360 {
		return fmt.Errorf("%w: site longitude %.6f outside [-360, 360]", ErrInvalidInput, s.Longitude)
	}
	return nil
}

// ObservationRequest is the immutable input of a pointing resolution.
type ObservationRequest struct {
	// RA is the right ascension in decimal degrees. Signed values are accepted
	// and wrapped during resolution.
	RA float64

	// Dec is the declination in decimal degrees (-90 to +90)
	Dec float64

	// Time is the observation instant. It is converted to UTC before use.
	Time time.Time
}

// Validate checks the request before it reaches the resolver.
func (r ObservationRequest) Validate() error {
	if !finite(r.RA) || !finite(r.Dec) {
		return fmt.Errorf("%w: RA/Dec must be finite", ErrInvalidInput)
	}
	if r.Dec < -90 || r.Dec > 90 {
		return fmt.Errorf("%w: declination %.6f outside [-90, 90]", ErrInvalidInput, r.Dec)
	}
	if r.Time.IsZero() {
		return fmt.Errorf("%w: observation time not set", ErrInvalidInput)
	}
	return nil
}

// HourAngleDec is a position in the local (topocentric) equatorial frame.
// Both values are in decimal degrees; HourAngle is wrapped to [0, 360).
type HourAngleDec struct {
	HourAngle   float64
	Declination float64
}

// SignedHourAngle returns the hour angle in (-180, 180].
// Negative values are east of the meridian.
func (h HourAngleDec) SignedHourAngle() float64 {
	return SignedAngle(h.HourAngle)
}

// String formats the pair for log output.
func (h HourAngleDec) String() string {
	return fmt.Sprintf("HA=%.5f° Dec=%.5f°", h.HourAngle, h.Declination)
}

// NormalizeAngle ensures an angle is in the range [0, 360).
func NormalizeAngle(angle float64) float64 {
	a := math.Mod(angle, 360.0)
	if a < 0 {
		a += 360.0
	}
	// math.Mod of a tiny negative number plus 360 rounds to 360
	if a >= 360.0 {
		a = 0
	}
	return a
}

// SignedAngle maps an angle into the range (-180, 180].
func SignedAngle(angle float64) float64 {
	a := NormalizeAngle(angle)
	if a > 180.0 {
		a -= 360.0
	}
	return a
}

// NormalizeRA ensures right ascension is in the range [0, 24).
func NormalizeRA(ra float64) float64 {
	raHours := math.Mod(ra, 24.0)
	if raHours < 0 {
		raHours += 24.0
	}
	if raHours >= 24.0 {
		raHours = 0
	}
	return raHours
}

// AngularDistance returns the absolute difference between two angles,
// accounting for wrap-around (359° vs 1° is 2°).
func AngularDistance(a, b float64) float64 {
	d := math.Abs(NormalizeAngle(a) - NormalizeAngle(b))
	if d > 180.0 {
		d = 360.0 - d
	}
	return d
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
