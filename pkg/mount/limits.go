package mount

import (
	"errors"
	"fmt"

	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// ErrOutsideTravelLimits is returned when a setpoint lies beyond the
// configured encoder range of an axis.
var ErrOutsideTravelLimits = errors.New("outside travel limits")

// TravelLimits defines the safe encoder range of each axis.
// An axis whose Min and Max are both zero is unlimited.
type TravelLimits struct {
	// MinX and MaxX bound the hour angle axis in encoder counts
	MinX int `json:"min_x"`
	MaxX int `json:"max_x"`

	// MinY and MaxY bound the declination axis in encoder counts
	MinY int `json:"min_y"`
	MaxY int `json:"max_y"`
}

// Validate checks that each limited axis has Min <= Max.
func (l TravelLimits) Validate() error {
	if l.MinX > l.MaxX {
		return fmt.Errorf("travel limits: min_x %d greater than max_x %d", l.MinX, l.MaxX)
	}
	if l.MinY > l.MaxY {
		return fmt.Errorf("travel limits: min_y %d greater than max_y %d", l.MinY, l.MaxY)
	}
	return nil
}

// Check returns ErrOutsideTravelLimits if e is outside the limits.
// Bounds are inclusive.
func (l TravelLimits) Check(e pointing.EncoderPair) error {
	if !(l.MinX == 0 && l.MaxX == 0) && (e.X < l.MinX || e.X > l.MaxX) {
		return fmt.Errorf("%w: RA encoder %d not in [%d, %d]", ErrOutsideTravelLimits, e.X, l.MinX, l.MaxX)
	}
	if !(l.MinY == 0 && l.MaxY == 0) && (e.Y < l.MinY || e.Y > l.MaxY) {
		return fmt.Errorf("%w: Dec encoder %d not in [%d, %d]", ErrOutsideTravelLimits, e.Y, l.MinY, l.MaxY)
	}
	return nil
}
