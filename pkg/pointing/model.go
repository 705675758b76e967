// Package pointing converts local hour angle / declination into raw mount
// encoder setpoints.
//
// Two models are provided behind the Model interface:
//   - MatrixModel: a 3x3 rotation of the unit vector followed by a linear
//     per-axis conversion to encoder counts
//   - InterpolationModel: barycentric interpolation over a Delaunay
//     triangulation of measured calibration samples
//
// Both are pure and safe for concurrent use once constructed.
package pointing

import (
	"errors"
	"fmt"
)

var (
	// ErrSingularityAtPole is returned when the rotated vector lies on the
	// pole of the mount frame and the hour angle is undefined.
	ErrSingularityAtPole = errors.New("singularity at pole")

	// ErrOutsideCalibrationHull is returned when a query falls outside the
	// convex hull of the calibration samples. Extrapolation is never done.
	ErrOutsideCalibrationHull = errors.New("outside calibration hull")

	// ErrInvalidCalibrationTable is returned by NewInterpolationModel for
	// tables that cannot be triangulated.
	ErrInvalidCalibrationTable = errors.New("invalid calibration table")

	// ErrInvalidMatrix is returned by NewMatrixModel for unusable parameters.
	ErrInvalidMatrix = errors.New("invalid pointing matrix")

	// ErrUnknownModel is returned by New for an unrecognized model kind.
	ErrUnknownModel = errors.New("unknown pointing model")
)

// EncoderPair is a pair of raw encoder setpoints (X = hour angle axis,
// Y = declination axis). It is the only artifact handed to the command layer.
type EncoderPair struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (e EncoderPair) String() string {
	return fmt.Sprintf("(%d, %d)", e.X, e.Y)
}

// Kind identifies a pointing model variant.
type Kind string

const (
	KindMatrix        Kind = "matrix"
	KindInterpolation Kind = "interpolation"
)

// Model maps hour angle and declination (degrees) to encoder setpoints.
type Model interface {
	ToEncoder(ha, dec float64) (EncoderPair, error)
	Kind() Kind
}

// Config selects and parameterizes a pointing model.
// Only the section matching Kind is used.
type Config struct {
	Kind        Kind
	Matrix      MatrixParams
	Calibration CalibrationTable
}

// New builds the model selected by cfg.Kind.
// The variant is fixed here and never chosen per request.
func New(cfg Config) (Model, error) {
	switch cfg.Kind {
	case KindMatrix:
		return NewMatrixModel(cfg.Matrix)
	case KindInterpolation:
		return NewInterpolationModel(cfg.Calibration)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Kind)
	}
}
