package pointing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/unklstewy/rotse-mount/pkg/coordinates"
)

// poleEpsilon is the smallest equatorial radius of the rotated unit vector
// for which the hour angle is still defined.
const poleEpsilon = 1e-10

// MatrixParams holds the calibration of a MatrixModel.
// All values are deployment calibration data.
type MatrixParams struct {
	// Rotation maps the celestial unit vector into the mount frame: v' = R·v
	Rotation [3][3]float64 `json:"rotation"`

	// PoleOffset is subtracted from the declination after rotation (degrees)
	PoleOffset float64 `json:"pole_offset"`

	// Gain is the number of encoder counts per degree for each axis
	Gain [2]float64 `json:"deg2enc"`

	// ZeroPoint is the encoder reading at 0° for each axis
	ZeroPoint [2]int `json:"zero_point"`

	// PointingOffset is a per-axis encoder trim
	PointingOffset [2]int `json:"pointing_offset"`

	// Latitude of the site. A negative value selects the southern-hemisphere
	// sign convention.
	Latitude float64 `json:"latitude"`
}

// IdentityRotation returns the 3x3 identity matrix.
func IdentityRotation() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// MatrixModel is the two-star rotation pointing model.
type MatrixModel struct {
	params MatrixParams
	rot    *mat.Dense
	inv    *mat.Dense
}

// NewMatrixModel validates params and precomputes the rotation and its inverse.
func NewMatrixModel(params MatrixParams) (*MatrixModel, error) {
	data := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := params.Rotation[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: rotation[%d][%d] is not finite", ErrInvalidMatrix, i, j)
			}
			data = append(data, v)
		}
	}
	for axis, g := range params.Gain {
		if g == 0 || math.IsNaN(g) || math.IsInf(g, 0) {
			return nil, fmt.Errorf("%w: gain for axis %d must be finite and non-zero", ErrInvalidMatrix, axis)
		}
	}
	if math.IsNaN(params.PoleOffset) || math.IsInf(params.PoleOffset, 0) {
		return nil, fmt.Errorf("%w: pole offset is not finite", ErrInvalidMatrix)
	}

	rot := mat.NewDense(3, 3, data)
	var inv mat.Dense
	if err := inv.Inverse(rot); err != nil {
		return nil, fmt.Errorf("%w: rotation is singular: %v", ErrInvalidMatrix, err)
	}

	return &MatrixModel{params: params, rot: rot, inv: &inv}, nil
}

// Kind implements Model.
func (m *MatrixModel) Kind() Kind { return KindMatrix }

// Params returns the calibration the model was built from.
func (m *MatrixModel) Params() MatrixParams { return m.params }

// ToEncoder converts hour angle and declination (degrees) to encoder setpoints.
//
// The unit vector is rotated into the mount frame, converted back to
// spherical angles, sign-flipped for southern sites, corrected for the pole
// offset and scaled to encoder counts. Scaled values are truncated toward
// zero before the zero point and pointing offset are added.
//
// Returns ErrSingularityAtPole if the rotated vector is on the mount pole.
func (m *MatrixModel) ToEncoder(ha, dec float64) (EncoderPair, error) {
	haRad := ha * coordinates.DegreesToRadians
	decRad := dec * coordinates.DegreesToRadians

	x, y, z := rotate(m.rot, toCartesian(haRad, decRad))
	haOut, decOut, err := toSpherical(x, y, z)
	if err != nil {
		return EncoderPair{}, fmt.Errorf("failed to convert HA=%.6f Dec=%.6f: %w", ha, dec, err)
	}

	haDeg := haOut * coordinates.RadiansToDegrees
	decDeg := decOut * coordinates.RadiansToDegrees
	if m.params.Latitude < 0 {
		haDeg = -haDeg
		decDeg = -decDeg
	}
	decDeg -= m.params.PoleOffset

	return EncoderPair{
		X: int(math.Trunc(haDeg*m.params.Gain[0])) + m.params.ZeroPoint[0] + m.params.PointingOffset[0],
		Y: int(math.Trunc(decDeg*m.params.Gain[1])) + m.params.ZeroPoint[1] + m.params.PointingOffset[1],
	}, nil
}

// FromEncoder converts encoder readings back to hour angle and declination
// (degrees). It is the inverse of ToEncoder up to encoder quantization.
// The returned hour angle is wrapped to [0, 360).
func (m *MatrixModel) FromEncoder(e EncoderPair) (coordinates.HourAngleDec, error) {
	haDeg := float64(e.X-m.params.ZeroPoint[0]-m.params.PointingOffset[0]) / m.params.Gain[0]
	decDeg := float64(e.Y-m.params.ZeroPoint[1]-m.params.PointingOffset[1]) / m.params.Gain[1]
	decDeg += m.params.PoleOffset
	if m.params.Latitude < 0 {
		haDeg = -haDeg
		decDeg = -decDeg
	}

	x, y, z := rotate(m.inv, toCartesian(haDeg*coordinates.DegreesToRadians, decDeg*coordinates.DegreesToRadians))
	ha, dec, err := toSpherical(x, y, z)
	if err != nil {
		return coordinates.HourAngleDec{}, fmt.Errorf("failed to convert encoder %s: %w", e, err)
	}

	return coordinates.HourAngleDec{
		HourAngle:   coordinates.NormalizeAngle(ha * coordinates.RadiansToDegrees),
		Declination: dec * coordinates.RadiansToDegrees,
	}, nil
}

// Nudge moves an encoder setpoint by a small offset in degrees using the
// model's gains. The offset is applied in encoder space, without re-running
// the rotation.
func (m *MatrixModel) Nudge(e EncoderPair, dHA, dDec float64) EncoderPair {
	return EncoderPair{
		X: e.X + int(math.Trunc(dHA*m.params.Gain[0])),
		Y: e.Y + int(math.Trunc(dDec*m.params.Gain[1])),
	}
}

func toCartesian(ha, dec float64) *mat.VecDense {
	cosDec := math.Cos(dec)
	return mat.NewVecDense(3, []float64{
		math.Cos(ha) * cosDec,
		math.Sin(ha) * cosDec,
		math.Sin(dec),
	})
}

func rotate(m mat.Matrix, v *mat.VecDense) (x, y, z float64) {
	var out mat.VecDense
	out.MulVec(m, v)
	return out.AtVec(0), out.AtVec(1), out.AtVec(2)
}

// toSpherical returns (ha, dec) in radians with ha in [0, 2π).
func toSpherical(x, y, z float64) (float64, float64, error) {
	dec := math.Asin(clamp(z, -1, 1))
	r := math.Sqrt(x*x + y*y)
	if r < poleEpsilon {
		return 0, dec, ErrSingularityAtPole
	}
	ha := math.Acos(clamp(x/r, -1, 1))
	if y < 0 {
		ha = 2*math.Pi - ha
	}
	return ha, dec, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
