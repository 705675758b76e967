package pointing

import (
	"fmt"
	"math"
	"sort"

	"github.com/unklstewy/rotse-mount/pkg/coordinates"
)

// hullEpsilon is the barycentric tolerance for points on a triangle edge.
const hullEpsilon = 1e-9

// CalibrationSample is one measured correspondence between a sky position
// and the encoder readings that point the mount at it.
type CalibrationSample struct {
	HourAngle   float64     `json:"ha"`
	Declination float64     `json:"dec"`
	Encoder     EncoderPair `json:"encoder"`
}

// CalibrationTable is a set of calibration samples.
// Tables are replaced wholesale, never edited in place.
//
// Hour angles may be given in any range. The samples must leave a gap in
// hour angle somewhere on the circle: the model cuts the circle in the
// middle of the widest gap, so a table may straddle HA = ±180° but cannot
// wrap all the way around.
type CalibrationTable struct {
	Name    string              `json:"name,omitempty"`
	Version int                 `json:"version,omitempty"`
	Samples []CalibrationSample `json:"samples"`
}

// Validate checks that the table can be triangulated.
func (t CalibrationTable) Validate() error {
	_, err := NewInterpolationModel(t)
	return err
}

// InterpolationModel interpolates encoder setpoints over a Delaunay
// triangulation of calibration samples. Hour angles are measured from the
// center of the samples' hour angle span, in the range (-180, 180].
type InterpolationModel struct {
	table     CalibrationTable
	center    float64
	pts       []point
	encoders  []EncoderPair
	triangles []triangle
}

// NewInterpolationModel triangulates table. It fails with
// ErrInvalidCalibrationTable for fewer than three samples, duplicate or
// non-finite samples, or samples that all lie on one line.
func NewInterpolationModel(table CalibrationTable) (*InterpolationModel, error) {
	center, pts, encoders, err := prepareSamples(table.Samples)
	if err != nil {
		return nil, err
	}
	tris, err := triangulate(pts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCalibrationTable, err)
	}

	samples := make([]CalibrationSample, len(table.Samples))
	copy(samples, table.Samples)
	table.Samples = samples

	return &InterpolationModel{
		table:     table,
		center:    center,
		pts:       pts,
		encoders:  encoders,
		triangles: tris,
	}, nil
}

func prepareSamples(samples []CalibrationSample) (float64, []point, []EncoderPair, error) {
	if len(samples) < 3 {
		return 0, nil, nil, fmt.Errorf("%w: need at least 3 samples, got %d", ErrInvalidCalibrationTable, len(samples))
	}
	seen := make(map[point]int, len(samples))
	has := make([]float64, 0, len(samples))
	for i, s := range samples {
		if math.IsNaN(s.HourAngle) || math.IsInf(s.HourAngle, 0) ||
			math.IsNaN(s.Declination) || math.IsInf(s.Declination, 0) {
			return 0, nil, nil, fmt.Errorf("%w: sample %d is not finite", ErrInvalidCalibrationTable, i)
		}
		key := point{coordinates.NormalizeAngle(s.HourAngle), s.Declination}
		if j, dup := seen[key]; dup {
			return 0, nil, nil, fmt.Errorf("%w: samples %d and %d share position (%.6f, %.6f)",
				ErrInvalidCalibrationTable, j, i, s.HourAngle, s.Declination)
		}
		seen[key] = i
		has = append(has, key.x)
	}

	center := hourAngleCenter(has)
	pts := make([]point, len(samples))
	encoders := make([]EncoderPair, len(samples))
	for i, s := range samples {
		pts[i] = point{relativeHourAngle(s.HourAngle, center), s.Declination}
		encoders[i] = s.Encoder
	}
	return center, pts, encoders, nil
}

// hourAngleCenter returns the hour angle opposite the middle of the widest
// gap between the normalized hour angles has.
func hourAngleCenter(has []float64) float64 {
	sorted := append([]float64(nil), has...)
	sort.Float64s(sorted)
	last := sorted[len(sorted)-1]
	gapStart, gap := last, sorted[0]+360-last
	for i := 1; i < len(sorted); i++ {
		if d := sorted[i] - sorted[i-1]; d > gap {
			gapStart, gap = sorted[i-1], d
		}
	}
	return coordinates.NormalizeAngle(gapStart + gap/2 + 180)
}

func relativeHourAngle(ha, center float64) float64 {
	return coordinates.SignedAngle(ha - center)
}

// Kind implements Model.
func (m *InterpolationModel) Kind() Kind { return KindInterpolation }

// Table returns a copy of the calibration table the model was built from.
func (m *InterpolationModel) Table() CalibrationTable {
	t := m.table
	t.Samples = make([]CalibrationSample, len(m.table.Samples))
	copy(t.Samples, m.table.Samples)
	return t
}

// ToEncoder interpolates the encoder setpoint for (ha, dec) in degrees.
//
// Querying a calibration sample returns its stored encoder pair exactly.
// Points on the hull boundary are accepted; points outside it return
// ErrOutsideCalibrationHull.
func (m *InterpolationModel) ToEncoder(ha, dec float64) (EncoderPair, error) {
	p := point{relativeHourAngle(ha, m.center), dec}

	for _, t := range m.triangles {
		w1, w2, w3 := barycentric(m.pts, t, p)
		if !(w1 >= -hullEpsilon && w2 >= -hullEpsilon && w3 >= -hullEpsilon) {
			continue
		}
		w1, w2, w3 = math.Max(w1, 0), math.Max(w2, 0), math.Max(w3, 0)
		sum := w1 + w2 + w3
		w1, w2, w3 = w1/sum, w2/sum, w3/sum

		e1, e2, e3 := m.encoders[t.a], m.encoders[t.b], m.encoders[t.c]
		switch {
		case w1 >= 1-hullEpsilon:
			return e1, nil
		case w2 >= 1-hullEpsilon:
			return e2, nil
		case w3 >= 1-hullEpsilon:
			return e3, nil
		}
		x := w1*float64(e1.X) + w2*float64(e2.X) + w3*float64(e3.X)
		y := w1*float64(e1.Y) + w2*float64(e2.Y) + w3*float64(e3.Y)
		return EncoderPair{
			X: clampInt(int(math.Trunc(x)), e1.X, e2.X, e3.X),
			Y: clampInt(int(math.Trunc(y)), e1.Y, e2.Y, e3.Y),
		}, nil
	}

	return EncoderPair{}, fmt.Errorf("%w: HA=%.6f Dec=%.6f", ErrOutsideCalibrationHull, ha, dec)
}

// clampInt keeps v within the range spanned by the vertex values.
func clampInt(v int, vals ...int) int {
	lo, hi := vals[0], vals[0]
	for _, x := range vals[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return max(lo, min(hi, v))
}
