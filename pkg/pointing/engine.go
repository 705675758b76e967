package pointing

import (
	"github.com/unklstewy/rotse-mount/pkg/coordinates"
)

// Solution is the result of pointing a request through a model.
type Solution struct {
	Position coordinates.HourAngleDec
	Encoder  EncoderPair
}

// Point resolves req at site and evaluates m on the resulting hour angle
// and declination. Any error is returned unchanged and the Solution must
// not be used.
func Point(req coordinates.ObservationRequest, site coordinates.Site, m Model) (Solution, error) {
	pos, err := coordinates.Resolve(req, site)
	if err != nil {
		return Solution{}, err
	}
	if m == nil {
		return Solution{Position: pos}, ErrNoModel
	}
	enc, err := m.ToEncoder(pos.HourAngle, pos.Declination)
	if err != nil {
		return Solution{Position: pos}, err
	}
	return Solution{Position: pos, Encoder: enc}, nil
}
