package coordinates

import (
	"fmt"
	"strconv"
	"strings"

	sexa "github.com/soniakeys/sexagesimal"
	"github.com/soniakeys/unit"
)

// ParseRA parses a right ascension given either as sexagesimal hours
// ("10:41:02.4", "10 41 02.4", "10h41m02.4s") or as decimal hours ("10.684").
// Returns the right ascension in degrees.
func ParseRA(s string) (float64, error) {
	hours, err := parseSexagesimal(s)
	if err != nil {
		return 0, fmt.Errorf("%w: RA %q: %v", ErrInvalidInput, s, err)
	}
	return hours * DegreesPerHour, nil
}

// ParseDec parses a declination given either as sexagesimal degrees
// ("-23:16:22", "+41 16 09") or as decimal degrees.
// Returns the declination in degrees.
func ParseDec(s string) (float64, error) {
	deg, err := parseSexagesimal(s)
	if err != nil {
		return 0, fmt.Errorf("%w: Dec %q: %v", ErrInvalidInput, s, err)
	}
	if deg < -90 || deg > 90 {
		return 0, fmt.Errorf("%w: Dec %q outside [-90, 90]", ErrInvalidInput, s)
	}
	return deg, nil
}

// FormatRA formats a right ascension in degrees as sexagesimal hours.
func FormatRA(raDeg float64) string {
	return fmt.Sprintf("%.1s", sexa.FmtRA(unit.RAFromDeg(raDeg)))
}

// FormatDec formats a declination in degrees as sexagesimal degrees.
func FormatDec(decDeg float64) string {
	return fmt.Sprintf("%.0s", sexa.FmtAngle(unit.AngleFromDeg(decDeg)))
}

func parseSexagesimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	var neg byte = ' '
	switch s[0] {
	case '-':
		neg = '-'
		s = s[1:]
	case '+':
		s = s[1:]
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ':', ' ', 'h', 'm', 's', 'd', '\'', '"', '°':
			return true
		}
		return false
	})
	if len(fields) == 0 || len(fields) > 3 {
		return 0, fmt.Errorf("expected 1 to 3 components, got %d", len(fields))
	}

	if len(fields) == 1 {
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, err
		}
		if neg == '-' {
			v = -v
		}
		return v, nil
	}

	d, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, err
	}
	var sec float64
	if len(fields) == 3 {
		if sec, err = strconv.ParseFloat(fields[2], 64); err != nil {
			return 0, err
		}
	}
	if d < 0 || m < 0 || m >= 60 || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("component out of range")
	}
	return unit.FromSexa(neg, d, m, sec), nil
}
