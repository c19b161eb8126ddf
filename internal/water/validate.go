package water

import (
	"fmt"
	"strings"
)

// physicalRange is the range a measurement can plausibly take, regardless of
// the water-quality standard.
type physicalRange struct {
	min float64
	max *float64
}

var physicalRanges = map[Parameter]physicalRange{
	ParamPH:          {min: 0, max: Float(14)},
	ParamTemperature: {min: 0, max: Float(100)},
	ParamEC:          {min: 0},
	ParamTDS:         {min: 0},
	ParamTurbidity:   {min: 0},
}

// ValidationError lists the problems found in one record.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// ValidateReading checks that the present values are physically plausible.
// Absent values are allowed. A nil error means the reading is acceptable.
func ValidateReading(r Reading) error {
	var problems []string
	for _, p := range Parameters {
		v, ok := r.Value(p)
		if !ok {
			continue
		}
		rng := physicalRanges[p]
		if v < rng.min {
			problems = append(problems, fmt.Sprintf("%s must be >= %g", p, rng.min))
			continue
		}
		if rng.max != nil && v > *rng.max {
			problems = append(problems, fmt.Sprintf("%s must be between %g and %g", p, rng.min, *rng.max))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidateStation checks the operator-supplied fields of a station.
func ValidateStation(st Station) error {
	var problems []string
	if st.StationCode < 1 {
		problems = append(problems, "stationId must be a positive integer")
	}
	if strings.TrimSpace(st.Name) == "" {
		problems = append(problems, "stationName is required")
	}
	switch st.RiverBankSide {
	case BankLeft, BankRight, BankCenter:
	default:
		problems = append(problems, fmt.Sprintf("riverBankSide %q must be Left, Right or Center", st.RiverBankSide))
	}
	switch st.Status {
	case StationActive, StationInactive:
	default:
		problems = append(problems, fmt.Sprintf("status %q must be Active or Inactive", st.Status))
	}
	if lat := st.Location.Latitude; lat != nil && (*lat < -90 || *lat > 90) {
		problems = append(problems, "latitude must be between -90 and 90")
	}
	if lon := st.Location.Longitude; lon != nil && (*lon < -180 || *lon > 180) {
		problems = append(problems, "longitude must be between -180 and 180")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
