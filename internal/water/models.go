package water

import (
	"time"
)

// Parameter names one of the monitored water-quality measurements.
type Parameter string

const (
	ParamPH          Parameter = "pH"
	ParamTemperature Parameter = "temperature"
	ParamEC          Parameter = "ec"
	ParamTDS         Parameter = "tds"
	ParamTurbidity   Parameter = "turbidity"
)

// Parameters lists the monitored parameters in display order.
var Parameters = []Parameter{ParamPH, ParamTemperature, ParamEC, ParamTDS, ParamTurbidity}

// Valid reports whether p is one of the monitored parameters.
func (p Parameter) Valid() bool {
	for _, known := range Parameters {
		if p == known {
			return true
		}
	}
	return false
}

// Status is the classification of a value against a Standard.
type Status string

const (
	StatusLow    Status = "low"
	StatusNormal Status = "normal"
	StatusHigh   Status = "high"
)

// BankSide is the river bank a station sits on.
type BankSide string

const (
	BankLeft   BankSide = "Left"
	BankRight  BankSide = "Right"
	BankCenter BankSide = "Center"
)

// StationStatus is the operational state of a station.
type StationStatus string

const (
	StationActive   StationStatus = "Active"
	StationInactive StationStatus = "Inactive"
)

// GeoPoint is an optional station coordinate.
type GeoPoint struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Station is a monitoring site that owns readings.
type Station struct {
	ID            string        `json:"id"`
	StationCode   int           `json:"stationId"`
	Name          string        `json:"stationName"`
	Location      GeoPoint      `json:"location"`
	Region        string        `json:"region,omitempty"`
	RiverBankSide BankSide      `json:"riverBankSide"`
	Status        StationStatus `json:"status"`
	LastUpdated   time.Time     `json:"lastUpdated"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Reading is one timestamped measurement of the five parameters.
// A nil parameter field means the value is absent.
type Reading struct {
	ID          string    `json:"id,omitempty"`
	StationID   string    `json:"stationId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	PH          *float64  `json:"pH,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	EC          *float64  `json:"ec,omitempty"`
	TDS         *float64  `json:"tds,omitempty"`
	Turbidity   *float64  `json:"turbidity,omitempty"`
	Remarks     string    `json:"remarks,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// Value returns the reading's value for p and whether it is present.
func (r Reading) Value(p Parameter) (float64, bool) {
	var v *float64
	switch p {
	case ParamPH:
		v = r.PH
	case ParamTemperature:
		v = r.Temperature
	case ParamEC:
		v = r.EC
	case ParamTDS:
		v = r.TDS
	case ParamTurbidity:
		v = r.Turbidity
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// SetValue stores v for p. Unknown parameters are ignored.
func (r *Reading) SetValue(p Parameter, v float64) {
	switch p {
	case ParamPH:
		r.PH = &v
	case ParamTemperature:
		r.Temperature = &v
	case ParamEC:
		r.EC = &v
	case ParamTDS:
		r.TDS = &v
	case ParamTurbidity:
		r.Turbidity = &v
	}
}

// Complete reports whether every monitored parameter is present.
func (r Reading) Complete() bool {
	for _, p := range Parameters {
		if _, ok := r.Value(p); !ok {
			return false
		}
	}
	return true
}

// Forecast is a predicted series for one station (or all stations) together
// with any standards the prediction service supplied.
type Forecast struct {
	StationID   string         `json:"stationId"`
	Days        int            `json:"days"`
	Predictions []Reading      `json:"predictions"`
	Standards   StandardsTable `json:"standards,omitempty"`
}

// Float returns a pointer to v. Handy for optional bounds and reading fields.
func Float(v float64) *float64 {
	return &v
}
