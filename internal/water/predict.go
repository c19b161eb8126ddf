package water

import (
	"math"
)

// AllStations selects readings from every station.
const AllStations = "all"

// ParameterForecast is the dashboard's next-reading estimate for one parameter.
type ParameterForecast struct {
	Current   float64   `json:"current"`
	Predicted float64   `json:"predicted"`
	Trend     Direction `json:"trend"`
	Status    Status    `json:"status"`
	Unit      string    `json:"unit"`
}

// PredictWaterQuality estimates the next reading of each parameter from the
// recent movement of readings (oldest first). Readings are limited to
// stationID unless it is empty or AllStations. It returns nil when no readings
// remain after filtering.
func PredictWaterQuality(readings []Reading, stationID string, table StandardsTable) map[Parameter]ParameterForecast {
	filtered := readings
	if stationID != "" && stationID != AllStations {
		filtered = make([]Reading, 0, len(readings))
		for _, r := range readings {
			if r.StationID == stationID {
				filtered = append(filtered, r)
			}
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	out := make(map[Parameter]ParameterForecast, len(Parameters))
	for _, p := range Parameters {
		std := table.Lookup(p)
		pred, ok := PredictNext(SeriesOf(filtered, p), std, RecentTrend)
		if !ok {
			continue
		}
		out[p] = ParameterForecast{
			Current:   pred.Current,
			Predicted: round2(pred.Predicted),
			Trend:     pred.Trend.Direction,
			Status:    pred.Status,
			Unit:      std.Unit,
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
