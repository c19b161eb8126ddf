package water

import (
	"math"
	"strings"
)

// Direction is the short-horizon direction of a series.
type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionFalling Direction = "falling"
	DirectionStable  Direction = "stable"
)

const (
	// DefaultBins is the histogram bucket count used when none is given.
	DefaultBins = 8

	endpointEpsilon = 1e-3
	recentEpsilon   = 0.1
	recentWindow    = 3
)

// Trend describes how a series moves from step to step.
type Trend struct {
	Direction   Direction `json:"direction"`
	Delta       float64   `json:"delta"`
	RatePerStep float64   `json:"ratePerStep"`
}

// TrendStrategy derives a Trend from a chronological series (oldest first).
type TrendStrategy func(series []float64) Trend

// StrategyByName resolves "endpoint", "recent" or "ols". An empty name
// resolves to EndpointTrend.
func StrategyByName(name string) (TrendStrategy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "endpoint":
		return EndpointTrend, true
	case "recent":
		return RecentTrend, true
	case "ols", "least-squares", "leastsquares":
		return LeastSquaresTrend, true
	default:
		return nil, false
	}
}

// Classify places value against s. Bounds are inclusive and a nil bound is
// open. NaN and infinities count as absent and classify as normal.
func Classify(value float64, s Standard) Status {
	if !finite(value) {
		return StatusNormal
	}
	if s.Min != nil && value < *s.Min {
		return StatusLow
	}
	if s.Max != nil && value > *s.Max {
		return StatusHigh
	}
	return StatusNormal
}

// ClassifyOptional is Classify for a value that may be absent.
func ClassifyOptional(value *float64, s Standard) Status {
	if value == nil {
		return StatusNormal
	}
	return Classify(*value, s)
}

// CleanSeries returns the finite values of series in order.
func CleanSeries(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if finite(v) {
			out = append(out, v)
		}
	}
	return out
}

// SeriesOf extracts parameter p from readings, skipping readings where it is
// absent or not finite.
func SeriesOf(readings []Reading, p Parameter) []float64 {
	out := make([]float64, 0, len(readings))
	for _, r := range readings {
		if v, ok := r.Value(p); ok && finite(v) {
			out = append(out, v)
		}
	}
	return out
}

// ComputeTrend is the default trend strategy.
func ComputeTrend(series []float64) Trend {
	return EndpointTrend(series)
}

// EndpointTrend compares the first and last values of the whole series.
func EndpointTrend(series []float64) Trend {
	vals := CleanSeries(series)
	n := len(vals)
	if n == 0 {
		return Trend{Direction: DirectionStable}
	}

	delta := vals[n-1] - vals[0]
	rate := 0.0
	if n > 1 {
		rate = delta / float64(n-1)
	}
	return Trend{
		Direction:   direction(delta, endpointEpsilon),
		Delta:       delta,
		RatePerStep: rate,
	}
}

// RecentTrend averages the consecutive differences of the last three values.
func RecentTrend(series []float64) Trend {
	vals := CleanSeries(series)
	if len(vals) < 2 {
		return Trend{Direction: DirectionStable}
	}
	if len(vals) > recentWindow {
		vals = vals[len(vals)-recentWindow:]
	}

	var sum float64
	for i := 1; i < len(vals); i++ {
		sum += vals[i] - vals[i-1]
	}
	rate := sum / float64(len(vals)-1)
	return Trend{
		Direction:   direction(rate, recentEpsilon),
		Delta:       vals[len(vals)-1] - vals[0],
		RatePerStep: rate,
	}
}

// LeastSquaresTrend fits an ordinary least-squares line over the whole series.
func LeastSquaresTrend(series []float64) Trend {
	vals := CleanSeries(series)
	n := float64(len(vals))
	if n < 2 {
		return Trend{Direction: DirectionStable}
	}

	var sumX, sumY, sumXX, sumXY float64
	for i, y := range vals {
		x := float64(i)
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}
	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	return Trend{
		Direction:   direction(slope, endpointEpsilon),
		Delta:       slope * (n - 1),
		RatePerStep: slope,
	}
}

// Prediction is the one-step-ahead estimate for a series.
type Prediction struct {
	Current   float64 `json:"current"`
	Predicted float64 `json:"predicted"`
	Status    Status  `json:"status"`
	Trend     Trend   `json:"trend"`
}

// PredictNext extrapolates one step past the last value using strategy
// (EndpointTrend when nil). The prediction never goes below zero. ok is false
// when the series has no usable values.
func PredictNext(series []float64, s Standard, strategy TrendStrategy) (Prediction, bool) {
	vals := CleanSeries(series)
	if len(vals) == 0 {
		return Prediction{}, false
	}
	if strategy == nil {
		strategy = EndpointTrend
	}

	tr := strategy(vals)
	current := vals[len(vals)-1]
	predicted := math.Max(0, current+tr.RatePerStep)
	return Prediction{
		Current:   current,
		Predicted: predicted,
		Status:    Classify(predicted, s),
		Trend:     tr,
	}, true
}

// Summary is the aggregate view of one parameter's series.
type Summary struct {
	Count             int     `json:"count"`
	OutOfRangePercent int     `json:"outOfRangePercent"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	Last              float64 `json:"last"`
	LastStatus        Status  `json:"lastStatus"`
	Trend             Trend   `json:"trend"`
}

// Summarize aggregates series against s. It returns nil when the series has
// no usable values.
func Summarize(series []float64, s Standard) *Summary {
	vals := CleanSeries(series)
	n := len(vals)
	if n == 0 {
		return nil
	}

	minV, maxV := vals[0], vals[0]
	out := 0
	for _, v := range vals {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
		if Classify(v, s) != StatusNormal {
			out++
		}
	}

	last := vals[n-1]
	return &Summary{
		Count:             n,
		OutOfRangePercent: int(math.Round(100 * float64(out) / float64(n))),
		Min:               minV,
		Max:               maxV,
		Last:              last,
		LastStatus:        Classify(last, s),
		Trend:             EndpointTrend(vals),
	}
}

// Bucket is one histogram bin. Status reflects the bin's whole range: low
// only when the bin lies entirely below the minimum, high only when it lies
// entirely above the maximum.
type Bucket struct {
	RangeLow  float64 `json:"rangeLow"`
	RangeHigh float64 `json:"rangeHigh"`
	Count     int     `json:"count"`
	Status    Status  `json:"status"`
}

// Histogram partitions series into bins equal-width buckets (DefaultBins when
// bins <= 0). A series whose values are all equal yields a single bucket.
// Bucket counts always sum to the number of usable values.
func Histogram(series []float64, s Standard, bins int) []Bucket {
	vals := CleanSeries(series)
	if len(vals) == 0 {
		return []Bucket{}
	}
	if bins <= 0 {
		bins = DefaultBins
	}

	minV, maxV := vals[0], vals[0]
	for _, v := range vals {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}

	if minV == maxV {
		return []Bucket{{
			RangeLow:  minV,
			RangeHigh: maxV,
			Count:     len(vals),
			Status:    bucketStatus(minV, maxV, s),
		}}
	}

	width := (maxV - minV) / float64(bins)
	buckets := make([]Bucket, bins)
	for i := range buckets {
		lo := minV + float64(i)*width
		hi := minV + float64(i+1)*width
		if i == bins-1 {
			hi = maxV
		}
		buckets[i] = Bucket{RangeLow: lo, RangeHigh: hi, Status: bucketStatus(lo, hi, s)}
	}

	for _, v := range vals {
		idx := int(math.Floor((v - minV) / width))
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		buckets[idx].Count++
	}
	return buckets
}

func bucketStatus(lo, hi float64, s Standard) Status {
	if s.Min != nil && hi < *s.Min {
		return StatusLow
	}
	if s.Max != nil && lo > *s.Max {
		return StatusHigh
	}
	return StatusNormal
}

// Distribution counts values per status.
type Distribution struct {
	Low    int `json:"low"`
	Normal int `json:"normal"`
	High   int `json:"high"`
}

// Total is the number of values counted.
func (d Distribution) Total() int {
	return d.Low + d.Normal + d.High
}

// StatusDistribution counts the usable values of series by status.
func StatusDistribution(series []float64, s Standard) Distribution {
	var d Distribution
	for _, v := range CleanSeries(series) {
		switch Classify(v, s) {
		case StatusLow:
			d.Low++
		case StatusHigh:
			d.High++
		default:
			d.Normal++
		}
	}
	return d
}

// EvalOptions tunes Evaluate.
type EvalOptions struct {
	Bins     int
	Strategy TrendStrategy
}

// ParameterReport bundles every aggregate for one parameter.
type ParameterReport struct {
	Parameter    Parameter    `json:"parameter"`
	Unit         string       `json:"unit"`
	Summary      *Summary     `json:"summary"`
	Histogram    []Bucket     `json:"histogram"`
	Distribution Distribution `json:"distribution"`
	Prediction   *Prediction  `json:"prediction,omitempty"`
}

// Report is the evaluation of a reading series for all parameters.
type Report struct {
	Readings   int               `json:"readings"`
	Parameters []ParameterReport `json:"parameters"`
}

// Get returns the report for p.
func (r Report) Get(p Parameter) (ParameterReport, bool) {
	for _, pr := range r.Parameters {
		if pr.Parameter == p {
			return pr, true
		}
	}
	return ParameterReport{}, false
}

// Evaluate runs every aggregate over readings (oldest first) for each
// monitored parameter.
func Evaluate(readings []Reading, table StandardsTable, opts EvalOptions) Report {
	rep := Report{
		Readings:   len(readings),
		Parameters: make([]ParameterReport, 0, len(Parameters)),
	}
	for _, p := range Parameters {
		std := table.Lookup(p)
		series := SeriesOf(readings, p)

		pr := ParameterReport{
			Parameter:    p,
			Unit:         std.Unit,
			Summary:      Summarize(series, std),
			Histogram:    Histogram(series, std, opts.Bins),
			Distribution: StatusDistribution(series, std),
		}
		if pred, ok := PredictNext(series, std, opts.Strategy); ok {
			pr.Prediction = &pred
		}
		rep.Parameters = append(rep.Parameters, pr)
	}
	return rep
}

func direction(v, epsilon float64) Direction {
	switch {
	case math.Abs(v) < epsilon:
		return DirectionStable
	case v > 0:
		return DirectionRising
	default:
		return DirectionFalling
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
