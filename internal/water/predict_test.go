package water

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictWaterQuality_FiltersStation(t *testing.T) {
	readings := []Reading{
		{StationID: "s1", PH: Float(7.0), Turbidity: Float(4.0)},
		{StationID: "s2", PH: Float(9.9), Turbidity: Float(0.1)},
		{StationID: "s1", PH: Float(7.2), Turbidity: Float(4.5)},
		{StationID: "s1", PH: Float(7.4), Turbidity: Float(5.0)},
		{StationID: "s1", PH: Float(7.6), Turbidity: Float(5.5)},
	}

	got := PredictWaterQuality(readings, "s1", DefaultStandards())
	require.NotNil(t, got)

	ph := got[ParamPH]
	assert.Equal(t, 7.6, ph.Current)
	assert.InDelta(t, 7.8, ph.Predicted, 1e-9)
	assert.Equal(t, DirectionRising, ph.Trend)
	assert.Equal(t, StatusNormal, ph.Status)
	assert.Equal(t, "", ph.Unit)

	turb := got[ParamTurbidity]
	assert.InDelta(t, 6.0, turb.Predicted, 1e-9)
	assert.Equal(t, StatusHigh, turb.Status)
	assert.Equal(t, "NTU", turb.Unit)

	_, ok := got[ParamEC]
	assert.False(t, ok)
}

func TestPredictWaterQuality_AllStations(t *testing.T) {
	readings := []Reading{
		{StationID: "s1", Temperature: Float(25)},
		{StationID: "s2", Temperature: Float(25.02)},
	}
	for _, id := range []string{"", AllStations} {
		got := PredictWaterQuality(readings, id, DefaultStandards())
		require.Contains(t, got, ParamTemperature)
		assert.Equal(t, DirectionStable, got[ParamTemperature].Trend)
		assert.Equal(t, 25.04, got[ParamTemperature].Predicted)
	}
}

func TestPredictWaterQuality_ClampsAndRounds(t *testing.T) {
	readings := []Reading{
		{TDS: Float(10)},
		{TDS: Float(4)},
		{TDS: Float(1.234)},
	}
	got := PredictWaterQuality(readings, "", DefaultStandards())
	assert.Equal(t, 0.0, got[ParamTDS].Predicted)
	assert.Equal(t, DirectionFalling, got[ParamTDS].Trend)
	assert.Equal(t, StatusLow, got[ParamTDS].Status)
}

func TestPredictWaterQuality_NoReadings(t *testing.T) {
	assert.Nil(t, PredictWaterQuality(nil, "", DefaultStandards()))
	assert.Nil(t, PredictWaterQuality([]Reading{{StationID: "s2", PH: Float(7)}}, "s1", DefaultStandards()))
}

func TestDefaultStandards(t *testing.T) {
	table := DefaultStandards()
	require.Len(t, table, len(Parameters))

	for _, p := range Parameters {
		s := table.Lookup(p)
		assert.True(t, s.Bounded(), p)
		assert.NotEmpty(t, s.LowSolution, p)
		assert.NotEmpty(t, s.HighSolution, p)
		assert.Less(t, *s.Min, *s.Max, p)
	}
	assert.Equal(t, 6.5, *table[ParamPH].Min)
	assert.Equal(t, 8.5, *table[ParamPH].Max)
	assert.Equal(t, "µS/cm", table[ParamEC].Unit)
	assert.Equal(t, table[ParamPH].LowSolution, table[ParamPH].Solution(StatusLow))
	assert.Equal(t, "", table[ParamPH].Solution(StatusNormal))
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry(nil)
	table := r.Get()
	table[ParamPH] = Standard{}

	assert.Equal(t, 6.5, *r.Lookup(ParamPH).Min)
}

func TestRegistry_Merge(t *testing.T) {
	r := NewRegistry(nil)
	r.Merge(StandardsTable{
		ParamPH:        {Min: Float(6.0)},
		ParamTurbidity: {Max: Float(10), Unit: "FNU"},
	})

	ph := r.Lookup(ParamPH)
	assert.Equal(t, 6.0, *ph.Min)
	assert.Equal(t, 8.5, *ph.Max)
	assert.NotEmpty(t, ph.LowSolution)

	turb := r.Lookup(ParamTurbidity)
	assert.Equal(t, 10.0, *turb.Max)
	assert.Equal(t, "FNU", turb.Unit)
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(nil)
	r.Replace(StandardsTable{ParamPH: {Min: Float(1), Max: Float(2)}})

	assert.Len(t, r.Get(), 1)
	assert.Equal(t, StatusNormal, Classify(500, r.Lookup(ParamTDS)))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Merge(StandardsTable{ParamPH: {Min: Float(float64(i))}})
		}(i)
		go func() {
			defer wg.Done()
			_ = Classify(7, r.Lookup(ParamPH))
		}()
	}
	wg.Wait()
	assert.NotNil(t, r.Lookup(ParamPH).Min)
}

func TestValidateReading(t *testing.T) {
	assert.NoError(t, ValidateReading(Reading{PH: Float(0), Temperature: Float(100), EC: Float(0)}))
	assert.NoError(t, ValidateReading(Reading{}))

	err := ValidateReading(Reading{PH: Float(14.5), Temperature: Float(-1), TDS: Float(-3)})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 3)
}

func TestValidateStation(t *testing.T) {
	ok := Station{StationCode: 1, Name: "Kham Bridge", RiverBankSide: BankLeft, Status: StationActive}
	assert.NoError(t, ValidateStation(ok))

	bad := Station{Name: " ", RiverBankSide: "North", Status: "Broken", Location: GeoPoint{Latitude: Float(120)}}
	var verr *ValidationError
	require.ErrorAs(t, ValidateStation(bad), &verr)
	assert.Len(t, verr.Problems, 5)
	assert.Contains(t, verr.Problems, "stationId must be a positive integer")
}
