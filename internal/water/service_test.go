package water_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kham-river/water-quality-monitor/internal/cache"
	"github.com/kham-river/water-quality-monitor/internal/store"
	"github.com/kham-river/water-quality-monitor/internal/water"
)

type stubPredictor struct {
	mu        sync.Mutex
	predicts  map[string]int
	trains    int
	fail      map[string]error
	empty     bool
	standards water.StandardsTable
}

func newStubPredictor() *stubPredictor {
	return &stubPredictor{predicts: make(map[string]int), fail: make(map[string]error)}
}

func (p *stubPredictor) Predict(_ context.Context, stationID string, days int) (water.Forecast, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.predicts[stationID]++
	if err := p.fail[stationID]; err != nil {
		return water.Forecast{}, err
	}
	if p.empty {
		return water.Forecast{}, nil
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]water.Reading, days)
	for i := range out {
		out[i] = water.Reading{
			StationID: stationID,
			Timestamp: start.AddDate(0, 0, i),
			PH:        water.Float(7 + float64(i)),
			Turbidity: water.Float(1),
		}
	}
	return water.Forecast{Predictions: out}, nil
}

func (p *stubPredictor) Standards(context.Context) (water.StandardsTable, error) {
	return p.standards, nil
}

func (p *stubPredictor) Train(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trains++
	return nil
}

func (p *stubPredictor) calls(stationID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.predicts[stationID]
}

func (p *stubPredictor) trained() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trains
}

type stubAssistant struct {
	got water.Question
}

func (a *stubAssistant) Ask(_ context.Context, q water.Question) (string, error) {
	a.got = q
	return "answer", nil
}

func (a *stubAssistant) Configured() bool { return true }
func (a *stubAssistant) Model() string { return "test-model" }

func newService(t *testing.T, p water.Predictor, a water.Assistant) *water.Service {
	t.Helper()
	mem := store.NewMemoryStore(0, 0)
	svc := water.NewService(water.ServiceConfig{
		Stations:  mem,
		Readings:  mem,
		Predictor: p,
		Assistant: a,
		KV:        cache.NewMemoryKV(),
		CacheTTL:  time.Minute,
	})
	t.Cleanup(svc.Wait)
	return svc
}

func TestService_PredictionsCachedPerStationAndDays(t *testing.T) {
	p := newStubPredictor()
	svc := newService(t, p, nil)
	ctx := context.Background()

	f, err := svc.Predictions(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Len(t, f.Predictions, 3)
	assert.Equal(t, "s1", f.StationID)
	assert.Equal(t, 3, f.Days)

	_, err = svc.Predictions(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls("s1"))

	_, err = svc.Predictions(ctx, "s1", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls("s1"))

	_, err = svc.Predictions(ctx, "", 3)
	require.NoError(t, err)
	_, err = svc.Predictions(ctx, water.AllStations, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls(water.AllStations))
}

func TestService_RetrainInvalidatesPredictions(t *testing.T) {
	p := newStubPredictor()
	svc := newService(t, p, nil)
	ctx := context.Background()

	_, err := svc.Predictions(ctx, "s1", 2)
	require.NoError(t, err)
	require.NoError(t, svc.Retrain(ctx))
	assert.Equal(t, 1, p.trained())

	_, err = svc.Predictions(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls("s1"))
}

func TestService_PredictionsDaysRange(t *testing.T) {
	p := newStubPredictor()
	svc := newService(t, p, nil)

	for _, days := range []int{0, -1, water.MaxDays + 1} {
		_, err := svc.Predictions(context.Background(), "s1", days)
		assert.ErrorIs(t, err, water.ErrInvalidDays, days)
	}
	assert.Zero(t, p.calls("s1"))

	_, err := svc.Predictions(context.Background(), "s1", water.MaxDays)
	assert.NoError(t, err)
}

func TestService_EmptyForecastIsNotCached(t *testing.T) {
	p := newStubPredictor()
	p.empty = true
	svc := newService(t, p, nil)

	f, err := svc.Predictions(context.Background(), "s1", 3)
	assert.ErrorIs(t, err, water.ErrNoData)
	assert.Equal(t, 3, f.Days)

	_, err = svc.Predictions(context.Background(), "s1", 3)
	assert.ErrorIs(t, err, water.ErrNoData)
	assert.Equal(t, 2, p.calls("s1"))
}

func TestService_ComparePredictions(t *testing.T) {
	p := newStubPredictor()
	svc := newService(t, p, nil)
	ctx := context.Background()
	opts := water.EvalOptions{Bins: water.DefaultBins}

	cmp, err := svc.ComparePredictions(ctx, "s1", 4, opts)
	require.NoError(t, err)
	require.NotNil(t, cmp.Station)
	require.NotNil(t, cmp.All)
	assert.Equal(t, "s1", cmp.Station.StationID)
	assert.Equal(t, water.AllStations, cmp.All.StationID)
	assert.Equal(t, 4, cmp.Station.Report.Readings)

	p.fail["broken"] = errors.New("upstream down")
	cmp, err = svc.ComparePredictions(ctx, "broken", 4, opts)
	require.NoError(t, err)
	assert.Nil(t, cmp.Station)
	assert.NotNil(t, cmp.All)

	p.fail[water.AllStations] = errors.New("upstream down")
	_, err = svc.ComparePredictions(ctx, "broken", 5, opts)
	assert.Error(t, err)

	cmp, err = svc.ComparePredictions(ctx, "", 3, water.EvalOptions{})
	assert.Error(t, err)
	assert.Nil(t, cmp.All)
}

func TestService_CreateReading(t *testing.T) {
	p := newStubPredictor()
	svc := newService(t, p, nil)
	ctx := context.Background()

	_, err := svc.CreateReading(ctx, water.Reading{StationID: "nope", PH: water.Float(7)})
	assert.ErrorIs(t, err, water.ErrStationNotFound)

	_, err = svc.CreateReading(ctx, water.Reading{StationID: "nope", PH: water.Float(15)})
	var verr *water.ValidationError
	assert.ErrorAs(t, err, &verr)

	st, err := svc.CreateStation(ctx, water.Station{StationCode: 1, Name: "Kham A"})
	require.NoError(t, err)
	assert.Equal(t, water.BankCenter, st.RiverBankSide)
	assert.Equal(t, water.StationActive, st.Status)

	at := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	r, err := svc.CreateReading(ctx, water.Reading{StationID: st.ID, Timestamp: at, PH: water.Float(7.1)})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)

	svc.Wait()
	assert.Equal(t, 1, p.trained())

	got, err := svc.GetStation(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, got.LastUpdated.Equal(at))
}

func TestService_UpdateReadingKeepsOmittedFields(t *testing.T) {
	svc := newService(t, newStubPredictor(), nil)
	ctx := context.Background()

	st, err := svc.CreateStation(ctx, water.Station{StationCode: 5, Name: "Kham E"})
	require.NoError(t, err)
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	r, err := svc.CreateReading(ctx, water.Reading{
		StationID:   st.ID,
		Timestamp:   at,
		PH:          water.Float(7.1),
		Temperature: water.Float(26),
		EC:          water.Float(410),
		TDS:         water.Float(280),
		Turbidity:   water.Float(3),
		Remarks:     "clear",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateReading(ctx, r.ID, water.ReadingUpdate{PH: water.Float(7.5)})
	require.NoError(t, err)
	assert.Equal(t, 7.5, *updated.PH)
	require.NotNil(t, updated.Temperature)
	assert.Equal(t, 26.0, *updated.Temperature)
	require.NotNil(t, updated.EC)
	require.NotNil(t, updated.TDS)
	require.NotNil(t, updated.Turbidity)
	assert.Equal(t, "clear", updated.Remarks)
	assert.Equal(t, st.ID, updated.StationID)
	assert.True(t, updated.Timestamp.Equal(at))

	blank := ""
	updated, err = svc.UpdateReading(ctx, r.ID, water.ReadingUpdate{Remarks: &blank})
	require.NoError(t, err)
	assert.Empty(t, updated.Remarks)
	assert.Equal(t, 7.5, *updated.PH)

	_, err = svc.UpdateReading(ctx, r.ID, water.ReadingUpdate{PH: water.Float(15)})
	var verr *water.ValidationError
	assert.ErrorAs(t, err, &verr)

	missing := "missing"
	_, err = svc.UpdateReading(ctx, r.ID, water.ReadingUpdate{StationID: &missing})
	assert.ErrorIs(t, err, water.ErrStationNotFound)

	_, err = svc.UpdateReading(ctx, "nope", water.ReadingUpdate{PH: water.Float(7)})
	assert.ErrorIs(t, err, water.ErrNotFound)
}

// gatedPredictor blocks Train until the gate is closed and records the
// highest number of concurrent Train calls.
type gatedPredictor struct {
	*stubPredictor
	gate    chan struct{}
	active  int32
	peak    int32
	started chan struct{}
	once    sync.Once
}

func (p *gatedPredictor) Train(ctx context.Context) error {
	n := atomic.AddInt32(&p.active, 1)
	defer atomic.AddInt32(&p.active, -1)
	for {
		old := atomic.LoadInt32(&p.peak)
		if n <= old || atomic.CompareAndSwapInt32(&p.peak, old, n) {
			break
		}
	}
	p.once.Do(func() { close(p.started) })
	<-p.gate
	return p.stubPredictor.Train(ctx)
}

func TestService_RapidWritesMergeRetrains(t *testing.T) {
	p := &gatedPredictor{
		stubPredictor: newStubPredictor(),
		gate:          make(chan struct{}),
		started:       make(chan struct{}),
	}
	svc := newService(t, p, nil)
	ctx := context.Background()

	st, err := svc.CreateStation(ctx, water.Station{StationCode: 6, Name: "Kham F"})
	require.NoError(t, err)

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		_, err := svc.CreateReading(ctx, water.Reading{
			StationID: st.ID,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			PH:        water.Float(7),
		})
		require.NoError(t, err)
	}

	<-p.started
	close(p.gate)
	svc.Wait()

	assert.GreaterOrEqual(t, p.trained(), 1)
	assert.LessOrEqual(t, p.trained(), 2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&p.peak))

	// A write after the burst still retrains.
	before := p.trained()
	_, err = svc.CreateReading(ctx, water.Reading{StationID: st.ID, Timestamp: start, PH: water.Float(7.2)})
	require.NoError(t, err)
	svc.Wait()
	assert.Equal(t, before+1, p.trained())
}

func TestService_ImportReadings(t *testing.T) {
	p := newStubPredictor()
	svc := newService(t, p, nil)
	ctx := context.Background()

	_, err := svc.ImportReadings(ctx, nil)
	assert.ErrorIs(t, err, water.ErrNoData)

	st, err := svc.CreateStation(ctx, water.Station{StationCode: 2, Name: "Kham B"})
	require.NoError(t, err)
	n, err := svc.ImportReadings(ctx, []water.Reading{
		{StationID: st.ID, Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), PH: water.Float(7)},
		{StationID: st.ID, Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), PH: water.Float(7.2)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	history, err := svc.History(ctx, st.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Timestamp.Before(history[1].Timestamp))
}

func TestService_StationInsights(t *testing.T) {
	svc := newService(t, newStubPredictor(), nil)
	ctx := context.Background()
	opts := water.EvalOptions{Bins: water.DefaultBins}

	_, err := svc.StationInsights(ctx, "missing", 10, opts)
	assert.ErrorIs(t, err, water.ErrStationNotFound)

	st, err := svc.CreateStation(ctx, water.Station{StationCode: 3, Name: "Kham C"})
	require.NoError(t, err)
	_, err = svc.StationInsights(ctx, st.ID, 10, opts)
	assert.ErrorIs(t, err, water.ErrNoData)

	for i, ph := range []float64{7.0, 7.2, 7.4, 9.0} {
		_, err := svc.CreateReading(ctx, water.Reading{
			StationID: st.ID,
			Timestamp: time.Date(2024, 2, 1+i, 0, 0, 0, 0, time.UTC),
			PH:        water.Float(ph),
		})
		require.NoError(t, err)
	}

	in, err := svc.StationInsights(ctx, st.ID, 3, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, in.Report.Readings)
	require.Contains(t, in.Next, water.ParamPH)
	assert.Equal(t, 9.0, in.Next[water.ParamPH].Current)
	assert.Equal(t, water.StatusHigh, in.Next[water.ParamPH].Status)

	all, err := svc.StationInsights(ctx, water.AllStations, 100, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, all.Report.Readings)
}

func TestService_RefreshStandards(t *testing.T) {
	p := newStubPredictor()
	p.standards = water.StandardsTable{water.ParamPH: {Max: water.Float(9)}}
	svc := newService(t, p, nil)

	require.NoError(t, svc.RefreshStandards(context.Background()))
	ph := svc.Standards()[water.ParamPH]
	assert.Equal(t, 9.0, *ph.Max)
	assert.Equal(t, 6.5, *ph.Min)
}

func TestService_EffectiveStandards(t *testing.T) {
	svc := newService(t, newStubPredictor(), nil)

	table := svc.EffectiveStandards(water.Forecast{
		Standards: water.StandardsTable{water.ParamTurbidity: {Max: water.Float(10), Unit: "FNU"}},
	})
	assert.Equal(t, 10.0, *table[water.ParamTurbidity].Max)
	assert.Equal(t, "FNU", table[water.ParamTurbidity].Unit)
	assert.NotEqual(t, 10.0, *svc.Standards()[water.ParamTurbidity].Max)
}

func TestService_Ask(t *testing.T) {
	svc := newService(t, newStubPredictor(), nil)
	_, err := svc.Ask(context.Background(), water.Question{Text: "Is pH 9 safe?"})
	assert.ErrorIs(t, err, water.ErrAssistantUnavailable)
	configured, model := svc.AssistantStatus()
	assert.False(t, configured)
	assert.Empty(t, model)

	a := &stubAssistant{}
	svc = newService(t, newStubPredictor(), a)
	answer, err := svc.Ask(context.Background(), water.Question{Text: "Is pH 9 safe?"})
	require.NoError(t, err)
	assert.Equal(t, "answer", answer)
	assert.Contains(t, a.got.Standards, water.ParamPH)
}
