package water

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kham-river/water-quality-monitor/internal/cache"
)

// Service orchestrates the stores, the prediction service, the assistant and
// the evaluator.
type Service struct {
	stations  StationStore
	readings  ReadingStore
	predictor Predictor
	assistant Assistant
	kv        KV
	standards *Registry
	log       *zap.Logger

	cacheTTL       time.Duration
	retrainTimeout time.Duration

	// At most one background retrain runs at a time. Writes that land while
	// it runs set retrainDirty and get one follow-up retrain between them.
	retrainRunning atomic.Bool
	retrainDirty   atomic.Bool

	bg  sync.WaitGroup
	now func() time.Time
}

// ServiceConfig holds the collaborators of a Service. Predictor, Assistant and
// KV may be nil.
type ServiceConfig struct {
	Stations  StationStore
	Readings  ReadingStore
	Predictor Predictor
	Assistant Assistant
	KV        KV
	Standards *Registry
	Logger    *zap.Logger

	CacheTTL       time.Duration
	RetrainTimeout time.Duration
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Standards == nil {
		cfg.Standards = NewRegistry(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RetrainTimeout <= 0 {
		cfg.RetrainTimeout = 2 * time.Minute
	}
	return &Service{
		stations:       cfg.Stations,
		readings:       cfg.Readings,
		predictor:      cfg.Predictor,
		assistant:      cfg.Assistant,
		kv:             cfg.KV,
		standards:      cfg.Standards,
		log:            cfg.Logger,
		cacheTTL:       cfg.CacheTTL,
		retrainTimeout: cfg.RetrainTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Standards returns the active standards table.
func (s *Service) Standards() StandardsTable {
	return s.standards.Get()
}

// Registry exposes the standards registry for the file watcher.
func (s *Service) Registry() *Registry {
	return s.standards
}

// CreateStation assigns an id and defaults, validates and stores st.
func (s *Service) CreateStation(ctx context.Context, st Station) (Station, error) {
	if st.RiverBankSide == "" {
		st.RiverBankSide = BankCenter
	}
	if st.Status == "" {
		st.Status = StationActive
	}
	st.Name = strings.TrimSpace(st.Name)
	if err := ValidateStation(st); err != nil {
		return Station{}, err
	}

	now := s.now()
	st.ID = uuid.NewString()
	st.CreatedAt = now
	st.UpdatedAt = now
	st.LastUpdated = now

	created, err := s.stations.CreateStation(ctx, st)
	if err != nil {
		return Station{}, fmt.Errorf("create station: %w", err)
	}
	s.log.Info("station created", zap.String("station_id", created.ID), zap.Int("station_code", created.StationCode))
	return created, nil
}

// GetStation returns one station.
func (s *Service) GetStation(ctx context.Context, id string) (Station, error) {
	return s.stations.GetStation(ctx, id)
}

// ListStations returns all stations ordered by name.
func (s *Service) ListStations(ctx context.Context) ([]Station, error) {
	list, err := s.stations.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// StationUpdate carries the fields an operator may change. Nil fields are kept.
type StationUpdate struct {
	StationCode   *int
	Name          *string
	Location      *GeoPoint
	Region        *string
	RiverBankSide *BankSide
	Status        *StationStatus
}

// UpdateStation applies upd to the station id.
func (s *Service) UpdateStation(ctx context.Context, id string, upd StationUpdate) (Station, error) {
	st, err := s.stations.GetStation(ctx, id)
	if err != nil {
		return Station{}, err
	}
	if upd.StationCode != nil {
		st.StationCode = *upd.StationCode
	}
	if upd.Name != nil {
		st.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Location != nil {
		st.Location = *upd.Location
	}
	if upd.Region != nil {
		st.Region = *upd.Region
	}
	if upd.RiverBankSide != nil {
		st.RiverBankSide = *upd.RiverBankSide
	}
	if upd.Status != nil {
		st.Status = *upd.Status
	}
	if err := ValidateStation(st); err != nil {
		return Station{}, err
	}
	st.UpdatedAt = s.now()
	return s.stations.UpdateStation(ctx, st)
}

// DeleteStation removes a station. Its readings are kept.
func (s *Service) DeleteStation(ctx context.Context, id string) error {
	if err := s.stations.DeleteStation(ctx, id); err != nil {
		return err
	}
	s.log.Info("station deleted", zap.String("station_id", id))
	return nil
}

// CreateReading validates r, checks its station and stores it.
func (s *Service) CreateReading(ctx context.Context, r Reading) (Reading, error) {
	if err := ValidateReading(r); err != nil {
		return Reading{}, err
	}
	if err := s.requireStation(ctx, r.StationID); err != nil {
		return Reading{}, err
	}

	s.stamp(&r)
	created, err := s.readings.CreateReading(ctx, r)
	if err != nil {
		return Reading{}, fmt.Errorf("create reading: %w", err)
	}
	s.touch(ctx, created.StationID, created.Timestamp)
	s.TriggerRetrain()
	return created, nil
}

// ImportReadings bulk-inserts already validated readings.
func (s *Service) ImportReadings(ctx context.Context, rs []Reading) (int, error) {
	if len(rs) == 0 {
		return 0, ErrNoData
	}
	latest := make(map[string]time.Time)
	for i := range rs {
		s.stamp(&rs[i])
		if ts := rs[i].Timestamp; ts.After(latest[rs[i].StationID]) {
			latest[rs[i].StationID] = ts
		}
	}

	n, err := s.readings.CreateReadings(ctx, rs)
	if err != nil {
		return 0, fmt.Errorf("import readings: %w", err)
	}
	for id, ts := range latest {
		s.touch(ctx, id, ts)
	}
	s.log.Info("readings imported", zap.Int("count", n), zap.Int("stations", len(latest)))
	s.TriggerRetrain()
	return n, nil
}

// GetReading returns one reading.
func (s *Service) GetReading(ctx context.Context, id string) (Reading, error) {
	return s.readings.GetReading(ctx, id)
}

// ReadingUpdate carries the fields of a partial reading update. Nil fields
// are kept.
type ReadingUpdate struct {
	StationID   *string
	Timestamp   *time.Time
	PH          *float64
	Temperature *float64
	EC          *float64
	TDS         *float64
	Turbidity   *float64
	Remarks     *string
}

// UpdateReading applies upd to reading id and validates the merged result.
func (s *Service) UpdateReading(ctx context.Context, id string, upd ReadingUpdate) (Reading, error) {
	cur, err := s.readings.GetReading(ctx, id)
	if err != nil {
		return Reading{}, err
	}
	if upd.StationID != nil && *upd.StationID != cur.StationID {
		if err := s.requireStation(ctx, *upd.StationID); err != nil {
			return Reading{}, err
		}
		cur.StationID = *upd.StationID
	}
	if upd.Timestamp != nil && !upd.Timestamp.IsZero() {
		cur.Timestamp = upd.Timestamp.UTC()
	}
	for _, f := range []struct {
		dst **float64
		src *float64
	}{
		{&cur.PH, upd.PH},
		{&cur.Temperature, upd.Temperature},
		{&cur.EC, upd.EC},
		{&cur.TDS, upd.TDS},
		{&cur.Turbidity, upd.Turbidity},
	} {
		if f.src != nil {
			*f.dst = f.src
		}
	}
	if upd.Remarks != nil {
		cur.Remarks = strings.TrimSpace(*upd.Remarks)
	}
	if err := ValidateReading(cur); err != nil {
		return Reading{}, err
	}

	updated, err := s.readings.UpdateReading(ctx, cur)
	if err != nil {
		return Reading{}, err
	}
	s.TriggerRetrain()
	return updated, nil
}

// DeleteReading removes one reading.
func (s *Service) DeleteReading(ctx context.Context, id string) error {
	if err := s.readings.DeleteReading(ctx, id); err != nil {
		return err
	}
	s.TriggerRetrain()
	return nil
}

// Page describes one page of a listing.
type Page struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// ListReadings returns one page of readings, newest first.
func (s *Service) ListReadings(ctx context.Context, stationID string, page, limit int) ([]Reading, Page, error) {
	if limit <= 0 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	list, total, err := s.readings.ListReadings(ctx, ReadingQuery{
		StationID: stationID,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	})
	if err != nil {
		return nil, Page{}, err
	}
	return list, Page{
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// LatestReadings returns the newest reading of every station.
func (s *Service) LatestReadings(ctx context.Context) ([]Reading, error) {
	return s.readings.LatestReadings(ctx)
}

// History returns up to limit readings of a station (all stations when empty)
// in chronological order.
func (s *Service) History(ctx context.Context, stationID string, limit int) ([]Reading, error) {
	list, _, err := s.readings.ListReadings(ctx, ReadingQuery{StationID: stationID, Limit: limit})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (s *Service) requireStation(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: stationId is required", ErrStationNotFound)
	}
	if _, err := s.stations.GetStation(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrStationNotFound, id)
		}
		return err
	}
	return nil
}

func (s *Service) stamp(r *Reading) {
	now := s.now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	r.Timestamp = r.Timestamp.UTC()
	r.CreatedAt = now
}

func (s *Service) touch(ctx context.Context, stationID string, at time.Time) {
	if err := s.stations.TouchStation(ctx, stationID, at); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Warn("failed to update station lastUpdated", zap.String("station_id", stationID), zap.Error(err))
	}
}

func normalizeStation(stationID string) string {
	if stationID == "" {
		return AllStations
	}
	return stationID
}

func predictionKey(stationID string, days int) string {
	return fmt.Sprintf("predictions:%s:%d", stationID, days)
}

// Predictions returns the forecast for a station (AllStations or "" for the
// general model), served from the cache when possible.
func (s *Service) Predictions(ctx context.Context, stationID string, days int) (Forecast, error) {
	if days < 1 || days > MaxDays {
		return Forecast{}, ErrInvalidDays
	}
	if s.predictor == nil {
		return Forecast{}, fmt.Errorf("prediction service not configured")
	}
	stationID = normalizeStation(stationID)
	key := predictionKey(stationID, days)

	if f, ok := s.cachedForecast(ctx, key); ok {
		return f, nil
	}

	f, err := s.predictor.Predict(ctx, stationID, days)
	if err != nil {
		return Forecast{}, fmt.Errorf("predict %s/%d: %w", stationID, days, err)
	}
	f.StationID = stationID
	f.Days = days
	if len(f.Predictions) == 0 {
		return f, ErrNoData
	}

	s.storeForecast(ctx, key, f)
	return f, nil
}

func (s *Service) cachedForecast(ctx context.Context, key string) (Forecast, bool) {
	if s.kv == nil || s.cacheTTL <= 0 {
		return Forecast{}, false
	}
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn("prediction cache read failed", zap.String("key", key), zap.Error(err))
		}
		return Forecast{}, false
	}
	var f Forecast
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		s.log.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		return Forecast{}, false
	}
	s.log.Debug("prediction cache hit", zap.String("key", key))
	return f, true
}

func (s *Service) storeForecast(ctx context.Context, key string, f Forecast) {
	if s.kv == nil || s.cacheTTL <= 0 {
		return
	}
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	if err := s.kv.Set(ctx, key, string(b), s.cacheTTL); err != nil {
		s.log.Warn("prediction cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// EffectiveStandards overlays the standards a forecast carries on the
// registry's table.
func (s *Service) EffectiveStandards(f Forecast) StandardsTable {
	table := s.standards.Get()
	for p, std := range f.Standards {
		cur := table[p]
		if std.Min != nil {
			cur.Min = std.Min
		}
		if std.Max != nil {
			cur.Max = std.Max
		}
		if std.Unit != "" {
			cur.Unit = std.Unit
		}
		table[p] = cur
	}
	return table
}

// Insight is an evaluated forecast.
type Insight struct {
	StationID string         `json:"stationId"`
	Days      int            `json:"days"`
	Report    Report         `json:"report"`
	Standards StandardsTable `json:"standards"`
}

// Insights evaluates the forecast for one station.
func (s *Service) Insights(ctx context.Context, stationID string, days int, opts EvalOptions) (Insight, error) {
	f, err := s.Predictions(ctx, stationID, days)
	if err != nil {
		return Insight{}, err
	}
	table := s.EffectiveStandards(f)
	return Insight{
		StationID: f.StationID,
		Days:      days,
		Report:    Evaluate(f.Predictions, table, opts),
		Standards: table,
	}, nil
}

// Comparison holds a station's evaluated forecast next to the all-stations one.
type Comparison struct {
	Station *Insight `json:"station,omitempty"`
	All     *Insight `json:"all,omitempty"`
}

// ComparePredictions evaluates the station and all-stations forecasts
// concurrently. Each side is evaluated on its own data; a failed side is
// left nil. It fails only when both sides fail.
func (s *Service) ComparePredictions(ctx context.Context, stationID string, days int, opts EvalOptions) (Comparison, error) {
	stationID = normalizeStation(stationID)
	if stationID == AllStations {
		in, err := s.Insights(ctx, AllStations, days, opts)
		if err != nil {
			return Comparison{}, err
		}
		return Comparison{All: &in}, nil
	}

	var (
		wg                 sync.WaitGroup
		station, all       Insight
		stationErr, allErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		station, stationErr = s.Insights(ctx, stationID, days, opts)
	}()
	go func() {
		defer wg.Done()
		all, allErr = s.Insights(ctx, AllStations, days, opts)
	}()
	wg.Wait()

	var cmp Comparison
	if stationErr == nil {
		cmp.Station = &station
	} else {
		s.log.Warn("station forecast failed", zap.String("station_id", stationID), zap.Error(stationErr))
	}
	if allErr == nil {
		cmp.All = &all
	} else {
		s.log.Warn("all-stations forecast failed", zap.Error(allErr))
	}
	if cmp.Station == nil && cmp.All == nil {
		return Comparison{}, stationErr
	}
	return cmp, nil
}

// StationInsight evaluates stored readings for one station.
type StationInsight struct {
	StationID string                          `json:"stationId"`
	Report    Report                          `json:"report"`
	Next      map[Parameter]ParameterForecast `json:"next"`
	Standards StandardsTable                  `json:"standards"`
}

// StationInsights evaluates up to limit of the newest stored readings for a
// station (all stations for "" or AllStations).
func (s *Service) StationInsights(ctx context.Context, stationID string, limit int, opts EvalOptions) (StationInsight, error) {
	stationID = normalizeStation(stationID)
	query := stationID
	if query == AllStations {
		query = ""
	} else if err := s.requireStation(ctx, stationID); err != nil {
		return StationInsight{}, err
	}

	history, err := s.History(ctx, query, limit)
	if err != nil {
		return StationInsight{}, err
	}
	if len(history) == 0 {
		return StationInsight{}, ErrNoData
	}

	table := s.standards.Get()
	return StationInsight{
		StationID: stationID,
		Report:    Evaluate(history, table, opts),
		Next:      PredictWaterQuality(history, stationID, table),
		Standards: table,
	}, nil
}

// Retrain asks the prediction service to retrain and drops cached forecasts.
func (s *Service) Retrain(ctx context.Context) error {
	if s.predictor == nil {
		return nil
	}
	if err := s.predictor.Train(ctx); err != nil {
		return fmt.Errorf("retrain: %w", err)
	}
	s.invalidatePredictions(ctx)
	s.log.Info("prediction model retrained")
	return nil
}

// TriggerRetrain schedules a background retrain. Triggers that arrive while a
// retrain is running are merged into a single follow-up run. Failures are
// logged.
func (s *Service) TriggerRetrain() {
	if s.predictor == nil {
		return
	}
	s.retrainDirty.Store(true)
	if !s.retrainRunning.CompareAndSwap(false, true) {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		for {
			for s.retrainDirty.Swap(false) {
				s.retrainOnce()
			}
			s.retrainRunning.Store(false)
			// A trigger may have set the flag after the loop drained it but
			// before running was cleared.
			if !s.retrainDirty.Load() || !s.retrainRunning.CompareAndSwap(false, true) {
				return
			}
		}
	}()
}

func (s *Service) retrainOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.retrainTimeout)
	defer cancel()
	if err := s.Retrain(ctx); err != nil {
		s.log.Warn("background retrain failed", zap.Error(err))
	}
}

// Wait blocks until background work has finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

func (s *Service) invalidatePredictions(ctx context.Context) {
	if s.kv == nil {
		return
	}
	keys, err := s.kv.ScanKeys(ctx, "predictions:*")
	if err != nil {
		s.log.Warn("cache invalidation skipped", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		s.log.Warn("cache invalidation failed", zap.Error(err))
	}
}

// RefreshStandards merges the standards published by the prediction service
// into the registry.
func (s *Service) RefreshStandards(ctx context.Context) error {
	if s.predictor == nil {
		return nil
	}
	table, err := s.predictor.Standards(ctx)
	if err != nil {
		return fmt.Errorf("refresh standards: %w", err)
	}
	if len(table) == 0 {
		return nil
	}
	s.standards.Merge(table)
	s.log.Info("standards refreshed", zap.Int("parameters", len(table)))
	return nil
}

// ErrAssistantUnavailable is returned when no assistant is configured.
var ErrAssistantUnavailable = errors.New("AI service not configured")

// Ask forwards a question to the assistant, filling standards from the registry.
func (s *Service) Ask(ctx context.Context, q Question) (string, error) {
	if s.assistant == nil || !s.assistant.Configured() {
		return "", ErrAssistantUnavailable
	}
	if len(q.Standards) == 0 {
		q.Standards = s.standards.Get()
	}
	return s.assistant.Ask(ctx, q)
}

// AssistantStatus reports whether the assistant is usable and its model.
func (s *Service) AssistantStatus() (bool, string) {
	if s.assistant == nil {
		return false, ""
	}
	return s.assistant.Configured(), s.assistant.Model()
}
