package water

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by stores when a unique key is already taken.
	ErrConflict = errors.New("already exists")
	// ErrStationNotFound is returned when a reading references an unknown station.
	ErrStationNotFound = errors.New("station not found")
	// ErrNoData is returned when there is nothing to evaluate.
	ErrNoData = errors.New("no data available")
	// ErrInvalidDays is returned for a prediction horizon outside 1..MaxDays.
	ErrInvalidDays = errors.New("days must be between 1 and 30")
)

// MaxDays is the longest prediction horizon accepted.
const MaxDays = 30

// StationStore is the persistence contract for stations.
type StationStore interface {
	CreateStation(ctx context.Context, st Station) (Station, error)
	GetStation(ctx context.Context, id string) (Station, error)
	GetStationByCode(ctx context.Context, code int) (Station, error)
	ListStations(ctx context.Context) ([]Station, error)
	UpdateStation(ctx context.Context, st Station) (Station, error)
	DeleteStation(ctx context.Context, id string) error
	TouchStation(ctx context.Context, id string, at time.Time) error
}

// ReadingQuery selects a page of readings. An empty StationID matches all.
type ReadingQuery struct {
	StationID string
	Limit     int
	Offset    int
}

// ReadingStore is the persistence contract for readings. Lists are newest first.
type ReadingStore interface {
	CreateReading(ctx context.Context, r Reading) (Reading, error)
	CreateReadings(ctx context.Context, rs []Reading) (int, error)
	GetReading(ctx context.Context, id string) (Reading, error)
	UpdateReading(ctx context.Context, r Reading) (Reading, error)
	DeleteReading(ctx context.Context, id string) error
	ListReadings(ctx context.Context, q ReadingQuery) ([]Reading, int, error)
	LatestReadings(ctx context.Context) ([]Reading, error)
}

// Predictor is the external prediction service.
type Predictor interface {
	Predict(ctx context.Context, stationID string, days int) (Forecast, error)
	Standards(ctx context.Context) (StandardsTable, error)
	Train(ctx context.Context) error
}

// Question is a water-quality question with optional reading context.
type Question struct {
	Text        string
	Parameter   Parameter
	Value       *float64
	StationName string
	Standards   StandardsTable
	MaxTokens   int
	Temperature *float64
}

// Assistant answers water-quality questions.
type Assistant interface {
	Ask(ctx context.Context, q Question) (string, error)
	Configured() bool
	Model() string
}

// KV is a string cache with per-key expiry.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}
