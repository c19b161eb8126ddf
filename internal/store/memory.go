package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kham-river/water-quality-monitor/internal/auth"
	"github.com/kham-river/water-quality-monitor/internal/water"
)

var (
	// ErrNotFound is returned when a station or reading does not exist.
	ErrNotFound = water.ErrNotFound
	// ErrConflict is returned when a station code is already taken.
	ErrConflict = water.ErrConflict
)

// MemoryStore is a concurrency-safe in-memory implementation of the station,
// reading and user stores.
type MemoryStore struct {
	mu sync.RWMutex

	stations map[string]water.Station
	readings map[string]water.Reading
	users    map[string]auth.User // key: lower-cased email

	// retention configuration
	maxHistory int           // max number of readings per station
	maxAge     time.Duration // optional max age for readings
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		stations:   make(map[string]water.Station),
		readings:   make(map[string]water.Reading),
		users:      make(map[string]auth.User),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

func (s *MemoryStore) CreateStation(_ context.Context, st water.Station) (water.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[st.ID]; ok {
		return water.Station{}, ErrConflict
	}
	if s.codeTaken(st.StationCode, st.ID) {
		return water.Station{}, ErrConflict
	}
	s.stations[st.ID] = st
	return st, nil
}

func (s *MemoryStore) codeTaken(code int, exceptID string) bool {
	for id, other := range s.stations {
		if id != exceptID && other.StationCode == code {
			return true
		}
	}
	return false
}

func (s *MemoryStore) GetStation(_ context.Context, id string) (water.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stations[id]
	if !ok {
		return water.Station{}, ErrNotFound
	}
	return st, nil
}

func (s *MemoryStore) GetStationByCode(_ context.Context, code int) (water.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.stations {
		if st.StationCode == code {
			return st, nil
		}
	}
	return water.Station{}, ErrNotFound
}

func (s *MemoryStore) ListStations(_ context.Context) ([]water.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]water.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateStation(_ context.Context, st water.Station) (water.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[st.ID]; !ok {
		return water.Station{}, ErrNotFound
	}
	if s.codeTaken(st.StationCode, st.ID) {
		return water.Station{}, ErrConflict
	}
	s.stations[st.ID] = st
	return st, nil
}

func (s *MemoryStore) DeleteStation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[id]; !ok {
		return ErrNotFound
	}
	delete(s.stations, id)
	return nil
}

func (s *MemoryStore) TouchStation(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stations[id]
	if !ok {
		return ErrNotFound
	}
	if at.After(st.LastUpdated) {
		st.LastUpdated = at
		s.stations[id] = st
	}
	return nil
}

func (s *MemoryStore) CreateReading(_ context.Context, r water.Reading) (water.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.readings[r.ID]; ok {
		return water.Reading{}, ErrConflict
	}
	s.readings[r.ID] = r
	s.enforceRetention(r.StationID)
	return r, nil
}

// CreateReadings inserts all readings or none.
func (s *MemoryStore) CreateReadings(_ context.Context, rs []water.Reading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(rs))
	for _, r := range rs {
		if _, ok := s.readings[r.ID]; ok || seen[r.ID] {
			return 0, ErrConflict
		}
		seen[r.ID] = true
	}

	stations := make(map[string]bool)
	for _, r := range rs {
		s.readings[r.ID] = r
		stations[r.StationID] = true
	}
	for id := range stations {
		s.enforceRetention(id)
	}
	return len(rs), nil
}

// enforceRetention drops the oldest readings of a station beyond the count
// and age limits. Callers hold the write lock.
func (s *MemoryStore) enforceRetention(stationID string) {
	if s.maxHistory <= 0 && s.maxAge <= 0 {
		return
	}
	history := s.filterSorted(stationID)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history) > s.maxHistory {
		for _, r := range history[s.maxHistory:] {
			delete(s.readings, r.ID)
		}
		history = history[:s.maxHistory]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		for _, r := range history {
			if r.Timestamp.Before(cutoff) {
				delete(s.readings, r.ID)
			}
		}
	}
}

func (s *MemoryStore) GetReading(_ context.Context, id string) (water.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.readings[id]
	if !ok {
		return water.Reading{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) UpdateReading(_ context.Context, r water.Reading) (water.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.readings[r.ID]; !ok {
		return water.Reading{}, ErrNotFound
	}
	s.readings[r.ID] = r
	return r, nil
}

func (s *MemoryStore) DeleteReading(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.readings[id]; !ok {
		return ErrNotFound
	}
	delete(s.readings, id)
	return nil
}

// ListReadings returns a page of readings, newest first, and the total match count.
func (s *MemoryStore) ListReadings(_ context.Context, q water.ReadingQuery) ([]water.Reading, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.filterSorted(q.StationID)
	total := len(all)

	if q.Offset >= total {
		return []water.Reading{}, total, nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, total, nil
}

// LatestReadings returns the newest reading of each station, newest first.
func (s *MemoryStore) LatestReadings(_ context.Context) ([]water.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]water.Reading)
	for _, r := range s.readings {
		cur, ok := latest[r.StationID]
		if !ok || newer(r, cur) {
			latest[r.StationID] = r
		}
	}
	out := make([]water.Reading, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

func (s *MemoryStore) filterSorted(stationID string) []water.Reading {
	out := make([]water.Reading, 0, len(s.readings))
	for _, r := range s.readings {
		if stationID == "" || r.StationID == stationID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out
}

// newer orders readings by timestamp, then creation time, then id.
func newer(a, b water.Reading) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (s *MemoryStore) CreateUser(_ context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, ok := s.users[key]; ok {
		return auth.User{}, auth.ErrUserExists
	}
	u.Email = key
	s.users[key] = u
	return u, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}
