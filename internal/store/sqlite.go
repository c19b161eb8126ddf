package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kham-river/water-quality-monitor/internal/auth"
	"github.com/kham-river/water-quality-monitor/internal/water"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS stations (
	id TEXT PRIMARY KEY,
	station_code INTEGER NOT NULL UNIQUE,
	name TEXT NOT NULL,
	latitude REAL,
	longitude REAL,
	region TEXT NOT NULL DEFAULT '',
	bank_side TEXT NOT NULL,
	status TEXT NOT NULL,
	last_updated INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS readings (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	ts INTEGER NOT NULL,
	ph REAL,
	temperature REAL,
	ec REAL,
	tds REAL,
	turbidity REAL,
	remarks TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_station_ts ON readings(station_id, ts);
CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts);
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);`

const (
	stationColumns = `id, station_code, name, latitude, longitude, region, bank_side, status, last_updated, created_at, updated_at`
	readingColumns = `id, station_id, ts, ph, temperature, ec, tds, turbidity, remarks, created_at`
	readingOrder   = `ORDER BY ts DESC, created_at DESC, id DESC`
)

// SQLiteStore implements the station, reading and user stores on SQLite.
// Times are stored as unix nanoseconds.
type SQLiteStore struct {
	db     *sql.DB
	DBPath string
	log    *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dbPath == "" {
		dbPath = filepath.Join("data", "waterquality.db")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	log.Info("opening database", zap.String("path", dbPath))
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStore{db: db, DBPath: dbPath, log: log}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (water.Station, error) {
	var (
		st                 water.Station
		lat, lon           sql.NullFloat64
		bank, status       string
		last, created, upd int64
	)
	if err := row.Scan(&st.ID, &st.StationCode, &st.Name, &lat, &lon, &st.Region, &bank, &status, &last, &created, &upd); err != nil {
		return water.Station{}, err
	}
	st.Location = water.GeoPoint{Latitude: floatPtr(lat), Longitude: floatPtr(lon)}
	st.RiverBankSide = water.BankSide(bank)
	st.Status = water.StationStatus(status)
	st.LastUpdated = fromNanos(last)
	st.CreatedAt = fromNanos(created)
	st.UpdatedAt = fromNanos(upd)
	return st, nil
}

func scanReading(row rowScanner) (water.Reading, error) {
	var (
		r                     water.Reading
		ts, created           int64
		ph, temp, ec, tds, tu sql.NullFloat64
	)
	if err := row.Scan(&r.ID, &r.StationID, &ts, &ph, &temp, &ec, &tds, &tu, &r.Remarks, &created); err != nil {
		return water.Reading{}, err
	}
	r.Timestamp = fromNanos(ts)
	r.CreatedAt = fromNanos(created)
	r.PH, r.Temperature, r.EC, r.TDS, r.Turbidity = floatPtr(ph), floatPtr(temp), floatPtr(ec), floatPtr(tds), floatPtr(tu)
	return r, nil
}

func (s *SQLiteStore) CreateStation(ctx context.Context, st water.Station) (water.Station, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stations(`+stationColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.StationCode, st.Name, nullFloat(st.Location.Latitude), nullFloat(st.Location.Longitude),
		st.Region, string(st.RiverBankSide), string(st.Status),
		toNanos(st.LastUpdated), toNanos(st.CreatedAt), toNanos(st.UpdatedAt),
	)
	if err != nil {
		if isConstraint(err) {
			return water.Station{}, ErrConflict
		}
		return water.Station{}, fmt.Errorf("failed to insert station: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) GetStation(ctx context.Context, id string) (water.Station, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = ?`, id)
	st, err := scanStation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return water.Station{}, ErrNotFound
		}
		return water.Station{}, fmt.Errorf("failed to query station %s: %w", id, err)
	}
	return st, nil
}

func (s *SQLiteStore) GetStationByCode(ctx context.Context, code int) (water.Station, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE station_code = ?`, code)
	st, err := scanStation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return water.Station{}, ErrNotFound
		}
		return water.Station{}, fmt.Errorf("failed to query station code %d: %w", code, err)
	}
	return st, nil
}

func (s *SQLiteStore) ListStations(ctx context.Context) ([]water.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stationColumns+` FROM stations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	result := []water.Station{}
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) UpdateStation(ctx context.Context, st water.Station) (water.Station, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stations SET station_code = ?, name = ?, latitude = ?, longitude = ?, region = ?,
			bank_side = ?, status = ?, last_updated = ?, updated_at = ?
		WHERE id = ?`,
		st.StationCode, st.Name, nullFloat(st.Location.Latitude), nullFloat(st.Location.Longitude), st.Region,
		string(st.RiverBankSide), string(st.Status), toNanos(st.LastUpdated), toNanos(st.UpdatedAt), st.ID,
	)
	if err != nil {
		if isConstraint(err) {
			return water.Station{}, ErrConflict
		}
		return water.Station{}, fmt.Errorf("failed to update station %s: %w", st.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return water.Station{}, ErrNotFound
	}
	return st, nil
}

func (s *SQLiteStore) DeleteStation(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "stations", id)
}

func (s *SQLiteStore) TouchStation(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stations SET last_updated = MAX(last_updated, ?) WHERE id = ?`, toNanos(at), id)
	if err != nil {
		return fmt.Errorf("failed to touch station %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const insertReadingSQL = `INSERT INTO readings(` + readingColumns + `) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func readingArgs(r water.Reading) []any {
	return []any{
		r.ID, r.StationID, toNanos(r.Timestamp),
		nullFloat(r.PH), nullFloat(r.Temperature), nullFloat(r.EC), nullFloat(r.TDS), nullFloat(r.Turbidity),
		r.Remarks, toNanos(r.CreatedAt),
	}
}

func (s *SQLiteStore) CreateReading(ctx context.Context, r water.Reading) (water.Reading, error) {
	if _, err := s.db.ExecContext(ctx, insertReadingSQL, readingArgs(r)...); err != nil {
		if isConstraint(err) {
			return water.Reading{}, ErrConflict
		}
		return water.Reading{}, fmt.Errorf("failed to insert reading: %w", err)
	}
	return r, nil
}

// CreateReadings inserts all readings in one transaction.
func (s *SQLiteStore) CreateReadings(ctx context.Context, rs []water.Reading) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range rs {
		if _, err := stmt.ExecContext(ctx, readingArgs(r)...); err != nil {
			tx.Rollback()
			if isConstraint(err) {
				return 0, fmt.Errorf("reading %d: %w", i+1, ErrConflict)
			}
			return 0, fmt.Errorf("failed to insert reading %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("saved readings", zap.Int("count", len(rs)))
	return len(rs), nil
}

func (s *SQLiteStore) GetReading(ctx context.Context, id string) (water.Reading, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+readingColumns+` FROM readings WHERE id = ?`, id)
	r, err := scanReading(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return water.Reading{}, ErrNotFound
		}
		return water.Reading{}, fmt.Errorf("failed to query reading %s: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteStore) UpdateReading(ctx context.Context, r water.Reading) (water.Reading, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE readings SET station_id = ?, ts = ?, ph = ?, temperature = ?, ec = ?, tds = ?, turbidity = ?, remarks = ?
		WHERE id = ?`,
		r.StationID, toNanos(r.Timestamp),
		nullFloat(r.PH), nullFloat(r.Temperature), nullFloat(r.EC), nullFloat(r.TDS), nullFloat(r.Turbidity),
		r.Remarks, r.ID,
	)
	if err != nil {
		return water.Reading{}, fmt.Errorf("failed to update reading %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return water.Reading{}, ErrNotFound
	}
	return r, nil
}

func (s *SQLiteStore) DeleteReading(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "readings", id)
}

// ListReadings returns a page of readings, newest first, and the total match count.
func (s *SQLiteStore) ListReadings(ctx context.Context, q water.ReadingQuery) ([]water.Reading, int, error) {
	var (
		where strings.Builder
		args  []any
	)
	if q.StationID != "" {
		where.WriteString(` WHERE station_id = ?`)
		args = append(args, q.StationID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`+where.String(), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count readings: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + readingColumns + ` FROM readings` + where.String() + ` ` + readingOrder + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	result, err := collectReadings(rows)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// LatestReadings returns the newest reading of each station, newest first.
func (s *SQLiteStore) LatestReadings(ctx context.Context) ([]water.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+` FROM (
			SELECT `+readingColumns+`,
				ROW_NUMBER() OVER (PARTITION BY station_id `+readingOrder+`) AS rn
			FROM readings
		) WHERE rn = 1 `+readingOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest readings: %w", err)
	}
	defer rows.Close()
	return collectReadings(rows)
}

func collectReadings(rows *sql.Rows) ([]water.Reading, error) {
	result := []water.Reading{}
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	u.Email = strings.ToLower(u.Email)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, email, password_hash, created_at) VALUES(?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, toNanos(u.CreatedAt))
	if err != nil {
		if isConstraint(err) {
			return auth.User{}, auth.ErrUserExists
		}
		return auth.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.getUser(ctx, `email = ?`, strings.ToLower(email))
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (auth.User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

func (s *SQLiteStore) getUser(ctx context.Context, cond string, arg any) (auth.User, error) {
	var (
		u       auth.User
		created int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE `+cond, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, auth.ErrUserNotFound
		}
		return auth.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}
