package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

// MaxUploadBytes bounds the size of an uploaded CSV file.
const MaxUploadBytes = 10 << 20

var (
	ErrNoHeader  = errors.New("csv has no header row")
	ErrNoColumns = errors.New("csv header has no recognised columns")
	ErrNoRows    = errors.New("no valid data to process")
)

// Resolver maps a station reference from a CSV row to a station id.
type Resolver interface {
	Resolve(ref string) (string, bool)
}

// StationIndex resolves stations by id, numeric code or case-insensitive name.
type StationIndex struct {
	refs map[string]string
}

func NewStationIndex(stations []water.Station) *StationIndex {
	idx := &StationIndex{refs: make(map[string]string, len(stations)*3)}
	for _, st := range stations {
		idx.refs[st.ID] = st.ID
		if st.StationCode != 0 {
			idx.refs[strconv.Itoa(st.StationCode)] = st.ID
		}
		if name := strings.TrimSpace(st.Name); name != "" {
			idx.refs[strings.ToLower(name)] = st.ID
		}
	}
	return idx
}

func (i *StationIndex) Resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if id, ok := i.refs[ref]; ok {
		return id, true
	}
	id, ok := i.refs[strings.ToLower(ref)]
	return id, ok
}

// RowError describes a rejected data row. Row is 1-based and excludes the header.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Result is the outcome of parsing an upload.
type Result struct {
	Readings []water.Reading
	Errors   []RowError
	Rows     int
}

// OK reports whether every row was accepted.
func (r Result) OK() bool { return len(r.Errors) == 0 }

var stationNameColumns = map[string]bool{
	"stationname":  true,
	"station_name": true,
	"stationcode":  true,
	"station_code": true,
}

type column struct {
	index int
	name  string
	ref   bool
}

// ParseCSV reads a header row followed by reading rows. Structural problems
// return an error; per-row problems are collected in Result.Errors.
func ParseCSV(r io.Reader, resolver Resolver) (Result, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, ErrNoHeader
	}
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}

	cols, hasRef := mapHeader(header)
	if len(cols) == 0 {
		return Result{}, ErrNoColumns
	}

	var res Result
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read row %d: %w", res.Rows+1, err)
		}
		if blank(record) {
			continue
		}
		res.Rows++

		reading, rowErr := parseRow(record, cols, hasRef, resolver)
		if rowErr != "" {
			res.Errors = append(res.Errors, RowError{Row: res.Rows, Error: rowErr})
			continue
		}
		res.Readings = append(res.Readings, reading)
	}

	if res.Rows == 0 {
		return res, ErrNoRows
	}
	return res, nil
}

func mapHeader(header []string) ([]column, bool) {
	var (
		cols   []column
		hasRef bool
	)
	for i, h := range header {
		h = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
		key := strings.ToLower(strings.ReplaceAll(h, " ", "_"))
		if stationNameColumns[key] {
			cols = append(cols, column{index: i, name: "stationId", ref: true})
			hasRef = true
			continue
		}
		canon, ok := water.CanonicalField(h)
		if !ok || canon == "id" {
			continue
		}
		c := column{index: i, name: canon, ref: canon == "stationId"}
		hasRef = hasRef || c.ref
		cols = append(cols, c)
	}
	return cols, hasRef
}

func parseRow(record []string, cols []column, hasRef bool, resolver Resolver) (water.Reading, string) {
	raw := make(map[string]any, len(cols))
	var refs []string
	for _, c := range cols {
		if c.index >= len(record) {
			continue
		}
		cell := strings.TrimSpace(record[c.index])
		if cell == "" {
			continue
		}
		if c.ref {
			refs = append(refs, cell)
			continue
		}
		raw[c.name] = cell
	}

	if !hasRef || len(refs) == 0 {
		return water.Reading{}, "station reference is missing"
	}
	stationID, ok := resolveAny(resolver, refs)
	if !ok {
		return water.Reading{}, fmt.Sprintf("Station ID/Name %s not found", refs[0])
	}

	reading, issues := water.NormalizeRecord(raw)
	if len(issues) > 0 {
		return water.Reading{}, strings.Join(issues, "; ")
	}
	if reading.Timestamp.IsZero() {
		return water.Reading{}, "timestamp is required"
	}
	reading.StationID = stationID

	if err := water.ValidateReading(reading); err != nil {
		return water.Reading{}, err.Error()
	}
	return reading, ""
}

func resolveAny(resolver Resolver, refs []string) (string, bool) {
	if resolver == nil {
		return "", false
	}
	for _, ref := range refs {
		if id, ok := resolver.Resolve(ref); ok {
			return id, true
		}
	}
	return "", false
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
