package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts csv or xlsx, case-insensitively. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename builds an attachment name such as predictions-7d.csv.
func (f Format) Filename(base string) string {
	return base + "." + string(f)
}

// Columns is the header shared by every export.
var Columns = []string{
	"stationId",
	"timestamp",
	string(water.ParamPH),
	string(water.ParamTemperature),
	string(water.ParamEC),
	string(water.ParamTDS),
	string(water.ParamTurbidity),
	"remarks",
}

// WriteCSV writes readings with the shared header. Absent values are empty
// cells and numbers carry two decimals.
func WriteCSV(w io.Writer, readings []water.Reading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range readings {
		if err := cw.Write(row(r)); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(r water.Reading) []string {
	out := make([]string, 0, len(Columns))
	out = append(out, r.StationID, formatTime(r.Timestamp))
	for _, p := range water.Parameters {
		out = append(out, formatValue(r, p))
	}
	return append(out, r.Remarks)
}

func formatValue(r water.Reading, p water.Parameter) string {
	v, ok := r.Value(p)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
