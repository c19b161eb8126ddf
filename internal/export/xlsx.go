package export

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

// SummarySheet holds the per-parameter insights.
const SummarySheet = "Summary"

var summaryHeader = []string{
	"Parameter",
	"Unit",
	"Normal Range",
	"Count",
	"Min",
	"Max",
	"Last",
	"Last Status",
	"Trend",
	"Out of Range %",
}

// WriteXLSX writes readings to a sheet named sheet and appends a Summary sheet
// computed by the evaluator against table.
func WriteXLSX(w io.Writer, sheet string, readings []water.Reading, table water.StandardsTable) (err error) {
	if sheet == "" {
		sheet = "Readings"
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	f.SetActiveSheet(0)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeHeader(f, sheet, Columns, headerStyle); err != nil {
		return err
	}
	for i, r := range readings {
		if err := writeReading(f, sheet, i+2, r); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := freezeHeader(f, sheet); err != nil {
		return err
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := writeHeader(f, SummarySheet, summaryHeader, headerStyle); err != nil {
		return err
	}
	report := water.Evaluate(readings, table, water.EvalOptions{})
	for i, pr := range report.Parameters {
		if err := writeSummaryRow(f, i+2, pr, table.Lookup(pr.Parameter)); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SummarySheet, "A", "C", 16); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for col, h := range headers {
		if err := setCell(f, sheet, col+1, 1, h); err != nil {
			return fmt.Errorf("set header cell: %w", err)
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, 1)
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}
	return nil
}

func writeReading(f *excelize.File, sheet string, row int, r water.Reading) error {
	values := make([]any, 0, len(Columns))
	values = append(values, r.StationID, formatTime(r.Timestamp))
	for _, p := range water.Parameters {
		if v, ok := r.Value(p); ok {
			values = append(values, round2(v))
		} else {
			values = append(values, nil)
		}
	}
	values = append(values, r.Remarks)

	for col, v := range values {
		if v == nil || v == "" {
			continue
		}
		if err := setCell(f, sheet, col+1, row, v); err != nil {
			return fmt.Errorf("set cell at row %d, col %d: %w", row, col+1, err)
		}
	}
	return nil
}

func writeSummaryRow(f *excelize.File, row int, pr water.ParameterReport, s water.Standard) error {
	values := []any{string(pr.Parameter), pr.Unit, normalRange(s)}
	if pr.Summary != nil {
		sum := pr.Summary
		values = append(values,
			sum.Count,
			round2(sum.Min),
			round2(sum.Max),
			round2(sum.Last),
			string(sum.LastStatus),
			string(sum.Trend.Direction),
			sum.OutOfRangePercent,
		)
	} else {
		values = append(values, 0)
	}

	for col, v := range values {
		if err := setCell(f, SummarySheet, col+1, row, v); err != nil {
			return fmt.Errorf("set summary cell at row %d: %w", row, err)
		}
	}
	return nil
}

func freezeHeader(f *excelize.File, sheet string) error {
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze panes: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

func normalRange(s water.Standard) string {
	switch {
	case s.Min != nil && s.Max != nil:
		return fmt.Sprintf("%g - %g", *s.Min, *s.Max)
	case s.Min != nil:
		return fmt.Sprintf(">= %g", *s.Min)
	case s.Max != nil:
		return fmt.Sprintf("<= %g", *s.Max)
	default:
		return ""
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
