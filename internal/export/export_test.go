package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

func sampleReadings() []water.Reading {
	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	return []water.Reading{
		{StationID: "s1", Timestamp: t0, PH: water.Float(7.123), TDS: water.Float(200), Remarks: "ok"},
		{StationID: "s1", Timestamp: t0.Add(time.Hour), PH: water.Float(9.0), TDS: water.Float(210.456)},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "CSV": FormatCSV, "xlsx": FormatXLSX, "Excel": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)

	assert.Equal(t, "predictions-7d.xlsx", FormatXLSX.Filename("predictions-7d"))
	assert.Contains(t, FormatCSV.ContentType(), "text/csv")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReadings()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"s1", "2024-06-01T08:00:00Z", "7.12", "", "", "200.00", "", "ok"}, rows[1])
	assert.Equal(t, "210.46", rows[2][5])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "Predictions", sampleReadings(), water.DefaultStandards()))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Predictions", SummarySheet}, f.GetSheetList())
	assert.Equal(t, 0, f.GetActiveSheetIndex())

	rows, err := f.GetRows("Predictions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "stationId", rows[0][0])
	assert.Equal(t, "7.12", rows[1][2])

	styleID, err := f.GetCellStyle("Predictions", "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 1+len(water.Parameters))
	assert.Equal(t, "Parameter", summary[0][0])

	var ph []string
	for _, r := range summary[1:] {
		if r[0] == string(water.ParamPH) {
			ph = r
		}
	}
	require.NotNil(t, ph)
	assert.Equal(t, "6.5 - 8.5", ph[2])
	assert.Equal(t, "2", ph[3])
	assert.Equal(t, string(water.StatusHigh), ph[7])
	assert.Equal(t, string(water.DirectionRising), ph[8])
	assert.Equal(t, "50", ph[9])
}
