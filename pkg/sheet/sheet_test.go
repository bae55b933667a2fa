package sheet

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadRowsCSV(t *testing.T) {
	in := "\xef\xbb\xbfKPI ID,Reporting Date,Current Value\n1,2024-01-15,40\n2,2024-01-15\n"
	rows, err := ReadRows(strings.NewReader(in), "progress.CSV")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "KPI ID", rows[0][0])
	assert.Equal(t, []string{"2", "2024-01-15"}, rows[2])
}

func TestReadRowsXLSXFirstSheetOnly(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Milestone ID", "Completion Percentage"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{7, 100}))
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Other", "A1", &[]interface{}{"ignored"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ReadRows(&buf, "milestones.xlsx")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Milestone ID", "Completion Percentage"}, rows[0])
	assert.Equal(t, []string{"7", "100"}, rows[1])
}

func TestReadRowsRejectsUnknownExtension(t *testing.T) {
	_, err := ReadRows(strings.NewReader("x"), "notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadRowsEmptyCSV(t *testing.T) {
	_, err := ReadRows(strings.NewReader(""), "empty.csv")
	assert.ErrorIs(t, err, ErrEmptySheet)
}

func TestWriteTemplateRoundTrip(t *testing.T) {
	headers := []string{"KPI ID", "Reporting Date", "Current Value", "Notes"}
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf, "KPI Progress", headers))

	rows, err := ReadRows(&buf, "kpi_progress_template.xlsx")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, headers, CleanHeaders(rows[0]))
}

func TestCleanHeaders(t *testing.T) {
	assert.Equal(t, []string{"KPI ID", "Notes"}, CleanHeaders([]string{" KPI ID ", "", "  ", "Notes"}))
	assert.Equal(t, "kpi id", NormalizeHeader("  KPI   Id "))
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-01-15", "15/01/2024", "45306", "2024-01-15T10:30:00"} {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseDate("2024")
	assert.False(t, ok)
	_, ok = ParseDate("not a date")
	assert.False(t, ok)
}

func TestParseNumber(t *testing.T) {
	v, ok := ParseNumber("1,250.5")
	require.True(t, ok)
	assert.Equal(t, 1250.5, v)

	v, ok = ParseNumber("75%")
	require.True(t, ok)
	assert.Equal(t, 75.0, v)

	for _, in := range []string{"n/a", "Inf", "+Inf", "-inf", "NaN", "1e400"} {
		_, ok = ParseNumber(in)
		assert.False(t, ok, in)
	}
}

func TestWriteTableRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, "Report", []string{"KPI", "Value"}, [][]interface{}{{"Broadband", 40.5}, {"Literacy", 12}}))

	rows, err := ReadRows(&buf, "report.xlsx")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Broadband", "40.5"}, rows[1])
	assert.Equal(t, []string{"Literacy", "12"}, rows[2])
}
