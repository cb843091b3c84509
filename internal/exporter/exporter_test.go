package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"opinecli/internal/voteshare"
	"opinecli/pkg/contracts/domain"
)

func sampleComputation() voteshare.Computation {
	ref := time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)
	return voteshare.Computation{
		Window: voteshare.Resolve(ref, voteshare.MovingAverage(7)),
		Selection: voteshare.Selection{
			Column:            voteshare.Column(domain.LevelRegion, domain.PeriodOverall),
			Requested:         voteshare.Column(domain.LevelRegion, domain.PeriodL7D),
			AvailabilityRatio: 0.25,
			FellBack:          true,
		},
		Result: voteshare.VoteShareResult{
			SampleSize: 120,
			Percentages: map[voteshare.PartyCategory]float64{
				voteshare.AITC: 45.04, voteshare.BJP: 38.96, voteshare.LEFT: 6,
				voteshare.INC: 4, voteshare.Others: 3, voteshare.NWR: 3,
			},
		},
	}
}

func sampleMatrix() voteshare.TransitionResult {
	cells := func(diag voteshare.PartyCategory, v float64) map[voteshare.PartyCategory]voteshare.Cell {
		m := make(map[voteshare.PartyCategory]voteshare.Cell)
		for _, c := range voteshare.Categories() {
			m[c] = voteshare.Cell{}
		}
		m[diag] = voteshare.Cell{NotApplicable: true}
		m[voteshare.BJP] = voteshare.Cell{Value: v}
		return m
	}
	return voteshare.TransitionResult{
		Matrix: voteshare.TransitionMatrix{
			Mode:       voteshare.ModeTransferability,
			BaseSample: 40,
			Rows: map[voteshare.PartyCategory]voteshare.MatrixRow{
				voteshare.AITC: {SampleSize: 25, Cells: cells(voteshare.AITC, 100)},
			},
			Totals: voteshare.VoteShareResult{SampleSize: 25, Percentages: map[voteshare.PartyCategory]float64{voteshare.BJP: 100}},
		},
	}
}

func TestSharesTable(t *testing.T) {
	table := SharesTable("dma7", "7 DMA", []ShareRow{{Label: "All", Computation: sampleComputation()}})

	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{"Label", "Window", "Sample", "AITC", "BJP", "LEFT", "INC", "Others", "NWR", "Margin", "Weights", "Note"}, table.Headers)

	row := table.Rows[0]
	assert.Equal(t, "All", row[0])
	assert.Equal(t, "[2025-10-24, 2025-10-30]", row[1])
	assert.Equal(t, 120, row[2])
	assert.Equal(t, 45.0, row[3])
	assert.Equal(t, 39.0, row[4])
	assert.Equal(t, 6.1, row[9])
	assert.Contains(t, row[11], "25%")
}

func TestMatrixTable(t *testing.T) {
	table := MatrixTable("transfer", "Transferability", sampleMatrix())

	require.Len(t, table.Rows, 2)
	aitc := table.Rows[0]
	assert.Equal(t, "AITC", aitc[0])
	assert.Equal(t, NotApplicable, aitc[2])
	assert.Equal(t, 100.0, aitc[3])
	assert.Equal(t, "Total", table.Rows[1][0])
	assert.Contains(t, table.Notes[0], "base sample 40")
}

func TestDistributionTable(t *testing.T) {
	res := voteshare.DistributionResult{Distribution: voteshare.CodeDistribution{
		SampleSize:  10,
		Percentages: map[int]float64{2: 40, 1: 60},
	}}
	table := DistributionTable("cm", "Preferred CM", res, map[int]string{1: "Mamata Banerjee"})

	require.Len(t, table.Rows, 2)
	assert.Equal(t, []interface{}{1, "Mamata Banerjee", 60.0}, table.Rows[0])
	assert.Equal(t, []interface{}{2, "2", 40.0}, table.Rows[1])
}

func TestCSVWriter_WriteTables(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)

	tables := []Table{
		SharesTable("overall", "Overall", []ShareRow{{Label: "All", Computation: sampleComputation()}}),
		MatrixTable("transfer", "Transferability", sampleMatrix()),
	}
	paths, err := w.WriteTables(tables)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "overall.csv"), filepath.Join(dir, "transfer.csv")}, paths)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM))

	r := csv.NewReader(bytes.NewReader(data[len(utf8BOM):]))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, "From", records[0][0])
	assert.Equal(t, []string{"AITC", "25", "-", "100.0", "0.0", "0.0", "0.0", "0.0", "100.0"}, records[1])
	assert.Equal(t, "Total", records[2][0])
	assert.Contains(t, records[len(records)-1][0], "base sample 40")
}

func TestCSVWriter_Append(t *testing.T) {
	w := NewCSVWriter(t.TempDir(), nil)
	require.NoError(t, w.WriteCSV("log.csv", WriteOptions{Headers: []string{"a"}, Records: [][]string{{"1"}}}))
	require.NoError(t, w.WriteCSV("log.csv", WriteOptions{Records: [][]string{{"2"}}, Append: true}))

	data, err := os.ReadFile(w.resolvePath("log.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n2\n", string(data))
}

func TestWorkbookWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	tables := []Table{
		SharesTable("overall", "Overall vote share", []ShareRow{{Label: "All", Computation: sampleComputation()}}),
		MatrixTable("transfer", "Transferability", sampleMatrix()),
		MatrixTable("Transfer", "Duplicate id", sampleMatrix()),
	}

	require.NoError(t, NewWorkbookWriter(nil).WriteWorkbook(path, "Vote share", tables))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Index", "overall", "transfer", "Transfer_2"}, f.GetSheetList())

	title, err := f.GetCellValue("overall", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Overall vote share", title)

	header, err := f.GetCellValue("overall", "D3")
	require.NoError(t, err)
	assert.Equal(t, "AITC", header)

	aitc, err := f.GetCellValue("overall", "D4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "45", aitc)

	na, err := f.GetCellValue("transfer", "C4")
	require.NoError(t, err)
	assert.Equal(t, NotApplicable, na)

	idx, err := f.GetCellValue("Index", "B5")
	require.NoError(t, err)
	assert.Equal(t, "Transferability", idx)
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]bool{"index": true}
	assert.Equal(t, "Index_2", uniqueSheetName("Index", used))
	assert.Equal(t, "a_b_c", uniqueSheetName("a/b:c", used))
	assert.Equal(t, "Section", uniqueSheetName("  ", used))

	long := uniqueSheetName("transferability_by_region_and_district_l7d", used)
	assert.Len(t, long, maxSheetName)
	again := uniqueSheetName("transferability_by_region_and_district_l7d", used)
	assert.Len(t, again, maxSheetName)
	assert.NotEqual(t, long, again)
}
