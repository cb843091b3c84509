package exporter

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"opinecli/internal/voteshare"
)

// Table is one report section in a format-neutral shape. Cells hold
// string, int or float64 values; writers decide how to render them.
type Table struct {
	ID      string
	Title   string
	Headers []string
	Rows    [][]interface{}
	Notes   []string
}

// ShareRow labels one vote share line of a table.
type ShareRow struct {
	Label       string
	Computation voteshare.Computation
}

// NotApplicable marks matrix cells that have no meaning.
const NotApplicable = "-"

func categoryHeaders() []string {
	cats := voteshare.Categories()
	h := make([]string, len(cats))
	for i, c := range cats {
		h[i] = string(c)
	}
	return h
}

func shareCells(r voteshare.VoteShareResult) []interface{} {
	cells := make([]interface{}, 0, 7)
	for _, c := range voteshare.Categories() {
		cells = append(cells, round1(r.Share(c)))
	}
	return append(cells, round1(r.Margin()))
}

// selectionNote describes weights that differ from the requested column.
func selectionNote(sel voteshare.Selection, res voteshare.VoteShareResult) string {
	switch {
	case res.RawFallback:
		return "unweighted: weight column unusable"
	case sel.FellBack:
		return fmt.Sprintf("%s on %.0f%% of records, used %s", sel.Requested, sel.AvailabilityRatio*100, sel.Column)
	}
	return ""
}

// SharesTable renders labelled vote shares, one per row.
func SharesTable(id, title string, rows []ShareRow) Table {
	t := Table{
		ID:      id,
		Title:   title,
		Headers: append(append([]string{"Label", "Window", "Sample"}, categoryHeaders()...), "Margin", "Weights", "Note"),
	}
	for _, row := range rows {
		c := row.Computation
		cells := []interface{}{row.Label, c.Window.String(), c.Result.SampleSize}
		cells = append(cells, shareCells(c.Result)...)
		cells = append(cells, c.Selection.Column.String(), selectionNote(c.Selection, c.Result))
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// TrendTable renders a trend series, oldest date first.
func TrendTable(id, title string, points []voteshare.TrendPoint) Table {
	t := Table{
		ID:      id,
		Title:   title,
		Headers: append(append([]string{"Date", "Sample"}, categoryHeaders()...), "Margin", "Weights"),
	}
	for _, p := range points {
		cells := []interface{}{p.Date.Format(time.DateOnly), p.Result.SampleSize}
		cells = append(cells, shareCells(p.Result)...)
		cells = append(cells, p.Selection.Column.String())
		t.Rows = append(t.Rows, cells)
		if note := selectionNote(p.Selection, p.Result); note != "" {
			t.Notes = append(t.Notes, p.Date.Format(time.DateOnly)+": "+note)
		}
	}
	return t
}

// MatrixTable renders a transition matrix with a totals row.
func MatrixTable(id, title string, res voteshare.TransitionResult) Table {
	m := res.Matrix
	t := Table{
		ID:      id,
		Title:   title,
		Headers: append(append([]string{"From", "Sample"}, categoryHeaders()...), "Total"),
		Notes: []string{
			fmt.Sprintf("base sample %d, window %s, weights %s", m.BaseSample, res.Window, res.Selection.Column),
		},
	}
	for _, from := range voteshare.Categories() {
		row, ok := m.Rows[from]
		if !ok {
			continue
		}
		cells := []interface{}{string(from), row.SampleSize}
		for _, to := range voteshare.Categories() {
			cell := row.Cells[to]
			if cell.NotApplicable {
				cells = append(cells, NotApplicable)
				continue
			}
			cells = append(cells, round1(cell.Value))
		}
		t.Rows = append(t.Rows, append(cells, round1(row.Sum())))
	}

	totals := []interface{}{"Total", m.Totals.SampleSize}
	for _, c := range voteshare.Categories() {
		totals = append(totals, round1(m.Totals.Share(c)))
	}
	t.Rows = append(t.Rows, append(totals, round1(m.Totals.Sum())))
	return t
}

// DistributionTable renders a single-choice distribution by answer code.
// labels may name codes; unnamed codes are shown as numbers.
func DistributionTable(id, title string, res voteshare.DistributionResult, labels map[int]string) Table {
	d := res.Distribution
	t := Table{
		ID:      id,
		Title:   title,
		Headers: []string{"Code", "Answer", "Share"},
		Notes: []string{
			fmt.Sprintf("sample %d, window %s, weights %s", d.SampleSize, res.Window, res.Selection.Column),
		},
	}
	for _, code := range d.Codes() {
		label, ok := labels[code]
		if !ok {
			label = strconv.Itoa(code)
		}
		t.Rows = append(t.Rows, []interface{}{code, label, round1(d.Percentages[code])})
	}
	return t
}

// FormatCell renders a cell the way text exports show it.
func FormatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', 1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// round1 rounds half away from zero to one decimal.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
