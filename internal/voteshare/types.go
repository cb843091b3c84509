package voteshare

import (
	"fmt"
	"math"
	"time"

	"opinecli/pkg/contracts/domain"
)

// PartyCategory is one of the six reporting buckets of the party legend.
type PartyCategory string

const (
	AITC   PartyCategory = "AITC"
	BJP    PartyCategory = "BJP"
	INC    PartyCategory = "INC"
	LEFT   PartyCategory = "LEFT"
	Others PartyCategory = "Others"
	NWR    PartyCategory = "NWR"
)

// Categories returns the categories in report column order.
func Categories() []PartyCategory {
	return []PartyCategory{AITC, BJP, LEFT, INC, Others, NWR}
}

// Valid reports whether c is one of the six categories.
func (c PartyCategory) Valid() bool {
	switch c {
	case AITC, BJP, INC, LEFT, Others, NWR:
		return true
	}
	return false
}

// WindowKind selects how a reference date becomes a date range.
type WindowKind string

const (
	// KindOverall covers every record up to and including the reference date.
	KindOverall WindowKind = "overall"
	// KindMovingAverage covers the N full days before the reference date.
	KindMovingAverage WindowKind = "dma"
)

// Moving average lengths used by the report.
const (
	DMA7  = 7
	DMA15 = 15
	DMA30 = 30
)

// WindowSpec describes a window relative to a reference date.
type WindowSpec struct {
	Kind WindowKind `json:"kind" yaml:"kind" validate:"required,oneof=overall dma"`
	Days int        `json:"days,omitempty" yaml:"days,omitempty" validate:"omitempty,min=1,max=366"`
}

// Overall returns the overall window spec.
func Overall() WindowSpec {
	return WindowSpec{Kind: KindOverall}
}

// MovingAverage returns an N-day moving average spec.
func MovingAverage(days int) WindowSpec {
	return WindowSpec{Kind: KindMovingAverage, Days: days}
}

// String returns a short label such as "overall" or "7dma".
func (w WindowSpec) String() string {
	if w.Kind == KindMovingAverage {
		return fmt.Sprintf("%ddma", w.Days)
	}
	return string(KindOverall)
}

// TimeWindow is an inclusive calendar date range. A zero Start means the
// window has no lower bound.
type TimeWindow struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end"`
}

// Unbounded reports whether the window has no lower bound.
func (w TimeWindow) Unbounded() bool {
	return w.Start.IsZero()
}

// Days returns the inclusive day count of a bounded window, or 0.
func (w TimeWindow) Days() int {
	if w.Unbounded() {
		return 0
	}
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// String renders the window for logs and audit output.
func (w TimeWindow) String() string {
	if w.Unbounded() {
		return fmt.Sprintf("(-inf, %s]", w.End.Format(dateLayout))
	}
	return fmt.Sprintf("[%s, %s]", w.Start.Format(dateLayout), w.End.Format(dateLayout))
}

// WeightColumn names the weight a computation uses. Raw means every
// included record counts with weight 1.
type WeightColumn struct {
	Key domain.WeightKey `json:"key"`
	Raw bool             `json:"raw,omitempty"`
}

// RawWeights is the explicit unweighted column.
var RawWeights = WeightColumn{Raw: true}

// Column returns the weight column for a level and period.
func Column(level domain.Level, period domain.Period) WeightColumn {
	return WeightColumn{Key: domain.WeightKey{Level: level, Period: period}}
}

// String returns the header of the column, or "raw".
func (c WeightColumn) String() string {
	if c.Raw {
		return "raw"
	}
	return c.Key.String()
}

// value returns the weight of r in this column.
func (c WeightColumn) value(r *domain.SurveyRecord) (float64, bool) {
	if c.Raw {
		return 1, true
	}
	w, ok := r.Weight(c.Key)
	if !ok || math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return 0, false
	}
	return w, true
}

// VoteShareResult is the weighted distribution of one categorical field.
type VoteShareResult struct {
	SampleSize   int                       `json:"sample"`
	WeightedBase int                       `json:"weighted_base"`
	TotalWeight  float64                   `json:"total_weight"`
	Percentages  map[PartyCategory]float64 `json:"percentages"`
	RawFallback  bool                      `json:"raw_fallback,omitempty"`
}

func newResult() VoteShareResult {
	pct := make(map[PartyCategory]float64, 6)
	for _, c := range Categories() {
		pct[c] = 0
	}
	return VoteShareResult{Percentages: pct}
}

// Share returns the percentage for c.
func (r VoteShareResult) Share(c PartyCategory) float64 {
	return r.Percentages[c]
}

// Margin returns the AITC lead over BJP in percentage points.
func (r VoteShareResult) Margin() float64 {
	return r.Percentages[AITC] - r.Percentages[BJP]
}

// Sum returns the total of all category percentages.
func (r VoteShareResult) Sum() float64 {
	var s float64
	for _, c := range Categories() {
		s += r.Percentages[c]
	}
	return s
}

// Cell is one transition matrix entry.
type Cell struct {
	Value         float64 `json:"value"`
	NotApplicable bool    `json:"not_applicable,omitempty"`
}

// String renders the cell the way report tables show it.
func (c Cell) String() string {
	if c.NotApplicable {
		return "-"
	}
	return fmt.Sprintf("%.1f", c.Value)
}

// MatrixRow is the column distribution of one row category.
type MatrixRow struct {
	SampleSize  int                    `json:"sample"`
	TotalWeight float64                `json:"total_weight"`
	Cells       map[PartyCategory]Cell `json:"cells"`
}

// Sum returns the total of all applicable cells.
func (r MatrixRow) Sum() float64 {
	var s float64
	for _, c := range r.Cells {
		if !c.NotApplicable {
			s += c.Value
		}
	}
	return s
}

// CrossTabMode selects the matrix flavour.
type CrossTabMode string

const (
	// ModeGainsLosses is the prior vote by current vote matrix.
	ModeGainsLosses CrossTabMode = "gains_losses"
	// ModeTransferability is the first by second choice matrix; its
	// diagonal is not applicable.
	ModeTransferability CrossTabMode = "transferability"
)

// TransitionMatrix is a row-normalised cross-tabulation of two fields.
type TransitionMatrix struct {
	RowField   domain.Field                `json:"row_field"`
	ColField   domain.Field                `json:"col_field"`
	Mode       CrossTabMode                `json:"mode"`
	BaseSample int                         `json:"base_sample"`
	Rows       map[PartyCategory]MatrixRow `json:"rows"`
	Totals     VoteShareResult             `json:"totals"`
}

// Cell returns the entry at row, col.
func (m TransitionMatrix) Cell(row, col PartyCategory) Cell {
	return m.Rows[row].Cells[col]
}

// MissingWeightPolicy decides what happens when a weight column cannot be
// used at all.
type MissingWeightPolicy string

const (
	// PolicyStrict reports a SchemaError.
	PolicyStrict MissingWeightPolicy = "strict"
	// PolicyRawFallback aggregates unweighted and flags the result.
	PolicyRawFallback MissingWeightPolicy = "raw"
)

const dateLayout = "2006-01-02"
