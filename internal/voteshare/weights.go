package voteshare

import (
	"opinecli/pkg/contracts/domain"
)

// AvailabilityThreshold is the share of records in a window that must carry
// a period-specific weight before that weight is used. Below it the overall
// weight of the same geographic level is used instead. The value is an
// observed business rule awaiting confirmation from the survey owners.
const AvailabilityThreshold = 0.5

// Selection is the outcome of weight selection for one window.
type Selection struct {
	Column            WeightColumn   `json:"column"`
	Records           domain.Dataset `json:"-"`
	Requested         WeightColumn   `json:"requested"`
	Available         int            `json:"available"`
	Total             int            `json:"total"`
	AvailabilityRatio float64        `json:"availability_ratio"`
	FellBack          bool           `json:"fell_back"`
}

// Availability returns how many records carry a usable value in column,
// and that count as a share of all records. An empty set has ratio 0.
func Availability(ds domain.Dataset, column WeightColumn) (int, float64) {
	if ds.Len() == 0 {
		return 0, 0
	}
	n := 0
	for i := range ds.Records {
		if _, ok := column.value(&ds.Records[i]); ok {
			n++
		}
	}
	return n, float64(n) / float64(ds.Len())
}

// SelectWeights picks the weight column for records already restricted to
// a window.
//
// Overall always uses the overall column of level. A period column (L7D,
// L15D) is sparse by construction: it is used, and the records restricted
// to those holding it, only when at least AvailabilityThreshold of the
// window has it. Otherwise the overall column of the same level is used on
// the unrestricted records. Levels are never mixed.
//
// Parameters:
//   - ds: records already restricted to the window and demographic filter
//   - level: geographic level the weights were raked against
//   - period: requested period; empty means Overall
//
// Returns: the chosen column, the records to aggregate and the availability
// figures that drove the choice
func SelectWeights(ds domain.Dataset, level domain.Level, period domain.Period) Selection {
	overall := Column(level, domain.PeriodOverall)
	if period == domain.PeriodOverall || period == "" {
		available, ratio := Availability(ds, overall)
		return Selection{
			Column:            overall,
			Records:           ds,
			Requested:         overall,
			Total:             ds.Len(),
			Available:         available,
			AvailabilityRatio: ratio,
		}
	}

	// Period column: measure coverage within the window
	requested := Column(level, period)
	available, ratio := Availability(ds, requested)
	sel := Selection{
		Requested:         requested,
		Available:         available,
		Total:             ds.Len(),
		AvailabilityRatio: ratio,
	}
	if available > 0 && ratio >= AvailabilityThreshold {
		sel.Column = requested
		sel.Records = ds.Where(func(r *domain.SurveyRecord) bool {
			_, ok := requested.value(r)
			return ok
		})
		return sel
	}

	// Too sparse: overall column of the same level on every record
	sel.Column = overall
	sel.Records = ds
	sel.FellBack = true
	return sel
}
