package voteshare

import (
	"fmt"
	"log/slog"

	"opinecli/pkg/contracts/domain"
)

// Eligible returns the records that may enter a cross-tabulation of row by
// col: both answers present and, for transferability when the source has
// second-choice reason columns, at least one reason given.
func Eligible(ds domain.Dataset, rowField, colField domain.Field, mode CrossTabMode) domain.Dataset {
	needReason := mode == ModeTransferability && ds.Schema.Has(domain.FieldSecondChoiceReason)
	return ds.Where(func(r *domain.SurveyRecord) bool {
		if r.Code(rowField) == nil || r.Code(colField) == nil {
			return false
		}
		return !needReason || r.HasSecondChoiceReason()
	})
}

// CrossTab builds a row-normalised transition matrix of rowField by
// colField.
//
// Each row is the distribution of colField among the eligible records whose
// rowField falls in that row's category, normalised by the row's own total
// weight. Eligible here also means weighted: BaseSample and the row sample
// sizes count only records holding a usable value in column. Totals is the distribution of colField over all eligible records.
// In transferability mode the diagonal is not applicable; same-party mass
// stays in the row's denominator, so applicable cells sum to at most 100.
//
// Parameters:
//   - ds: the records to tabulate
//   - rowField: question defining the rows (prior vote, or current vote)
//   - colField: question defining the columns (current vote, or second choice)
//   - column: weight column from SelectWeights, or RawWeights
//   - mode: ModeGainsLosses (default) or ModeTransferability
//
// Returns: the matrix with a row for every party category and a Totals row
func (a *Aggregator) CrossTab(ds domain.Dataset, rowField, colField domain.Field, column WeightColumn, mode CrossTabMode) (TransitionMatrix, error) {
	for _, f := range []domain.Field{rowField, colField} {
		if !ds.Schema.Has(f) {
			return TransitionMatrix{}, missingField(f)
		}
	}
	if mode == "" {
		mode = ModeGainsLosses
	}
	if mode != ModeGainsLosses && mode != ModeTransferability {
		return TransitionMatrix{}, fmt.Errorf("unknown cross-tab mode %q", mode)
	}

	eligible := Eligible(ds, rowField, colField, mode)
	col, fallback, err := a.resolveColumn(eligible, column)
	if err != nil {
		return TransitionMatrix{}, err
	}
	// Respondents without a usable weight drop out before anything is
	// counted, so row samples and the base sample match the weighted cells.
	if !col.Raw {
		eligible = eligible.Where(func(r *domain.SurveyRecord) bool {
			_, ok := col.value(r)
			return ok
		})
	}

	// Partition by row category
	partitions := make(map[PartyCategory][]domain.SurveyRecord, 6)
	for i := range eligible.Records {
		c := Categorize(eligible.Records[i].Code(rowField))
		partitions[c] = append(partitions[c], eligible.Records[i])
	}

	m := TransitionMatrix{
		RowField:   rowField,
		ColField:   colField,
		Mode:       mode,
		BaseSample: eligible.Len(),
		Rows:       make(map[PartyCategory]MatrixRow, 6),
	}
	for _, rowCat := range Categories() {
		part := tally(partitions[rowCat], colField, col)
		row := MatrixRow{
			SampleSize:  len(partitions[rowCat]),
			TotalWeight: part.TotalWeight,
			Cells:       make(map[PartyCategory]Cell, 6),
		}
		for _, colCat := range Categories() {
			if mode == ModeTransferability && rowCat == colCat {
				row.Cells[colCat] = Cell{NotApplicable: true}
				continue
			}
			row.Cells[colCat] = Cell{Value: part.Percentages[colCat]}
		}
		m.Rows[rowCat] = row
	}

	m.Totals = tally(eligible.Records, colField, col)
	m.Totals.SampleSize = eligible.Len()
	m.Totals.RawFallback = fallback

	a.logger.Debug("cross-tabulated",
		slog.String("row_field", string(rowField)),
		slog.String("col_field", string(colField)),
		slog.String("mode", string(mode)),
		slog.String("weight_column", col.String()),
		slog.Int("base_sample", m.BaseSample),
	)
	return m, nil
}
