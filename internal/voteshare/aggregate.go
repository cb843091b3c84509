package voteshare

import (
	"log/slog"
	"sort"

	"opinecli/pkg/contracts/domain"
)

// Aggregator computes weighted category shares over a record set.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	policy MissingWeightPolicy
	logger *slog.Logger
}

// NewAggregator creates an aggregator. An empty policy means PolicyStrict.
func NewAggregator(policy MissingWeightPolicy, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = PolicyStrict
	}
	return &Aggregator{policy: policy, logger: logger}
}

// Policy returns the configured missing-weight policy.
func (a *Aggregator) Policy() MissingWeightPolicy {
	return a.policy
}

// Aggregate computes the weighted share of each party category of field.
//
// The sample size counts records with a non-null answer in the set as
// given, before any weight coverage is considered. Only records with a
// usable weight enter the sums; a null answer among them counts as NWR.
// A zero total weight yields all-zero percentages.
//
// Parameters:
//   - ds: the records to aggregate
//   - field: a party question (current vote, prior vote, second choice)
//   - column: weight column from SelectWeights, or RawWeights
//
// Returns: percentages for every party category, summing to 100 unless the
// total weight is zero. A field or weight column missing from the schema is
// a SchemaError; the policy decides whether an unusable column degrades to
// unweighted counts.
func (a *Aggregator) Aggregate(ds domain.Dataset, field domain.Field, column WeightColumn) (VoteShareResult, error) {
	if !ds.Schema.Has(field) {
		return VoteShareResult{}, missingField(field)
	}
	col, fallback, err := a.resolveColumn(ds, column)
	if err != nil {
		return VoteShareResult{}, err
	}

	res := tally(ds.Records, field, col)
	// sample size is taken before weight coverage
	res.SampleSize = answered(ds.Records, field)
	res.RawFallback = fallback

	a.logger.Debug("aggregated vote share",
		slog.String("field", string(field)),
		slog.String("weight_column", col.String()),
		slog.Int("records", ds.Len()),
		slog.Int("sample", res.SampleSize),
		slog.Int("weighted_base", res.WeightedBase),
		slog.Float64("total_weight", res.TotalWeight),
		slog.Bool("raw_fallback", fallback),
	)
	return res, nil
}

// resolveColumn applies the missing-weight policy. A column absent from the
// schema, or one with no value anywhere in a non-empty set, is an error
// under PolicyStrict and becomes RawWeights under PolicyRawFallback.
func (a *Aggregator) resolveColumn(ds domain.Dataset, column WeightColumn) (WeightColumn, bool, error) {
	if column.Raw {
		return column, false, nil
	}

	var cause error
	switch {
	case !ds.Schema.HasWeight(column.Key):
		cause = ErrMissingWeight
	case ds.Len() > 0:
		if n, _ := Availability(ds, column); n == 0 {
			cause = ErrEmptyWeights
		}
	}
	if cause == nil {
		return column, false, nil
	}

	if a.policy == PolicyRawFallback {
		a.logger.Warn("weight column unusable, aggregating unweighted",
			slog.String("weight_column", column.String()),
			slog.String("reason", cause.Error()),
		)
		return RawWeights, true, nil
	}
	return column, false, missingWeight(column.Key, cause)
}

// answered counts records with a non-null answer to field.
func answered(records []domain.SurveyRecord, field domain.Field) int {
	n := 0
	for i := range records {
		if records[i].Code(field) != nil {
			n++
		}
	}
	return n
}

// tally sums weights per category over the records holding a usable weight
// in col. SampleSize is left to the caller.
func tally(records []domain.SurveyRecord, field domain.Field, col WeightColumn) VoteShareResult {
	res := newResult()
	sums := make(map[PartyCategory]float64, 6)
	for i := range records {
		w, ok := col.value(&records[i])
		if !ok {
			continue
		}
		sums[Categorize(records[i].Code(field))] += w
		res.TotalWeight += w
		res.WeightedBase++
	}
	if res.TotalWeight == 0 {
		return res
	}
	for _, c := range Categories() {
		res.Percentages[c] = sums[c] / res.TotalWeight * 100
	}
	return res
}

// CodeDistribution is the weighted distribution of a single-choice question
// keyed by raw answer code.
type CodeDistribution struct {
	Question    domain.Field    `json:"question"`
	SampleSize  int             `json:"sample"`
	TotalWeight float64         `json:"total_weight"`
	Percentages map[int]float64 `json:"percentages"`
	RawFallback bool            `json:"raw_fallback,omitempty"`
}

// Codes returns the answer codes present, ascending.
func (d CodeDistribution) Codes() []int {
	codes := make([]int, 0, len(d.Percentages))
	for c := range d.Percentages {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes
}

// Distribution computes the weighted share of every answer code of a
// single-choice question. Records without an answer are not eligible.
func (a *Aggregator) Distribution(ds domain.Dataset, question domain.Field, column WeightColumn) (CodeDistribution, error) {
	if !ds.Schema.Has(question) {
		return CodeDistribution{}, missingField(question)
	}
	col, fallback, err := a.resolveColumn(ds, column)
	if err != nil {
		return CodeDistribution{}, err
	}

	dist := CodeDistribution{
		Question:    question,
		Percentages: make(map[int]float64),
		RawFallback: fallback,
	}
	sums := make(map[int]float64)
	for i := range ds.Records {
		code := ds.Records[i].Code(question)
		if code == nil {
			continue
		}
		dist.SampleSize++
		w, ok := col.value(&ds.Records[i])
		if !ok {
			continue
		}
		sums[*code] += w
		dist.TotalWeight += w
	}
	if dist.TotalWeight == 0 {
		return dist, nil
	}
	for code, w := range sums {
		dist.Percentages[code] = w / dist.TotalWeight * 100
	}
	return dist, nil
}
