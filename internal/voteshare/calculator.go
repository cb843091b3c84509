package voteshare

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"opinecli/pkg/contracts/domain"
)

// Operation names used in audit entries and metrics.
const (
	OpVoteShare    = "vote_share"
	OpTrend        = "trend"
	OpTransition   = "transition"
	OpBreakdown    = "breakdown"
	OpDistribution = "distribution"
)

// Query is the full description of one slice of the survey: which window,
// which weights, which respondents and which question.
type Query struct {
	Label         string        `json:"label,omitempty" yaml:"label,omitempty"`
	ReferenceDate time.Time     `json:"reference_date" yaml:"reference_date"`
	Level         domain.Level  `json:"level" yaml:"level"`
	Period        domain.Period `json:"period" yaml:"period"`
	Window        WindowSpec    `json:"window" yaml:"window"`
	Filter        Filter        `json:"filter" yaml:"filter"`
	Field         domain.Field  `json:"field,omitempty" yaml:"field,omitempty"`
	Raw           bool          `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// withDefaults fills the region level, overall period and window, and the
// current-vote question.
func (q Query) withDefaults() Query {
	if q.Level == "" {
		q.Level = domain.LevelRegion
	}
	if q.Period == "" {
		q.Period = domain.PeriodOverall
	}
	if q.Window.Kind == "" {
		q.Window = Overall()
	}
	if q.Field == "" {
		q.Field = domain.FieldVote
	}
	return q
}

// Validate checks the query after defaults are applied.
func (q Query) Validate() error {
	q = q.withDefaults()
	if q.ReferenceDate.IsZero() {
		return fmt.Errorf("reference date is required")
	}
	if !q.Level.Valid() {
		return fmt.Errorf("invalid level %q", q.Level)
	}
	if !q.Period.Valid() {
		return fmt.Errorf("invalid period %q", q.Period)
	}
	switch q.Window.Kind {
	case KindOverall:
	case KindMovingAverage:
		if q.Window.Days <= 0 {
			return fmt.Errorf("moving average needs a positive day count, got %d", q.Window.Days)
		}
	default:
		return fmt.Errorf("invalid window kind %q", q.Window.Kind)
	}
	if _, err := q.Filter.Predicate(); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	return nil
}

// Computation is a vote share with the context it was computed in.
type Computation struct {
	Query     Query           `json:"query"`
	Window    TimeWindow      `json:"window"`
	Selection Selection       `json:"selection"`
	Result    VoteShareResult `json:"result"`
}

// TrendPoint is one date of a trend series.
type TrendPoint struct {
	Date time.Time `json:"date"`
	Computation
}

// BreakdownRow is the vote share of one demographic value.
type BreakdownRow struct {
	Value string `json:"value"`
	Computation
}

// TransitionResult is a cross-tabulation with its context.
type TransitionResult struct {
	Query     Query            `json:"query"`
	Window    TimeWindow       `json:"window"`
	Selection Selection        `json:"selection"`
	Matrix    TransitionMatrix `json:"matrix"`
}

// DistributionResult is a single-choice distribution with its context.
type DistributionResult struct {
	Query        Query            `json:"query"`
	Window       TimeWindow       `json:"window"`
	Selection    Selection        `json:"selection"`
	Distribution CodeDistribution `json:"distribution"`
}

// Observer is notified after every computation; used for metrics.
type Observer interface {
	Observe(ctx context.Context, op string, sel Selection, err error)
}

// Calculator is the single parameterised entry point of the engine. It
// resolves the window, applies the demographic filter, selects weights and
// aggregates. Configure it before sharing; after that it is safe for
// concurrent use over a shared read-only dataset.
type Calculator struct {
	agg      *Aggregator
	logger   *slog.Logger
	auditor  Auditor
	observer Observer
}

// NewCalculator creates a calculator with the given missing-weight policy.
func NewCalculator(policy MissingWeightPolicy, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		agg:    NewAggregator(policy, logger),
		logger: logger,
	}
}

// SetAuditor attaches an audit trail.
func (c *Calculator) SetAuditor(a Auditor) {
	c.auditor = a
}

// SetObserver attaches a metrics observer.
func (c *Calculator) SetObserver(o Observer) {
	c.observer = o
}

// Aggregator returns the underlying aggregator.
func (c *Calculator) Aggregator() *Aggregator {
	return c.agg
}

// slice applies the window and the demographic filter.
func (c *Calculator) slice(ds domain.Dataset, q Query, w TimeWindow) (domain.Dataset, error) {
	return q.Filter.Apply(w.Filter(ds))
}

// weights selects the weight column for a sliced set. The sums are computed
// over the unrestricted slice: records without the chosen weight drop out
// inside the aggregation anyway, and the sample size must count them.
func (c *Calculator) weights(ds domain.Dataset, q Query) Selection {
	if q.Raw {
		return Selection{
			Column:            RawWeights,
			Records:           ds,
			Requested:         RawWeights,
			Available:         ds.Len(),
			Total:             ds.Len(),
			AvailabilityRatio: 1,
		}
	}
	return SelectWeights(ds, q.Level, q.Period)
}

// VoteShare computes the weighted share of q.Field for one query.
func (c *Calculator) VoteShare(ctx context.Context, ds domain.Dataset, q Query) (Computation, error) {
	if err := q.Validate(); err != nil {
		return Computation{}, fmt.Errorf("validate query: %w", err)
	}
	q = q.withDefaults()
	return c.voteShareIn(ctx, ds, q, Resolve(q.ReferenceDate, q.Window), OpVoteShare)
}

func (c *Calculator) voteShareIn(ctx context.Context, ds domain.Dataset, q Query, w TimeWindow, op string) (Computation, error) {
	sliced, err := c.slice(ds, q, w)
	if err != nil {
		return Computation{}, err
	}
	sel := c.weights(sliced, q)
	res, err := c.agg.Aggregate(sliced, q.Field, sel.Column)

	c.finish(ctx, op, AuditEntry{
		Label:     q.Label,
		Operation: op,
		Reference: q.ReferenceDate,
		Window:    w,
		Filter:    q.Filter.String(),
		Records:   sliced.Len(),
		Selection: &sel,
		Column:    sel.Column.String(),
		Result:    &res,
	}, sel, err)
	if err != nil {
		return Computation{}, fmt.Errorf("aggregate %s: %w", q.Label, err)
	}
	return Computation{Query: q, Window: w, Selection: sel, Result: res}, nil
}

// Trend evaluates q at every point of a series ending at q.ReferenceDate.
// spec.Window replaces q.Window for each point.
func (c *Calculator) Trend(ctx context.Context, ds domain.Dataset, q Query, spec SeriesSpec) ([]TrendPoint, error) {
	q.Window = spec.Window
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("validate query: %w", err)
	}
	q = q.withDefaults()

	points := Series(q.ReferenceDate, spec)
	out := make([]TrendPoint, 0, len(points))
	for _, p := range points {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("trend cancelled: %w", ctx.Err())
		default:
		}
		comp, err := c.voteShareIn(ctx, ds, q, p.Window, OpTrend)
		if err != nil {
			return nil, err
		}
		out = append(out, TrendPoint{Date: p.Date, Computation: comp})
	}
	c.logger.DebugContext(ctx, "trend computed",
		slog.String("label", q.Label),
		slog.String("window", spec.Window.String()),
		slog.Int("points", len(out)),
	)
	return out, nil
}

// Breakdown computes q once per value of a demographic dimension. The
// dimension's column must be in the source schema.
func (c *Calculator) Breakdown(ctx context.Context, ds domain.Dataset, q Query, dim Dimension) ([]BreakdownRow, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("validate query: %w", err)
	}
	q = q.withDefaults()

	values, err := DimensionValues(ds, dim)
	if err != nil {
		return nil, err
	}
	if field, _ := dim.Field(); !ds.Schema.Has(field) {
		return nil, fmt.Errorf("breakdown by %s: %w", dim, missingField(field))
	}
	w := Resolve(q.ReferenceDate, q.Window)
	out := make([]BreakdownRow, 0, len(values))
	for _, v := range values {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("breakdown cancelled: %w", ctx.Err())
		default:
		}
		sub := q
		if sub.Filter, err = q.Filter.With(dim, v); err != nil {
			return nil, err
		}
		comp, err := c.voteShareIn(ctx, ds, sub, w, OpBreakdown)
		if err != nil {
			return nil, err
		}
		out = append(out, BreakdownRow{Value: v, Computation: comp})
	}
	return out, nil
}

// Transition cross-tabulates rowField by colField over the slice q selects.
func (c *Calculator) Transition(ctx context.Context, ds domain.Dataset, q Query, rowField, colField domain.Field, mode CrossTabMode) (TransitionResult, error) {
	if err := q.Validate(); err != nil {
		return TransitionResult{}, fmt.Errorf("validate query: %w", err)
	}
	q = q.withDefaults()
	w := Resolve(q.ReferenceDate, q.Window)

	sliced, err := c.slice(ds, q, w)
	if err != nil {
		return TransitionResult{}, err
	}
	sel := c.weights(sliced, q)
	m, err := c.agg.CrossTab(sliced, rowField, colField, sel.Column, mode)

	c.finish(ctx, OpTransition, AuditEntry{
		Label:     q.Label,
		Operation: OpTransition,
		Reference: q.ReferenceDate,
		Window:    w,
		Filter:    q.Filter.String(),
		Records:   sliced.Len(),
		Selection: &sel,
		Column:    sel.Column.String(),
		Matrix:    &m,
	}, sel, err)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("cross-tabulate %s: %w", q.Label, err)
	}
	return TransitionResult{Query: q, Window: w, Selection: sel, Matrix: m}, nil
}

// Distribution computes the weighted answer distribution of a single-choice
// question over the slice q selects.
func (c *Calculator) Distribution(ctx context.Context, ds domain.Dataset, q Query, question domain.Field) (DistributionResult, error) {
	if err := q.Validate(); err != nil {
		return DistributionResult{}, fmt.Errorf("validate query: %w", err)
	}
	q = q.withDefaults()
	q.Field = question
	w := Resolve(q.ReferenceDate, q.Window)

	sliced, err := c.slice(ds, q, w)
	if err != nil {
		return DistributionResult{}, err
	}
	sel := c.weights(sliced, q)
	d, err := c.agg.Distribution(sliced, question, sel.Column)

	c.finish(ctx, OpDistribution, AuditEntry{
		Label:        q.Label,
		Operation:    OpDistribution,
		Reference:    q.ReferenceDate,
		Window:       w,
		Filter:       q.Filter.String(),
		Records:      sliced.Len(),
		Selection:    &sel,
		Column:       sel.Column.String(),
		Distribution: &d,
	}, sel, err)
	if err != nil {
		return DistributionResult{}, fmt.Errorf("distribution %s: %w", q.Label, err)
	}
	return DistributionResult{Query: q, Window: w, Selection: sel, Distribution: d}, nil
}

func (c *Calculator) finish(ctx context.Context, op string, e AuditEntry, sel Selection, err error) {
	if err != nil {
		e.Err = err.Error()
		e.Result, e.Matrix, e.Distribution = nil, nil, nil
		c.logger.WarnContext(ctx, "computation failed",
			slog.String("operation", op),
			slog.String("label", e.Label),
			slog.String("error", err.Error()),
		)
	}
	if sel.FellBack {
		c.logger.DebugContext(ctx, "period weight too sparse, using overall weight",
			slog.String("requested", sel.Requested.String()),
			slog.Float64("availability_ratio", sel.AvailabilityRatio),
		)
	}
	if c.auditor != nil {
		c.auditor.Record(ctx, e)
	}
	if c.observer != nil {
		c.observer.Observe(ctx, op, sel, err)
	}
}
