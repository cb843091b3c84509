package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"opinecli/internal/exporter"
	"opinecli/internal/infrastructure"
	"opinecli/internal/voteshare"
	"opinecli/pkg/contracts/domain"
)

// SectionStatus is the outcome of one section.
type SectionStatus string

const (
	SectionOK      SectionStatus = "ok"
	SectionSkipped SectionStatus = "skipped"
)

// SectionResult is one computed section. Data holds the calculator output:
// []voteshare.Computation, []voteshare.BreakdownRow, []voteshare.TrendPoint,
// voteshare.TransitionResult or voteshare.DistributionResult.
type SectionResult struct {
	Section  Section        `json:"section"`
	Status   SectionStatus  `json:"status"`
	Reason   string         `json:"reason,omitempty"`
	Table    exporter.Table `json:"-"`
	Data     interface{}    `json:"data,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// ReportRun is the outcome of executing a plan against one dataset.
type ReportRun struct {
	ID            uuid.UUID        `json:"id"`
	Plan          string           `json:"plan"`
	ReferenceDate time.Time        `json:"reference_date"`
	StartedAt     time.Time        `json:"started_at"`
	Duration      time.Duration    `json:"duration"`
	Sections      []SectionResult  `json:"sections"`
	Audit         *voteshare.Trail `json:"-"`
}

// Tables returns the tables of every computed section in plan order.
func (r *ReportRun) Tables() []exporter.Table {
	out := make([]exporter.Table, 0, len(r.Sections))
	for _, s := range r.Sections {
		if s.Status == SectionOK {
			out = append(out, s.Table)
		}
	}
	return out
}

// Skipped returns the IDs of optional sections left out of the run.
func (r *ReportRun) Skipped() []string {
	var out []string
	for _, s := range r.Sections {
		if s.Status == SectionSkipped {
			out = append(out, s.Section.ID)
		}
	}
	return out
}

// ReportServiceConfig holds the settings shared by every run.
type ReportServiceConfig struct {
	Policy  voteshare.MissingWeightPolicy
	Workers int
	// Skip lists anomalous survey dates left out of every trend, in
	// addition to a plan's own skip dates.
	Skip []time.Time
}

// ReportService executes report plans.
type ReportService struct {
	cfg     ReportServiceConfig
	tracer  trace.Tracer
	metrics *infrastructure.SurveyMetrics
	logger  *slog.Logger
}

// NewReportService creates a report service. tracer and metrics may be nil.
func NewReportService(cfg ReportServiceConfig, tracer trace.Tracer, metrics *infrastructure.SurveyMetrics, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer(infrastructure.MeterName)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Policy == "" {
		cfg.Policy = voteshare.PolicyStrict
	}
	return &ReportService{
		cfg:     cfg,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger.With(slog.String("service", "report")),
	}
}

// Run executes every section of plan over ds. Sections run concurrently,
// bounded by the configured worker count; results and audit entries keep
// plan order. The first failing section cancels the rest.
func (s *ReportService) Run(ctx context.Context, ds domain.Dataset, plan *ReportPlan) (*ReportRun, error) {
	run := &ReportRun{
		ID:        uuid.New(),
		Plan:      plan.Name,
		StartedAt: time.Now(),
	}
	if infrastructure.GetTraceID(ctx) == "" {
		ctx = infrastructure.WithTraceID(ctx, run.ID.String())
	}

	ctx, span := s.tracer.Start(ctx, "report.run", trace.WithAttributes(
		attribute.String("report.plan", plan.Name),
		attribute.String("report.run_id", run.ID.String()),
		attribute.Int("report.sections", len(plan.Sections)),
		attribute.Int("survey.records", ds.Len()),
	))
	defer span.End()

	err := s.run(ctx, ds, plan, run)
	run.Duration = time.Since(run.StartedAt)
	s.metrics.RecordRun(ctx, plan.Name, run.Duration, err)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		s.logger.ErrorContext(ctx, "report run failed",
			slog.String("plan", plan.Name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "report run completed",
		slog.String("plan", plan.Name),
		slog.String("run_id", run.ID.String()),
		slog.String("reference_date", run.ReferenceDate.Format(time.DateOnly)),
		slog.Int("sections", len(run.Sections)),
		slog.Any("skipped", run.Skipped()),
		slog.Duration("duration", run.Duration),
	)
	return run, nil
}

func (s *ReportService) run(ctx context.Context, ds domain.Dataset, plan *ReportPlan, run *ReportRun) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	ref, err := ReferenceDate(ds, plan)
	if err != nil {
		return err
	}
	run.ReferenceDate = ref

	skip, err := plan.Skip()
	if err != nil {
		return err
	}
	skip = append(skip, s.cfg.Skip...)

	results := make([]SectionResult, len(plan.Sections))
	trails := make([]*voteshare.Trail, len(plan.Sections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range plan.Sections {
		g.Go(func() error {
			sec := plan.Sections[i]
			res, trail, err := s.runSection(gctx, ds, sec, ref, skip)
			trails[i] = trail
			if err != nil {
				return fmt.Errorf("%w %q: %w", ErrSectionFailed, sec.ID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	run.Audit = voteshare.NewTrail()
	for _, t := range trails {
		for _, e := range t.Entries() {
			run.Audit.Record(ctx, e)
		}
	}
	run.Sections = results
	return nil
}

// ReferenceDate returns the plan's reference date, or the latest survey
// date in ds when the plan leaves it empty.
func ReferenceDate(ds domain.Dataset, plan *ReportPlan) (time.Time, error) {
	ref, err := plan.Reference()
	if err != nil {
		return time.Time{}, err
	}
	if !ref.IsZero() {
		return voteshare.Day(ref), nil
	}
	_, last := ds.DateRange()
	if last.IsZero() {
		return time.Time{}, ErrEmptyDataset
	}
	return voteshare.Day(last), nil
}

func (s *ReportService) runSection(ctx context.Context, ds domain.Dataset, sec Section, ref time.Time, skip []time.Time) (SectionResult, *voteshare.Trail, error) {
	ctx, span := s.tracer.Start(ctx, "report.section", trace.WithAttributes(
		attribute.String("section.id", sec.ID),
		attribute.String("section.kind", string(sec.Kind)),
	))
	defer span.End()

	trail := voteshare.NewTrail()
	calc := voteshare.NewCalculator(s.cfg.Policy, s.logger)
	calc.SetAuditor(trail)
	if s.metrics != nil {
		calc.SetObserver(s.metrics)
	}

	start := time.Now()
	res := SectionResult{Section: sec, Status: SectionOK}
	var err error
	res.Table, res.Data, err = compute(ctx, calc, ds, sec, ref, skip)
	res.Duration = time.Since(start)
	s.metrics.RecordSection(ctx, string(sec.Kind), res.Duration, err)

	if err != nil {
		if sec.Optional && errors.Is(err, voteshare.ErrMissingField) {
			s.logger.WarnContext(ctx, "optional section skipped",
				slog.String("section", sec.ID),
				slog.String("reason", err.Error()),
			)
			span.SetAttributes(attribute.Bool("section.skipped", true))
			return SectionResult{Section: sec, Status: SectionSkipped, Reason: err.Error(), Duration: res.Duration}, trail, nil
		}
		infrastructure.RecordError(ctx, err)
		return res, trail, err
	}

	if usedRawWeights(trail) {
		s.metrics.RecordRawFallback(ctx, sec.ID)
	}
	s.logger.DebugContext(ctx, "section computed",
		slog.String("section", sec.ID),
		slog.Int("rows", len(res.Table.Rows)),
		slog.Duration("duration", res.Duration),
	)
	return res, trail, nil
}

// compute runs the calculator operation of one section and renders its
// table.
func compute(ctx context.Context, calc *voteshare.Calculator, ds domain.Dataset, sec Section, ref time.Time, skip []time.Time) (exporter.Table, interface{}, error) {
	switch sec.Kind {
	case SectionShare:
		windows := sec.Windows
		if len(windows) == 0 {
			windows = []voteshare.WindowSpec{voteshare.Overall()}
		}
		rows := make([]exporter.ShareRow, 0, len(windows))
		comps := make([]voteshare.Computation, 0, len(windows))
		for _, w := range windows {
			q := sec.query(ref, w)
			q.Label = sec.ID + "/" + w.String()
			comp, err := calc.VoteShare(ctx, ds, q)
			if err != nil {
				return exporter.Table{}, nil, err
			}
			rows = append(rows, exporter.ShareRow{Label: WindowLabel(w), Computation: comp})
			comps = append(comps, comp)
		}
		return exporter.SharesTable(sec.ID, sec.Title, rows), comps, nil

	case SectionBreakdown:
		out, err := calc.Breakdown(ctx, ds, sec.query(ref, sec.window()), sec.Dimension)
		if err != nil {
			return exporter.Table{}, nil, err
		}
		rows := make([]exporter.ShareRow, len(out))
		for i, r := range out {
			rows[i] = exporter.ShareRow{Label: r.Value, Computation: r.Computation}
		}
		return exporter.SharesTable(sec.ID, sec.Title, rows), out, nil

	case SectionTrend:
		w := sec.window()
		points, err := calc.Trend(ctx, ds, sec.query(ref, w), voteshare.SeriesSpec{
			Points: sec.Points,
			Window: w,
			Skip:   skip,
		})
		if err != nil {
			return exporter.Table{}, nil, err
		}
		return exporter.TrendTable(sec.ID, sec.Title, points), points, nil

	case SectionTransition:
		res, err := calc.Transition(ctx, ds, sec.query(ref, sec.window()),
			ResolveField(sec.RowField), ResolveField(sec.ColField), sec.Mode)
		if err != nil {
			return exporter.Table{}, nil, err
		}
		return exporter.MatrixTable(sec.ID, sec.Title, res), res, nil

	case SectionDistribution:
		res, err := calc.Distribution(ctx, ds, sec.query(ref, sec.window()), ResolveField(sec.Question))
		if err != nil {
			return exporter.Table{}, nil, err
		}
		return exporter.DistributionTable(sec.ID, sec.Title, res, sec.Labels), res, nil
	}
	return exporter.Table{}, nil, fmt.Errorf("unknown section kind %q", sec.Kind)
}

func usedRawWeights(t *voteshare.Trail) bool {
	for _, e := range t.Entries() {
		switch {
		case e.Result != nil && e.Result.RawFallback:
			return true
		case e.Matrix != nil && e.Matrix.Totals.RawFallback:
			return true
		case e.Distribution != nil && e.Distribution.RawFallback:
			return true
		}
	}
	return false
}
