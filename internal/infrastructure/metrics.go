package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"opinecli/internal/voteshare"
)

// SurveyMetrics holds the application metrics
type SurveyMetrics struct {
	// Engine metrics
	ComputationsTotal metric.Int64Counter
	WeightFallbacks   metric.Int64Counter
	RawFallbacks      metric.Int64Counter
	SchemaErrors      metric.Int64Counter

	// Report metrics
	ReportRunsTotal       metric.Int64Counter
	ReportRunDuration     metric.Float64Histogram
	ReportSectionDuration metric.Float64Histogram

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Ingestion metrics
	RecordsLoaded metric.Int64Counter
	RowsSkipped   metric.Int64Counter
}

// NewSurveyMetrics creates the application metrics on meter
func NewSurveyMetrics(meter metric.Meter) (*SurveyMetrics, error) {
	m := &SurveyMetrics{}
	var err error

	if m.ComputationsTotal, err = meter.Int64Counter(
		"voteshare_computations_total",
		metric.WithDescription("Total number of vote share computations"),
	); err != nil {
		return nil, err
	}

	if m.WeightFallbacks, err = meter.Int64Counter(
		"voteshare_weight_fallbacks_total",
		metric.WithDescription("Computations where a sparse period weight fell back to the overall weight"),
	); err != nil {
		return nil, err
	}

	if m.RawFallbacks, err = meter.Int64Counter(
		"voteshare_raw_fallbacks_total",
		metric.WithDescription("Computations aggregated unweighted because the weight column was unusable"),
	); err != nil {
		return nil, err
	}

	if m.SchemaErrors, err = meter.Int64Counter(
		"voteshare_schema_errors_total",
		metric.WithDescription("Computations rejected for a missing field or weight column"),
	); err != nil {
		return nil, err
	}

	if m.ReportRunsTotal, err = meter.Int64Counter(
		"report_runs_total",
		metric.WithDescription("Total number of report runs"),
	); err != nil {
		return nil, err
	}

	if m.ReportRunDuration, err = meter.Float64Histogram(
		"report_run_duration_seconds",
		metric.WithDescription("Report run duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.ReportSectionDuration, err = meter.Float64Histogram(
		"report_section_duration_seconds",
		metric.WithDescription("Report section duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.RecordsLoaded, err = meter.Int64Counter(
		"survey_records_loaded_total",
		metric.WithDescription("Survey records loaded from workbooks"),
	); err != nil {
		return nil, err
	}

	if m.RowsSkipped, err = meter.Int64Counter(
		"survey_rows_skipped_total",
		metric.WithDescription("Workbook rows dropped during ingestion"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Observe implements voteshare.Observer
func (m *SurveyMetrics) Observe(ctx context.Context, op string, sel voteshare.Selection, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failure"
	}
	m.ComputationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("status", status),
	))

	if sel.FellBack {
		m.WeightFallbacks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("requested", sel.Requested.String()),
		))
	}
	if err != nil && voteshare.IsSchemaError(err) {
		m.SchemaErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}

// RecordRawFallback counts a result aggregated unweighted
func (m *SurveyMetrics) RecordRawFallback(ctx context.Context, section string) {
	if m == nil {
		return
	}
	m.RawFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("section", section)))
}

// RecordSection records the duration of one report section
func (m *SurveyMetrics) RecordSection(ctx context.Context, kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ReportSectionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", err == nil),
	))
}

// RecordRun records a completed report run
func (m *SurveyMetrics) RecordRun(ctx context.Context, plan string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("plan", plan),
		attribute.Bool("success", err == nil),
	)
	m.ReportRunsTotal.Add(ctx, 1, attrs)
	m.ReportRunDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordHTTPRequest records one served request
func (m *SurveyMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordIngestion records the outcome of loading one workbook
func (m *SurveyMetrics) RecordIngestion(ctx context.Context, loaded, skipped int) {
	if m == nil {
		return
	}
	m.RecordsLoaded.Add(ctx, int64(loaded))
	m.RowsSkipped.Add(ctx, int64(skipped))
}
