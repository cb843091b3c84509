package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"opinecli/internal/config"
	"opinecli/internal/exporter"
	"opinecli/internal/infrastructure"
	"opinecli/internal/services"
	"opinecli/internal/validation"
	"opinecli/internal/voteshare"
)

// Outputs lists what one report run wrote.
type Outputs struct {
	CSV      []string
	Workbook string
	Audit    string
	Skipped  []string
}

func main() {
	in := flag.String("in", "", "survey workbook (.xlsx), or a directory to use its newest workbook")
	sheet := flag.String("sheet", "", "worksheet holding the survey (defaults to the first sheet)")
	out := flag.String("out", "", "output directory for CSV, workbook and audit files")
	planFile := flag.String("plan", "", "report plan YAML (defaults to the headline plan)")
	ref := flag.String("ref", "", "reference date YYYY-MM-DD (defaults to the latest survey date)")
	skip := flag.String("skip", "", "comma separated survey dates to leave out of trends")
	rawFallback := flag.Bool("raw-fallback", false, "aggregate unweighted when a weight column is unusable")
	workers := flag.Int("workers", 0, "sections computed in parallel")
	noWorkbook := flag.Bool("no-workbook", false, "skip the XLSX workbook")
	noAudit := flag.Bool("no-audit", false, "skip the calculation audit file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	if *in != "" {
		cfg.Report.InputPath = *in
	}
	if *sheet != "" {
		cfg.Report.Sheet = *sheet
	}
	if *out != "" {
		cfg.Report.OutputDir = *out
	}
	if *planFile != "" {
		cfg.Report.PlanFile = *planFile
	}
	if *ref != "" {
		cfg.Report.ReferenceDate = *ref
	}
	if *skip != "" {
		for _, d := range strings.Split(*skip, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.Report.SkipDates = append(cfg.Report.SkipDates, d)
			}
		}
	}
	if *rawFallback {
		cfg.Report.MissingWeights = config.MissingWeightsRaw
	}
	if *workers > 0 {
		cfg.Report.Workers = *workers
	}
	if *noWorkbook {
		cfg.Report.WriteWorkbook = false
	}
	if *noAudit {
		cfg.Report.WriteAudit = false
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outputs, err := run(ctx, cfg, logger)
	if err != nil {
		logger.Error("Report generation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Printf("Report written to %s (%d tables)\n", cfg.Report.OutputDir, len(outputs.CSV))
	if len(outputs.Skipped) > 0 {
		fmt.Printf("Skipped sections: %s\n", strings.Join(outputs.Skipped, ", "))
	}
}

// run loads the survey, executes the plan and writes every output.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Outputs, error) {
	start := time.Now()
	rc := cfg.Report
	if rc.InputPath == "" {
		return nil, fmt.Errorf("no survey workbook given: use -in or %s_REPORT_INPUT_PATH", config.EnvPrefix)
	}

	files := validation.NewFileValidator(logger)
	if err := files.ValidateOutputDirectory(rc.OutputDir); err != nil {
		return nil, err
	}

	plan := services.DefaultPlan()
	if rc.PlanFile != "" {
		if err := files.ValidatePlanFile(rc.PlanFile); err != nil {
			return nil, err
		}
		p, err := services.LoadPlan(rc.PlanFile)
		if err != nil {
			return nil, err
		}
		plan = p
	}
	if rc.ReferenceDate != "" {
		plan.ReferenceDate = rc.ReferenceDate
	}
	skip, err := rc.Skip()
	if err != nil {
		return nil, err
	}

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			logger.Warn("OpenTelemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()
	metrics, err := infrastructure.NewSurveyMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize survey metrics: %w", err)
	}

	data := services.NewDatasetService(metrics, logger)
	if err := data.Load(ctx, rc.InputPath, rc.Sheet); err != nil {
		return nil, err
	}
	ds, err := data.Dataset()
	if err != nil {
		return nil, err
	}

	reports := services.NewReportService(services.ReportServiceConfig{
		Policy:  voteshare.MissingWeightPolicy(rc.MissingWeights),
		Workers: rc.Workers,
		Skip:    skip,
	}, providers.Tracer, metrics, logger)

	result, err := reports.Run(ctx, ds, plan)
	if err != nil {
		return nil, err
	}

	tables := result.Tables()
	outputs := &Outputs{Skipped: result.Skipped()}
	if outputs.CSV, err = exporter.NewCSVWriter(rc.OutputDir, logger).WriteTables(tables); err != nil {
		return nil, err
	}

	if rc.WriteWorkbook {
		outputs.Workbook = filepath.Join(rc.OutputDir, config.WorkbookFileName)
		title := fmt.Sprintf("%s report, %s", plan.Name, result.ReferenceDate.Format(config.DateLayout))
		if err := exporter.NewWorkbookWriter(logger).WriteWorkbook(outputs.Workbook, title, tables); err != nil {
			return nil, err
		}
	}

	if rc.WriteAudit {
		outputs.Audit = filepath.Join(rc.OutputDir, config.AuditFileName)
		if err := writeAudit(outputs.Audit, result.Audit); err != nil {
			return nil, err
		}
	}

	logger.Info("Report generated",
		slog.String("run_id", result.ID.String()),
		slog.String("plan", plan.Name),
		slog.String("reference_date", result.ReferenceDate.Format(config.DateLayout)),
		slog.Int("tables", len(tables)),
		slog.Any("skipped", outputs.Skipped),
		slog.Duration("duration", time.Since(start)))
	return outputs, nil
}

func writeAudit(path string, trail *voteshare.Trail) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audit file: %w", err)
	}
	if _, err := trail.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write audit file: %w", err)
	}
	return f.Close()
}
