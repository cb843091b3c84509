package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"opinecli/internal/config"
	"opinecli/pkg/contracts/domain"
)

var regionOverall = domain.WeightKey{Level: domain.LevelRegion, Period: domain.PeriodOverall}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSurvey(t *testing.T, dir string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{string(domain.FieldSurveyDate), string(domain.FieldVote), string(domain.FieldPriorVote), regionOverall.String()},
		{"2025-10-08", 1, 2, 2},
		{"2025-10-09", 2, 1, 1},
		{"2025-10-10", 1, 1, 1},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(dir, "survey.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Telemetry.EnableMetrics = false
	cfg.Report.InputPath = writeSurvey(t, t.TempDir())
	cfg.Report.OutputDir = filepath.Join(t.TempDir(), "out")
	return cfg
}

func TestRunDefaultPlan(t *testing.T) {
	cfg := testConfig(t)

	outputs, err := run(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	assert.NotEmpty(t, outputs.CSV)
	assert.Contains(t, outputs.CSV, filepath.Join(cfg.Report.OutputDir, "vote_share.csv"))
	assert.Contains(t, outputs.Skipped, "transferability", "second choice is absent")
	for _, p := range outputs.CSV {
		assert.FileExists(t, p)
	}
	assert.FileExists(t, outputs.Workbook)

	audit, err := os.ReadFile(outputs.Audit)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(audit), "vote_share/overall"))
}

func TestRunPlanFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.WriteWorkbook = false
	cfg.Report.WriteAudit = false
	cfg.Report.ReferenceDate = "2025-10-09"
	cfg.Report.PlanFile = filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(cfg.Report.PlanFile, []byte(`
name: short
sections:
  - id: shares
    title: Shares
    kind: share
`), 0o644))

	outputs, err := run(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(cfg.Report.OutputDir, "shares.csv")}, outputs.CSV)
	assert.Empty(t, outputs.Workbook)
	assert.Empty(t, outputs.Audit)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, cfg *config.Config)
	}{
		{"no input", func(t *testing.T, cfg *config.Config) { cfg.Report.InputPath = "" }},
		{"missing input", func(t *testing.T, cfg *config.Config) {
			cfg.Report.InputPath = filepath.Join(t.TempDir(), "nope.xlsx")
		}},
		{"plan with wrong extension", func(t *testing.T, cfg *config.Config) {
			cfg.Report.PlanFile = filepath.Join(t.TempDir(), "plan.json")
			require.NoError(t, os.WriteFile(cfg.Report.PlanFile, []byte("{}"), 0o644))
		}},
		{"bad skip date", func(t *testing.T, cfg *config.Config) { cfg.Report.SkipDates = []string{"yesterday"} }},
		{"missing weight under strict policy", func(t *testing.T, cfg *config.Config) {
			cfg.Report.PlanFile = filepath.Join(t.TempDir(), "plan.yml")
			require.NoError(t, os.WriteFile(cfg.Report.PlanFile, []byte(`
name: district
sections:
  - id: shares
    title: Shares
    kind: share
    level: District
`), 0o644))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(t, cfg)
			_, err := run(context.Background(), cfg, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestRunRawFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.MissingWeights = config.MissingWeightsRaw
	cfg.Report.WriteWorkbook = false
	cfg.Report.PlanFile = filepath.Join(t.TempDir(), "plan.yml")
	require.NoError(t, os.WriteFile(cfg.Report.PlanFile, []byte(`
name: district
sections:
  - id: shares
    title: Shares
    kind: share
    level: District
`), 0o644))

	outputs, err := run(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	require.Len(t, outputs.CSV, 1)

	audit, err := os.ReadFile(outputs.Audit)
	require.NoError(t, err)
	assert.Contains(t, string(audit), "(unweighted fallback)")
}
