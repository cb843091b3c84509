package services

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"opinecli/internal/shared/testutil"
	"opinecli/internal/voteshare"
	"opinecli/pkg/contracts/domain"
)

var regionOverall = domain.WeightKey{Level: domain.LevelRegion, Period: domain.PeriodOverall}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func code(n int) *int {
	return &n
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func record(date string, vote, prior int, weight float64) domain.SurveyRecord {
	return domain.SurveyRecord{
		SurveyDate:    day(date),
		VoteCode:      code(vote),
		PriorVoteCode: code(prior),
		Weights:       map[domain.WeightKey]float64{regionOverall: weight},
	}
}

// sampleDataset has three dated respondents with an overall region weight
// only; period and district weights are absent.
func sampleDataset() domain.Dataset {
	return domain.Dataset{
		Schema: domain.NewSchema(
			[]domain.Field{domain.FieldSurveyDate, domain.FieldVote, domain.FieldPriorVote},
			[]domain.WeightKey{regionOverall},
		),
		Records: []domain.SurveyRecord{
			record("2025-10-10", voteshare.CodeAITC, voteshare.CodeAITC, 1),
			record("2025-10-09", voteshare.CodeBJP, voteshare.CodeAITC, 1),
			record("2025-10-08", voteshare.CodeAITC, voteshare.CodeBJP, 2),
		},
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid",
			yaml: `
name: weekly
reference_date: 2025-10-31
skip_dates: [2025-10-19]
sections:
  - id: vote_share
    title: Vote share
    kind: share
    windows: [{kind: overall}, {kind: dma, days: 7}]
  - id: gains_losses
    title: Gains and losses
    kind: transition
    row_field: prior_vote
    col_field: vote
  - id: winner
    title: Expected winner
    kind: distribution
    question: expected_winner
    labels: {1: AITC, 2: BJP}
`,
		},
		{
			name:    "unknown key",
			yaml:    "name: x\nsections:\n  - id: a\n    title: A\n    kind: share\n    colour: red\n",
			wantErr: "colour",
		},
		{
			name:    "no sections",
			yaml:    "name: x\n",
			wantErr: "sections",
		},
		{
			name:    "duplicate id",
			yaml:    "name: x\nsections:\n  - {id: a, title: A, kind: share}\n  - {id: a, title: B, kind: share}\n",
			wantErr: "duplicate section id",
		},
		{
			name:    "breakdown without dimension",
			yaml:    "name: x\nsections:\n  - {id: a, title: A, kind: breakdown}\n",
			wantErr: "dimension",
		},
		{
			name:    "unknown kind",
			yaml:    "name: x\nsections:\n  - {id: a, title: A, kind: pie}\n",
			wantErr: "kind",
		},
		{
			name:    "labels on share",
			yaml:    "name: x\nsections:\n  - {id: a, title: A, kind: share, labels: {1: X}}\n",
			wantErr: "labels",
		},
		{
			name:    "bad reference date",
			yaml:    "name: x\nreference_date: 31/10/2025\nsections:\n  - {id: a, title: A, kind: share}\n",
			wantErr: "reference_date",
		},
		{
			name:    "id with path separator",
			yaml:    "name: x\nsections:\n  - {id: a/b, title: A, kind: share}\n",
			wantErr: "id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidPlan)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, plan.Sections, 3)

			ref, err := plan.Reference()
			require.NoError(t, err)
			assert.Equal(t, day("2025-10-31"), ref)
			skip, err := plan.Skip()
			require.NoError(t, err)
			assert.Equal(t, []time.Time{day("2025-10-19")}, skip)

			assert.Equal(t, voteshare.MovingAverage(7), plan.Sections[0].Windows[1])
			assert.Equal(t, "BJP", plan.Sections[2].Labels[2])
		})
	}
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	_, err := LoadPlan(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("name: x\nsections:\n  - {id: a, title: A, kind: share}\n"), 0o644))
	plan, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, "x", plan.Name)
}

func TestDefaultPlan(t *testing.T) {
	plan := DefaultPlan()
	require.NoError(t, plan.Validate())

	ids := make(map[string]bool)
	for _, s := range plan.Sections {
		ids[s.ID] = true
	}
	for _, want := range []string{"vote_share", "trend_overall", "trend_7dma", "gains_losses", "transferability", "by_district"} {
		assert.True(t, ids[want], want)
	}
}

func TestReportService_Run_DefaultPlanWithoutDemographics(t *testing.T) {
	svc := NewReportService(ReportServiceConfig{Workers: 4}, nil, nil, discardLogger())
	run, err := svc.Run(context.Background(), sampleDataset(), DefaultPlan())
	require.NoError(t, err)

	skipped := run.Skipped()
	for _, id := range []string{"by_gender", "by_locality", "by_religion", "by_social_category", "by_age", "by_region", "by_district"} {
		assert.Contains(t, skipped, id, "no %s column in the source", id)
	}
	assert.NotContains(t, skipped, "vote_share")
	assert.NotContains(t, skipped, "gains_losses")
}

func TestResolveField(t *testing.T) {
	assert.Equal(t, domain.FieldPriorVote, ResolveField("prior_vote"))
	assert.Equal(t, domain.FieldVote, ResolveField(" Vote "))
	assert.Equal(t, domain.Field("Custom Header"), ResolveField("Custom Header"))
}

func TestDefaultPeriod(t *testing.T) {
	assert.Equal(t, domain.PeriodOverall, DefaultPeriod(voteshare.Overall()))
	assert.Equal(t, domain.PeriodL7D, DefaultPeriod(voteshare.MovingAverage(7)))
	assert.Equal(t, domain.PeriodL15D, DefaultPeriod(voteshare.MovingAverage(15)))
	assert.Equal(t, domain.PeriodOverall, DefaultPeriod(voteshare.MovingAverage(30)))
}

func TestReportService_Run(t *testing.T) {
	plan := &ReportPlan{
		Name: "test",
		Sections: []Section{
			{
				ID:      "vote_share",
				Title:   "Vote share",
				Kind:    SectionShare,
				Windows: []voteshare.WindowSpec{voteshare.Overall(), voteshare.MovingAverage(7)},
			},
			{ID: "gains_losses", Title: "Gains", Kind: SectionTransition, RowField: "prior_vote", ColField: "vote"},
			{ID: "trend", Title: "Trend", Kind: SectionTrend, Points: 3},
			{ID: "preferred_cm", Title: "CM", Kind: SectionDistribution, Question: "preferred_cm", Optional: true},
		},
	}

	svc := NewReportService(ReportServiceConfig{Workers: 2}, nil, nil, discardLogger())
	run, err := svc.Run(context.Background(), sampleDataset(), plan)
	require.NoError(t, err)

	assert.Equal(t, day("2025-10-10"), run.ReferenceDate, "latest survey date is the default reference")
	require.Len(t, run.Sections, 4)
	for i, s := range run.Sections {
		assert.Equal(t, plan.Sections[i].ID, s.Section.ID, "plan order kept")
	}

	shares := run.Sections[0]
	require.Equal(t, SectionOK, shares.Status)
	require.Len(t, shares.Table.Rows, 2)
	assert.Equal(t, "Overall", shares.Table.Rows[0][0])
	assert.Equal(t, 75.0, shares.Table.Rows[0][3])
	assert.Equal(t, "7 DMA", shares.Table.Rows[1][0])
	assert.Equal(t, 66.7, shares.Table.Rows[1][3])

	comps, ok := shares.Data.([]voteshare.Computation)
	require.True(t, ok)
	assert.True(t, comps[1].Selection.FellBack, "L7D weights are absent so the overall weight is used")

	trend, ok := run.Sections[2].Data.([]voteshare.TrendPoint)
	require.True(t, ok)
	require.Len(t, trend, 3)
	assert.Equal(t, day("2025-10-08"), trend[0].Date)

	assert.Equal(t, SectionSkipped, run.Sections[3].Status)
	assert.Equal(t, []string{"preferred_cm"}, run.Skipped())
	assert.Len(t, run.Tables(), 3)

	entries := run.Audit.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "vote_share/overall", entries[0].Label)
	assert.Equal(t, "vote_share/7dma", entries[1].Label)
}

func TestReportService_Run_MissingWeightPolicy(t *testing.T) {
	plan := &ReportPlan{
		Name:     "district",
		Sections: []Section{{ID: "district", Title: "District", Kind: SectionShare, Level: domain.LevelDistrict}},
	}

	t.Run("strict fails", func(t *testing.T) {
		svc := NewReportService(ReportServiceConfig{Policy: voteshare.PolicyStrict}, nil, nil, discardLogger())
		_, err := svc.Run(context.Background(), sampleDataset(), plan)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSectionFailed)
		assert.ErrorIs(t, err, voteshare.ErrMissingWeight)
		assert.True(t, voteshare.IsSchemaError(err))
	})

	t.Run("raw fallback succeeds", func(t *testing.T) {
		svc := NewReportService(ReportServiceConfig{Policy: voteshare.PolicyRawFallback}, nil, nil, discardLogger())
		run, err := svc.Run(context.Background(), sampleDataset(), plan)
		require.NoError(t, err)
		comps := run.Sections[0].Data.([]voteshare.Computation)
		assert.True(t, comps[0].Result.RawFallback)
		assert.InDelta(t, 66.67, comps[0].Result.Share(voteshare.AITC), 0.01)
	})
}

func TestReportService_Run_OptionalMissingField(t *testing.T) {
	plan := &ReportPlan{
		Name:     "cm",
		Sections: []Section{{ID: "cm", Title: "CM", Kind: SectionDistribution, Question: "preferred_cm"}},
	}
	svc := NewReportService(ReportServiceConfig{}, nil, nil, discardLogger())
	_, err := svc.Run(context.Background(), sampleDataset(), plan)
	assert.ErrorIs(t, err, voteshare.ErrMissingField, "required sections fail on a missing column")
}

func TestReferenceDate(t *testing.T) {
	_, err := ReferenceDate(domain.Dataset{}, &ReportPlan{})
	assert.ErrorIs(t, err, ErrEmptyDataset)

	ref, err := ReferenceDate(domain.Dataset{}, &ReportPlan{ReferenceDate: "2025-10-01"})
	require.NoError(t, err)
	assert.Equal(t, day("2025-10-01"), ref)
}

func writeSurveyWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{string(domain.FieldSurveyDate), string(domain.FieldVote), regionOverall.String()},
		{"2025-10-09", 1, 1.5},
		{"2025-10-10", 2, 0.5},
		{"not a date", 1, 1},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}
	path := filepath.Join(t.TempDir(), "survey.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestDatasetService(t *testing.T) {
	svc := NewDatasetService(nil, discardLogger())

	_, err := svc.Dataset()
	assert.ErrorIs(t, err, ErrDatasetNotReady)
	assert.False(t, svc.Status().Loaded)

	require.NoError(t, svc.Load(context.Background(), writeSurveyWorkbook(t), ""))
	ds, err := svc.Dataset()
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	st := svc.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, 1, st.Weights)
	assert.Equal(t, "2025-10-09", st.FirstDate)
	assert.Equal(t, "2025-10-10", st.LastDate)

	err = svc.Load(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"), "")
	require.Error(t, err)
	_, err = svc.Dataset()
	assert.NoError(t, err, "failed reload keeps the previous snapshot")
}

func TestDatasetService_LoadDirectory(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	svc := NewDatasetService(nil, logger)

	path := writeSurveyWorkbook(t)
	require.NoError(t, svc.Load(context.Background(), filepath.Dir(path), ""))
	assert.Equal(t, path, svc.Status().Source)
	testutil.AssertLogContains(t, logs, slog.LevelInfo, "survey workbook discovered")
	testutil.AssertLogAttr(t, logs, "service", "dataset")

	err := svc.Load(context.Background(), t.TempDir(), "")
	assert.Error(t, err, "directory without workbooks")
}

func TestHealthService_Readiness(t *testing.T) {
	data := NewDatasetService(nil, discardLogger())
	hs := NewHealthService("test", "", data, discardLogger())
	ctx := context.Background()

	assert.Equal(t, StatusOK, hs.HealthCheck(ctx).Status)
	assert.Equal(t, StatusAlive, hs.LivenessCheck(ctx).Status)

	st := hs.ReadinessCheck(ctx)
	assert.Equal(t, StatusNotReady, st.Status)
	dataset := st.Services["dataset"].(ServiceHealth)
	assert.True(t, strings.Contains(dataset.Message, "not loaded"))

	data.Set(sampleDataset(), "memory")
	assert.Equal(t, StatusReady, hs.ReadinessCheck(ctx).Status)
	assert.Equal(t, 3, hs.DatasetStatus().Records)
	assert.Equal(t, "test", hs.Version()["version"])
}
