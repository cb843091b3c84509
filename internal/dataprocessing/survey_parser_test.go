package dataprocessing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apierrors "opinecli/internal/errors"
	"opinecli/internal/voteshare"
	"opinecli/pkg/contracts/domain"
)

const (
	secondChoiceHeader = "9. Assume that the party you chose does not contest, which party would you choose?"
	reasonHeaderA      = "10. Could you tell us the reason for choosing the above party as your second choice? - Ideology"
	reasonHeaderB      = "10. Could you tell us the reason for choosing the above party as your second choice? - Candidate"
)

var (
	regionOverall = domain.WeightKey{Level: domain.LevelRegion, Period: domain.PeriodOverall}
	regionL7D     = domain.WeightKey{Level: domain.LevelRegion, Period: domain.PeriodL7D}
	districtL15D  = domain.WeightKey{Level: domain.LevelDistrict, Period: domain.PeriodL15D}
)

// newSurveyWorkbook builds a sheet with a blank first row, a header row and
// the given data rows.
func newSurveyWorkbook(t *testing.T, sheet string, rows [][]interface{}) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { f.Close() })
	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}

	header := []interface{}{
		string(domain.FieldRespondentID),
		string(domain.FieldSurveyDate),
		string(domain.FieldVote),
		string(domain.FieldPriorVote),
		secondChoiceHeader,
		reasonHeaderA,
		reasonHeaderB,
		string(domain.FieldGender),
		string(domain.FieldAge),
		string(domain.FieldRegion),
		"Weight - with Vote Share - AE 2021 - Region",
		"Weight - with Vote Share - AE 2021 - Region L7D",
		"Weight Voteshare L15D District Level",
		string(domain.FieldPreferredCM),
		"Interviewer Notes",
	}
	require.NoError(t, f.SetSheetRow(sheet, "A2", &header))
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+3)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}
	return f
}

func TestParseSurveyWorkbook(t *testing.T) {
	surveyDay := time.Date(2025, 10, 30, 0, 0, 0, 0, time.UTC)
	f := newSurveyWorkbook(t, "Responses", [][]interface{}{
		{"R-1", surveyDay, 1, 2, 3, 1, 0, 2, 34, "North", 1.5, 0.8, 1.1, 1, "ok"},
		{"R-2", "31/10/2025", "2", "", "", "", 1, "1", "61", "South", "0.5", "", "", "", ""},
		{"R-3", "not a date", 1, 1, 1, 1, 1, 1, 20, "North", 1, 1, 1, 1, ""},
		{"", "2025-10-29", "x", 55, 4, "", "", 2, "", "North", "bad", 2, "", 3, ""},
	})

	res, err := ParseSurveyWorkbook(context.Background(), f, "Responses")
	require.NoError(t, err)

	assert.Equal(t, "Responses", res.Sheet)
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Dataset.Records, 3)

	schema := res.Dataset.Schema
	assert.True(t, schema.Has(domain.FieldVote))
	assert.True(t, schema.Has(domain.FieldSecondChoice))
	assert.True(t, schema.Has(domain.FieldSecondChoiceReason))
	assert.True(t, schema.Has(domain.FieldPreferredCM))
	assert.False(t, schema.Has("Interviewer Notes"))
	assert.True(t, schema.HasWeight(regionOverall))
	assert.True(t, schema.HasWeight(regionL7D))
	assert.True(t, schema.HasWeight(districtL15D))

	r1 := res.Dataset.Records[0]
	assert.Equal(t, "R-1", r1.RespondentID)
	assert.Equal(t, surveyDay, r1.SurveyDate)
	require.NotNil(t, r1.VoteCode)
	assert.Equal(t, 1, *r1.VoteCode)
	require.NotNil(t, r1.SecondChoiceCode)
	assert.Equal(t, 3, *r1.SecondChoiceCode)
	assert.Equal(t, []bool{true, false}, r1.SecondChoiceReasons)
	require.NotNil(t, r1.Age)
	assert.Equal(t, 34.0, *r1.Age)
	assert.Equal(t, "North", r1.Region)
	assert.Equal(t, map[domain.WeightKey]float64{regionOverall: 1.5, regionL7D: 0.8, districtL15D: 1.1}, r1.Weights)
	require.NotNil(t, r1.Code(domain.FieldPreferredCM))
	assert.Equal(t, 1, *r1.Code(domain.FieldPreferredCM))

	r2 := res.Dataset.Records[1]
	assert.Equal(t, time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC), r2.SurveyDate)
	assert.Nil(t, r2.PriorVoteCode)
	assert.Nil(t, r2.SecondChoiceCode)
	assert.Equal(t, []bool{false, true}, r2.SecondChoiceReasons)
	assert.Equal(t, map[domain.WeightKey]float64{regionOverall: 0.5}, r2.Weights)
	assert.Nil(t, r2.Code(domain.FieldPreferredCM))

	// a row without an ID gets its sheet row; bad numbers become nulls
	r4 := res.Dataset.Records[2]
	assert.Equal(t, "row-6", r4.RespondentID)
	assert.Nil(t, r4.VoteCode)
	assert.Nil(t, r4.Age)
	assert.NotContains(t, r4.Weights, regionOverall)
	assert.Equal(t, 2.0, r4.Weights[regionL7D])
}

func TestParseSurveyWorkbookDemographics(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{
		{"Survey Date", string(domain.FieldVote), "Residential locality type", "21. Which social category do you belong to?", "Weight - with Vote Share - AE 2021 - Region"},
		{"2025-10-30", 1, 1, 3, 1},
		{"2025-10-30", 2, 2, 1, 1},
		{"2025-10-30", 1, 2, 2, 2},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef, &row))
	}

	res, err := ParseSurveyWorkbook(context.Background(), f, "")
	require.NoError(t, err)
	ds := res.Dataset
	assert.True(t, ds.Schema.Has(domain.FieldLocality))
	assert.True(t, ds.Schema.Has(domain.FieldSocialCategory))
	require.Len(t, ds.Records, 3)
	require.NotNil(t, ds.Records[0].Locality)
	assert.Equal(t, voteshare.LocalityUrban, *ds.Records[0].Locality)

	calc := voteshare.NewCalculator(voteshare.PolicyStrict, nil)
	ref := time.Date(2025, 10, 30, 0, 0, 0, 0, time.UTC)
	out, err := calc.Breakdown(context.Background(), ds, voteshare.Query{ReferenceDate: ref}, voteshare.DimLocality)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "urban", out[0].Value)
	assert.Equal(t, 1, out[0].Result.SampleSize)
	assert.InDelta(t, 100.0, out[0].Result.Share(voteshare.AITC), 1e-9)
	assert.Equal(t, "rural", out[1].Value)
	assert.Equal(t, 2, out[1].Result.SampleSize)
	assert.InDelta(t, 200.0/3, out[1].Result.Share(voteshare.AITC), 1e-9)
}

func TestParseSurveyWorkbookSheetDiscovery(t *testing.T) {
	f := newSurveyWorkbook(t, "Responses", [][]interface{}{
		{"R-1", "2025-10-30", 1},
	})
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "cover page"))

	res, err := ParseSurveyWorkbook(context.Background(), f, "")
	require.NoError(t, err)
	assert.Equal(t, "Responses", res.Sheet)
	assert.Len(t, res.Dataset.Records, 1)

	_, err = ParseSurveyWorkbook(context.Background(), f, "Missing")
	var appErr *apierrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apierrors.ErrTypeNotFound, appErr.Type)
}

func TestParseSurveyWorkbookWithoutDateColumn(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Response ID", string(domain.FieldVote)}))

	_, err := ParseSurveyWorkbook(context.Background(), f, "Sheet1")
	var appErr *apierrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apierrors.ErrTypeSchema, appErr.Type)
}

func TestParseSurveyFile(t *testing.T) {
	f := newSurveyWorkbook(t, "Sheet1", [][]interface{}{
		{"R-1", "2025-10-30", 1, "", "", "", "", "", "", "", 1},
		{"R-2", "2025-10-31", 2, "", "", "", "", "", "", "", 1},
	})
	path := filepath.Join(t.TempDir(), "survey.xlsx")
	require.NoError(t, f.SaveAs(path))

	res, err := ParseSurveyFile(context.Background(), path, "")
	require.NoError(t, err)
	assert.Len(t, res.Dataset.Records, 2)

	first, last := res.Dataset.DateRange()
	assert.Equal(t, "2025-10-30", first.Format("2006-01-02"))
	assert.Equal(t, "2025-10-31", last.Format("2006-01-02"))

	_, err = ParseSurveyFile(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"), "")
	var appErr *apierrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apierrors.ErrTypeParsing, appErr.Type)
}

func TestParseWeightHeader(t *testing.T) {
	tests := []struct {
		header string
		want   domain.WeightKey
		ok     bool
	}{
		{"Weight - with Vote Share - AE 2021 - Region", regionOverall, true},
		{"Weight - with Vote Share - AE 2021 - Region L7D", regionL7D, true},
		{" Weight Voteshare L15D District Level ", districtL15D, true},
		{"Weight Voteshare Overall AC Level", domain.WeightKey{Level: domain.LevelAC, Period: domain.PeriodOverall}, true},
		{"Weight - with Vote Share - AE 2021 - State", domain.WeightKey{}, false},
		{"Weight Voteshare L30D Region Level", domain.WeightKey{}, false},
		{"Weight", domain.WeightKey{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := ParseWeightHeader(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSecondChoiceDiscovery(t *testing.T) {
	loose := "9. Which other party do you like?"
	cm := mapColumns([]string{string(domain.FieldSurveyDate), "19. Which party ran the best campaign?", loose})
	assert.Equal(t, 1, cm.secondChoice, "loose match picks the leftmost candidate")
	assert.NotContains(t, cm.answers, domain.Field("19. Which party ran the best campaign?"))
	assert.Contains(t, cm.answers, domain.Field(loose))

	cm = mapColumns([]string{loose, secondChoiceHeader})
	assert.Equal(t, 1, cm.secondChoice, "full wording wins over a loose match")
}

func TestParseSurveyDate(t *testing.T) {
	want := time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		raw string
		ok  bool
	}{
		{"45961", true},
		{"45961.75", true},
		{"2025-10-31", true},
		{"2025-10-31T18:30:00+05:30", true},
		{"2025-10-31 09:15:00", true},
		{"31/10/2025", true},
		{"10/31/2025", true},
		{"31-10-2025", true},
		{"", false},
		{"  ", false},
		{"soon", false},
		{"12", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseSurveyDate(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, want, got)
			}
		})
	}
}
