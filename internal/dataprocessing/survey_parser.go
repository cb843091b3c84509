package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	apierrors "opinecli/internal/errors"
	"opinecli/internal/infrastructure"
	"opinecli/internal/voteshare"
	"opinecli/pkg/contracts/domain"
)

// ParseResult is a parsed survey sheet with ingestion statistics.
type ParseResult struct {
	Dataset domain.Dataset
	Sheet   string
	// Rows counts non-blank data rows read; Skipped counts the ones dropped.
	Rows    int
	Skipped int
}

// columnMap records where each recognised header sits in the header row.
type columnMap struct {
	fields       map[domain.Field]int
	weights      map[domain.WeightKey]int
	reasons      []int
	answers      map[domain.Field]int
	secondChoice int
}

var (
	// "Weight - with Vote Share - AE 2021 - District L7D"
	weightExactPattern = regexp.MustCompile(`^Weight - with Vote Share - AE 2021 - (Region|District|AC)(?: (L7D|L15D))?$`)
	// "Weight Voteshare L7D District Level"
	weightPattern = regexp.MustCompile(`^Weight Voteshare (Overall|L7D|L15D) (Region|District|AC) Level$`)
	// numbered single-choice questions, e.g. "17. Who do you think..."
	questionPattern = regexp.MustCompile(`^\d+\.\s`)
)

// knownFields are matched against headers verbatim.
var knownFields = []domain.Field{
	domain.FieldRespondentID,
	domain.FieldSurveyDate,
	domain.FieldVote,
	domain.FieldPriorVote,
	domain.FieldGender,
	domain.FieldAge,
	domain.FieldReligion,
	domain.FieldSocialCategory,
	domain.FieldLocality,
	domain.FieldRegion,
	domain.FieldDistrict,
	domain.FieldAC,
}

// dateLayouts are tried in order for text dates. Day-first wins over
// month-first when both parse.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2/1/2006",
}

// ParseWeightHeader recognises both weight header conventions.
func ParseWeightHeader(header string) (domain.WeightKey, bool) {
	header = strings.TrimSpace(header)
	if m := weightExactPattern.FindStringSubmatch(header); m != nil {
		period := domain.PeriodOverall
		if m[2] != "" {
			period = domain.Period(m[2])
		}
		return domain.WeightKey{Level: domain.Level(m[1]), Period: period}, true
	}
	if m := weightPattern.FindStringSubmatch(header); m != nil {
		return domain.WeightKey{Level: domain.Level(m[2]), Period: domain.Period(m[1])}, true
	}
	return domain.WeightKey{}, false
}

// isSecondChoiceHeader matches the second-choice question. strict requires
// the full wording; the loose form is tried only when no header is strict.
func isSecondChoiceHeader(header string, strict bool) bool {
	lower := strings.ToLower(header)
	if !strings.Contains(header, "9.") || !strings.Contains(lower, "party") {
		return false
	}
	if strings.HasPrefix(header, string(domain.FieldSecondChoiceReason)) {
		return false
	}
	if !strict {
		return true
	}
	return strings.Contains(lower, "assume") && strings.Contains(lower, "choose")
}

// mapColumns classifies the header row.
func mapColumns(header []string) columnMap {
	cm := columnMap{
		fields:       make(map[domain.Field]int),
		weights:      make(map[domain.WeightKey]int),
		answers:      make(map[domain.Field]int),
		secondChoice: -1,
	}

	known := make(map[string]domain.Field, len(knownFields))
	for _, f := range knownFields {
		known[string(f)] = f
	}

	for i, raw := range header {
		h := strings.TrimSpace(raw)
		if h == "" {
			continue
		}
		if f, ok := known[h]; ok {
			if _, dup := cm.fields[f]; !dup {
				cm.fields[f] = i
			}
			continue
		}
		if key, ok := ParseWeightHeader(h); ok {
			if _, dup := cm.weights[key]; !dup {
				cm.weights[key] = i
			}
			continue
		}
		if strings.HasPrefix(h, string(domain.FieldSecondChoiceReason)) {
			cm.reasons = append(cm.reasons, i)
			continue
		}
		if cm.secondChoice < 0 && isSecondChoiceHeader(h, true) {
			cm.secondChoice = i
			continue
		}
		if questionPattern.MatchString(h) {
			if _, dup := cm.answers[domain.Field(h)]; !dup {
				cm.answers[domain.Field(h)] = i
			}
		}
	}

	if cm.secondChoice < 0 {
		var loose domain.Field
		for f, i := range cm.answers {
			if isSecondChoiceHeader(string(f), false) && (cm.secondChoice < 0 || i < cm.secondChoice) {
				cm.secondChoice, loose = i, f
			}
		}
		delete(cm.answers, loose)
	}
	return cm
}

// schema lists the columns the mapping found.
func (cm columnMap) schema() domain.Schema {
	fields := make([]domain.Field, 0, len(cm.fields)+len(cm.answers)+2)
	for f := range cm.fields {
		fields = append(fields, f)
	}
	for f := range cm.answers {
		fields = append(fields, f)
	}
	if cm.secondChoice >= 0 {
		fields = append(fields, domain.FieldSecondChoice)
	}
	if len(cm.reasons) > 0 {
		fields = append(fields, domain.FieldSecondChoiceReason)
	}
	weights := make([]domain.WeightKey, 0, len(cm.weights))
	for k := range cm.weights {
		weights = append(weights, k)
	}
	return domain.NewSchema(fields, weights)
}

// ParseSurveyFile opens a workbook and parses sheet. An empty sheet name
// selects the first sheet carrying a survey date header.
func ParseSurveyFile(ctx context.Context, path, sheet string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apierrors.NewParsingError("failed to open survey workbook", err).WithContext("path", path)
	}
	defer f.Close()

	return ParseSurveyWorkbook(ctx, f, sheet)
}

// ParseSurveyWorkbook parses one sheet of an open workbook.
func ParseSurveyWorkbook(ctx context.Context, f *excelize.File, sheet string) (*ParseResult, error) {
	logger := infrastructure.WithComponent(infrastructure.LoggerFromContext(ctx), "survey_parser")

	if sheet == "" {
		var err error
		if sheet, err = findSurveySheet(f); err != nil {
			return nil, err
		}
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("sheet %q", sheet))
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, apierrors.NewParsingError("failed to read sheet", err).WithContext("sheet", sheet)
	}
	defer rows.Close()

	result := &ParseResult{Sheet: sheet}
	var cm *columnMap
	rowNum := 0

	for rows.Next() {
		rowNum++
		if rowNum%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, apierrors.NewParsingError("failed to read row", err).WithContext("row", rowNum)
		}
		if blank(cells) {
			continue
		}

		if cm == nil {
			m := mapColumns(cells)
			if _, ok := m.fields[domain.FieldSurveyDate]; !ok {
				return nil, apierrors.NewSchemaError("survey date column not found", nil).
					WithContext("sheet", sheet).
					WithContext("header_row", rowNum)
			}
			cm = &m
			result.Dataset.Schema = m.schema()
			logger.DebugContext(ctx, "header row mapped",
				slog.Int("row", rowNum),
				slog.Int("fields", len(m.fields)),
				slog.Int("weights", len(m.weights)),
				slog.Int("answers", len(m.answers)),
				slog.Bool("second_choice", m.secondChoice >= 0))
			continue
		}

		result.Rows++
		rec, ok := cm.record(cells, rowNum)
		if !ok {
			result.Skipped++
			logger.DebugContext(ctx, "row dropped for unparseable survey date",
				slog.Int("row", rowNum),
				slog.String("value", cell(cells, cm.fields[domain.FieldSurveyDate])))
			continue
		}
		result.Dataset.Records = append(result.Dataset.Records, rec)
	}
	if err := rows.Error(); err != nil {
		return nil, apierrors.NewParsingError("failed to iterate sheet", err).WithContext("sheet", sheet)
	}
	if cm == nil {
		return nil, apierrors.NewSchemaError("sheet has no header row", nil).WithContext("sheet", sheet)
	}

	first, last := result.Dataset.DateRange()
	attrs := []any{
		slog.String("sheet", sheet),
		slog.Int("records", len(result.Dataset.Records)),
		slog.Int("skipped", result.Skipped),
	}
	if !last.IsZero() {
		attrs = append(attrs,
			slog.String("first_date", first.Format("2006-01-02")),
			slog.String("last_date", last.Format("2006-01-02")))
	}
	if result.Skipped > 0 {
		logger.WarnContext(ctx, "survey rows dropped during ingestion", attrs...)
	} else {
		logger.InfoContext(ctx, "survey sheet parsed", attrs...)
	}
	return result, nil
}

// findSurveySheet returns the first sheet whose first non-blank row holds
// the survey date header.
func findSurveySheet(f *excelize.File) (string, error) {
	sheets := f.GetSheetList()
	for _, name := range sheets {
		rows, err := f.Rows(name)
		if err != nil {
			continue
		}
		for rows.Next() {
			cells, err := rows.Columns()
			if err != nil {
				break
			}
			if blank(cells) {
				continue
			}
			for _, c := range cells {
				if strings.TrimSpace(c) == string(domain.FieldSurveyDate) {
					rows.Close()
					return name, nil
				}
			}
			break
		}
		rows.Close()
	}
	if len(sheets) == 0 {
		return "", apierrors.NewParsingError("workbook has no sheets", nil)
	}
	return "", apierrors.NewSchemaError("no sheet has a survey date header", nil).WithContext("sheets", sheets)
}

// record converts one data row. It reports false when the survey date
// cannot be parsed.
func (cm *columnMap) record(cells []string, rowNum int) (domain.SurveyRecord, bool) {
	date, ok := ParseSurveyDate(cell(cells, cm.fields[domain.FieldSurveyDate]))
	if !ok {
		return domain.SurveyRecord{}, false
	}

	rec := domain.SurveyRecord{
		SurveyDate: date,
		Weights:    make(map[domain.WeightKey]float64, len(cm.weights)),
	}

	if i, ok := cm.fields[domain.FieldRespondentID]; ok {
		rec.RespondentID = strings.TrimSpace(cell(cells, i))
	}
	if rec.RespondentID == "" {
		rec.RespondentID = "row-" + strconv.Itoa(rowNum)
	}

	code := func(f domain.Field) *int {
		if i, ok := cm.fields[f]; ok {
			return voteshare.ParseCode(cell(cells, i))
		}
		return nil
	}
	text := func(f domain.Field) string {
		if i, ok := cm.fields[f]; ok {
			return strings.TrimSpace(cell(cells, i))
		}
		return ""
	}

	rec.VoteCode = code(domain.FieldVote)
	rec.PriorVoteCode = code(domain.FieldPriorVote)
	rec.Gender = code(domain.FieldGender)
	rec.Religion = code(domain.FieldReligion)
	rec.SocialCategory = code(domain.FieldSocialCategory)
	rec.Locality = code(domain.FieldLocality)
	rec.Region = text(domain.FieldRegion)
	rec.District = text(domain.FieldDistrict)
	rec.AC = text(domain.FieldAC)

	if i, ok := cm.fields[domain.FieldAge]; ok {
		rec.Age = parseNumber(cell(cells, i))
	}
	if cm.secondChoice >= 0 {
		rec.SecondChoiceCode = voteshare.ParseCode(cell(cells, cm.secondChoice))
	}
	if len(cm.reasons) > 0 {
		rec.SecondChoiceReasons = make([]bool, len(cm.reasons))
		for j, i := range cm.reasons {
			if v := parseNumber(cell(cells, i)); v != nil && *v == 1 {
				rec.SecondChoiceReasons[j] = true
			}
		}
	}

	for key, i := range cm.weights {
		if w := parseNumber(cell(cells, i)); w != nil {
			rec.Weights[key] = *w
		}
	}

	if len(cm.answers) > 0 {
		rec.Answers = make(map[domain.Field]*int, len(cm.answers))
		for f, i := range cm.answers {
			if c := voteshare.ParseCode(cell(cells, i)); c != nil {
				rec.Answers[f] = c
			}
		}
	}
	return rec, true
}

// ParseSurveyDate parses an Excel serial or a text date, truncated to the
// calendar day in UTC.
func ParseSurveyDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		// serials before 1900-03-01 are ambiguous and never survey dates
		if serial < 61 || math.IsNaN(serial) || math.IsInf(serial, 0) {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return voteshare.Day(t), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return voteshare.Day(t), true
		}
	}
	return time.Time{}, false
}

// parseNumber returns nil for blank or non-numeric text.
func parseNumber(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
