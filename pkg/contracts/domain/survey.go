package domain

import (
	"fmt"
	"time"
)

// Field is a questionnaire column header. The header strings are the schema
// contract with the ingestion layer and must match the survey export verbatim.
type Field string

const (
	FieldRespondentID       Field = "Response ID"
	FieldSurveyDate         Field = "Survey Date"
	FieldVote               Field = "8. If assembly elections (MLA) were to be held tomorrow, then which party would you vote for?"
	FieldPriorVote          Field = "5. Which party did you vote for in the last assembly elections (MLA) in 2021?"
	FieldSecondChoice       Field = "9. Assume that the party you chose does not contest, which party would you choose?"
	FieldSecondChoiceReason Field = "10. Could you tell us the reason for choosing the above party as your second choice?"
	FieldGender             Field = "Gender"
	FieldAge                Field = "Could you please tell me your age in complete years?"
	FieldReligion           Field = "20. Could you please tell me the religion that you belong to?"
	FieldSocialCategory     Field = "21. Which social category do you belong to?"
	FieldLocality           Field = "Residential locality type"
	FieldRegion             Field = "Region Name"
	FieldDistrict           Field = "District Name"
	FieldAC                 Field = "AC Name"

	// Single-choice questions outside the party legend.
	FieldPreferredCM      Field = "17. Who do you think is the best leader to be the Chief Minister of West Bengal?"
	FieldGovernmentRating Field = "14. How satisfied or dissatisfied are you with the performance of the state govt led by Mamata Banerjee?"
	FieldExpectedWinner   Field = "16. Which party do you think will win the upcoming assembly elections?"
)

// Level is the geographic granularity a weight was raked against.
type Level string

const (
	LevelRegion   Level = "Region"
	LevelDistrict Level = "District"
	LevelAC       Level = "AC"
)

// Levels returns all geographic levels.
func Levels() []Level {
	return []Level{LevelRegion, LevelDistrict, LevelAC}
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelRegion, LevelDistrict, LevelAC:
		return true
	}
	return false
}

// Period is the collection period a weight applies to.
type Period string

const (
	PeriodOverall Period = "Overall"
	PeriodL7D     Period = "L7D"
	PeriodL15D    Period = "L15D"
)

// Periods returns all weight periods.
func Periods() []Period {
	return []Period{PeriodOverall, PeriodL7D, PeriodL15D}
}

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodOverall, PeriodL7D, PeriodL15D:
		return true
	}
	return false
}

// WeightKey identifies one weight column.
type WeightKey struct {
	Level  Level  `json:"level" yaml:"level"`
	Period Period `json:"period" yaml:"period"`
}

// String returns the canonical weight column header.
func (k WeightKey) String() string {
	if k.Period == PeriodOverall {
		return fmt.Sprintf("Weight - with Vote Share - AE 2021 - %s", k.Level)
	}
	return fmt.Sprintf("Weight - with Vote Share - AE 2021 - %s %s", k.Level, k.Period)
}

// SurveyRecord is one respondent's row.
// Nil pointers are missing answers. A weight absent from Weights is null.
type SurveyRecord struct {
	RespondentID        string                `json:"respondent_id"`
	SurveyDate          time.Time             `json:"survey_date"`
	VoteCode            *int                  `json:"vote_code,omitempty"`
	PriorVoteCode       *int                  `json:"prior_vote_code,omitempty"`
	SecondChoiceCode    *int                  `json:"second_choice_code,omitempty"`
	SecondChoiceReasons []bool                `json:"second_choice_reasons,omitempty"`
	Weights             map[WeightKey]float64 `json:"-"`
	Gender              *int                  `json:"gender,omitempty"`
	Age                 *float64              `json:"age,omitempty"`
	Religion            *int                  `json:"religion,omitempty"`
	SocialCategory      *int                  `json:"social_category,omitempty"`
	Locality            *int                  `json:"locality,omitempty"`
	Region              string                `json:"region,omitempty"`
	District            string                `json:"district,omitempty"`
	AC                  string                `json:"ac,omitempty"`
	Answers             map[Field]*int        `json:"answers,omitempty"`
}

// Weight returns the weight stored under key.
func (r *SurveyRecord) Weight(key WeightKey) (float64, bool) {
	w, ok := r.Weights[key]
	return w, ok
}

// Code returns the coded answer for a categorical field.
func (r *SurveyRecord) Code(field Field) *int {
	switch field {
	case FieldVote:
		return r.VoteCode
	case FieldPriorVote:
		return r.PriorVoteCode
	case FieldSecondChoice:
		return r.SecondChoiceCode
	case FieldGender:
		return r.Gender
	case FieldReligion:
		return r.Religion
	case FieldSocialCategory:
		return r.SocialCategory
	case FieldLocality:
		return r.Locality
	}
	return r.Answers[field]
}

// HasSecondChoiceReason reports whether any reason flag is set.
func (r *SurveyRecord) HasSecondChoiceReason() bool {
	for _, set := range r.SecondChoiceReasons {
		if set {
			return true
		}
	}
	return false
}

// Schema lists the fields and weight columns present in a source file.
type Schema struct {
	Fields  map[Field]bool     `json:"fields"`
	Weights map[WeightKey]bool `json:"-"`
}

// NewSchema builds a schema from the given fields and weight keys.
func NewSchema(fields []Field, weights []WeightKey) Schema {
	s := Schema{
		Fields:  make(map[Field]bool, len(fields)),
		Weights: make(map[WeightKey]bool, len(weights)),
	}
	for _, f := range fields {
		s.Fields[f] = true
	}
	for _, w := range weights {
		s.Weights[w] = true
	}
	return s
}

// Has reports whether field is present.
func (s Schema) Has(field Field) bool {
	return s.Fields[field]
}

// HasWeight reports whether the weight column is present.
func (s Schema) HasWeight(key WeightKey) bool {
	return s.Weights[key]
}

// Dataset is an immutable survey snapshot. Filtering produces new datasets
// sharing the schema; records are never mutated.
type Dataset struct {
	Schema  Schema         `json:"schema"`
	Records []SurveyRecord `json:"records"`
}

// Len returns the number of records.
func (d Dataset) Len() int {
	return len(d.Records)
}

// Where returns a new dataset holding the records matching keep.
func (d Dataset) Where(keep func(*SurveyRecord) bool) Dataset {
	out := make([]SurveyRecord, 0, len(d.Records))
	for i := range d.Records {
		if keep(&d.Records[i]) {
			out = append(out, d.Records[i])
		}
	}
	return Dataset{Schema: d.Schema, Records: out}
}

// DateRange returns the earliest and latest survey dates.
func (d Dataset) DateRange() (time.Time, time.Time) {
	var first, last time.Time
	for i := range d.Records {
		dt := d.Records[i].SurveyDate
		if dt.IsZero() {
			continue
		}
		if first.IsZero() || dt.Before(first) {
			first = dt
		}
		if last.IsZero() || dt.After(last) {
			last = dt
		}
	}
	return first, last
}
