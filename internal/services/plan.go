package services

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"opinecli/internal/validation"
	"opinecli/internal/voteshare"
	"opinecli/pkg/contracts/domain"
)

// SectionKind selects which calculator operation a section runs.
type SectionKind string

const (
	SectionShare        SectionKind = "share"
	SectionBreakdown    SectionKind = "breakdown"
	SectionTrend        SectionKind = "trend"
	SectionTransition   SectionKind = "transition"
	SectionDistribution SectionKind = "distribution"
)

// Section is one table of a report.
//
// Field, RowField, ColField and Question take either a full column header
// or one of the short aliases understood by ResolveField. An empty Period
// is derived from the window: 7 and 15 day moving averages use the L7D and
// L15D weights, everything else the overall weight.
type Section struct {
	ID        string                 `yaml:"id" json:"id" validate:"required,filename"`
	Title     string                 `yaml:"title" json:"title" validate:"required"`
	Kind      SectionKind            `yaml:"kind" json:"kind" validate:"required,oneof=share breakdown trend transition distribution"`
	Level     domain.Level           `yaml:"level,omitempty" json:"level,omitempty" validate:"omitempty,level"`
	Period    domain.Period          `yaml:"period,omitempty" json:"period,omitempty" validate:"omitempty,period"`
	Windows   []voteshare.WindowSpec `yaml:"windows,omitempty" json:"windows,omitempty" validate:"omitempty,dive"`
	Window    *voteshare.WindowSpec  `yaml:"window,omitempty" json:"window,omitempty" validate:"omitempty"`
	Filter    voteshare.Filter       `yaml:"filter,omitempty" json:"filter,omitempty"`
	Dimension voteshare.Dimension    `yaml:"dimension,omitempty" json:"dimension,omitempty" validate:"omitempty,oneof=gender locality religion social_category age region district ac"`
	Field     string                 `yaml:"field,omitempty" json:"field,omitempty"`
	RowField  string                 `yaml:"row_field,omitempty" json:"row_field,omitempty"`
	ColField  string                 `yaml:"col_field,omitempty" json:"col_field,omitempty"`
	Mode      voteshare.CrossTabMode `yaml:"mode,omitempty" json:"mode,omitempty" validate:"omitempty,oneof=gains_losses transferability"`
	Points    int                    `yaml:"points,omitempty" json:"points,omitempty" validate:"omitempty,min=1,max=366"`
	Question  string                 `yaml:"question,omitempty" json:"question,omitempty"`
	Labels    map[int]string         `yaml:"labels,omitempty" json:"labels,omitempty"`
	Raw       bool                   `yaml:"raw,omitempty" json:"raw,omitempty"`
	// Optional sections are skipped, not failed, when the input lacks a
	// column they need.
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// ReportPlan is the ordered list of sections one report run produces.
type ReportPlan struct {
	Name          string    `yaml:"name" json:"name" validate:"required"`
	ReferenceDate string    `yaml:"reference_date,omitempty" json:"reference_date,omitempty" validate:"omitempty,isodate"`
	SkipDates     []string  `yaml:"skip_dates,omitempty" json:"skip_dates,omitempty" validate:"omitempty,dive,isodate"`
	Sections      []Section `yaml:"sections" json:"sections" validate:"required,min=1,dive"`
}

var fieldAliases = map[string]domain.Field{
	"vote":              domain.FieldVote,
	"prior_vote":        domain.FieldPriorVote,
	"second_choice":     domain.FieldSecondChoice,
	"preferred_cm":      domain.FieldPreferredCM,
	"government_rating": domain.FieldGovernmentRating,
	"expected_winner":   domain.FieldExpectedWinner,
	"gender":            domain.FieldGender,
	"religion":          domain.FieldReligion,
	"social_category":   domain.FieldSocialCategory,
	"locality":          domain.FieldLocality,
}

// ResolveField maps a short alias such as "prior_vote" to its column
// header. Anything else is taken as a header verbatim.
func ResolveField(name string) domain.Field {
	name = strings.TrimSpace(name)
	if f, ok := fieldAliases[strings.ToLower(name)]; ok {
		return f
	}
	return domain.Field(name)
}

// DefaultPeriod returns the weight period that matches a window.
func DefaultPeriod(w voteshare.WindowSpec) domain.Period {
	if w.Kind == voteshare.KindMovingAverage {
		switch w.Days {
		case voteshare.DMA7:
			return domain.PeriodL7D
		case voteshare.DMA15:
			return domain.PeriodL15D
		}
	}
	return domain.PeriodOverall
}

// WindowLabel renders a window the way report rows name it.
func WindowLabel(w voteshare.WindowSpec) string {
	if w.Kind == voteshare.KindMovingAverage {
		return fmt.Sprintf("%d DMA", w.Days)
	}
	return "Overall"
}

// LoadPlan reads and validates a YAML report plan.
func LoadPlan(path string) (*ReportPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report plan: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("report plan %s: %w", path, err)
	}
	return plan, nil
}

// ParsePlan decodes a YAML plan, rejecting unknown keys, and validates it.
func ParsePlan(data []byte) (*ReportPlan, error) {
	var plan ReportPlan
	if err := yaml.UnmarshalStrict(data, &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks struct rules and the per-kind requirements of every
// section.
func (p *ReportPlan) Validate() error {
	if err := validation.NewValidator().Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fe.Namespace()+": "+validation.FormatFieldError(fe))
		}
		return fmt.Errorf("%w: %s", ErrInvalidPlan, strings.Join(msgs, "; "))
	}

	seen := make(map[string]bool, len(p.Sections))
	for i := range p.Sections {
		s := &p.Sections[i]
		if seen[s.ID] {
			return fmt.Errorf("%w: %w %q", ErrInvalidPlan, ErrDuplicateID, s.ID)
		}
		seen[s.ID] = true
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: section %q: %w", ErrInvalidPlan, s.ID, err)
		}
	}
	return nil
}

func (s *Section) validate() error {
	if len(s.Labels) > 0 && s.Kind != SectionDistribution {
		return ErrUnknownLabels
	}
	switch s.Kind {
	case SectionBreakdown:
		if s.Dimension == "" {
			return errors.New("breakdown needs a dimension")
		}
	case SectionTrend:
		if s.Points < 1 {
			return errors.New("trend needs at least one point")
		}
	case SectionTransition:
		if strings.TrimSpace(s.RowField) == "" || strings.TrimSpace(s.ColField) == "" {
			return errors.New("transition needs row_field and col_field")
		}
	case SectionDistribution:
		if strings.TrimSpace(s.Question) == "" {
			return errors.New("distribution needs a question")
		}
	}
	if len(s.Windows) > 0 && s.Kind != SectionShare {
		return errors.New("windows only apply to share sections; use window")
	}
	return nil
}

// window returns the single window of non-share sections.
func (s *Section) window() voteshare.WindowSpec {
	if s.Window == nil {
		return voteshare.Overall()
	}
	return *s.Window
}

// query builds the calculator query for one window of the section.
func (s *Section) query(ref time.Time, w voteshare.WindowSpec) voteshare.Query {
	period := s.Period
	if period == "" {
		period = DefaultPeriod(w)
	}
	return voteshare.Query{
		Label:         s.ID,
		ReferenceDate: ref,
		Level:         s.Level,
		Period:        period,
		Window:        w,
		Filter:        s.Filter,
		Field:         ResolveField(s.Field),
		Raw:           s.Raw,
	}
}

// Reference parses ReferenceDate; empty yields the zero time.
func (p *ReportPlan) Reference() (time.Time, error) {
	if p.ReferenceDate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, p.ReferenceDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: reference date %q: %v", ErrInvalidPlan, p.ReferenceDate, err)
	}
	return t, nil
}

// Skip parses SkipDates.
func (p *ReportPlan) Skip() ([]time.Time, error) {
	out := make([]time.Time, 0, len(p.SkipDates))
	for _, s := range p.SkipDates {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, fmt.Errorf("%w: skip date %q: %v", ErrInvalidPlan, s, err)
		}
		out = append(out, t)
	}
	return out, nil
}

var partyLabels = map[int]string{
	voteshare.CodeAITC: "AITC",
	voteshare.CodeBJP:  "BJP",
	voteshare.CodeINC:  "INC",
	voteshare.CodeLEFT: "LEFT",
}

func dma(days int) *voteshare.WindowSpec {
	w := voteshare.MovingAverage(days)
	return &w
}

// DefaultPlan is the headline report: overall and moving average shares,
// demographic and geographic breakdowns, the two trend series, vote
// transition matrices and the single-choice questions.
func DefaultPlan() *ReportPlan {
	// Breakdowns are optional: an export without the dimension's column
	// skips the table.
	breakdown := func(id, title string, dim voteshare.Dimension, level domain.Level) Section {
		return Section{ID: id, Title: title, Kind: SectionBreakdown, Dimension: dim, Level: level, Optional: true}
	}
	return &ReportPlan{
		Name: "headline",
		Sections: []Section{
			{
				ID:    "vote_share",
				Title: "Vote share: overall and moving averages",
				Kind:  SectionShare,
				Windows: []voteshare.WindowSpec{
					voteshare.Overall(),
					voteshare.MovingAverage(voteshare.DMA7),
					voteshare.MovingAverage(voteshare.DMA15),
					voteshare.MovingAverage(voteshare.DMA30),
				},
			},
			breakdown("by_gender", "Vote share by gender", voteshare.DimGender, ""),
			breakdown("by_locality", "Vote share by locality", voteshare.DimLocality, ""),
			breakdown("by_religion", "Vote share by religion", voteshare.DimReligion, ""),
			breakdown("by_social_category", "Vote share by social category", voteshare.DimSocialCategory, ""),
			breakdown("by_age", "Vote share by age band", voteshare.DimAge, ""),
			{
				ID:     "trend_overall",
				Title:  "Overall vote share trend",
				Kind:   SectionTrend,
				Points: 16,
			},
			{
				ID:     "trend_7dma",
				Title:  "7 DMA vote share trend",
				Kind:   SectionTrend,
				Points: 13,
				Window: dma(voteshare.DMA7),
			},
			{
				ID:       "gains_losses",
				Title:    "Gains and losses since 2021",
				Kind:     SectionTransition,
				RowField: "prior_vote",
				ColField: "vote",
				Mode:     voteshare.ModeGainsLosses,
			},
			{
				ID:       "transferability",
				Title:    "Vote transferability to second choice",
				Kind:     SectionTransition,
				RowField: "vote",
				ColField: "second_choice",
				Mode:     voteshare.ModeTransferability,
				Optional: true,
			},
			breakdown("by_region", "Vote share by region", voteshare.DimRegion, domain.LevelRegion),
			breakdown("by_district", "Vote share by district", voteshare.DimDistrict, domain.LevelDistrict),
			{
				ID:       "preferred_cm",
				Title:    "Preferred Chief Minister",
				Kind:     SectionDistribution,
				Question: "preferred_cm",
				Optional: true,
			},
			{
				ID:       "government_rating",
				Title:    "State government rating",
				Kind:     SectionDistribution,
				Question: "government_rating",
				Optional: true,
			},
			{
				ID:       "expected_winner",
				Title:    "Expected winner",
				Kind:     SectionDistribution,
				Question: "expected_winner",
				Labels:   partyLabels,
				Optional: true,
			},
		},
	}
}
