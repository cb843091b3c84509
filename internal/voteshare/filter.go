package voteshare

import (
	"fmt"
	"sort"
	"strings"

	"opinecli/pkg/contracts/domain"
)

// Demographic codes from the questionnaire.
const (
	GenderMale   = 1
	GenderFemale = 2

	LocalityUrban = 1
	LocalityRural = 2

	ReligionHindu  = 1
	ReligionMuslim = 2

	SocialGeneral = 1
	SocialOBC     = 2
	SocialSC      = 3
	SocialST      = 4
)

// Dimension is a demographic axis a report can be broken down by.
type Dimension string

const (
	DimGender         Dimension = "gender"
	DimLocality       Dimension = "locality"
	DimReligion       Dimension = "religion"
	DimSocialCategory Dimension = "social_category"
	DimAge            Dimension = "age"
	DimRegion         Dimension = "region"
	DimDistrict       Dimension = "district"
	DimAC             Dimension = "ac"
)

// Field returns the questionnaire column dim is read from.
func (d Dimension) Field() (domain.Field, bool) {
	switch d {
	case DimGender:
		return domain.FieldGender, true
	case DimLocality:
		return domain.FieldLocality, true
	case DimReligion:
		return domain.FieldReligion, true
	case DimSocialCategory:
		return domain.FieldSocialCategory, true
	case DimAge:
		return domain.FieldAge, true
	case DimRegion:
		return domain.FieldRegion, true
	case DimDistrict:
		return domain.FieldDistrict, true
	case DimAC:
		return domain.FieldAC, true
	}
	return "", false
}

// ageBand is an inclusive age range; max < 0 means no upper bound and the
// lower bound becomes exclusive, matching the "50+" convention of the
// report (strictly above 50).
type ageBand struct {
	min, max float64
}

var ageBands = map[string]ageBand{
	"18-25": {18, 25},
	"26-34": {26, 34},
	"26-35": {26, 35},
	"36-50": {36, 50},
	"50+":   {50, -1},
}

func (b ageBand) contains(age float64) bool {
	if b.max < 0 {
		return age > b.min
	}
	return age >= b.min && age <= b.max
}

// Filter selects respondents by demographic attributes. Empty fields do
// not filter. Coded attributes take the lowercase labels listed in their
// validate tags; geographic names match regardless of case.
type Filter struct {
	Gender         string `json:"gender,omitempty" yaml:"gender,omitempty" validate:"omitempty,oneof=male female"`
	Locality       string `json:"locality,omitempty" yaml:"locality,omitempty" validate:"omitempty,oneof=urban rural"`
	Religion       string `json:"religion,omitempty" yaml:"religion,omitempty" validate:"omitempty,oneof=hindu muslim other"`
	SocialCategory string `json:"social_category,omitempty" yaml:"social_category,omitempty" validate:"omitempty,oneof=general obc sc st general_obc"`
	AgeBand        string `json:"age_band,omitempty" yaml:"age_band,omitempty" validate:"omitempty,oneof=18-25 26-34 26-35 36-50 50+"`
	Region         string `json:"region,omitempty" yaml:"region,omitempty"`
	District       string `json:"district,omitempty" yaml:"district,omitempty"`
	AC             string `json:"ac,omitempty" yaml:"ac,omitempty"`
}

// IsZero reports whether the filter selects everyone.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// String renders the active criteria, e.g. "gender=female,age_band=18-25".
func (f Filter) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("gender", f.Gender)
	add("locality", f.Locality)
	add("religion", f.Religion)
	add("social_category", f.SocialCategory)
	add("age_band", f.AgeBand)
	add("region", f.Region)
	add("district", f.District)
	add("ac", f.AC)
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, ",")
}

type predicate func(*domain.SurveyRecord) bool

func codeIn(get func(*domain.SurveyRecord) *int, codes ...int) predicate {
	return func(r *domain.SurveyRecord) bool {
		c := get(r)
		if c == nil {
			return false
		}
		for _, want := range codes {
			if *c == want {
				return true
			}
		}
		return false
	}
}

// Predicate compiles the filter. Unknown labels are an error.
func (f Filter) Predicate() (func(*domain.SurveyRecord) bool, error) {
	var preds []predicate

	switch f.Gender {
	case "":
	case "male":
		preds = append(preds, codeIn(func(r *domain.SurveyRecord) *int { return r.Gender }, GenderMale))
	case "female":
		preds = append(preds, codeIn(func(r *domain.SurveyRecord) *int { return r.Gender }, GenderFemale))
	default:
		return nil, fmt.Errorf("unknown gender %q", f.Gender)
	}

	switch f.Locality {
	case "":
	case "urban":
		preds = append(preds, codeIn(func(r *domain.SurveyRecord) *int { return r.Locality }, LocalityUrban))
	case "rural":
		preds = append(preds, codeIn(func(r *domain.SurveyRecord) *int { return r.Locality }, LocalityRural))
	default:
		return nil, fmt.Errorf("unknown locality %q", f.Locality)
	}

	religion := func(r *domain.SurveyRecord) *int { return r.Religion }
	switch f.Religion {
	case "":
	case "hindu":
		preds = append(preds, codeIn(religion, ReligionHindu))
	case "muslim":
		preds = append(preds, codeIn(religion, ReligionMuslim))
	case "other":
		preds = append(preds, func(r *domain.SurveyRecord) bool {
			return r.Religion != nil && *r.Religion != ReligionHindu && *r.Religion != ReligionMuslim
		})
	default:
		return nil, fmt.Errorf("unknown religion %q", f.Religion)
	}

	social := func(r *domain.SurveyRecord) *int { return r.SocialCategory }
	switch f.SocialCategory {
	case "":
	case "general":
		preds = append(preds, codeIn(social, SocialGeneral))
	case "obc":
		preds = append(preds, codeIn(social, SocialOBC))
	case "sc":
		preds = append(preds, codeIn(social, SocialSC))
	case "st":
		preds = append(preds, codeIn(social, SocialST))
	case "general_obc":
		preds = append(preds, codeIn(social, SocialGeneral, SocialOBC))
	default:
		return nil, fmt.Errorf("unknown social category %q", f.SocialCategory)
	}

	if f.AgeBand != "" {
		band, ok := ageBands[f.AgeBand]
		if !ok {
			return nil, fmt.Errorf("unknown age band %q", f.AgeBand)
		}
		preds = append(preds, func(r *domain.SurveyRecord) bool {
			return r.Age != nil && band.contains(*r.Age)
		})
	}

	if f.Region != "" {
		preds = append(preds, func(r *domain.SurveyRecord) bool { return strings.EqualFold(r.Region, f.Region) })
	}
	if f.District != "" {
		preds = append(preds, func(r *domain.SurveyRecord) bool { return strings.EqualFold(r.District, f.District) })
	}
	if f.AC != "" {
		preds = append(preds, func(r *domain.SurveyRecord) bool { return strings.EqualFold(r.AC, f.AC) })
	}

	return func(r *domain.SurveyRecord) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}, nil
}

// Fields returns the columns the active criteria read, in a fixed order.
func (f Filter) Fields() []domain.Field {
	var out []domain.Field
	add := func(v string, field domain.Field) {
		if v != "" {
			out = append(out, field)
		}
	}
	add(f.Gender, domain.FieldGender)
	add(f.Locality, domain.FieldLocality)
	add(f.Religion, domain.FieldReligion)
	add(f.SocialCategory, domain.FieldSocialCategory)
	add(f.AgeBand, domain.FieldAge)
	add(f.Region, domain.FieldRegion)
	add(f.District, domain.FieldDistrict)
	add(f.AC, domain.FieldAC)
	return out
}

// Apply returns the records matching the filter. A criterion on a column
// the source lacks is a SchemaError; it would otherwise select nobody.
func (f Filter) Apply(ds domain.Dataset) (domain.Dataset, error) {
	if f.IsZero() {
		return ds, nil
	}
	for _, field := range f.Fields() {
		if !ds.Schema.Has(field) {
			return domain.Dataset{}, missingField(field)
		}
	}
	keep, err := f.Predicate()
	if err != nil {
		return domain.Dataset{}, err
	}
	return ds.Where(keep), nil
}

// With returns a copy of f with dim set to value.
func (f Filter) With(dim Dimension, value string) (Filter, error) {
	switch dim {
	case DimGender:
		f.Gender = value
	case DimLocality:
		f.Locality = value
	case DimReligion:
		f.Religion = value
	case DimSocialCategory:
		f.SocialCategory = value
	case DimAge:
		f.AgeBand = value
	case DimRegion:
		f.Region = value
	case DimDistrict:
		f.District = value
	case DimAC:
		f.AC = value
	default:
		return f, fmt.Errorf("unknown dimension %q", dim)
	}
	return f, nil
}

// DimensionValues lists the labels of dim. Coded dimensions have a fixed
// catalogue matching the report tables, so social category is General+OBC,
// SC and ST; geographic ones take the distinct names present in ds.
func DimensionValues(ds domain.Dataset, dim Dimension) ([]string, error) {
	switch dim {
	case DimGender:
		return []string{"male", "female"}, nil
	case DimLocality:
		return []string{"urban", "rural"}, nil
	case DimReligion:
		return []string{"hindu", "muslim", "other"}, nil
	case DimSocialCategory:
		return []string{"general_obc", "sc", "st"}, nil
	case DimAge:
		return []string{"18-25", "26-34", "36-50", "50+"}, nil
	case DimRegion:
		return distinct(ds, func(r *domain.SurveyRecord) string { return r.Region }), nil
	case DimDistrict:
		return distinct(ds, func(r *domain.SurveyRecord) string { return r.District }), nil
	case DimAC:
		return distinct(ds, func(r *domain.SurveyRecord) string { return r.AC }), nil
	}
	return nil, fmt.Errorf("unknown dimension %q", dim)
}

func distinct(ds domain.Dataset, get func(*domain.SurveyRecord) string) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range ds.Records {
		v := strings.TrimSpace(get(&ds.Records[i]))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
