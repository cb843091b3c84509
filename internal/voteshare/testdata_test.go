package voteshare

import (
	"time"

	"opinecli/pkg/contracts/domain"
)

var (
	regionOverall = domain.WeightKey{Level: domain.LevelRegion, Period: domain.PeriodOverall}
	regionL7D     = domain.WeightKey{Level: domain.LevelRegion, Period: domain.PeriodL7D}
	districtAll   = domain.WeightKey{Level: domain.LevelDistrict, Period: domain.PeriodOverall}
)

func code(n int) *int {
	return &n
}

func age(n float64) *float64 {
	return &n
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// testSchema has every party field and the region weights.
func testSchema() domain.Schema {
	return domain.NewSchema(
		[]domain.Field{
			domain.FieldSurveyDate,
			domain.FieldVote,
			domain.FieldPriorVote,
			domain.FieldSecondChoice,
			domain.FieldGender,
			domain.FieldReligion,
			domain.FieldSocialCategory,
			domain.FieldLocality,
			domain.FieldAge,
			domain.FieldRegion,
			domain.FieldExpectedWinner,
		},
		[]domain.WeightKey{regionOverall, regionL7D},
	)
}

type recOpt func(*domain.SurveyRecord)

func withWeight(k domain.WeightKey, w float64) recOpt {
	return func(r *domain.SurveyRecord) {
		if r.Weights == nil {
			r.Weights = make(map[domain.WeightKey]float64)
		}
		r.Weights[k] = w
	}
}

func withoutWeight(k domain.WeightKey) recOpt {
	return func(r *domain.SurveyRecord) { delete(r.Weights, k) }
}

func withPrior(c int) recOpt {
	return func(r *domain.SurveyRecord) { r.PriorVoteCode = code(c) }
}

func withSecond(c int) recOpt {
	return func(r *domain.SurveyRecord) { r.SecondChoiceCode = code(c) }
}

func withGender(c int) recOpt {
	return func(r *domain.SurveyRecord) { r.Gender = code(c) }
}

func withAge(a float64) recOpt {
	return func(r *domain.SurveyRecord) { r.Age = age(a) }
}

func withRegion(name string) recOpt {
	return func(r *domain.SurveyRecord) { r.Region = name }
}

func withAnswer(f domain.Field, c int) recOpt {
	return func(r *domain.SurveyRecord) {
		if r.Answers == nil {
			r.Answers = make(map[domain.Field]*int)
		}
		r.Answers[f] = code(c)
	}
}

// rec builds a record on day with a current-vote answer (nil for none) and
// an overall region weight.
func rec(day string, vote *int, weight float64, opts ...recOpt) domain.SurveyRecord {
	r := domain.SurveyRecord{
		SurveyDate: date(day),
		VoteCode:   vote,
		Weights:    map[domain.WeightKey]float64{regionOverall: weight},
	}
	for _, o := range opts {
		o(&r)
	}
	return r
}

func dataset(records ...domain.SurveyRecord) domain.Dataset {
	return domain.Dataset{Schema: testSchema(), Records: records}
}
