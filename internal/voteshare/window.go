package voteshare

import (
	"sort"
	"time"

	"opinecli/pkg/contracts/domain"
)

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Resolve turns a reference date and a window spec into an inclusive date
// range.
//
// Overall ends on the reference date itself. A moving average of N days
// excludes the reference date, whose collection may still be in progress,
// and covers the N days ending the day before it. The range is calendar
// based: days without records still count.
//
// Parameters:
//   - ref: reference date; only its calendar day is used
//   - spec: Overall, or a moving average with a positive day count
//
// Returns: the window; Start is zero for an unbounded (overall) window
func Resolve(ref time.Time, spec WindowSpec) TimeWindow {
	ref = Day(ref)
	if spec.Kind != KindMovingAverage || spec.Days <= 0 {
		return TimeWindow{End: ref}
	}

	// N days ending the day before ref
	end := ref.AddDate(0, 0, -1)
	return TimeWindow{
		Start: end.AddDate(0, 0, -(spec.Days - 1)),
		End:   end,
	}
}

// Contains reports whether date falls inside the window.
func (w TimeWindow) Contains(date time.Time) bool {
	d := Day(date)
	if d.After(w.End) {
		return false
	}
	return w.Unbounded() || !d.Before(w.Start)
}

// Filter returns the records surveyed inside the window.
func (w TimeWindow) Filter(ds domain.Dataset) domain.Dataset {
	return ds.Where(func(r *domain.SurveyRecord) bool {
		return !r.SurveyDate.IsZero() && w.Contains(r.SurveyDate)
	})
}

// SeriesSpec describes a trend: Points dates ending at the reference date,
// each evaluated with Window. Skip lists calendar dates known to be
// anomalous; they are left out and the series extends further back so it
// still holds Points dates.
type SeriesSpec struct {
	Points int         `json:"points" yaml:"points" validate:"min=1,max=366"`
	Window WindowSpec  `json:"window" yaml:"window"`
	Skip   []time.Time `json:"skip,omitempty" yaml:"skip,omitempty"`
}

// SeriesPoint is one trend date with the window it is evaluated over.
type SeriesPoint struct {
	Date   time.Time  `json:"date"`
	Window TimeWindow `json:"window"`
}

// SeriesDates returns points calendar dates ending at ref, ascending, with
// the skip dates removed.
func SeriesDates(ref time.Time, points int, skip []time.Time) []time.Time {
	if points <= 0 {
		return nil
	}
	skipped := make(map[time.Time]bool, len(skip))
	for _, s := range skip {
		skipped[Day(s)] = true
	}

	dates := make([]time.Time, 0, points)
	for d := Day(ref); len(dates) < points; d = d.AddDate(0, 0, -1) {
		if skipped[d] {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Series resolves every point of a trend.
func Series(ref time.Time, spec SeriesSpec) []SeriesPoint {
	dates := SeriesDates(ref, spec.Points, spec.Skip)
	out := make([]SeriesPoint, len(dates))
	for i, d := range dates {
		out[i] = SeriesPoint{Date: d, Window: Resolve(d, spec.Window)}
	}
	return out
}
