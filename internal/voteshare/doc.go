// Package voteshare computes weighted party vote shares from daily survey
// responses.
//
// Every number in a report is produced by the same pipeline:
//
//  1. Window: a reference date and a WindowSpec resolve to an inclusive
//     calendar range (Resolve). Overall ends on the reference date; an
//     N-day moving average covers the N days before it.
//  2. Filter: a demographic Filter narrows the respondents.
//  3. Weights: SelectWeights picks the raking weight for the requested
//     geographic level and period, falling back to the overall weight of the
//     same level when fewer than AvailabilityThreshold of the records carry
//     the period weight.
//  4. Aggregate: each answer is mapped to one of six categories (Categorize)
//     and the weights are summed per category.
//
// # Files
//
//   - types.go: categories, windows, weight columns and results
//   - categorize.go: the party legend
//   - window.go: window resolution and trend series dates
//   - weights.go: availability and weight selection
//   - aggregate.go: weighted shares and code distributions
//   - crosstab.go: gains/losses and transferability matrices
//   - filter.go: demographic filters and breakdown dimensions
//   - calculator.go: the query entry point
//   - audit.go: the audit trail
//
// # Usage
//
//	calc := voteshare.NewCalculator(voteshare.PolicyStrict, logger)
//	calc.SetAuditor(voteshare.NewTrail())
//
//	comp, err := calc.VoteShare(ctx, ds, voteshare.Query{
//	    ReferenceDate: ref,
//	    Level:         domain.LevelRegion,
//	    Period:        domain.PeriodL7D,
//	    Window:        voteshare.MovingAverage(voteshare.DMA7),
//	})
//
// The dataset is treated as read-only. A Calculator may be shared between
// goroutines once configured.
package voteshare
