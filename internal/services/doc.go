// Package services implements the application layer between the vote share
// engine and its surfaces (the report command and the HTTP API).
//
// # Report plans
//
// A ReportPlan is an ordered list of sections, each naming one calculator
// operation: share, breakdown, trend, transition or distribution. Plans
// are YAML documents; DefaultPlan reproduces the headline report.
//
//	name: weekly
//	reference_date: 2025-10-31
//	skip_dates: [2025-10-19]
//	sections:
//	  - id: vote_share
//	    title: Vote share
//	    kind: share
//	    windows: [{kind: overall}, {kind: dma, days: 7}]
//	  - id: gains_losses
//	    title: Gains and losses
//	    kind: transition
//	    row_field: prior_vote
//	    col_field: vote
//
// # Running reports
//
// ReportService.Run executes the sections concurrently over one read-only
// dataset with an errgroup bounded by the configured worker count. Each
// section gets its own Calculator and audit trail; the run's trail is the
// concatenation in plan order, so the audit file is deterministic.
//
// # Datasets
//
// DatasetService owns the survey snapshot the HTTP API queries. It is
// loaded once from a workbook and swapped whole, never mutated.
package services
