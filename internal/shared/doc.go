// Package shared holds helpers used across packages that belong to no
// single layer.
//
// testutil captures slog output so tests can assert on what was logged:
//
//	logger, logs := testutil.NewTestLogger(t)
//	agg := voteshare.NewAggregator(voteshare.PolicyRawFallback, logger)
//	...
//	testutil.AssertLogContains(t, logs, slog.LevelWarn, "aggregating unweighted")
package shared
