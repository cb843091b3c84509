package services

import "errors"

// Report service errors
var (
	// Plan errors
	ErrInvalidPlan   = errors.New("invalid report plan")
	ErrDuplicateID   = errors.New("duplicate section id")
	ErrUnknownField  = errors.New("unknown question field")
	ErrUnknownLabels = errors.New("labels only apply to distribution sections")

	// Run errors
	ErrEmptyDataset    = errors.New("dataset has no dated records")
	ErrSectionFailed   = errors.New("report section failed")
	ErrDatasetNotReady = errors.New("survey dataset not loaded")
)
