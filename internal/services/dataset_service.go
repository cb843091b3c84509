package services

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"opinecli/internal/dataprocessing"
	apierrors "opinecli/internal/errors"
	"opinecli/internal/files"
	"opinecli/internal/infrastructure"
	"opinecli/internal/validation"
	"opinecli/pkg/contracts/domain"
)

// DatasetStatus describes the loaded survey snapshot.
type DatasetStatus struct {
	Loaded    bool      `json:"loaded"`
	Source    string    `json:"source,omitempty"`
	Sheet     string    `json:"sheet,omitempty"`
	Records   int       `json:"records"`
	Skipped   int       `json:"skipped_rows"`
	Weights   int       `json:"weight_columns"`
	FirstDate string    `json:"first_date,omitempty"`
	LastDate  string    `json:"last_date,omitempty"`
	LoadedAt  time.Time `json:"loaded_at,omitempty"`
}

// DatasetService holds the survey snapshot served to queries. The snapshot
// is replaced whole and never mutated, so readers share it without copying.
type DatasetService struct {
	mu      sync.RWMutex
	ds      domain.Dataset
	status  DatasetStatus
	files   *validation.FileValidator
	finder  *files.Discovery
	metrics *infrastructure.SurveyMetrics
	logger  *slog.Logger
}

// NewDatasetService creates an empty dataset service. metrics may be nil.
func NewDatasetService(metrics *infrastructure.SurveyMetrics, logger *slog.Logger) *DatasetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetService{
		files:   validation.NewFileValidator(logger),
		finder:  files.NewDiscovery(""),
		metrics: metrics,
		logger:  logger.With(slog.String("service", "dataset")),
	}
}

// Load parses the survey workbook at path and makes it the current
// snapshot. A directory path loads its most recently modified workbook. On
// failure the previous snapshot stays in place.
func (s *DatasetService) Load(ctx context.Context, path, sheet string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		resolved, err := s.finder.ResolveSurveyInput(path)
		if err != nil {
			return apierrors.NewAppError(apierrors.ErrTypeNotFound, "no survey workbook found", err).
				WithContext("path", path)
		}
		s.logger.InfoContext(ctx, "survey workbook discovered",
			slog.String("dir", path),
			slog.String("path", resolved))
		path = resolved
	}
	if err := s.files.ValidateSurveyWorkbook(path); err != nil {
		return err
	}

	start := time.Now()
	res, err := dataprocessing.ParseSurveyFile(ctx, path, sheet)
	if err != nil {
		s.logger.ErrorContext(ctx, "survey load failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return err
	}
	s.metrics.RecordIngestion(ctx, res.Dataset.Len(), res.Skipped)

	s.set(res.Dataset, path, res.Sheet, res.Skipped)
	s.logger.InfoContext(ctx, "survey dataset loaded",
		slog.String("path", path),
		slog.String("sheet", res.Sheet),
		slog.Int("records", res.Dataset.Len()),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Set installs an already parsed dataset.
func (s *DatasetService) Set(ds domain.Dataset, source string) {
	s.set(ds, source, "", 0)
}

func (s *DatasetService) set(ds domain.Dataset, source, sheet string, skipped int) {
	status := DatasetStatus{
		Loaded:   true,
		Source:   source,
		Sheet:    sheet,
		Records:  ds.Len(),
		Skipped:  skipped,
		Weights:  len(ds.Schema.Weights),
		LoadedAt: time.Now().UTC(),
	}
	if first, last := ds.DateRange(); !last.IsZero() {
		status.FirstDate = first.Format(time.DateOnly)
		status.LastDate = last.Format(time.DateOnly)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ds = ds
	s.status = status
}

// Dataset returns the current snapshot, or ErrDatasetNotReady.
func (s *DatasetService) Dataset() (domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.status.Loaded {
		return domain.Dataset{}, ErrDatasetNotReady
	}
	return s.ds, nil
}

// Status describes the current snapshot.
func (s *DatasetService) Status() DatasetStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
