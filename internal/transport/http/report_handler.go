package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apierrors "opinecli/internal/errors"
	custommw "opinecli/internal/middleware"
	"opinecli/internal/services"
	"opinecli/pkg/contracts/domain"
)

// ReportRunner executes report plans.
type ReportRunner interface {
	Run(ctx context.Context, ds domain.Dataset, plan *services.ReportPlan) (*services.ReportRun, error)
}

// ReportHandler runs report plans on demand.
type ReportHandler struct {
	data         DatasetProvider
	runner       ReportRunner
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewReportHandler creates a report handler
func NewReportHandler(data DatasetProvider, runner ReportRunner, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ReportHandler {
	return &ReportHandler{
		data:         data,
		runner:       runner,
		logger:       logger.With(slog.String("component", "report_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the report routes
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/plan", h.DefaultPlan)
	r.Post("/", h.Run)
	return r
}

// DefaultPlan handles GET /api/v1/reports/plan
func (h *ReportHandler) DefaultPlan(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, services.DefaultPlan())
}

// Run handles POST /api/v1/reports. An empty body runs the default plan.
func (h *ReportHandler) Run(w http.ResponseWriter, r *http.Request) {
	plan := services.DefaultPlan()
	if r.ContentLength != 0 {
		var posted services.ReportPlan
		if err := custommw.DecodeJSON(r, &posted); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		plan = &posted
	}

	ds, err := h.data.Dataset()
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.DatasetUnavailable(err))
		return
	}

	run, err := h.runner.Run(r.Context(), ds, plan)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPlan):
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("plan", err.Error()))
		case errors.Is(err, services.ErrEmptyDataset):
			h.errorHandler.HandleError(w, r, apierrors.DatasetUnavailable(err))
		default:
			h.errorHandler.HandleError(w, r, err)
		}
		return
	}

	h.logger.InfoContext(r.Context(), "report served",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("run_id", run.ID.String()),
		slog.Int("sections", len(run.Sections)),
	)
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   run,
	})
}
