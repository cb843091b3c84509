package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "opinecli/internal/errors"
	custommw "opinecli/internal/middleware"
	"opinecli/internal/services"
	"opinecli/internal/validation"
	"opinecli/internal/voteshare"
	"opinecli/pkg/contracts/domain"
)

// DatasetProvider supplies the survey snapshot queries run against.
type DatasetProvider interface {
	Dataset() (domain.Dataset, error)
}

// QueryRequest selects one slice of the survey. An empty reference date
// means the latest survey date in the data; an empty period follows the
// window (L7D for 7 DMA, L15D for 15 DMA, Overall otherwise).
type QueryRequest struct {
	ReferenceDate string                `json:"reference_date" validate:"omitempty,isodate"`
	Level         string                `json:"level" validate:"omitempty,level"`
	Period        string                `json:"period" validate:"omitempty,period"`
	Window        *voteshare.WindowSpec `json:"window" validate:"omitempty"`
	Filter        voteshare.Filter      `json:"filter"`
	Field         string                `json:"field"`
	Raw           bool                  `json:"raw"`
}

// TrendRequest is a query evaluated at every point of a series.
type TrendRequest struct {
	QueryRequest
	Points    int      `json:"points" validate:"required,min=1,max=366"`
	SkipDates []string `json:"skip_dates" validate:"omitempty,dive,isodate"`
}

// BreakdownRequest is a query evaluated once per value of a dimension.
type BreakdownRequest struct {
	QueryRequest
	Dimension string `json:"dimension" validate:"required,oneof=gender locality religion social_category age region district ac"`
}

// TransitionRequest cross-tabulates two party questions.
type TransitionRequest struct {
	QueryRequest
	RowField string `json:"row_field" validate:"required"`
	ColField string `json:"col_field" validate:"required"`
	Mode     string `json:"mode" validate:"omitempty,oneof=gains_losses transferability"`
}

// DistributionRequest is the answer distribution of a single-choice
// question.
type DistributionRequest struct {
	QueryRequest
	Question string `json:"question" validate:"required"`
}

// VoteShareHandler serves the vote share queries.
type VoteShareHandler struct {
	data         DatasetProvider
	calc         *voteshare.Calculator
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	skip         []time.Time
}

// NewVoteShareHandler creates a vote share handler. calc must be fully
// configured; it is shared by all requests.
func NewVoteShareHandler(data DatasetProvider, calc *voteshare.Calculator, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *VoteShareHandler {
	return &VoteShareHandler{
		data:         data,
		calc:         calc,
		validate:     validation.NewValidator(),
		logger:       logger.With(slog.String("component", "voteshare_handler")),
		errorHandler: errorHandler,
	}
}

// SetSkipDates sets the anomalous survey dates every trend leaves out, in
// addition to those a request names.
func (h *VoteShareHandler) SetSkipDates(skip []time.Time) {
	h.skip = skip
}

// Routes returns the vote share routes
func (h *VoteShareHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/", h.VoteShare)
	r.Post("/trend", h.Trend)
	r.Post("/breakdown", h.Breakdown)
	r.Post("/transition", h.Transition)
	r.Post("/distribution", h.Distribution)
	r.Get("/dimensions/{dimension}", h.DimensionValues)
	return r
}

// decode reads and validates a request body.
func (h *VoteShareHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := custommw.DecodeJSON(r, v); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return false
	}
	if err := custommw.ValidateStruct(h.validate, v); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return false
	}
	return true
}

// dataset fetches the snapshot, answering 503 when none is loaded.
func (h *VoteShareHandler) dataset(w http.ResponseWriter, r *http.Request) (domain.Dataset, bool) {
	ds, err := h.data.Dataset()
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.DatasetUnavailable(err))
		return domain.Dataset{}, false
	}
	return ds, true
}

// query converts a request to an engine query over ds.
func (h *VoteShareHandler) query(w http.ResponseWriter, r *http.Request, ds domain.Dataset, req QueryRequest) (voteshare.Query, bool) {
	ref, err := services.ReferenceDate(ds, &services.ReportPlan{ReferenceDate: req.ReferenceDate})
	if err != nil {
		if errors.Is(err, services.ErrEmptyDataset) {
			h.errorHandler.HandleError(w, r, apierrors.DatasetUnavailable(err))
		} else {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("reference_date", err.Error()))
		}
		return voteshare.Query{}, false
	}

	window := voteshare.Overall()
	if req.Window != nil {
		window = *req.Window
	}
	period := domain.Period(req.Period)
	if period == "" {
		period = services.DefaultPeriod(window)
	}

	q := voteshare.Query{
		Label:         middleware.GetReqID(r.Context()),
		ReferenceDate: ref,
		Level:         domain.Level(req.Level),
		Period:        period,
		Window:        window,
		Filter:        req.Filter,
		Field:         services.ResolveField(req.Field),
		Raw:           req.Raw,
	}
	if err := q.Validate(); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("query", err.Error()))
		return voteshare.Query{}, false
	}
	return q, true
}

func (h *VoteShareHandler) respond(w http.ResponseWriter, r *http.Request, op string, start time.Time, data interface{}) {
	h.logger.InfoContext(r.Context(), "vote share query served",
		slog.String("operation", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Duration("duration", time.Since(start)),
	)
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   data,
	})
}

// VoteShare handles POST /api/v1/voteshare
func (h *VoteShareHandler) VoteShare(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req QueryRequest
	if !h.decode(w, r, &req) {
		return
	}
	ds, ok := h.dataset(w, r)
	if !ok {
		return
	}
	q, ok := h.query(w, r, ds, req)
	if !ok {
		return
	}

	comp, err := h.calc.VoteShare(r.Context(), ds, q)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.respond(w, r, voteshare.OpVoteShare, start, comp)
}

// Trend handles POST /api/v1/voteshare/trend
func (h *VoteShareHandler) Trend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req TrendRequest
	if !h.decode(w, r, &req) {
		return
	}
	ds, ok := h.dataset(w, r)
	if !ok {
		return
	}
	q, ok := h.query(w, r, ds, req.QueryRequest)
	if !ok {
		return
	}
	skip, err := (&services.ReportPlan{SkipDates: req.SkipDates}).Skip()
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("skip_dates", err.Error()))
		return
	}
	skip = append(skip, h.skip...)

	points, err := h.calc.Trend(r.Context(), ds, q, voteshare.SeriesSpec{
		Points: req.Points,
		Window: q.Window,
		Skip:   skip,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.respond(w, r, voteshare.OpTrend, start, points)
}

// Breakdown handles POST /api/v1/voteshare/breakdown
func (h *VoteShareHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req BreakdownRequest
	if !h.decode(w, r, &req) {
		return
	}
	ds, ok := h.dataset(w, r)
	if !ok {
		return
	}
	q, ok := h.query(w, r, ds, req.QueryRequest)
	if !ok {
		return
	}

	rows, err := h.calc.Breakdown(r.Context(), ds, q, voteshare.Dimension(req.Dimension))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.respond(w, r, voteshare.OpBreakdown, start, rows)
}

// Transition handles POST /api/v1/voteshare/transition
func (h *VoteShareHandler) Transition(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req TransitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	ds, ok := h.dataset(w, r)
	if !ok {
		return
	}
	q, ok := h.query(w, r, ds, req.QueryRequest)
	if !ok {
		return
	}

	res, err := h.calc.Transition(r.Context(), ds, q,
		services.ResolveField(req.RowField), services.ResolveField(req.ColField), voteshare.CrossTabMode(req.Mode))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.respond(w, r, voteshare.OpTransition, start, res)
}

// Distribution handles POST /api/v1/voteshare/distribution
func (h *VoteShareHandler) Distribution(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req DistributionRequest
	if !h.decode(w, r, &req) {
		return
	}
	ds, ok := h.dataset(w, r)
	if !ok {
		return
	}
	q, ok := h.query(w, r, ds, req.QueryRequest)
	if !ok {
		return
	}

	res, err := h.calc.Distribution(r.Context(), ds, q, services.ResolveField(req.Question))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.respond(w, r, voteshare.OpDistribution, start, res)
}

// DimensionValues handles GET /api/v1/voteshare/dimensions/{dimension}
func (h *VoteShareHandler) DimensionValues(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	dim := voteshare.Dimension(chi.URLParam(r, "dimension"))
	ds, ok := h.dataset(w, r)
	if !ok {
		return
	}
	values, err := voteshare.DimensionValues(ds, dim)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("dimension", err.Error()))
		return
	}
	h.respond(w, r, "dimension_values", start, map[string]interface{}{
		"dimension": dim,
		"values":    values,
	})
}
