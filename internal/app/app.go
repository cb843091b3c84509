package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"opinecli/internal/config"
	"opinecli/internal/errors"
	"opinecli/internal/infrastructure"
	custommw "opinecli/internal/middleware"
	"opinecli/internal/services"
	handlers "opinecli/internal/transport/http"
	"opinecli/internal/voteshare"
)

var (
	// BuildTime is set at compile time
	BuildTime = time.Now().Format(time.RFC3339)
	// BuildID is a unique identifier for this build
	BuildID = generateBuildID()
)

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(config.AppVersion))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.SurveyMetrics
	ErrorHandler  *errors.ErrorHandler
	Services      *ServiceContainer
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Dataset    *services.DatasetService
	Reports    *services.ReportService
	Health     *services.HealthService
	Calculator *voteshare.Calculator
	// SkipDates are the configured anomalous survey dates, shared by the
	// trend endpoint and report runs.
	SkipDates []time.Time
}

// NewApplication loads the configuration and logger from the environment
// and builds the application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return New(cfg, logger)
}

// New wires an application from an explicit configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("build_id", BuildID))

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.NewSurveyMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize survey metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		ErrorHandler:  errors.NewErrorHandler(logger, cfg.Logging.Level == "debug"),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	policy := voteshare.MissingWeightPolicy(a.Config.Report.MissingWeights)

	calc := voteshare.NewCalculator(policy, a.Logger)
	calc.SetObserver(a.Metrics)

	skip, err := a.Config.Report.Skip()
	if err != nil {
		return fmt.Errorf("invalid skip dates: %w", err)
	}

	dataset := services.NewDatasetService(a.Metrics, a.Logger)
	reports := services.NewReportService(services.ReportServiceConfig{
		Policy:  policy,
		Workers: a.Config.Report.Workers,
		Skip:    skip,
	}, a.OTelProviders.Tracer, a.Metrics, a.Logger)
	health := services.NewHealthService(config.AppVersion, BuildTime, dataset, a.Logger)

	a.Services = &ServiceContainer{
		Dataset:    dataset,
		Reports:    reports,
		Health:     health,
		Calculator: calc,
		SkipDates:  skip,
	}
	return nil
}

// LoadDataset reads the configured survey workbook into the dataset
// service. A failed load leaves the API running and not ready.
func (a *Application) LoadDataset(ctx context.Context) error {
	path := a.Config.Report.InputPath
	if path == "" {
		a.Logger.WarnContext(ctx, "No survey input configured, API will report not ready",
			slog.String("env", config.EnvPrefix+"_REPORT_INPUT_PATH"))
		return nil
	}
	if err := a.Services.Dataset.Load(ctx, path, a.Config.Report.Sheet); err != nil {
		return fmt.Errorf("failed to load survey %s: %w", path, err)
	}
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// RequestID → RealIP → errors → OTel → rate limit → body limit → timeout
	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(errors.NewErrorMiddleware(a.ErrorHandler, a.Logger).Handler)
	r.Use(errors.RecoveryMiddleware(a.ErrorHandler))
	r.Use(custommw.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)

	if a.Config.Security.RateLimit.Enabled {
		r.Use(custommw.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
			a.ErrorHandler,
		).Handler)
	}
	r.Use(custommw.BodyLimit(a.Config.Server.MaxBodyBytes, a.ErrorHandler))
	r.Use(custommw.Timeout(a.Config.Server.WriteTimeout))
	r.Use(custommw.CORS(custommw.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		Logger:         a.Logger,
	}))
	r.Use(custommw.SecurityHeaders)

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
	r.Route(config.HealthEndpoint, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/", healthHandler.HealthCheck)
		r.Get("/ready", healthHandler.ReadinessCheck)
		r.Get("/live", healthHandler.LivenessCheck)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle(config.MetricsEndpoint, a.OTelProviders.PrometheusHTTP)
	}

	a.setupAPIRoutes(r, healthHandler)
	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router, healthHandler *handlers.HealthHandler) {
	validation := custommw.NewValidationMiddleware(a.Logger, a.ErrorHandler, a.Config.Server.MaxBodyBytes)

	r.Route(config.APIBasePath, func(r chi.Router) {
		r.Use(custommw.ContentTypeJSON)
		r.Use(validation.ValidateRequest)
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/version", healthHandler.Version)
		r.Get("/dataset", healthHandler.Dataset)

		voteShareHandler := handlers.NewVoteShareHandler(a.Services.Dataset, a.Services.Calculator, a.Logger, a.ErrorHandler)
		voteShareHandler.SetSkipDates(a.Services.SkipDates)
		r.Mount("/voteshare", voteShareHandler.Routes())

		reportHandler := handlers.NewReportHandler(a.Services.Dataset, a.Services.Reports, a.Logger, a.ErrorHandler)
		r.Mount("/reports", reportHandler.Routes())
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start loads the survey and starts serving in the background. A server
// failure cancels ctx through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	if err := a.LoadDataset(ctx); err != nil {
		a.Logger.ErrorContext(ctx, "Survey not loaded", slog.String("error", err.Error()))
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Server stopped")
	}

	return a.Stop(context.Background())
}
