package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"VeilleScanner/internal/config"
	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/infrastructure/ml"
	"VeilleScanner/internal/infrastructure/parser"
	"VeilleScanner/internal/infrastructure/scheduler"
	"VeilleScanner/internal/infrastructure/storage"
	"VeilleScanner/internal/infrastructure/telegram"
	"VeilleScanner/internal/logging"
	"VeilleScanner/internal/ports"
	"VeilleScanner/internal/scanner"
	"VeilleScanner/internal/usecase"
)

// shutdownTimeout bounds how long Serve waits for an in-flight run.
const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	db        *storage.DB
	resources *storage.ResourceRepository
	models    *storage.ModelTrackRepository
	alerts    *storage.AlertRepository

	pipeline  *usecase.Pipeline
	cron      *scheduler.CronScheduler
	scheduler *usecase.Scheduler
}

// New opens the store and builds every component described by cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	baseLogger.Info("store ready", "dialect", db.Dialect(), "schema_version", storage.SchemaVersion())

	a := &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		resources: storage.NewResourceRepository(db),
		models:    storage.NewModelTrackRepository(db),
		alerts:    storage.NewAlertRepository(db),
	}

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	fetcher := parser.NewFetcher(httpClient, cfg.HTTP.UserAgent,
		parser.NewLimiter(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst))

	registry := scanner.NewRegistry()
	parser.RegisterDefaults(registry, fetcher, baseLogger)
	sources, err := parser.BuildSources(registry, cfg.Sources)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	tracked := make([]domain.TrackedModel, 0, len(cfg.Models.Tracked))
	for _, m := range cfg.Models.Tracked {
		tracked = append(tracked, domain.TrackedModel{Name: m.Name, Identifier: m.Identifier})
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		notifier = telegram.NewNotifier(tg.Endpoint, tg.BotToken, tg.ChatID, nil)
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Sources:   sources,
		Collector: usecase.NewCollector(a.resources, baseLogger.With("component", "collector")),
		Surveyor:  usecase.NewSurveyor(a.models, newVerifier(cfg), baseLogger.With("component", "surveyor")),
		Tracked:   tracked,
		AlertEngine: usecase.NewAlertEngine(a.resources, a.alerts, usecase.AlertRules{
			Window:             cfg.Alerts.Window,
			VolumeThreshold:    cfg.Alerts.VolumeThreshold,
			CriticalPatterns:   cfg.Alerts.CriticalPatterns,
			SuppressDuplicates: cfg.Alerts.SuppressDuplicates,
		}, baseLogger.With("component", "alerts")),
		Notifier:    notifier,
		Concurrency: cfg.Collection.Concurrency,
		Logger:      baseLogger.With("component", "pipeline"),
	})

	a.cron = scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())
	a.scheduler = usecase.NewScheduler(a.cron, a.pipeline, baseLogger.With("component", "scheduler"))

	return a, nil
}

func newVerifier(cfg config.Config) ports.ModelVerifier {
	if cfg.Models.Verifier == config.VerifierHuggingFace {
		limiter := parser.NewLimiter(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst)
		return ml.NewClient(cfg.Models.Endpoint, cfg.Models.APIToken, limiter).
			WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout})
	}
	return usecase.StaticVerifier{
		Performance: cfg.Models.Performance,
		Changes:     cfg.Models.Changes,
	}
}

// Run performs a complete watch cycle once.
func (a *Application) Run(ctx context.Context) (usecase.RunResult, error) {
	return a.pipeline.Run(ctx)
}

// Collect runs the collection stage only.
func (a *Application) Collect(ctx context.Context) (usecase.RunResult, error) {
	return a.pipeline.Collect(ctx)
}

// Survey runs model surveillance only.
func (a *Application) Survey(ctx context.Context) (usecase.RunResult, error) {
	return a.pipeline.Survey(ctx)
}

// EvaluateAlerts runs the alert rules and notifications only.
func (a *Application) EvaluateAlerts(ctx context.Context) (usecase.RunResult, error) {
	return a.pipeline.EvaluateAlerts(ctx)
}

// Serve runs the pipeline on the configured cron schedule until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.cron.Validate(); err != nil {
		return err
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("scheduler started",
		"cron", a.cfg.Scheduler.CronExpression,
		"timezone", a.cfg.Scheduler.Location().String(),
		"next_run", a.cron.Next())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}

// Resources lists the newest stored resources.
func (a *Application) Resources(ctx context.Context, limit int) ([]domain.Resource, error) {
	return a.resources.QueryRecent(ctx, limit)
}

// Observations lists the newest model observations.
func (a *Application) Observations(ctx context.Context, limit int) ([]domain.ModelObservation, error) {
	return a.models.ListObservations(ctx, limit)
}

// Alerts lists alerts, optionally filtered by status.
func (a *Application) Alerts(ctx context.Context, status domain.AlertStatus, limit int) ([]domain.Alert, error) {
	return a.alerts.ListAlerts(ctx, status, limit)
}

// ResolveAlert marks an alert as resolved.
func (a *Application) ResolveAlert(ctx context.Context, id int64) error {
	return a.alerts.SetStatus(ctx, id, domain.AlertResolved)
}

// Close releases the store.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
