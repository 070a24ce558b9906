package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/ports"
	"VeilleScanner/internal/scanner"
)

// Stage names a pipeline step.
type Stage string

const (
	StageCollect Stage = "collect"
	StageSurvey  Stage = "survey"
	StageAlerts  Stage = "alerts"
	StageNotify  Stage = "notify"
)

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunAborted RunStatus = "aborted"
)

// StageError reports the stage at which a run was aborted.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RunResult aggregates the counts and timings of one run.
type RunResult struct {
	RunID       string
	StartedAt   time.Time
	Collected   int
	Sources     []SourceReport
	Survey      SurveyReport
	Alerts      []domain.Alert
	NotifyError string
	Elapsed     time.Duration
	Status      RunStatus
	FailedStage Stage
	Error       string
}

// PipelineDeps wires all components into the orchestration pipeline.
type PipelineDeps struct {
	Sources     []scanner.Source
	Collector   *Collector
	Surveyor    *Surveyor
	Tracked     []domain.TrackedModel
	AlertEngine *AlertEngine
	Notifier    ports.Notifier
	Concurrency int
	Logger      *slog.Logger
}

// Pipeline runs collection, model surveillance and alerting in that order.
type Pipeline struct {
	sources     []scanner.Source
	collector   *Collector
	surveyor    *Surveyor
	tracked     []domain.TrackedModel
	alertEngine *AlertEngine
	notifier    ports.Notifier
	concurrency int
	logger      *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		sources:     deps.Sources,
		collector:   deps.Collector,
		surveyor:    deps.Surveyor,
		tracked:     deps.Tracked,
		alertEngine: deps.AlertEngine,
		notifier:    deps.Notifier,
		concurrency: deps.Concurrency,
		logger:      logger,
	}
}

// Run executes a full watch cycle. A failure escaping a stage aborts the
// remaining stages; the result then names that stage and a *StageError is returned.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	return p.run(ctx, StageCollect, StageSurvey, StageAlerts, StageNotify)
}

// Collect runs the collection stage only.
func (p *Pipeline) Collect(ctx context.Context) (RunResult, error) {
	return p.run(ctx, StageCollect)
}

// Survey runs the model surveillance stage only.
func (p *Pipeline) Survey(ctx context.Context) (RunResult, error) {
	return p.run(ctx, StageSurvey)
}

// EvaluateAlerts runs the alerting and notification stages only.
func (p *Pipeline) EvaluateAlerts(ctx context.Context) (RunResult, error) {
	return p.run(ctx, StageAlerts, StageNotify)
}

func (p *Pipeline) run(ctx context.Context, stages ...Stage) (RunResult, error) {
	result := RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    RunSuccess,
	}
	log := p.logger.With("run_id", result.RunID)
	log.Info("watch run started", "stages", stages)

	for _, stage := range stages {
		if err := p.runStage(ctx, stage, &result, log); err != nil {
			result.Elapsed = time.Since(result.StartedAt)
			result.Status = RunAborted
			result.FailedStage = stage
			result.Error = err.Error()
			log.Error("watch run aborted", "stage", stage, "error", err, "elapsed", result.Elapsed)
			return result, &StageError{Stage: stage, Err: err}
		}
	}

	result.Elapsed = time.Since(result.StartedAt)
	log.Info("watch run finished",
		"collected", result.Collected,
		"observations", result.Survey.Recorded,
		"alerts", len(result.Alerts),
		"elapsed", result.Elapsed)
	return result, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, result *RunResult, log *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch stage {
	case StageCollect:
		if p.collector == nil {
			return nil
		}
		reports, total, err := p.collector.CollectAll(ctx, p.sources, p.concurrency)
		result.Sources = reports
		result.Collected = total
		return err

	case StageSurvey:
		if p.surveyor == nil {
			return nil
		}
		report, err := p.surveyor.Survey(ctx, p.tracked)
		result.Survey = report
		return err

	case StageAlerts:
		if p.alertEngine == nil {
			return nil
		}
		alerts, err := p.alertEngine.Evaluate(ctx)
		result.Alerts = alerts
		return err

	case StageNotify:
		if p.notifier == nil || len(result.Alerts) == 0 {
			return nil
		}
		if err := p.notifier.PublishAlerts(ctx, result.Alerts); err != nil {
			result.NotifyError = err.Error()
			log.Warn("alert notification failed", "alerts", len(result.Alerts), "error", err)
		}
		return nil
	}

	return errors.New("unknown stage " + string(stage))
}
