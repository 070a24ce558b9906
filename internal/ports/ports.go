package ports

import (
	"context"
	"time"

	"VeilleScanner/internal/domain"
)

// ResourceStore persists collected resources keyed by URL.
type ResourceStore interface {
	InsertIfAbsent(ctx context.Context, resource domain.Resource) (bool, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
	FindByTitlePatterns(ctx context.Context, patterns []string, since time.Time) ([]domain.TitleMatch, error)
	QueryRecent(ctx context.Context, limit int) ([]domain.Resource, error)
}

// ModelTrackStore is the append-only log of model observations.
type ModelTrackStore interface {
	AppendObservation(ctx context.Context, obs domain.ModelObservation) (domain.ModelObservation, error)
	LatestObservation(ctx context.Context, modelName string) (domain.ModelObservation, error)
	ListObservations(ctx context.Context, limit int) ([]domain.ModelObservation, error)
}

// AlertStore is the append-only alert log with a mutable status.
type AlertStore interface {
	AppendAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error)
	HasActiveAlert(ctx context.Context, alertType domain.AlertType, referenceURL string, since time.Time) (bool, error)
	ListAlerts(ctx context.Context, status domain.AlertStatus, limit int) ([]domain.Alert, error)
	SetStatus(ctx context.Context, id int64, status domain.AlertStatus) error
}

// ModelVerifier inspects a tracked model upstream.
type ModelVerifier interface {
	Verify(ctx context.Context, model domain.TrackedModel) (domain.ModelCheck, error)
}

// Notifier pushes freshly raised alerts to an outbound channel.
type Notifier interface {
	PublishAlerts(ctx context.Context, alerts []domain.Alert) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
