package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/ports"
)

// StaticVerifier reports a fixed check result without contacting upstream.
type StaticVerifier struct {
	Version     string
	Performance string
	Changes     string
}

var _ ports.ModelVerifier = StaticVerifier{}

// Verify returns the configured snapshot.
func (v StaticVerifier) Verify(_ context.Context, _ domain.TrackedModel) (domain.ModelCheck, error) {
	version := v.Version
	if version == "" {
		version = "latest"
	}
	return domain.ModelCheck{
		Version:     version,
		Performance: v.Performance,
		Changes:     v.Changes,
	}, nil
}

// SurveyReport summarises one surveillance pass.
type SurveyReport struct {
	Recorded     int
	Failed       []string
	Observations []domain.ModelObservation
}

// Surveyor appends one observation per tracked model.
type Surveyor struct {
	store    ports.ModelTrackStore
	verifier ports.ModelVerifier
	logger   *slog.Logger
}

// NewSurveyor wires the observation log with a verifier; nil means StaticVerifier.
func NewSurveyor(store ports.ModelTrackStore, verifier ports.ModelVerifier, logger *slog.Logger) *Surveyor {
	if verifier == nil {
		verifier = StaticVerifier{}
	}
	return &Surveyor{store: store, verifier: verifier, logger: logger}
}

// Survey verifies each model and records the result. Verification errors
// skip the model; store errors abort the pass.
func (s *Surveyor) Survey(ctx context.Context, tracked []domain.TrackedModel) (SurveyReport, error) {
	var report SurveyReport

	for _, model := range tracked {
		check, err := s.verifier.Verify(ctx, model)
		if err != nil {
			report.Failed = append(report.Failed, model.Name)
			if s.logger != nil {
				s.logger.Warn("model verification failed", "model", model.Name, "identifier", model.Identifier, "error", err)
			}
			continue
		}

		if check.Changes == "" {
			check.Changes, err = s.describeChanges(ctx, model.Name, check.Version)
			if err != nil {
				return report, err
			}
		}

		obs, err := s.store.AppendObservation(ctx, domain.ModelObservation{
			ModelName:          model.Name,
			Version:            check.Version,
			PerformanceSummary: check.Performance,
			ChangesSummary:     check.Changes,
		})
		if err != nil {
			return report, fmt.Errorf("record model %s: %w", model.Name, err)
		}

		report.Recorded++
		report.Observations = append(report.Observations, obs)
	}

	if s.logger != nil {
		s.logger.Info("models surveyed", "recorded", report.Recorded, "failed", len(report.Failed))
	}
	return report, nil
}

func (s *Surveyor) describeChanges(ctx context.Context, modelName, version string) (string, error) {
	prev, err := s.store.LatestObservation(ctx, modelName)
	if errors.Is(err, domain.ErrNotFound) {
		return "first observation", nil
	}
	if err != nil {
		return "", fmt.Errorf("load previous observation of %s: %w", modelName, err)
	}
	if prev.Version == version {
		return "no change since " + prev.CheckedAt.UTC().Format("2006-01-02 15:04"), nil
	}
	return fmt.Sprintf("version %s -> %s", prev.Version, version), nil
}
