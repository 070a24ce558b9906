package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/ports"
)

// AlertRules holds the thresholds evaluated by AlertEngine.
type AlertRules struct {
	Window             time.Duration
	VolumeThreshold    int
	CriticalPatterns   []string
	SuppressDuplicates bool
}

// DefaultAlertRules returns the 24h / 5 resources / breakthrough rules.
func DefaultAlertRules() AlertRules {
	return AlertRules{
		Window:           24 * time.Hour,
		VolumeThreshold:  5,
		CriticalPatterns: []string{"breakthrough", "state-of-the-art"},
	}
}

// AlertEngine raises alerts from the recent resource history.
type AlertEngine struct {
	resources ports.ResourceStore
	alerts    ports.AlertStore
	rules     AlertRules
	now       func() time.Time
	logger    *slog.Logger
}

// NewAlertEngine wires both stores with a rule set.
func NewAlertEngine(resources ports.ResourceStore, alerts ports.AlertStore, rules AlertRules, logger *slog.Logger) *AlertEngine {
	if rules.Window <= 0 {
		rules.Window = DefaultAlertRules().Window
	}
	return &AlertEngine{
		resources: resources,
		alerts:    alerts,
		rules:     rules,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source used to compute the lookback window.
func (e *AlertEngine) WithClock(now func() time.Time) *AlertEngine {
	if now != nil {
		e.now = now
	}
	return e
}

// Evaluate runs the volume rule then the critical-content rule and returns
// the alerts it created. Store errors are returned as is.
func (e *AlertEngine) Evaluate(ctx context.Context) ([]domain.Alert, error) {
	since := e.now().Add(-e.rules.Window)

	var created []domain.Alert

	count, err := e.resources.CountSince(ctx, since)
	if err != nil {
		return created, fmt.Errorf("volume rule: %w", err)
	}
	if count > e.rules.VolumeThreshold {
		alert, ok, err := e.raise(ctx, since, domain.Alert{
			Type:    domain.AlertVolumeHigh,
			Message: fmt.Sprintf("High volume of new resources detected: %d in %s", count, windowLabel(e.rules.Window)),
		})
		if err != nil {
			return created, fmt.Errorf("volume rule: %w", err)
		}
		if ok {
			created = append(created, alert)
		}
	}

	matches, err := e.resources.FindByTitlePatterns(ctx, e.rules.CriticalPatterns, since)
	if err != nil {
		return created, fmt.Errorf("critical-content rule: %w", err)
	}
	for _, m := range matches {
		alert, ok, err := e.raise(ctx, since, domain.Alert{
			Type:         domain.AlertCriticalContent,
			Message:      "Critical content detected: " + m.Title,
			ReferenceURL: m.URL,
		})
		if err != nil {
			return created, fmt.Errorf("critical-content rule: %w", err)
		}
		if ok {
			created = append(created, alert)
		}
	}

	if e.logger != nil {
		e.logger.Info("alerts evaluated", "recent_resources", count, "critical_matches", len(matches), "created", len(created))
	}
	return created, nil
}

func (e *AlertEngine) raise(ctx context.Context, since time.Time, alert domain.Alert) (domain.Alert, bool, error) {
	if e.rules.SuppressDuplicates {
		exists, err := e.alerts.HasActiveAlert(ctx, alert.Type, alert.ReferenceURL, since)
		if err != nil {
			return domain.Alert{}, false, err
		}
		if exists {
			return domain.Alert{}, false, nil
		}
	}

	alert.Status = domain.AlertActive
	stored, err := e.alerts.AppendAlert(ctx, alert)
	if err != nil {
		return domain.Alert{}, false, err
	}
	if e.logger != nil {
		e.logger.Info("alert created", "type", stored.Type, "message", stored.Message, "reference_url", stored.ReferenceURL)
	}
	return stored, true, nil
}

func windowLabel(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
