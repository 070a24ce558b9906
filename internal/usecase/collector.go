package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/ports"
	"VeilleScanner/internal/scanner"
)

// OutcomeKind classifies what happened to one candidate.
type OutcomeKind string

const (
	OutcomeInserted  OutcomeKind = "inserted"
	OutcomeDuplicate OutcomeKind = "duplicate"
	OutcomeFailed    OutcomeKind = "failed"
)

// ItemOutcome is the typed per-item result of ingestion.
type ItemOutcome struct {
	URL    string
	Kind   OutcomeKind
	Reason string
}

// SourceReport aggregates the outcomes of one source.
type SourceReport struct {
	Source     string
	Kind       string
	Fetched    int
	Inserted   int
	Duplicates int
	Failed     int
	Outcomes   []ItemOutcome
	FetchError string
	Elapsed    time.Duration
}

func (r *SourceReport) record(o ItemOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Kind {
	case OutcomeInserted:
		r.Inserted++
	case OutcomeDuplicate:
		r.Duplicates++
	case OutcomeFailed:
		r.Failed++
	}
}

// Collector pulls candidates from sources and stores the new ones.
type Collector struct {
	store  ports.ResourceStore
	logger *slog.Logger
}

// NewCollector wires the resource store.
func NewCollector(store ports.ResourceStore, logger *slog.Logger) *Collector {
	return &Collector{store: store, logger: logger}
}

// CollectSource fetches one source and ingests its candidates. Fetch and
// payload errors are isolated in the report; only store errors are returned.
func (c *Collector) CollectSource(ctx context.Context, src scanner.Source) (SourceReport, error) {
	started := time.Now()
	report := SourceReport{Source: src.Name(), Kind: src.Kind()}

	candidates, err := src.Fetch(ctx)
	if err != nil {
		report.FetchError = err.Error()
		report.Elapsed = time.Since(started)
		c.warn("source collection failed", "source", src.Name(), "error", err)
		return report, nil
	}
	report.Fetched = len(candidates)

	for _, cand := range candidates {
		outcome, err := c.ingest(ctx, cand)
		if err != nil {
			report.Elapsed = time.Since(started)
			return report, fmt.Errorf("source %s: %w", src.Name(), err)
		}
		if outcome.Kind == OutcomeFailed {
			c.warn("candidate rejected", "source", src.Name(), "url", outcome.URL, "reason", outcome.Reason)
		}
		report.record(outcome)
	}

	report.Elapsed = time.Since(started)
	c.info("source collected", "source", src.Name(), "fetched", report.Fetched,
		"inserted", report.Inserted, "duplicates", report.Duplicates, "failed", report.Failed)
	return report, nil
}

// CollectAll walks every source, up to concurrency at a time. Reports keep
// the order of sources. The returned total counts inserted resources.
func (c *Collector) CollectAll(ctx context.Context, sources []scanner.Source, concurrency int) ([]SourceReport, int, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	reports := make([]SourceReport, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report, err := c.CollectSource(gctx, src)
			reports[i] = report
			return err
		})
	}

	err := g.Wait()

	total := 0
	for _, r := range reports {
		total += r.Inserted
	}
	return reports, total, err
}

func (c *Collector) ingest(ctx context.Context, cand domain.Candidate) (ItemOutcome, error) {
	outcome := ItemOutcome{URL: cand.URL}

	switch {
	case strings.TrimSpace(cand.URL) == "":
		outcome.Kind, outcome.Reason = OutcomeFailed, "missing url"
		return outcome, nil
	case strings.TrimSpace(cand.Title) == "":
		outcome.Kind, outcome.Reason = OutcomeFailed, "missing title"
		return outcome, nil
	}

	added, err := c.store.InsertIfAbsent(ctx, domain.NewResource(cand))
	if err != nil {
		return outcome, fmt.Errorf("persist %s: %w", cand.URL, err)
	}
	if added {
		outcome.Kind = OutcomeInserted
	} else {
		outcome.Kind = OutcomeDuplicate
	}
	return outcome, nil
}

func (c *Collector) info(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Collector) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
