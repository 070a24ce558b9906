package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/scanner"
)

const (
	// DefaultRepositoryLimit is how many search results per source are kept.
	DefaultRepositoryLimit = 15

	itemsFieldOption  = "itemsField"
	defaultItemsField = "items"
)

type repositoryRecord struct {
	FullName    string  `json:"full_name"`
	HTMLURL     string  `json:"html_url"`
	UpdatedAt   string  `json:"updated_at"`
	Description *string `json:"description"`
}

// RepositorySearchSource queries a JSON search API returning repository
// records. Results are not filtered for relevance.
type RepositorySearchSource struct {
	spec       scanner.Spec
	fetcher    *Fetcher
	itemsField string
	logger     *slog.Logger
}

var _ scanner.Source = (*RepositorySearchSource)(nil)

// NewRepositorySearchSource builds the source; the limit defaults to DefaultRepositoryLimit.
func NewRepositorySearchSource(spec scanner.Spec, fetcher *Fetcher, logger *slog.Logger) *RepositorySearchSource {
	if spec.Limit <= 0 {
		spec.Limit = DefaultRepositoryLimit
	}
	if spec.ResourceType == "" {
		spec.ResourceType = domain.ResourceRepository
	}
	field := spec.Options[itemsFieldOption]
	if field == "" {
		field = defaultItemsField
	}
	return &RepositorySearchSource{spec: spec, fetcher: fetcher, itemsField: field, logger: logger}
}

// Name identifies the configured source.
func (s *RepositorySearchSource) Name() string { return s.spec.Name }

// Kind reports the repository-search kind.
func (s *RepositorySearchSource) Kind() string { return s.spec.Kind }

// Fetch issues one GET and normalizes the first results.
func (s *RepositorySearchSource) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	body, err := s.fetcher.Get(ctx, s.spec.URL, "application/json")
	if err != nil {
		return nil, fmt.Errorf("fetch search results: %w", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode search payload: %w", err)
	}

	raw, ok := envelope[s.itemsField]
	if !ok {
		return nil, fmt.Errorf("decode search payload: missing %q list", s.itemsField)
	}

	var records []repositoryRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %q list: %w", s.itemsField, err)
	}

	if len(records) > s.spec.Limit {
		records = records[:s.spec.Limit]
	}

	candidates := make([]domain.Candidate, 0, len(records))
	for _, rec := range records {
		var description string
		if rec.Description != nil {
			description = strings.TrimSpace(*rec.Description)
		}
		candidates = append(candidates, domain.Candidate{
			Title:        rec.FullName,
			URL:          strings.TrimSpace(rec.HTMLURL),
			Source:       s.spec.Name,
			PublishedAt:  parseTimestamp(rec.UpdatedAt),
			ResourceType: s.spec.ResourceType,
			Summary:      domain.TruncateSummary(description),
		})
	}

	if s.logger != nil {
		s.logger.Debug("search results parsed", "source", s.spec.Name, "results", len(records))
	}
	return candidates, nil
}

func parseTimestamp(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
