package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/relevance"
	"VeilleScanner/internal/scanner"
)

// DefaultFeedLimit is how many entries per feed are considered.
const DefaultFeedLimit = 10

// FeedSource reads an RSS or Atom document and keeps entries relevant to
// the configured keywords.
type FeedSource struct {
	spec    scanner.Spec
	fetcher *Fetcher
	logger  *slog.Logger
}

var _ scanner.Source = (*FeedSource)(nil)

// NewFeedSource builds a feed source; the limit defaults to DefaultFeedLimit.
func NewFeedSource(spec scanner.Spec, fetcher *Fetcher, logger *slog.Logger) *FeedSource {
	if spec.Limit <= 0 {
		spec.Limit = DefaultFeedLimit
	}
	if spec.ResourceType == "" {
		spec.ResourceType = domain.ResourceArticle
	}
	return &FeedSource{spec: spec, fetcher: fetcher, logger: logger}
}

// Name identifies the configured source.
func (s *FeedSource) Name() string { return s.spec.Name }

// Kind reports the feed kind.
func (s *FeedSource) Kind() string { return s.spec.Kind }

// Fetch downloads the feed and returns relevant candidates from the first entries.
func (s *FeedSource) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	body, err := s.fetcher.Get(ctx, s.spec.URL, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := feed.Items
	if len(items) > s.spec.Limit {
		items = items[:s.spec.Limit]
	}

	candidates := make([]domain.Candidate, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		title := strings.TrimSpace(item.Title)
		summary := entrySummary(item)

		matched := relevance.Matches(title+" "+summary, s.spec.Keywords)
		if len(matched) < relevance.MinMatches {
			continue
		}

		candidates = append(candidates, domain.Candidate{
			Title:        title,
			URL:          strings.TrimSpace(item.Link),
			Source:       s.spec.Name,
			PublishedAt:  entryPublished(item),
			ResourceType: s.spec.ResourceType,
			Keywords:     strings.Join(matched, ", "),
			Summary:      domain.TruncateSummary(summary),
		})
	}

	s.debug("feed parsed", "source", s.spec.Name, "entries", len(feed.Items), "considered", len(items), "relevant", len(candidates))
	return candidates, nil
}

func (s *FeedSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func entrySummary(item *gofeed.Item) string {
	summary := item.Description
	if strings.TrimSpace(summary) == "" {
		summary = item.Content
	}
	return flattenHTML(summary)
}

func entryPublished(item *gofeed.Item) *time.Time {
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		return &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		return &t
	default:
		return nil
	}
}

// flattenHTML turns an HTML fragment into plain text. Plain text is returned as is.
func flattenHTML(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
