package domain

import (
	"time"
	"unicode/utf8"
)

// SummaryMaxRunes caps the stored summary of every resource.
const SummaryMaxRunes = 500

// DefaultRelevanceScore is assigned to every collected resource.
const DefaultRelevanceScore = 0.8

// ResourceType tags the nature of a collected item.
type ResourceType string

const (
	ResourceArticle    ResourceType = "article"
	ResourceRepository ResourceType = "repository"
)

// ResourceStatus is the lifecycle marker of a resource row.
type ResourceStatus string

const (
	ResourceNew ResourceStatus = "new"
)

// Candidate is a normalized record produced by a source before persistence.
type Candidate struct {
	Title        string
	URL          string
	Source       string
	PublishedAt  *time.Time
	ResourceType ResourceType
	Keywords     string
	Summary      string
}

// Resource is a persisted item of interest.
type Resource struct {
	ID             int64
	Title          string
	URL            string
	Source         string
	PublishedAt    *time.Time
	CollectedAt    time.Time
	ResourceType   ResourceType
	Keywords       string
	Summary        string
	RelevanceScore float64
	Status         ResourceStatus
}

// TitleMatch is a (title, url) pair returned by title pattern lookups.
type TitleMatch struct {
	Title string
	URL   string
}

// NewResource turns a candidate into a resource ready for insertion.
// CollectedAt and ID are assigned by the store.
func NewResource(c Candidate) Resource {
	return Resource{
		Title:          c.Title,
		URL:            c.URL,
		Source:         c.Source,
		PublishedAt:    c.PublishedAt,
		ResourceType:   c.ResourceType,
		Keywords:       c.Keywords,
		Summary:        TruncateSummary(c.Summary),
		RelevanceScore: DefaultRelevanceScore,
		Status:         ResourceNew,
	}
}

// TruncateSummary cuts s to SummaryMaxRunes characters.
func TruncateSummary(s string) string {
	if utf8.RuneCountInString(s) <= SummaryMaxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:SummaryMaxRunes])
}
