package scanner

import (
	"context"
	"fmt"
	"sort"

	"VeilleScanner/internal/domain"
)

// Spec carries everything a factory needs to build one configured source.
type Spec struct {
	Name         string
	Kind         string
	URL          string
	Keywords     []string
	Limit        int
	ResourceType domain.ResourceType
	Options      map[string]string
}

// Source fetches raw records from one external endpoint and normalizes them.
type Source interface {
	Name() string
	Kind() string
	Fetch(ctx context.Context) ([]domain.Candidate, error)
}

// Factory builds a Source for a given spec.
type Factory func(spec Spec) (Source, error)

// Registry keeps a mapping from source kinds to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[kind] = factory
}

// Build resolves the factory for spec.Kind and constructs the source.
func (r *Registry) Build(spec Spec) (Source, error) {
	factory, ok := r.factories[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("source kind %s is not registered", spec.Kind)
	}
	src, err := factory(spec)
	if err != nil {
		return nil, fmt.Errorf("build source %s: %w", spec.Name, err)
	}
	return src, nil
}

// Kinds lists registered kinds in lexical order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
