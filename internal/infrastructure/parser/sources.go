package parser

import (
	"fmt"
	"log/slog"

	"VeilleScanner/internal/config"
	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/scanner"
)

// RegisterDefaults registers the feed and repository-search kinds.
func RegisterDefaults(reg *scanner.Registry, fetcher *Fetcher, log *slog.Logger) {
	reg.Register(config.KindFeed, func(spec scanner.Spec) (scanner.Source, error) {
		return NewFeedSource(spec, fetcher, withComponent(log, "source.feed")), nil
	})
	reg.Register(config.KindRepositorySearch, func(spec scanner.Spec) (scanner.Source, error) {
		return NewRepositorySearchSource(spec, fetcher, withComponent(log, "source.repository")), nil
	})
}

// BuildSources resolves every configured source through the registry,
// preserving configuration order.
func BuildSources(reg *scanner.Registry, sources []config.SourceConfig) ([]scanner.Source, error) {
	if reg == nil {
		return nil, fmt.Errorf("source registry is not configured")
	}

	built := make([]scanner.Source, 0, len(sources))
	for _, src := range sources {
		s, err := reg.Build(toSpec(src))
		if err != nil {
			return nil, err
		}
		built = append(built, s)
	}
	return built, nil
}

func toSpec(cfg config.SourceConfig) scanner.Spec {
	return scanner.Spec{
		Name:         cfg.Name,
		Kind:         cfg.Kind,
		URL:          cfg.URL,
		Keywords:     append([]string(nil), cfg.Keywords...),
		Limit:        cfg.Limit,
		ResourceType: domain.ResourceType(cfg.ResourceType),
		Options:      cfg.Options,
	}
}

func withComponent(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		return nil
	}
	return log.With("component", component)
}
