package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VeilleScanner/internal/domain"
)

type stubSource struct{ spec Spec }

func (s stubSource) Name() string { return s.spec.Name }
func (s stubSource) Kind() string { return s.spec.Kind }
func (s stubSource) Fetch(context.Context) ([]domain.Candidate, error) {
	return nil, nil
}

func TestRegistryBuild(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("feed", func(spec Spec) (Source, error) { return stubSource{spec: spec}, nil })

	src, err := reg.Build(Spec{Name: "medium", Kind: "feed"})
	require.NoError(t, err)
	assert.Equal(t, "medium", src.Name())

	_, err = reg.Build(Spec{Name: "hf", Kind: "web_scraping"})
	assert.EqualError(t, err, "source kind web_scraping is not registered")

	assert.Equal(t, []string{"feed"}, reg.Kinds())
}
