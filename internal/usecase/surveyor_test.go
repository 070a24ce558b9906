package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VeilleScanner/internal/domain"
)

var tracked = []domain.TrackedModel{
	{Name: "distilbert-sentiment", Identifier: "distilbert-base-uncased-finetuned-sst-2-english"},
	{Name: "vader-sentiment", Identifier: "vaderSentiment"},
}

func TestSurveyRecordsStaticSnapshot(t *testing.T) {
	t.Parallel()

	st := openStores(t)
	surveyor := NewSurveyor(st.models, StaticVerifier{
		Performance: "Accuracy: 89.5%",
		Changes:     "Minor optimisations",
	}, nil)

	report, err := surveyor.Survey(context.Background(), tracked)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Recorded)
	assert.Empty(t, report.Failed)

	obs, err := st.models.ListObservations(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	for _, o := range obs {
		assert.Equal(t, "latest", o.Version)
		assert.Equal(t, "Accuracy: 89.5%", o.PerformanceSummary)
		assert.Equal(t, "Minor optimisations", o.ChangesSummary)
		assert.False(t, o.CheckedAt.IsZero())
	}
}

func TestSurveyDerivesChangesFromHistory(t *testing.T) {
	t.Parallel()

	st := openStores(t)
	version := "aaa"
	verifier := verifierFunc(func(context.Context, domain.TrackedModel) (domain.ModelCheck, error) {
		return domain.ModelCheck{Version: version, Performance: "Downloads: 10, likes: 1"}, nil
	})
	surveyor := NewSurveyor(st.models, verifier, nil)
	ctx := context.Background()
	model := tracked[:1]

	report, err := surveyor.Survey(ctx, model)
	require.NoError(t, err)
	require.Len(t, report.Observations, 1)
	assert.Equal(t, "first observation", report.Observations[0].ChangesSummary)

	report, err = surveyor.Survey(ctx, model)
	require.NoError(t, err)
	assert.Contains(t, report.Observations[0].ChangesSummary, "no change since")

	version = "bbb"
	report, err = surveyor.Survey(ctx, model)
	require.NoError(t, err)
	assert.Equal(t, "version aaa -> bbb", report.Observations[0].ChangesSummary)

	latest, err := st.models.LatestObservation(ctx, "distilbert-sentiment")
	require.NoError(t, err)
	assert.Equal(t, "bbb", latest.Version)
}

func TestSurveySkipsModelsThatFailVerification(t *testing.T) {
	t.Parallel()

	st := openStores(t)
	verifier := verifierFunc(func(_ context.Context, m domain.TrackedModel) (domain.ModelCheck, error) {
		if m.Name == "vader-sentiment" {
			return domain.ModelCheck{}, errors.New("404 Not Found")
		}
		return domain.ModelCheck{Version: "v1", Changes: "initial"}, nil
	})

	report, err := NewSurveyor(st.models, verifier, nil).Survey(context.Background(), tracked)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recorded)
	assert.Equal(t, []string{"vader-sentiment"}, report.Failed)
}
