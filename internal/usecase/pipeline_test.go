package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VeilleScanner/internal/config"
	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/infrastructure/parser"
	"VeilleScanner/internal/scanner"
)

const sentimentFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Fixture</title><link>https://example.org</link><description>fixture</description>
<item><title>Aspect-based sentiment with transformers</title><link>https://example.org/a</link><description>A study.</description></item>
<item><title>Graph databases at scale</title><link>https://example.org/b</link><description>Nothing relevant.</description></item>
<item><title>Multilingual reviews</title><link>https://example.org/c</link><description>Cross-lingual sentiment transfer.</description></item>
</channel></rss>`

func newPipeline(st stores, sources []scanner.Source, notifier *recordingNotifier) *Pipeline {
	deps := PipelineDeps{
		Sources:     sources,
		Collector:   NewCollector(st.resources, nil),
		Surveyor:    NewSurveyor(st.models, StaticVerifier{Performance: "Accuracy: 89.5%"}, nil),
		Tracked:     tracked,
		AlertEngine: NewAlertEngine(st.resources, st.alerts, DefaultAlertRules(), nil),
		Concurrency: 2,
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	return NewPipeline(deps)
}

func TestRunCollectsRelevantFeedEntries(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sentimentFeed))
	}))
	defer server.Close()

	reg := scanner.NewRegistry()
	parser.RegisterDefaults(reg, parser.NewFetcher(server.Client(), "", nil), nil)
	sources, err := parser.BuildSources(reg, []config.SourceConfig{{
		Name:         "medium_articles",
		Kind:         config.KindFeed,
		URL:          server.URL,
		Keywords:     []string{"sentiment"},
		Limit:        10,
		ResourceType: "article",
	}})
	require.NoError(t, err)

	st := openStores(t)
	pipeline := newPipeline(st, sources, nil)
	ctx := context.Background()

	result, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, result.Status)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.Collected)
	assert.Equal(t, 2, result.Survey.Recorded)
	assert.Empty(t, result.Alerts)

	stored, err := st.resources.QueryRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, r := range stored {
		assert.Equal(t, "medium_articles", r.Source)
		assert.Equal(t, domain.ResourceNew, r.Status)
		assert.InDelta(t, 0.8, r.RelevanceScore, 1e-9)
	}

	again, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Collected)
	require.Len(t, again.Sources, 1)
	assert.Equal(t, 2, again.Sources[0].Duplicates)
}

func TestRunContinuesAfterSourceFailure(t *testing.T) {
	t.Parallel()

	st := openStores(t)
	notifier := &recordingNotifier{}
	sources := []scanner.Source{
		&stubSource{name: "arxiv_papers", err: errors.New("timeout")},
		&stubSource{name: "github", candidates: candidates("github", "state-of-the-art sentiment toolkit")},
	}

	result, err := newPipeline(st, sources, notifier).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Collected)
	assert.Equal(t, 2, result.Survey.Recorded)
	require.Len(t, result.Alerts, 1)
	assert.Equal(t, domain.AlertCriticalContent, result.Alerts[0].Type)
	require.Len(t, notifier.published, 1)
	assert.Len(t, notifier.published[0], 1)
}

func TestRunAbortsOnStoreFailure(t *testing.T) {
	t.Parallel()

	st := openStores(t)
	sources := []scanner.Source{&stubSource{name: "github", candidates: candidates("github", "repo")}}
	pipeline := NewPipeline(PipelineDeps{
		Sources:     sources,
		Collector:   NewCollector(brokenResourceStore{}, nil),
		Surveyor:    NewSurveyor(st.models, nil, nil),
		Tracked:     tracked,
		AlertEngine: NewAlertEngine(st.resources, st.alerts, DefaultAlertRules(), nil),
	})

	result, err := pipeline.Run(context.Background())
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageCollect, stageErr.Stage)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, RunAborted, result.Status)
	assert.Equal(t, StageCollect, result.FailedStage)
	assert.Zero(t, result.Survey.Recorded)

	obs, err := st.models.ListObservations(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestNotifyFailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	st := openStores(t)
	notifier := &recordingNotifier{err: errors.New("telegram: 502")}
	seed(t, st, "breakthrough")

	result, err := newPipeline(st, nil, notifier).EvaluateAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, result.Status)
	assert.Len(t, result.Alerts, 1)
	assert.Contains(t, result.NotifyError, "502")
}

func TestPartialRunsOnlyTouchTheirStage(t *testing.T) {
	t.Parallel()

	st := openStores(t)
	src := &stubSource{name: "github", candidates: candidates("github", "breakthrough repo")}
	pipeline := newPipeline(st, []scanner.Source{src}, nil)
	ctx := context.Background()

	survey, err := pipeline.Survey(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, survey.Survey.Recorded)
	assert.Zero(t, src.calls)

	collected, err := pipeline.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, collected.Collected)
	assert.Empty(t, collected.Alerts)

	alerts, err := pipeline.EvaluateAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, alerts.Alerts, 1)
	assert.Equal(t, 1, src.calls)
}

func TestRunHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	st := openStores(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newPipeline(st, nil, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StageCollect, result.FailedStage)
}
