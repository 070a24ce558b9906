package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VeilleScanner/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()

	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "veille.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func resource(url, title string) domain.Resource {
	return domain.NewResource(domain.Candidate{
		Title:        title,
		URL:          url,
		Source:       "arxiv_papers",
		ResourceType: domain.ResourceArticle,
		Summary:      "summary of " + title,
	})
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "veille.db")
	ctx := context.Background()

	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	var version int
	require.NoError(t, second.conn.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version))
	assert.Equal(t, SchemaVersion(), version)
	assert.Equal(t, "sqlite", second.Dialect())
}

func TestInsertIfAbsentRejectsDuplicateURL(t *testing.T) {
	t.Parallel()

	repo := NewResourceRepository(openTestDB(t))
	ctx := context.Background()

	added, err := repo.InsertIfAbsent(ctx, resource("https://example.org/a", "first"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.InsertIfAbsent(ctx, resource("https://example.org/a", "second title"))
	require.NoError(t, err)
	assert.False(t, added)

	all, err := repo.QueryRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "first", all[0].Title)
	assert.Equal(t, domain.ResourceNew, all[0].Status)
	assert.InDelta(t, domain.DefaultRelevanceScore, all[0].RelevanceScore, 1e-9)
}

func TestInsertIfAbsentConcurrentDuplicatesHaveOneWinner(t *testing.T) {
	t.Parallel()

	repo := NewResourceRepository(openTestDB(t))
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			added, err := repo.InsertIfAbsent(ctx, resource("https://example.org/race", fmt.Sprintf("racer %d", i)))
			assert.NoError(t, err)
			if added {
				winners.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	count, err := repo.CountSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInsertKeepsOptionalFields(t *testing.T) {
	t.Parallel()

	repo := NewResourceRepository(openTestDB(t))
	ctx := context.Background()

	published := time.Date(2025, time.March, 4, 10, 30, 0, 0, time.UTC)
	res := resource("https://example.org/p", "with date")
	res.PublishedAt = &published
	res.Keywords = "sentiment, nlp"

	_, err := repo.InsertIfAbsent(ctx, res)
	require.NoError(t, err)
	_, err = repo.InsertIfAbsent(ctx, resource("https://example.org/q", "no date"))
	require.NoError(t, err)

	all, err := repo.QueryRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	byURL := map[string]domain.Resource{}
	for _, r := range all {
		byURL[r.URL] = r
	}
	require.NotNil(t, byURL["https://example.org/p"].PublishedAt)
	assert.True(t, published.Equal(*byURL["https://example.org/p"].PublishedAt))
	assert.Equal(t, "sentiment, nlp", byURL["https://example.org/p"].Keywords)
	assert.Nil(t, byURL["https://example.org/q"].PublishedAt)
	assert.Empty(t, byURL["https://example.org/q"].Keywords)
}

func TestCollectedAtNeverGoesBackwards(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	repo := NewResourceRepository(openTestDB(t, WithClock(clock.Now)))
	ctx := context.Background()

	_, err := repo.InsertIfAbsent(ctx, resource("https://example.org/1", "one"))
	require.NoError(t, err)

	clock.Set(base.Add(-time.Hour))
	_, err = repo.InsertIfAbsent(ctx, resource("https://example.org/2", "two"))
	require.NoError(t, err)

	all, err := repo.QueryRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "two", all[0].Title)
	assert.False(t, all[0].CollectedAt.Before(all[1].CollectedAt))
}

func TestCollectedAtSurvivesReopenWithEarlierClock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "veille.db")
	ctx := context.Background()
	base := time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)

	first, err := Open(ctx, path, WithClock(func() time.Time { return base }))
	require.NoError(t, err)
	_, err = NewResourceRepository(first).InsertIfAbsent(ctx, resource("https://example.org/1", "one"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(ctx, path, WithClock(func() time.Time { return base.Add(-time.Hour) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	repo := NewResourceRepository(second)
	_, err = repo.InsertIfAbsent(ctx, resource("https://example.org/2", "two"))
	require.NoError(t, err)

	all, err := repo.QueryRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "two", all[0].Title)
	assert.True(t, all[0].CollectedAt.Equal(base))
	assert.False(t, all[0].CollectedAt.Before(all[1].CollectedAt))
}

func TestCountSinceAndQueryRecentOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	repo := NewResourceRepository(openTestDB(t, WithClock(clock.Now)))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Hour))
		_, err := repo.InsertIfAbsent(ctx, resource(fmt.Sprintf("https://example.org/%d", i), fmt.Sprintf("item %d", i)))
		require.NoError(t, err)
	}

	count, err := repo.CountSince(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count, "strictly after the boundary")

	recent, err := repo.QueryRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "item 3", recent[0].Title)
	assert.Equal(t, "item 2", recent[1].Title)
}

func TestFindByTitlePatternsIsCaseSensitive(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	repo := NewResourceRepository(openTestDB(t, WithClock(clock.Now)))
	ctx := context.Background()

	titles := []string{
		"A breakthrough in emotion detection",
		"Breakthrough upper case is ignored",
		"state-of-the-art sentiment",
		"plain title",
	}
	for i, title := range titles {
		_, err := repo.InsertIfAbsent(ctx, resource(fmt.Sprintf("https://example.org/t%d", i), title))
		require.NoError(t, err)
	}

	matches, err := repo.FindByTitlePatterns(ctx, []string{"breakthrough", "state-of-the-art"}, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []domain.TitleMatch{
		{Title: titles[0], URL: "https://example.org/t0"},
		{Title: titles[2], URL: "https://example.org/t2"},
	}, matches)

	none, err := repo.FindByTitlePatterns(ctx, []string{"breakthrough"}, base)
	require.NoError(t, err)
	assert.Empty(t, none)

	none, err = repo.FindByTitlePatterns(ctx, nil, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAlertRepositoryLifecycle(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	repo := NewAlertRepository(openTestDB(t, WithClock(clock.Now)))
	ctx := context.Background()

	volume, err := repo.AppendAlert(ctx, domain.Alert{Type: domain.AlertVolumeHigh, Message: "6 in 24h"})
	require.NoError(t, err)
	assert.Positive(t, volume.ID)
	assert.Equal(t, domain.AlertActive, volume.Status)
	assert.True(t, base.Equal(volume.CreatedAt))

	clock.Set(base.Add(time.Minute))
	critical, err := repo.AppendAlert(ctx, domain.Alert{
		Type:         domain.AlertCriticalContent,
		Message:      "critical",
		ReferenceURL: "https://example.org/x",
	})
	require.NoError(t, err)

	has, err := repo.HasActiveAlert(ctx, domain.AlertCriticalContent, "https://example.org/x", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasActiveAlert(ctx, domain.AlertVolumeHigh, "", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, repo.SetStatus(ctx, critical.ID, domain.AlertResolved))

	has, err = repo.HasActiveAlert(ctx, domain.AlertCriticalContent, "https://example.org/x", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, has)

	active, err := repo.ListAlerts(ctx, domain.AlertActive, 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, volume.ID, active[0].ID)

	all, err := repo.ListAlerts(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, critical.ID, all[0].ID)
	assert.Equal(t, "https://example.org/x", all[0].ReferenceURL)

	err = repo.SetStatus(ctx, 9999, domain.AlertResolved)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestModelTrackRepository(t *testing.T) {
	t.Parallel()

	repo := NewModelTrackRepository(openTestDB(t))
	ctx := context.Background()

	_, err := repo.LatestObservation(ctx, "textblob")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, version := range []string{"v1", "v2"} {
		_, err := repo.AppendObservation(ctx, domain.ModelObservation{
			ModelName:          "textblob",
			Version:            version,
			PerformanceSummary: "Accuracy: 89.5%",
		})
		require.NoError(t, err)
	}

	latest, err := repo.LatestObservation(ctx, "textblob")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Version)

	all, err := repo.ListObservations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.AppendObservation(ctx, domain.ModelObservation{})
	assert.Error(t, err)
}

func TestPostgresDialect(t *testing.T) {
	dsn := os.Getenv("VEILLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VEILLE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, "postgres", db.Dialect())

	repo := NewResourceRepository(db)
	url := fmt.Sprintf("https://example.org/pg-%d", time.Now().UnixNano())

	added, err := repo.InsertIfAbsent(ctx, resource(url, "postgres breakthrough"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.InsertIfAbsent(ctx, resource(url, "again"))
	require.NoError(t, err)
	assert.False(t, added)

	matches, err := repo.FindByTitlePatterns(ctx, []string{"postgres breakthrough"}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}
