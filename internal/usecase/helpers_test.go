package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/infrastructure/storage"
)

type stores struct {
	db        *storage.DB
	resources *storage.ResourceRepository
	models    *storage.ModelTrackRepository
	alerts    *storage.AlertRepository
}

func openStores(t *testing.T) stores {
	t.Helper()

	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "veille.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return stores{
		db:        db,
		resources: storage.NewResourceRepository(db),
		models:    storage.NewModelTrackRepository(db),
		alerts:    storage.NewAlertRepository(db),
	}
}

// stubSource returns a fixed candidate list or error.
type stubSource struct {
	name       string
	candidates []domain.Candidate
	err        error
	calls      int
	mu         sync.Mutex
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Kind() string { return "stub" }

func (s *stubSource) Fetch(context.Context) ([]domain.Candidate, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Candidate(nil), s.candidates...), nil
}

func candidates(source string, titles ...string) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(titles))
	for i, title := range titles {
		out = append(out, domain.Candidate{
			Title:        title,
			URL:          fmt.Sprintf("https://example.org/%s/%d", source, i),
			Source:       source,
			ResourceType: domain.ResourceArticle,
			Summary:      "about " + title,
		})
	}
	return out
}

var errStoreDown = errors.New("database is locked")

// brokenResourceStore fails every call.
type brokenResourceStore struct{}

func (brokenResourceStore) InsertIfAbsent(context.Context, domain.Resource) (bool, error) {
	return false, errStoreDown
}

func (brokenResourceStore) CountSince(context.Context, time.Time) (int, error) {
	return 0, errStoreDown
}

func (brokenResourceStore) FindByTitlePatterns(context.Context, []string, time.Time) ([]domain.TitleMatch, error) {
	return nil, errStoreDown
}

func (brokenResourceStore) QueryRecent(context.Context, int) ([]domain.Resource, error) {
	return nil, errStoreDown
}

type recordingNotifier struct {
	published [][]domain.Alert
	err       error
}

func (n *recordingNotifier) PublishAlerts(_ context.Context, alerts []domain.Alert) error {
	n.published = append(n.published, alerts)
	return n.err
}

type verifierFunc func(context.Context, domain.TrackedModel) (domain.ModelCheck, error)

func (f verifierFunc) Verify(ctx context.Context, m domain.TrackedModel) (domain.ModelCheck, error) {
	return f(ctx, m)
}
