package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/ports"
)

var resourceColumns = []string{
	"id", "title", "url", "source", "publication_date", "collected_at",
	"resource_type", "keywords", "summary", "relevance_score", "status",
}

// ResourceRepository owns the resources table.
type ResourceRepository struct {
	db *DB
}

var _ ports.ResourceStore = (*ResourceRepository)(nil)

// NewResourceRepository wires a repository on an opened DB.
func NewResourceRepository(db *DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// InsertIfAbsent stores the resource unless its URL is already known.
// It reports false, without error, for a duplicate URL.
func (r *ResourceRepository) InsertIfAbsent(ctx context.Context, resource domain.Resource) (bool, error) {
	if r.db == nil || r.db.conn == nil {
		return false, fmt.Errorf("insert resource: store is closed")
	}
	if resource.URL == "" {
		return false, fmt.Errorf("insert resource: url is empty")
	}
	if resource.Status == "" {
		resource.Status = domain.ResourceNew
	}

	r.db.writeMu.Lock()
	defer r.db.writeMu.Unlock()

	query, args, err := r.db.builder.
		Insert("resources").
		Columns("title", "url", "source", "publication_date", "collected_at",
			"resource_type", "keywords", "summary", "relevance_score", "status").
		Values(
			resource.Title,
			resource.URL,
			resource.Source,
			nullableTime(resource.PublishedAt),
			encodeTime(r.db.stamp()),
			string(resource.ResourceType),
			nullableString(resource.Keywords),
			resource.Summary,
			resource.RelevanceScore,
			string(resource.Status),
		).
		Suffix("ON CONFLICT (url) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build resource insert: %w", err)
	}

	var id int64
	err = r.db.conn.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert resource: %w", err)
	}

	return true, nil
}

// CountSince counts resources collected strictly after since.
func (r *ResourceRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	query, args, err := r.db.builder.
		Select("COUNT(*)").
		From("resources").
		Where(sq.Gt{"collected_at": encodeTime(since)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build resource count: %w", err)
	}

	var count int
	if err := r.db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count resources: %w", err)
	}
	return count, nil
}

// FindByTitlePatterns returns resources collected after since whose title
// contains any pattern. Matching is case-sensitive; results follow insertion order.
func (r *ResourceRepository) FindByTitlePatterns(ctx context.Context, patterns []string, since time.Time) ([]domain.TitleMatch, error) {
	anyOf := sq.Or{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		anyOf = append(anyOf, sq.Expr(r.db.dialect.containsFn+"(title, ?) > 0", p))
	}
	if len(anyOf) == 0 {
		return nil, nil
	}

	query, args, err := r.db.builder.
		Select("title", "url").
		From("resources").
		Where(sq.And{anyOf, sq.Gt{"collected_at": encodeTime(since)}}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build title lookup: %w", err)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query titles: %w", err)
	}
	defer rows.Close()

	var matches []domain.TitleMatch
	for rows.Next() {
		var m domain.TitleMatch
		if err := rows.Scan(&m.Title, &m.URL); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return matches, nil
}

// QueryRecent lists resources newest first. A non-positive limit returns all rows.
func (r *ResourceRepository) QueryRecent(ctx context.Context, limit int) ([]domain.Resource, error) {
	builder := r.db.builder.
		Select(resourceColumns...).
		From("resources").
		OrderBy("collected_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent resources: %w", err)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	var resources []domain.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return resources, nil
}

func scanResource(rows *sql.Rows) (domain.Resource, error) {
	var (
		res         domain.Resource
		published   sql.NullString
		collectedAt string
		kind        string
		keywords    sql.NullString
		status      string
	)
	err := rows.Scan(&res.ID, &res.Title, &res.URL, &res.Source, &published, &collectedAt,
		&kind, &keywords, &res.Summary, &res.RelevanceScore, &status)
	if err != nil {
		return domain.Resource{}, fmt.Errorf("scan resource: %w", err)
	}

	res.PublishedAt, err = decodeNullTime(published)
	if err != nil {
		return domain.Resource{}, fmt.Errorf("resource %d publication_date: %w", res.ID, err)
	}
	res.CollectedAt, err = decodeTime(collectedAt)
	if err != nil {
		return domain.Resource{}, fmt.Errorf("resource %d collected_at: %w", res.ID, err)
	}
	res.ResourceType = domain.ResourceType(kind)
	res.Keywords = keywords.String
	res.Status = domain.ResourceStatus(status)
	return res, nil
}
