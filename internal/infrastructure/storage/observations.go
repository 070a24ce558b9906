package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/ports"
)

var observationColumns = []string{
	"id", "model_name", "version", "checked_at", "performance_summary", "changes_summary",
}

// ModelTrackRepository owns the suivi_modeles table.
type ModelTrackRepository struct {
	db *DB
}

var _ ports.ModelTrackStore = (*ModelTrackRepository)(nil)

// NewModelTrackRepository wires a repository on an opened DB.
func NewModelTrackRepository(db *DB) *ModelTrackRepository {
	return &ModelTrackRepository{db: db}
}

// AppendObservation records one check of a tracked model.
func (r *ModelTrackRepository) AppendObservation(ctx context.Context, obs domain.ModelObservation) (domain.ModelObservation, error) {
	if r.db == nil || r.db.conn == nil {
		return domain.ModelObservation{}, fmt.Errorf("append observation: store is closed")
	}
	if obs.ModelName == "" {
		return domain.ModelObservation{}, fmt.Errorf("append observation: model name is empty")
	}

	r.db.writeMu.Lock()
	defer r.db.writeMu.Unlock()

	if obs.CheckedAt.IsZero() {
		obs.CheckedAt = r.db.stamp()
	}

	query, args, err := r.db.builder.
		Insert("suivi_modeles").
		Columns("model_name", "version", "checked_at", "performance_summary", "changes_summary").
		Values(obs.ModelName, obs.Version, encodeTime(obs.CheckedAt), obs.PerformanceSummary, obs.ChangesSummary).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.ModelObservation{}, fmt.Errorf("build observation insert: %w", err)
	}

	if err := r.db.conn.QueryRowContext(ctx, query, args...).Scan(&obs.ID); err != nil {
		return domain.ModelObservation{}, fmt.Errorf("insert observation: %w", err)
	}
	return obs, nil
}

// LatestObservation returns the most recent observation of a model or domain.ErrNotFound.
func (r *ModelTrackRepository) LatestObservation(ctx context.Context, modelName string) (domain.ModelObservation, error) {
	query, args, err := r.db.builder.
		Select(observationColumns...).
		From("suivi_modeles").
		Where(sq.Eq{"model_name": modelName}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.ModelObservation{}, fmt.Errorf("build latest observation: %w", err)
	}

	obs, err := scanObservation(r.db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ModelObservation{}, fmt.Errorf("model %s: %w", modelName, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ModelObservation{}, err
	}
	return obs, nil
}

// ListObservations returns observations newest first.
func (r *ModelTrackRepository) ListObservations(ctx context.Context, limit int) ([]domain.ModelObservation, error) {
	builder := r.db.builder.
		Select(observationColumns...).
		From("suivi_modeles").
		OrderBy("checked_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build observation list: %w", err)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []domain.ModelObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (domain.ModelObservation, error) {
	var (
		obs       domain.ModelObservation
		checkedAt string
	)
	err := row.Scan(&obs.ID, &obs.ModelName, &obs.Version, &checkedAt, &obs.PerformanceSummary, &obs.ChangesSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ModelObservation{}, err
	}
	if err != nil {
		return domain.ModelObservation{}, fmt.Errorf("scan observation: %w", err)
	}
	if obs.CheckedAt, err = decodeTime(checkedAt); err != nil {
		return domain.ModelObservation{}, fmt.Errorf("observation %d checked_at: %w", obs.ID, err)
	}
	return obs, nil
}
