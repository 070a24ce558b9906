package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/ports"
)

// AlertRepository owns the alertes table.
type AlertRepository struct {
	db *DB
}

var _ ports.AlertStore = (*AlertRepository)(nil)

// NewAlertRepository wires a repository on an opened DB.
func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// AppendAlert stores a new alert and returns it with ID and CreatedAt filled.
func (r *AlertRepository) AppendAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	if r.db == nil || r.db.conn == nil {
		return domain.Alert{}, fmt.Errorf("append alert: store is closed")
	}
	if alert.Status == "" {
		alert.Status = domain.AlertActive
	}

	r.db.writeMu.Lock()
	defer r.db.writeMu.Unlock()

	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = r.db.stamp()
	}

	query, args, err := r.db.builder.
		Insert("alertes").
		Columns("alert_type", "message", "created_at", "status", "reference_url").
		Values(string(alert.Type), alert.Message, encodeTime(alert.CreatedAt), string(alert.Status), nullableString(alert.ReferenceURL)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Alert{}, fmt.Errorf("build alert insert: %w", err)
	}

	if err := r.db.conn.QueryRowContext(ctx, query, args...).Scan(&alert.ID); err != nil {
		return domain.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return alert, nil
}

// HasActiveAlert reports whether an active alert of the given type and
// reference was created after since. An empty reference matches NULL.
func (r *AlertRepository) HasActiveAlert(ctx context.Context, alertType domain.AlertType, referenceURL string, since time.Time) (bool, error) {
	query, args, err := r.db.builder.
		Select("COUNT(*)").
		From("alertes").
		Where(sq.Eq{
			"alert_type":    string(alertType),
			"status":        string(domain.AlertActive),
			"reference_url": nullableString(referenceURL),
		}).
		Where(sq.Gt{"created_at": encodeTime(since)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build active alert lookup: %w", err)
	}

	var count int
	if err := r.db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("count active alerts: %w", err)
	}
	return count > 0, nil
}

// ListAlerts returns alerts newest first, optionally filtered by status.
func (r *AlertRepository) ListAlerts(ctx context.Context, status domain.AlertStatus, limit int) ([]domain.Alert, error) {
	builder := r.db.builder.
		Select("id", "alert_type", "message", "created_at", "status", "reference_url").
		From("alertes").
		OrderBy("created_at DESC", "id DESC")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build alert list: %w", err)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var (
			a         domain.Alert
			kind      string
			createdAt string
			state     string
			ref       sql.NullString
		)
		if err := rows.Scan(&a.ID, &kind, &a.Message, &createdAt, &state, &ref); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if a.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, fmt.Errorf("alert %d created_at: %w", a.ID, err)
		}
		a.Type = domain.AlertType(kind)
		a.Status = domain.AlertStatus(state)
		a.ReferenceURL = ref.String
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return alerts, nil
}

// SetStatus transitions an alert, e.g. to resolved. Unknown IDs yield domain.ErrNotFound.
func (r *AlertRepository) SetStatus(ctx context.Context, id int64, status domain.AlertStatus) error {
	query, args, err := r.db.builder.
		Update("alertes").
		Set("status", string(status)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build alert status update: %w", err)
	}

	res, err := r.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alert status: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alert %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
