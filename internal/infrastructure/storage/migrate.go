package storage

import (
	"context"
	"fmt"
)

type migration struct {
	Version int
	Name    string
	Up      func(d dialect) []string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "veille_schema",
		Up: func(d dialect) []string {
			return []string{
				`CREATE TABLE IF NOT EXISTS resources (
					id ` + d.idColumn + `,
					title TEXT NOT NULL,
					url TEXT NOT NULL UNIQUE,
					source TEXT NOT NULL,
					publication_date TEXT NULL,
					collected_at TEXT NOT NULL,
					resource_type TEXT NOT NULL,
					keywords TEXT NULL,
					summary TEXT NOT NULL DEFAULT '',
					relevance_score ` + d.realColumn + ` NOT NULL,
					status TEXT NOT NULL DEFAULT 'new'
				)`,
				`CREATE TABLE IF NOT EXISTS suivi_modeles (
					id ` + d.idColumn + `,
					model_name TEXT NOT NULL,
					version TEXT NOT NULL,
					checked_at TEXT NOT NULL,
					performance_summary TEXT NOT NULL DEFAULT '',
					changes_summary TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE TABLE IF NOT EXISTS alertes (
					id ` + d.idColumn + `,
					alert_type TEXT NOT NULL,
					message TEXT NOT NULL,
					created_at TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					reference_url TEXT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_resources_collected_at ON resources(collected_at)`,
				`CREATE INDEX IF NOT EXISTS idx_suivi_modeles_name ON suivi_modeles(model_name, id)`,
				`CREATE INDEX IF NOT EXISTS idx_alertes_type_status ON alertes(alert_type, status, created_at)`,
			}
		},
	},
}

// SchemaVersion is the latest migration version known to this binary.
func SchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

// Migrate applies pending migrations, each inside its own transaction.
func (d *DB) Migrate(ctx context.Context) error {
	if d == nil || d.conn == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := d.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = d.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := d.apply(ctx, m); err != nil {
			return err
		}
	}

	return nil
}

func (d *DB) apply(ctx context.Context, m migration) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate %d: begin transaction: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Up(d.dialect) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %d (%s): %w", m.Version, m.Name, err)
		}
	}

	query, args, err := d.builder.
		Insert("schema_migrations").
		Columns("version", "name", "applied_at").
		Values(m.Version, m.Name, encodeTime(d.now())).
		ToSql()
	if err != nil {
		return fmt.Errorf("migrate %d: build version insert: %w", m.Version, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("migrate %d: record schema version: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate %d: commit transaction: %w", m.Version, err)
	}
	return nil
}
