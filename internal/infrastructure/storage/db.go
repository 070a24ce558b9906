package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type dialect struct {
	name        string
	driver      string
	placeholder sq.PlaceholderFormat
	containsFn  string
	idColumn    string
	realColumn  string
}

var (
	sqliteDialect = dialect{
		name:        "sqlite",
		driver:      "sqlite",
		placeholder: sq.Question,
		containsFn:  "instr",
		idColumn:    "INTEGER PRIMARY KEY AUTOINCREMENT",
		realColumn:  "REAL",
	}
	postgresDialect = dialect{
		name:        "postgres",
		driver:      "postgres",
		placeholder: sq.Dollar,
		containsFn:  "strpos",
		idColumn:    "BIGSERIAL PRIMARY KEY",
		realColumn:  "DOUBLE PRECISION",
	}
)

// DB is the shared handle behind the resource, model and alert repositories.
type DB struct {
	conn    *sql.DB
	dialect dialect
	builder sq.StatementBuilderType

	// writeMu serialises timestamp assignment with the write that uses it,
	// so collected_at never goes backwards in insertion order.
	writeMu   sync.Mutex
	lastStamp time.Time
	now       func() time.Time
}

// Option customises a DB at open time.
type Option func(*DB)

// WithClock overrides the time source used for collected_at, checked_at and created_at.
func WithClock(now func() time.Time) Option {
	return func(d *DB) {
		if now != nil {
			d.now = now
		}
	}
}

// Open connects to the store described by dsn and applies migrations.
// DSNs starting with postgres:// or postgresql:// use Postgres; anything
// else is a SQLite file path (or a file: URI).
func Open(ctx context.Context, dsn string, opts ...Option) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("open: empty dsn")
	}

	d := &DB{now: time.Now}
	for _, opt := range opts {
		opt(d)
	}

	var (
		conn *sql.DB
		err  error
	)
	if isPostgresDSN(dsn) {
		d.dialect = postgresDialect
		conn, err = sql.Open(d.dialect.driver, dsn)
	} else {
		d.dialect = sqliteDialect
		conn, err = openSQLite(dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open: ping: %w", err)
	}

	d.conn = conn
	d.builder = sq.StatementBuilder.PlaceholderFormat(d.dialect.placeholder)

	if err := d.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open: migrate: %w", err)
	}

	if err := d.seedStamp(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open: %w", err)
	}

	return d, nil
}

// seedStamp restores lastStamp from stored rows so a clock that moved back
// between processes cannot stamp earlier than existing resources.
func (d *DB) seedStamp(ctx context.Context) error {
	query, args, err := d.builder.Select("MAX(collected_at)").From("resources").ToSql()
	if err != nil {
		return fmt.Errorf("build last stamp: %w", err)
	}

	var last sql.NullString
	if err := d.conn.QueryRowContext(ctx, query, args...).Scan(&last); err != nil {
		return fmt.Errorf("load last stamp: %w", err)
	}
	stamp, err := decodeNullTime(last)
	if err != nil {
		return fmt.Errorf("load last stamp: %w", err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if stamp != nil {
		d.lastStamp = stamp.UTC()
	}
	return nil
}

func openSQLite(path string) (*sql.DB, error) {
	dsn := path
	if !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = "file:" + path + "?mode=rwc"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	conn, err := sql.Open(sqliteDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}

	// SQLite is single-writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	return conn, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Dialect names the backing database ("sqlite" or "postgres").
func (d *DB) Dialect() string {
	return d.dialect.name
}

// Ping checks that the store is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.conn == nil {
		return fmt.Errorf("ping: store is closed")
	}
	return d.conn.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// stamp returns the current time, never earlier than the previous stamp.
// Callers must hold writeMu.
func (d *DB) stamp() time.Time {
	now := d.now().UTC()
	if now.Before(d.lastStamp) {
		now = d.lastStamp
	}
	d.lastStamp = now
	return now
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decodeNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := decodeTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
