// internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate")
)

// timeLayout is fixed-width so that stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	source              TEXT NOT NULL DEFAULT 'stripe',
	provider_event_id   TEXT,
	event_type          TEXT,
	status              TEXT NOT NULL DEFAULT 'verified',
	signature           TEXT,
	livemode            INTEGER,
	created_at_provider TEXT,
	raw                 TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	CONSTRAINT uq_events_provider_event_id UNIQUE (provider_event_id)
);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);

CREATE TABLE IF NOT EXISTS anomalies (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	rule_code         TEXT NOT NULL,
	severity          TEXT NOT NULL,
	title             TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'open',
	event_type        TEXT,
	provider_event_id TEXT,
	window_start      TEXT,
	window_end        TEXT,
	detected_at       TEXT NOT NULL,
	evidence          TEXT NOT NULL DEFAULT '{}',
	acknowledged_at   TEXT,
	resolved_at       TEXT,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anomalies_rule_code ON anomalies(rule_code);
CREATE INDEX IF NOT EXISTS idx_anomalies_status ON anomalies(status);
CREATE INDEX IF NOT EXISTS idx_anomalies_detected_at ON anomalies(detected_at);

CREATE TABLE IF NOT EXISTS daily_summary_deliveries (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	kind           TEXT NOT NULL,
	summary_date   TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	window_start   TEXT,
	window_end     TEXT,
	delivered_at   TEXT,
	used_ai        INTEGER,
	ai_error       TEXT,
	slack_response TEXT,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	CONSTRAINT uq_daily_summary_kind_date UNIQUE (kind, summary_date)
);
CREATE INDEX IF NOT EXISTS idx_daily_summary_status ON daily_summary_deliveries(status);
`

// DB is the SQLite handle shared by the event, anomaly and delivery stores.
type DB struct {
	sql  *sql.DB
	path string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) the database file and applies the schema.
// Write transactions start with BEGIN IMMEDIATE so concurrent writers
// serialize on the database lock instead of failing on upgrade.
func Open(path string, busyTimeoutMs int) (*DB, error) {
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate", path, busyTimeoutMs)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{sql: sqlDB, path: path}
	if err := db.initSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return db, nil
}

func (db *DB) initSchema() error {
	_, err := db.sql.Exec(schema)
	return err
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Ping checks that the database answers a trivial query.
func (db *DB) Ping(ctx context.Context) error {
	var one int
	return db.sql.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// WithTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}

func scanNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func scanNullBool(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	b := nb.Bool
	return &b
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
