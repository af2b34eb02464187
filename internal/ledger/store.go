// Package ledger is the durable action ledger (spec §5): a SQLite-backed
// append-mostly store for telemetry, forecasts, anomalies, actions,
// receipts, and audit entries, with the HTTP surface's read queries layered
// on top.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite"
)

// ErrNewerSchema is returned when the database was created by a schema
// version newer than this binary understands.
var ErrNewerSchema = fmt.Errorf("ledger: database schema is newer than this binary")

// SchemaVersion is the running binary's schema version, checked against
// the stored version on open (spec §5 "schema-version guard").
const SchemaVersion = "v1.0.0"

// Ledger is the durable store behind the engine and the HTTP read surface.
// Per spec §5 it is process-wide: a single Ledger is opened once in
// cmd/sentinel and shared by every component that needs persistence.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or opens) a SQLite database at path, applies the reference
// pragma set for a single-writer/WAL workload, runs pending migrations,
// and checks the schema version.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-20000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	l := &Ledger{db: db}

	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := l.checkVersion(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return l, nil
}

// DB returns the underlying *sql.DB for ad-hoc queries (test helpers).
func (l *Ledger) DB() *sql.DB {
	return l.db
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Ping checks the database connection, as consumed by the HTTP surface's
// GET /health.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// tx runs fn inside a transaction, serialized against other tx callers via
// l.mu; single-statement writes do not take l.mu and are serialized only by
// the pool's single connection (SetMaxOpenConns(1) in Open). Commits on nil,
// rolls back otherwise.
func (l *Ledger) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

func (l *Ledger) migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	for _, m := range migrations() {
		var count int
		if err := l.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM _migrations WHERE version = ?", m.version,
		).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		if err := l.tx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			_, err := tx.Exec(
				"INSERT INTO _migrations (version, description) VALUES (?, ?)",
				m.version, m.description,
			)
			return err
		}); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
	}
	return nil
}

func (l *Ledger) checkVersion(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _schema_meta (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			version      TEXT NOT NULL,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("ensure schema meta table: %w", err)
	}

	var stored string
	err := l.db.QueryRowContext(ctx, "SELECT version FROM _schema_meta WHERE id = 1").Scan(&stored)
	if err == sql.ErrNoRows {
		_, err = l.db.ExecContext(ctx,
			"INSERT INTO _schema_meta (id, version) VALUES (1, ?)", SchemaVersion)
		return err
	}
	if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	if semver.Compare(SchemaVersion, stored) < 0 {
		return fmt.Errorf("%w: database=%s, binary=%s", ErrNewerSchema, stored, SchemaVersion)
	}
	if semver.Compare(SchemaVersion, stored) > 0 {
		_, err = l.db.ExecContext(ctx,
			"UPDATE _schema_meta SET version = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1", SchemaVersion)
		return err
	}
	return nil
}
