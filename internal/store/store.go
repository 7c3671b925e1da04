// Package store provides the SQLite-backed ingestion ledger. The ledger
// remembers, per collection and document key, which point was written and
// the hash of the text it was built from, so unchanged Notion pages are not
// re-embedded on the next ingest.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/karthikgk97/notion-llm/internal/config"
)

// Entry is one ingested document.
type Entry struct {
	// Collection is the vector collection the point was written to.
	Collection string
	// Key is the document key (the Notion page title).
	Key string
	// PointID is the id of the point built from the document.
	PointID string
	// ContentSHA256 is the hex SHA-256 of the embedded text.
	ContentSHA256 string
	// IngestedAt is when the entry was last recorded.
	IngestedAt time.Time
}

// Ledger records ingested documents per collection. Implementations must be
// safe for concurrent use.
type Ledger interface {
	// Lookup returns the entry for key in collection. ok is false when the
	// key has never been recorded.
	Lookup(ctx context.Context, collection, key string) (e Entry, ok bool, err error)
	// Record inserts or replaces the entry for (e.Collection, e.Key).
	Record(ctx context.Context, e Entry) error
	// List returns the entries of collection ordered by key.
	List(ctx context.Context, collection string) ([]Entry, error)
	// Forget removes every entry of collection and returns how many were removed.
	Forget(ctx context.Context, collection string) (int64, error)
	// Close releases any resources held by the ledger.
	Close() error
}

// SQLiteLedger is a Ledger backed by a local SQLite database.
type SQLiteLedger struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default ledger path, ~/.notion-llm/ledger.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	dir := config.Dir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "ledger.db"), nil
}

// Open opens (or creates) a SQLiteLedger at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteLedger, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// migrate creates the schema if it does not already exist.
func (l *SQLiteLedger) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS ingested (
    collection     TEXT    NOT NULL,
    key            TEXT    NOT NULL,
    point_id       TEXT    NOT NULL,
    content_sha256 TEXT    NOT NULL,
    ingested_at    INTEGER NOT NULL,  -- Unix timestamp (seconds)
    PRIMARY KEY (collection, key)
);
`
	if _, err := l.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Lookup returns the entry for key in collection.
func (l *SQLiteLedger) Lookup(ctx context.Context, collection, key string) (Entry, bool, error) {
	const q = `SELECT point_id, content_sha256, ingested_at FROM ingested WHERE collection = ? AND key = ?`

	e := Entry{Collection: collection, Key: key}
	var ts int64
	err := l.db.QueryRowContext(ctx, q, collection, key).Scan(&e.PointID, &e.ContentSHA256, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("store: lookup: %w", err)
	}
	e.IngestedAt = time.Unix(ts, 0)
	return e, true, nil
}

// Record inserts or replaces the entry for (e.Collection, e.Key). A zero
// IngestedAt is stamped with the current time.
func (l *SQLiteLedger) Record(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO ingested (collection, key, point_id, content_sha256, ingested_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (collection, key) DO UPDATE SET
    point_id       = excluded.point_id,
    content_sha256 = excluded.content_sha256,
    ingested_at    = excluded.ingested_at`

	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now()
	}
	if _, err := l.db.ExecContext(ctx, q, e.Collection, e.Key, e.PointID, e.ContentSHA256, e.IngestedAt.Unix()); err != nil {
		return fmt.Errorf("store: record: %w", err)
	}
	return nil
}

// List returns the entries of collection ordered by key.
func (l *SQLiteLedger) List(ctx context.Context, collection string) ([]Entry, error) {
	const q = `
SELECT key, point_id, content_sha256, ingested_at
FROM   ingested
WHERE  collection = ?
ORDER  BY key ASC`

	rows, err := l.db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e := Entry{Collection: collection}
		var ts int64
		if err := rows.Scan(&e.Key, &e.PointID, &e.ContentSHA256, &ts); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		e.IngestedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return entries, nil
}

// Forget removes every entry of collection.
func (l *SQLiteLedger) Forget(ctx context.Context, collection string) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM ingested WHERE collection = ?`, collection)
	if err != nil {
		return 0, fmt.Errorf("store: forget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: forget: %w", err)
	}
	return n, nil
}

// Close releases the database connection pool.
func (l *SQLiteLedger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
