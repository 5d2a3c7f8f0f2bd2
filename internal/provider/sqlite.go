package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// ErrNotFound is returned by Fetch for an unknown identifier.
var ErrNotFound = errors.New("record not found")

// SQLite reads one owner's records from a SQLite database owned and
// written by other applications. Expected schema:
//
//	CREATE TABLE records (
//	    id         TEXT NOT NULL,
//	    owner      TEXT NOT NULL,
//	    title      TEXT NOT NULL DEFAULT '',
//	    body       TEXT NOT NULL DEFAULT '',
//	    updated_at INTEGER NOT NULL,            -- ms epoch
//	    deleted_at INTEGER NOT NULL DEFAULT 0,  -- ms epoch, 0 = live
//	    PRIMARY KEY (owner, id)
//	);
//
// Deletions are tombstones: the writer sets deleted_at instead of
// removing the row, so the deletion axis survives between scans.
type SQLite struct {
	db    *sql.DB
	owner string
}

// OpenSQLite opens the source database read-only for one owner.
func OpenSQLite(path, owner string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open source database: %w", err)
	}

	// Writers hold short locks; wait them out instead of failing.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	return &SQLite{db: db, owner: owner}, nil
}

// NewSQLite wraps an already-open database handle. Used by tests and by
// callers that manage the connection themselves.
func NewSQLite(db *sql.DB, owner string) *SQLite {
	return &SQLite{db: db, owner: owner}
}

// ChangedSince implements Provider over the updated_at axis.
func (p *SQLite) ChangedSince(ctx context.Context, since time.Time) ([]Change, error) {
	return p.queryChanges(ctx,
		`SELECT id, updated_at FROM records
		 WHERE owner = ? AND deleted_at = 0 AND updated_at > ?`,
		since)
}

// DeletedSince implements Provider over the deleted_at tombstone axis.
func (p *SQLite) DeletedSince(ctx context.Context, since time.Time) ([]Change, error) {
	return p.queryChanges(ctx,
		`SELECT id, deleted_at FROM records
		 WHERE owner = ? AND deleted_at > ?`,
		since)
}

// AllLive implements Provider.
func (p *SQLite) AllLive(ctx context.Context) ([]Change, error) {
	return p.queryChanges(ctx,
		`SELECT id, updated_at FROM records
		 WHERE owner = ? AND deleted_at = 0 AND updated_at > ?`,
		time.Time{})
}

// Fetch implements Provider.
func (p *SQLite) Fetch(ctx context.Context, id string) (*Record, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, owner, title, body, updated_at, deleted_at
		 FROM records WHERE owner = ? AND id = ?`,
		p.owner, id)

	var r Record
	var updated, deleted int64
	err := row.Scan(&r.ID, &r.Owner, &r.Title, &r.Body, &updated, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fetch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}

	r.UpdatedAt = time.UnixMilli(updated).UTC()
	if deleted > 0 {
		r.DeletedAt = time.UnixMilli(deleted).UTC()
	}
	return &r, nil
}

// Close releases the database handle.
func (p *SQLite) Close() error {
	return p.db.Close()
}

func (p *SQLite) queryChanges(ctx context.Context, query string, since time.Time) ([]Change, error) {
	sinceMillis := int64(0)
	if !since.IsZero() {
		sinceMillis = since.UnixMilli()
	}

	rows, err := p.db.QueryContext(ctx, query, p.owner, sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("query source changes: %w", err)
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		var id string
		var at int64
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		changes = append(changes, Change{ID: id, At: time.UnixMilli(at).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source rows: %w", err)
	}
	return changes, nil
}
