// Package history persists a transcript of bridge operations to
// SQLite. Every eval, assign and pull is recorded per session, which
// is what `rbridge logs` queries.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SchemaDDL defines the transcript schema. Execute with db.Exec.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS operations (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL,
    op TEXT NOT NULL,
    code TEXT NOT NULL,
    ok INTEGER NOT NULL,
    detail TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS operations_session ON operations(session_id, id);
`

// Entry is one recorded operation.
type Entry struct {
	ID        int64
	SessionID string
	Op        string
	Code      string
	OK        bool
	Detail    string
	CreatedAt time.Time
}

// SessionSummary aggregates a session's transcript for listings.
type SessionSummary struct {
	SessionID string
	Ops       int
	First     time.Time
	Last      time.Time
}

// Store is a SQLite-backed transcript store. It implements the
// bridge's Recorder interface.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the transcript database with WAL
// journaling and a busy timeout, and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema to %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close transcript db: %w", err)
	}
	return nil
}

// Record persists one operation. It is best-effort: the bridge must
// not fail an eval because the transcript disk is full.
func (s *Store) Record(sessionID, op, code string, ok bool, detail string) {
	okInt := 0
	if ok {
		okInt = 1
	}
	_, _ = s.db.ExecContext(context.Background(),
		`INSERT INTO operations (session_id, op, code, ok, detail) VALUES (?, ?, ?, ?, ?)`,
		sessionID, op, code, okInt, detail)
}

// QueryOpts filters transcript queries.
type QueryOpts struct {
	// SessionID restricts to one session; empty means all.
	SessionID string

	// Op restricts to one operation kind ("eval", "assign", "pull").
	Op string

	// Limit restricts the number of results, newest first (0 = all).
	Limit int
}

// Query returns matching entries, newest first.
func (s *Store) Query(ctx context.Context, opts QueryOpts) ([]Entry, error) {
	var conds []string
	var args []any
	if opts.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, opts.SessionID)
	}
	if opts.Op != "" {
		conds = append(conds, "op = ?")
		args = append(args, opts.Op)
	}

	q := "SELECT id, session_id, op, code, ok, detail, created_at FROM operations"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY id DESC"
	if opts.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var okInt int
		var detail sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Op, &e.Code, &okInt, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		e.OK = okInt == 1
		e.Detail = detail.String
		e.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	return out, nil
}

// Sessions summarizes all recorded sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at)
		FROM operations GROUP BY session_id ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var first, last string
		if err := rows.Scan(&sum.SessionID, &sum.Ops, &first, &last); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sum.First, _ = time.Parse("2006-01-02 15:04:05", first)
		sum.Last, _ = time.Parse("2006-01-02 15:04:05", last)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}
