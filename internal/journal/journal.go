// Package journal records every dig and cash outcome of a run in SQLite,
// for the by-depth statistics the reporter and the run summary print.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcome classifies a dig attempt.
type Outcome string

// Dig outcomes.
const (
	Found     Outcome = "found"
	NotFound  Outcome = "not_found"
	Denied    Outcome = "denied"
	Rejected  Outcome = "rejected"
	Transient Outcome = "transient"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("journal closed")

// Dig is one dig attempt.
type Dig struct {
	PosX, PosY int
	Depth      int
	LicenseID  int64
	Outcome    Outcome
	Tokens     int
}

// Cash is one cash attempt for a treasure found at Depth.
type Cash struct {
	Depth int
	Coins int
	OK    bool
}

// DepthSummary aggregates one depth of a run.
type DepthSummary struct {
	Depth  int
	Digs   int
	Found  int
	Tokens int
	Cashed int
	Coins  int
}

// Journal is safe for concurrent use.
type Journal struct {
	mu     sync.Mutex
	db     *sql.DB
	runID  string
	closed bool
	now    func() time.Time
}

// memoryDSN keeps the journal in process memory.
const memoryDSN = ":memory:"

// Open opens the journal at path and starts a new run for instance. An
// empty path keeps the journal in memory.
func Open(path string, instance int) (*Journal, error) {
	dsn := memoryDSN
	if path != "" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// A memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create journal schema: %w", err)
		}
	}

	j := &Journal{db: db, runID: newRunID(), now: time.Now}
	if _, err := db.Exec(insertRun, j.runID, instance, j.stamp()); err != nil {
		db.Close()
		return nil, fmt.Errorf("start run: %w", err)
	}
	return j, nil
}

// RunID identifies this run in the journal.
func (j *Journal) RunID() string { return j.runID }

// RecordDig appends one dig attempt.
func (j *Journal) RecordDig(ctx context.Context, d Dig) error {
	return j.exec(ctx, insertDig, j.runID, d.PosX, d.PosY, d.Depth, d.LicenseID, string(d.Outcome), d.Tokens, j.stamp())
}

// RecordCash appends one cash attempt.
func (j *Journal) RecordCash(ctx context.Context, c Cash) error {
	ok := 0
	if c.OK {
		ok = 1
	}
	return j.exec(ctx, insertCash, j.runID, c.Depth, c.Coins, ok, j.stamp())
}

// Summary returns per-depth totals for this run, ordered by depth. Depths
// without any record are omitted.
func (j *Journal) Summary(ctx context.Context) ([]DepthSummary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx, selectSummary, j.runID, j.runID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []DepthSummary
	for rows.Next() {
		var s DepthSummary
		if err := rows.Scan(&s.Depth, &s.Digs, &s.Found, &s.Tokens, &s.Cashed, &s.Coins); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close releases the database. Close is idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func (j *Journal) exec(ctx context.Context, query string, args ...any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	return nil
}

func (j *Journal) stamp() string {
	return j.now().UTC().Format(time.RFC3339Nano)
}

// newRunID generates a UUID v7 run id.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
