package ensemble

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Ledger persists ensemble runs and member lifecycle transitions to a
// SQLite database, so past runs can be inspected after the fact.
// A nil Ledger is safe to use; all methods are no-ops on nil receiver.
type Ledger struct {
	mu sync.Mutex
	db *sql.DB
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Dropped   int       `json:"dropped"`
	State     string    `json:"state"`
}

// MemberRecord is one row of the members table.
type MemberRecord struct {
	RunID    string `json:"run_id"`
	Index    int    `json:"index"`
	Seed     uint64 `json:"seed"`
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
	Artifact string `json:"artifact"`
	WallMS   int64  `json:"wall_ms"`
	Detail   string `json:"detail,omitempty"`
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	total INTEGER NOT NULL,
	succeeded INTEGER NOT NULL DEFAULT 0,
	dropped INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL DEFAULT 'running'
);
CREATE TABLE IF NOT EXISTS members (
	run_id TEXT NOT NULL REFERENCES runs(id),
	idx INTEGER NOT NULL,
	seed INTEGER NOT NULL,
	status TEXT NOT NULL,
	exit_code INTEGER NOT NULL DEFAULT 0,
	artifact TEXT NOT NULL DEFAULT '',
	wall_ms INTEGER NOT NULL DEFAULT 0,
	detail TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, idx)
);
`

// OpenLedger opens (creating if needed) the run ledger at dir/ledger.db.
func OpenLedger(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	dbPath := filepath.Join(dir, "ledger.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// BeginRun records the start of an ensemble run.
func (l *Ledger) BeginRun(ctx context.Context, runID string, total int) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, total) VALUES (?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339), total)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}
	return nil
}

// RecordMember upserts a member's current state.
func (l *Ledger) RecordMember(ctx context.Context, runID string, m Member) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO members (run_id, idx, seed, status, exit_code, artifact, wall_ms, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET
			status = excluded.status,
			exit_code = excluded.exit_code,
			artifact = excluded.artifact,
			wall_ms = excluded.wall_ms,
			detail = excluded.detail`,
		runID, m.Index, int64(m.Seed), string(m.Status), m.ExitCode,
		m.OutputPath, m.WallTime.Milliseconds(), m.Detail)
	if err != nil {
		return fmt.Errorf("failed to record member %d: %w", m.Index, err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (l *Ledger) FinishRun(ctx context.Context, runID string, succeeded, dropped int, state string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET succeeded = ?, dropped = ?, state = ? WHERE id = ?`,
		succeeded, dropped, state, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	return nil
}

// ListRuns returns all recorded runs, newest first.
func (l *Ledger) ListRuns(ctx context.Context) ([]RunRecord, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, created_at, total, succeeded, dropped, state
		 FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &createdAt, &r.Total, &r.Succeeded, &r.Dropped, &r.State); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListMembers returns the member records for one run, in index order.
func (l *Ledger) ListMembers(ctx context.Context, runID string) ([]MemberRecord, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, idx, seed, status, exit_code, artifact, wall_ms, detail
		 FROM members WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []MemberRecord
	for rows.Next() {
		var m MemberRecord
		var seed int64
		if err := rows.Scan(&m.RunID, &m.Index, &seed, &m.Status, &m.ExitCode, &m.Artifact, &m.WallMS, &m.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Seed = uint64(seed)
		members = append(members, m)
	}
	return members, rows.Err()
}

// Close closes the underlying database. Safe to call on nil receiver.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
