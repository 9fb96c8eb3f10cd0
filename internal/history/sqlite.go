package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/repobuilder/internal/build"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the database at dbPath, creating its parent
// directory. Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		job_id TEXT,
		repository TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		verdict TEXT NOT NULL,
		succeeded TEXT,
		attempts INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS attempts (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		descriptor TEXT NOT NULL,
		phase TEXT NOT NULL,
		outcome TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		error TEXT,
		PRIMARY KEY (run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
	CREATE INDEX IF NOT EXISTS idx_runs_repository ON runs(repository);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores the report and its attempts in one transaction.
func (s *SQLiteStore) Record(ctx context.Context, jobID string, report *build.BuildReport) (string, error) {
	if report == nil {
		return "", fmt.Errorf("report is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	succeeded := ""
	if report.Succeeded != nil {
		succeeded = report.Succeeded.String()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, job_id, repository, fingerprint, verdict, succeeded, attempts, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, jobID, report.Repository.FullName(), report.Repository.Fingerprint, string(report.Verdict),
		succeeded, len(report.Attempts), report.StartedAt.UnixNano(), report.FinishedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	for i, a := range report.Attempts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO attempts (run_id, seq, descriptor, phase, outcome, exit_code, duration_ns, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i+1, a.Descriptor.String(), string(a.Phase), string(a.Outcome), a.ExitCode, int64(a.Duration()), a.Error,
		)
		if err != nil {
			return "", fmt.Errorf("insert attempt %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}

// RecordReport adapts Record to the build queue's report sink.
func (s *SQLiteStore) RecordReport(ctx context.Context, jobID string, report *build.BuildReport) error {
	_, err := s.Record(ctx, jobID, report)
	return err
}

// Recent returns up to limit runs, newest first. A non-positive limit returns all runs.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(job_id, ''), repository, fingerprint, verdict, COALESCE(succeeded, ''), attempts, started_at, finished_at
		 FROM runs ORDER BY finished_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var verdict string
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.JobID, &r.Repository, &r.Fingerprint, &verdict, &r.Succeeded, &r.Attempts, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Verdict = build.Verdict(verdict)
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// Attempts returns the attempts of runID ordered by sequence.
func (s *SQLiteStore) Attempts(ctx context.Context, runID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, descriptor, phase, outcome, exit_code, duration_ns, COALESCE(error, '')
		 FROM attempts WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var phase, outcome string
		var dur int64
		if err := rows.Scan(&a.RunID, &a.Seq, &a.Descriptor, &phase, &outcome, &a.ExitCode, &dur, &a.Error); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Phase = build.Phase(phase)
		a.Outcome = build.Outcome(outcome)
		a.Duration = time.Duration(dur)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
