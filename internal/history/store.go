package history

import (
	"context"
	"time"

	"git.home.luguber.info/inful/repobuilder/internal/build"
)

// Run is one recorded build report.
type Run struct {
	ID          string        `json:"id"`
	JobID       string        `json:"job_id,omitempty"`
	Repository  string        `json:"repository"`
	Fingerprint string        `json:"fingerprint"`
	Verdict     build.Verdict `json:"verdict"`
	Succeeded   string        `json:"succeeded,omitempty"`
	Attempts    int           `json:"attempts"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// Duration returns the wall-clock time of the run.
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Attempt is one recorded descriptor attempt of a run.
type Attempt struct {
	RunID      string        `json:"run_id"`
	Seq        int           `json:"seq"`
	Descriptor string        `json:"descriptor"`
	Phase      build.Phase   `json:"phase"`
	Outcome    build.Outcome `json:"outcome"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Store persists build reports.
type Store interface {
	// Record stores report and returns the new run ID.
	Record(ctx context.Context, jobID string, report *build.BuildReport) (string, error)

	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)

	// Attempts returns the attempts of one run in the order they were tried.
	Attempts(ctx context.Context, runID string) ([]Attempt, error)

	// Close closes the store and releases resources.
	Close() error
}
