package build

import (
	"errors"
	"time"

	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

// Phase names the step of an attempt that produced its outcome.
type Phase string

const (
	PhaseResolve Phase = "resolve"
	PhaseBuild   Phase = "build"
)

// Outcome classifies a single descriptor attempt.
type Outcome string

const (
	OutcomeBuildSucceeded    Outcome = "build_succeeded"
	OutcomeBuildFailed       Outcome = "build_failed"
	OutcomeBuildTimedOut     Outcome = "build_timed_out"
	OutcomeToolMissing       Outcome = "tool_missing"
	OutcomeDependencyError   Outcome = "dependency_error"
	OutcomeDependencyTimeout Outcome = "dependency_timeout"
	OutcomeCanceled          Outcome = "canceled"
)

// Verdict summarizes a whole build request.
type Verdict string

const (
	VerdictSucceeded     Verdict = "succeeded"
	VerdictAllFailed     Verdict = "all_failed"
	VerdictNoBuildSystem Verdict = "no_detectable_build_system"
)

// BuildAttempt records one descriptor tried during a build request.
type BuildAttempt struct {
	// Descriptor is the build system that was tried.
	Descriptor ecosystem.BuildDescriptor `json:"descriptor"`

	// Phase is the step that decided the outcome.
	Phase Phase `json:"phase"`

	// Outcome is the classified result.
	Outcome Outcome `json:"outcome"`

	// Command is the argv of the step that decided the outcome.
	Command []string `json:"command,omitempty"`

	// ExitCode of the deciding process; -1 when it did not exit normally.
	ExitCode int `json:"exit_code"`

	// Stdout and Stderr hold captured output, each bounded by the output cap.
	Stdout          string `json:"stdout,omitempty"`
	Stderr          string `json:"stderr,omitempty"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`

	// Error is a short description for outcomes without useful output.
	Error string `json:"error,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Duration returns the wall-clock time of the attempt.
func (a BuildAttempt) Duration() time.Duration {
	return a.EndedAt.Sub(a.StartedAt)
}

// Succeeded reports whether the attempt built the project.
func (a BuildAttempt) Succeeded() bool {
	return a.Outcome == OutcomeBuildSucceeded
}

// Err classifies a failed attempt for logging. It is nil for a successful one.
func (a BuildAttempt) Err() error {
	var b *foundationerrors.ErrorBuilder
	switch a.Outcome {
	case OutcomeBuildSucceeded:
		return nil
	case OutcomeToolMissing:
		b = foundationerrors.ToolMissingError("build tool is not installed")
	case OutcomeDependencyError:
		b = foundationerrors.DependencyError("dependency resolution failed")
	case OutcomeDependencyTimeout:
		b = foundationerrors.TimeoutError("dependency resolution timed out")
	case OutcomeBuildTimedOut:
		b = foundationerrors.TimeoutError("build timed out")
	case OutcomeCanceled:
		b = foundationerrors.NewError(foundationerrors.CategoryCanceled, "attempt canceled")
	default:
		b = foundationerrors.NewError(foundationerrors.CategoryBuild, "build failed")
	}
	if a.Error != "" {
		b = b.WithCause(errors.New(a.Error))
	}
	return b.WithContext("descriptor", a.Descriptor.String()).
		WithContext("phase", string(a.Phase)).
		WithContext("exit_code", a.ExitCode).Build()
}

// BuildReport is the structured result of one build request.
type BuildReport struct {
	// Repository identifies what was built.
	Repository repository.RepositoryRef `json:"repository"`

	// Attempts are in the exact order tried.
	Attempts []BuildAttempt `json:"attempts"`

	// Verdict summarizes the attempts.
	Verdict Verdict `json:"verdict"`

	// Succeeded is the descriptor that built, if any.
	Succeeded *ecosystem.BuildDescriptor `json:"succeeded,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// FromCache is set on reports served from the result cache.
	FromCache bool `json:"from_cache"`
}

// NewReport derives the verdict from attempts.
func NewReport(ref repository.RepositoryRef, attempts []BuildAttempt, started, finished time.Time) *BuildReport {
	r := &BuildReport{
		Repository: ref,
		Attempts:   attempts,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if r.Attempts == nil {
		r.Attempts = []BuildAttempt{}
	}
	switch {
	case len(attempts) == 0:
		r.Verdict = VerdictNoBuildSystem
	case attempts[len(attempts)-1].Succeeded():
		r.Verdict = VerdictSucceeded
		d := attempts[len(attempts)-1].Descriptor
		r.Succeeded = &d
	default:
		r.Verdict = VerdictAllFailed
	}
	return r
}

// Duration returns the wall-clock time of the request.
func (r *BuildReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Canceled reports whether the request ended by cancellation.
func (r *BuildReport) Canceled() bool {
	n := len(r.Attempts)
	return n > 0 && r.Attempts[n-1].Outcome == OutcomeCanceled
}
