package build

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/process"
)

// Resolver stages a descriptor's dependencies with the ecosystem's own tool.
type Resolver struct {
	opts Options
}

// NewResolver creates a resolver.
func NewResolver(opts Options) *Resolver {
	return &Resolver{opts: opts.withDefaults()}
}

// Resolve runs the descriptor's prepare steps and resolve command in the
// descriptor directory, all within budget. Network access is allowed. A failure
// is always a *ResolutionFailure.
func (r *Resolver) Resolve(ctx context.Context, desc ecosystem.BuildDescriptor, workspacePath string, budget time.Duration) error {
	steps := make([][]string, 0, len(desc.Prepare)+1)
	steps = append(steps, desc.Prepare...)
	if len(desc.ResolveCommand) > 0 {
		steps = append(steps, desc.ResolveCommand)
	}
	if len(steps) == 0 {
		return nil
	}

	// Tool presence is checked up front for bare program names so a missing
	// tool never spawns anything. Relative programs (./gradlew, .venv/bin/pip)
	// may be created by an earlier step and are checked when reached.
	for _, argv := range steps {
		if len(argv) > 0 && !isRelativeProgram(argv[0]) {
			if _, err := process.LookPath("", argv[0]); err != nil {
				now := time.Now()
				return &ResolutionFailure{
					Kind: FailureToolMissing,
					Attempt: BuildAttempt{
						Descriptor: desc, Phase: PhaseResolve, Outcome: OutcomeToolMissing,
						Command: argv, ExitCode: -1, Error: err.Error(),
						StartedAt: now, EndedAt: now,
					},
					Err: err,
				}
			}
		}
	}

	deadline := time.Now().Add(budget)
	for _, argv := range steps {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			now := time.Now()
			return &ResolutionFailure{
				Kind: FailureTimeout,
				Attempt: BuildAttempt{
					Descriptor: desc, Phase: PhaseResolve, Outcome: OutcomeDependencyTimeout,
					Command: argv, ExitCode: -1, Error: "resolve budget exhausted",
					StartedAt: now, EndedAt: now,
				},
				Err: fmt.Errorf("budget %s exhausted", budget),
			}
		}

		r.opts.Logger.Debug("Running resolve step",
			logfields.Descriptor(desc.String()),
			logfields.Command(strings.Join(argv, " ")))
		res := r.opts.Run(ctx, r.opts.spec(desc, workspacePath, argv, remaining))
		if res.Success() {
			continue
		}

		attempt := attemptFrom(desc, PhaseResolve, argv, res)
		failure := &ResolutionFailure{Attempt: attempt, Err: res.Err}
		switch res.Status {
		case process.StatusToolMissing:
			failure.Kind = FailureToolMissing
			attempt.Outcome = OutcomeToolMissing
		case process.StatusTimedOut:
			failure.Kind = FailureTimeout
			attempt.Outcome = OutcomeDependencyTimeout
		case process.StatusCanceled:
			failure.Kind = FailureCanceled
			attempt.Outcome = OutcomeCanceled
		default:
			failure.Kind = FailureDependency
			attempt.Outcome = OutcomeDependencyError
			if failure.Err == nil {
				failure.Err = fmt.Errorf("exit status %d", res.ExitCode)
			}
		}
		failure.Attempt = attempt
		return failure
	}
	return nil
}

func isRelativeProgram(program string) bool {
	return strings.ContainsRune(program, '/')
}

// AsResolutionFailure extracts a *ResolutionFailure from err.
func AsResolutionFailure(err error) (*ResolutionFailure, bool) {
	var f *ResolutionFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
