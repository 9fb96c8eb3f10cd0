package build

import (
	"context"
	"strings"
	"time"

	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/process"
)

// crashMarkers identify a runtime crash in output even when the process
// exited zero. Line-prefix markers only match at the start of a line.
var (
	crashLinePrefixes = []string{"panic: ", "fatal error: ", "Traceback (most recent call last):"}
	crashSubstrings   = []string{"Segmentation fault"}
)

// Executor runs a descriptor's build command.
type Executor struct {
	opts Options
}

// NewExecutor creates an executor.
func NewExecutor(opts Options) *Executor {
	return &Executor{opts: opts.withDefaults()}
}

// Execute runs the build command in the descriptor directory under budget and
// classifies the result. It never retries.
func (e *Executor) Execute(ctx context.Context, desc ecosystem.BuildDescriptor, workspacePath string, budget time.Duration) BuildAttempt {
	argv := desc.BuildCommand
	e.opts.Logger.Debug("Running build",
		logfields.Descriptor(desc.String()),
		logfields.Command(strings.Join(argv, " ")))

	res := e.opts.Run(ctx, e.opts.spec(desc, workspacePath, argv, budget))
	attempt := attemptFrom(desc, PhaseBuild, argv, res)
	attempt.Outcome = classifyBuild(res)
	if attempt.Outcome == OutcomeBuildFailed && res.ExitCode == 0 && attempt.Error == "" {
		attempt.Error = "runtime crash detected in output"
	}
	return attempt
}

func classifyBuild(res process.Result) Outcome {
	switch res.Status {
	case process.StatusToolMissing:
		return OutcomeToolMissing
	case process.StatusTimedOut:
		return OutcomeBuildTimedOut
	case process.StatusCanceled:
		return OutcomeCanceled
	case process.StatusStartFailed:
		return OutcomeBuildFailed
	}
	if res.ExitCode != 0 {
		return OutcomeBuildFailed
	}
	if HasCrashMarker(res.Stdout) || HasCrashMarker(res.Stderr) {
		return OutcomeBuildFailed
	}
	return OutcomeBuildSucceeded
}

// HasCrashMarker reports whether output contains a runtime crash signature.
func HasCrashMarker(output string) bool {
	for _, s := range crashSubstrings {
		if strings.Contains(output, s) {
			return true
		}
	}
	for _, line := range strings.Split(output, "\n") {
		for _, p := range crashLinePrefixes {
			if strings.HasPrefix(line, p) {
				return true
			}
		}
	}
	return false
}
