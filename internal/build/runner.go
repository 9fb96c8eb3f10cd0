package build

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	"git.home.luguber.info/inful/repobuilder/internal/process"
)

// RunFunc executes one subprocess. process.Run is the default.
type RunFunc func(ctx context.Context, spec process.Spec) process.Result

// Options configure subprocess execution for the Resolver and Executor.
type Options struct {
	KillGrace time.Duration
	OutputCap int
	Env       []string
	Run       RunFunc
	Logger    *slog.Logger
}

// defaultEnv keeps tools non-interactive.
var defaultEnv = []string{
	"CI=true",
	"PIP_DISABLE_PIP_VERSION_CHECK=1",
	"PIP_NO_INPUT=1",
	"NPM_CONFIG_FUND=false",
	"NPM_CONFIG_AUDIT=false",
}

func (o Options) withDefaults() Options {
	if o.KillGrace <= 0 {
		o.KillGrace = process.DefaultKillGrace
	}
	if o.OutputCap <= 0 {
		o.OutputCap = process.DefaultOutputCap
	}
	if o.Run == nil {
		o.Run = process.Run
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.Env = append(append([]string{}, defaultEnv...), o.Env...)
	return o
}

func (o Options) spec(desc ecosystem.BuildDescriptor, workspacePath string, argv []string, timeout time.Duration) process.Spec {
	return process.Spec{
		Argv:      argv,
		Dir:       filepath.Join(workspacePath, filepath.FromSlash(desc.Dir)),
		Env:       o.Env,
		Timeout:   timeout,
		KillGrace: o.KillGrace,
		OutputCap: o.OutputCap,
	}
}

// attemptFrom copies the captured diagnostics of res into an attempt.
func attemptFrom(desc ecosystem.BuildDescriptor, phase Phase, argv []string, res process.Result) BuildAttempt {
	a := BuildAttempt{
		Descriptor:      desc,
		Phase:           phase,
		Command:         argv,
		ExitCode:        res.ExitCode,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		StdoutTruncated: res.StdoutTruncated,
		StderrTruncated: res.StderrTruncated,
		StartedAt:       res.StartedAt,
		EndedAt:         res.EndedAt,
	}
	if res.Err != nil {
		a.Error = res.Err.Error()
	}
	return a
}
