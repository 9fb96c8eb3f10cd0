// Package process runs external commands with a wall-clock deadline, process
// group termination and bounded output capture.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultKillGrace is the time between SIGTERM and SIGKILL.
	DefaultKillGrace = 2 * time.Second
	// DefaultOutputCap bounds each captured stream.
	DefaultOutputCap = 64 * 1024
)

// ErrToolMissing is returned when the command's program cannot be found.
var ErrToolMissing = errors.New("tool not found")

// Status classifies how a run ended.
type Status string

const (
	StatusExited      Status = "exited"
	StatusTimedOut    Status = "timed_out"
	StatusCanceled    Status = "canceled"
	StatusToolMissing Status = "tool_missing"
	StatusStartFailed Status = "start_failed"
)

// Spec describes one command invocation.
type Spec struct {
	Argv      []string
	Dir       string
	Env       []string // appended to the current environment
	Timeout   time.Duration
	KillGrace time.Duration
	OutputCap int
}

// Result is the classified outcome of Run.
type Result struct {
	Status          Status
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	StartedAt       time.Time
	EndedAt         time.Time
	Err             error
}

// Success reports a clean zero exit.
func (r Result) Success() bool {
	return r.Status == StatusExited && r.ExitCode == 0
}

// Duration is the wall-clock time of the run.
func (r Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// LookPath resolves the program of a command. Programs containing a path
// separator are resolved against dir and must be executable files.
func LookPath(dir, program string) (string, error) {
	if program == "" {
		return "", fmt.Errorf("%w: empty command", ErrToolMissing)
	}
	if strings.ContainsRune(program, '/') {
		p := program
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			return "", fmt.Errorf("%w: %s", ErrToolMissing, program)
		}
		return p, nil
	}
	p, err := exec.LookPath(program)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolMissing, program)
	}
	return p, nil
}

// Run executes spec. It never returns an error; failures are classified in
// the Result. A timeout or cancellation terminates the whole process group:
// SIGTERM first, SIGKILL after the grace period.
func Run(ctx context.Context, spec Spec) Result {
	res := Result{StartedAt: time.Now(), ExitCode: -1}
	defer func() {
		if res.EndedAt.IsZero() {
			res.EndedAt = time.Now()
		}
	}()

	if len(spec.Argv) == 0 {
		res.Status, res.Err = StatusStartFailed, errors.New("empty command")
		return res
	}
	program, err := LookPath(spec.Dir, spec.Argv[0])
	if err != nil {
		res.Status, res.Err = StatusToolMissing, err
		return res
	}

	grace := spec.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	capBytes := spec.OutputCap
	if capBytes <= 0 {
		capBytes = DefaultOutputCap
	}

	runCtx := ctx
	var cancel context.CancelFunc = func() {}
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	}
	defer cancel()

	stdout, stderr := NewCappedBuffer(capBytes), NewCappedBuffer(capBytes)
	cmd := exec.Command(program, spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.WaitDelay = grace
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		res.EndedAt = time.Now()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			res.Status, res.Err = StatusToolMissing, fmt.Errorf("%w: %v", ErrToolMissing, err)
		} else {
			res.Status, res.Err = StatusStartFailed, err
		}
		return res
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		terminateGroup(cmd)
		select {
		case waitErr = <-done:
		case <-time.After(grace):
			killGroup(cmd)
			waitErr = <-done
		}
	}
	// Reap anything the command left running in its group.
	killGroup(cmd)
	res.EndedAt = time.Now()
	res.Stdout, res.StdoutTruncated = stdout.String(), stdout.Truncated()
	res.Stderr, res.StderrTruncated = stderr.String(), stderr.Truncated()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		res.Status, res.Err = StatusCanceled, ctx.Err()
	case runCtx.Err() != nil:
		res.Status, res.Err = StatusTimedOut, fmt.Errorf("timed out after %s", spec.Timeout)
	default:
		res.Status = StatusExited
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			res.Err = waitErr
		}
	}
	return res
}
