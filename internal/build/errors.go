package build

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors classifying per-descriptor failures. They are wrapped by
// ResolutionFailure and matched with errors.Is.
var (
	ErrToolMissing = errors.New("repobuilder: build tool missing")
	ErrDependency  = errors.New("repobuilder: dependency resolution failed")
	ErrTimeout     = errors.New("repobuilder: time budget exceeded")
)

// FailureKind classifies a ResolutionFailure.
type FailureKind string

const (
	FailureToolMissing FailureKind = "tool_missing"
	FailureDependency  FailureKind = "dependency_error"
	FailureTimeout     FailureKind = "timeout"
	FailureCanceled    FailureKind = "canceled"
)

// ResolutionFailure reports why dependency resolution did not complete. The
// Attempt carries the captured diagnostics of the failing step.
type ResolutionFailure struct {
	Kind    FailureKind
	Attempt BuildAttempt
	Err     error
}

func (f *ResolutionFailure) Error() string {
	msg := fmt.Sprintf("resolve %s: %s", f.Attempt.Descriptor, f.Kind)
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Unwrap exposes both the matching sentinel and the underlying cause.
func (f *ResolutionFailure) Unwrap() []error {
	var sentinel error
	switch f.Kind {
	case FailureToolMissing:
		sentinel = ErrToolMissing
	case FailureTimeout:
		sentinel = ErrTimeout
	case FailureCanceled:
		sentinel = context.Canceled
	default:
		sentinel = ErrDependency
	}
	if f.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, f.Err}
}
