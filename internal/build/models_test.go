package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
)

func TestAttemptErrCategories(t *testing.T) {
	tests := []struct {
		outcome  Outcome
		category foundationerrors.ErrorCategory
	}{
		{OutcomeToolMissing, foundationerrors.CategoryToolMissing},
		{OutcomeDependencyError, foundationerrors.CategoryDependency},
		{OutcomeDependencyTimeout, foundationerrors.CategoryTimeout},
		{OutcomeBuildTimedOut, foundationerrors.CategoryTimeout},
		{OutcomeBuildFailed, foundationerrors.CategoryBuild},
		{OutcomeCanceled, foundationerrors.CategoryCanceled},
	}
	desc := ecosystem.BuildDescriptor{Kind: ecosystem.KindRust, Tool: "cargo", Dir: "."}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			err := BuildAttempt{Descriptor: desc, Outcome: tt.outcome, ExitCode: 101, Error: "boom"}.Err()
			require.Error(t, err)
			classified, ok := foundationerrors.AsClassified(err)
			require.True(t, ok)
			assert.Equal(t, tt.category, classified.Category())
			assert.Contains(t, err.Error(), "boom")
			d, _ := classified.Context().GetString("descriptor")
			assert.Equal(t, desc.String(), d)
		})
	}

	assert.NoError(t, BuildAttempt{Outcome: OutcomeBuildSucceeded}.Err())
}

func TestToolMissingAttemptNeedsUserAction(t *testing.T) {
	err := BuildAttempt{Outcome: OutcomeToolMissing}.Err()
	classified, ok := foundationerrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, foundationerrors.RetryUserAction, classified.RetryStrategy())
}
