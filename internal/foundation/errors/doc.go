// Package errors provides the classified error primitives used across repobuilder.
//
// Every failure that crosses a component boundary is a ClassifiedError carrying a
// category (config, workspace, tool_missing, dependency, build, timeout, cache, ...),
// a severity and a retry strategy. The coordinator uses the category to decide
// whether a failure is absorbed into a build report or aborts the request; the CLI
// adapter uses it to pick the process exit code.
//
// Example usage:
//
//	err := errors.WorkspaceError("stage repository").
//		WithContext("repository", ref.FullName()).
//		Build()
package errors
