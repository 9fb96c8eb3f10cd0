// Package workspace owns the disposable directories builds run in.
//
// A Workspace is bound to exactly one (repository, fingerprint) pair and one
// build request. It is created fresh by Manager.Acquire, populated by a Stager,
// and removed by Release on every exit path. Workspaces are never reused.
package workspace
