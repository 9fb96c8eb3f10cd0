// Package git stages repositories with go-git and resolves remote revisions
// without a local clone.
package git
