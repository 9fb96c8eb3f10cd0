package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

func addCommit(t *testing.T, repo *git.Repository, repoPath, filename, content, msg string) plumbing.Hash {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, filename), []byte(content), 0o600))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(filename)
	require.NoError(t, err)
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()}})
	require.NoError(t, err)
	return hash
}

func seedRepo(t *testing.T) (string, plumbing.Hash, plumbing.Hash) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "origin")
	repo, err := git.PlainInit(path, false)
	require.NoError(t, err)
	first := addCommit(t, repo, path, "go.mod", "module example.com/x\n", "first")
	second := addCommit(t, repo, path, "main.go", "package main\n", "second")
	return path, first, second
}

func TestCloneHead(t *testing.T) {
	origin, _, second := seedRepo(t)
	dest := filepath.Join(t.TempDir(), "ws")

	hash, err := NewClient("", nil).Clone(t.Context(), origin, dest, "")
	require.NoError(t, err)
	assert.Equal(t, second.String(), hash)
	assert.FileExists(t, filepath.Join(dest, "main.go"))
}

func TestCloneSpecificRevision(t *testing.T) {
	origin, first, _ := seedRepo(t)
	dest := filepath.Join(t.TempDir(), "ws")

	hash, err := NewClient("", nil).Clone(t.Context(), origin, dest, first.String()[:12])
	require.NoError(t, err)
	assert.Equal(t, first.String(), hash)
	assert.FileExists(t, filepath.Join(dest, "go.mod"))
	assert.NoFileExists(t, filepath.Join(dest, "main.go"))
}

func TestCloneUnknownRevision(t *testing.T) {
	origin, _, _ := seedRepo(t)
	_, err := NewClient("", nil).Clone(t.Context(), origin, filepath.Join(t.TempDir(), "ws"), "0000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestRemoteHeadAndResolve(t *testing.T) {
	origin, _, second := seedRepo(t)
	c := NewClient("", nil)

	hash, err := c.RemoteHead(t.Context(), origin)
	require.NoError(t, err)
	assert.Equal(t, second.String(), hash)

	hash, err = c.Resolve(t.Context(), repository.RepositoryRef{Owner: "local", Name: "origin", CloneURL: origin})
	require.NoError(t, err)
	assert.Equal(t, second.String(), hash)

	_, err = c.Resolve(t.Context(), repository.RepositoryRef{Owner: "x", Name: "y"})
	require.Error(t, err)
}

func TestHeadHashFollowsSymbolicRef(t *testing.T) {
	hash := plumbing.NewHash("0123456789abcdef0123456789abcdef01234567")
	refs := []*plumbing.Reference{
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main")),
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash),
	}
	got, err := headHash(refs)
	require.NoError(t, err)
	assert.Equal(t, hash.String(), got)

	_, err = headHash(refs[1:])
	require.ErrorIs(t, err, ErrNoHead)

	_, err = headHash(refs[:1])
	require.ErrorIs(t, err, ErrNoHead)
}

func TestMatchesRevision(t *testing.T) {
	h := plumbing.NewHash("0123456789abcdef0123456789abcdef01234567")
	assert.True(t, matchesRevision(h, "0123456"))
	assert.True(t, matchesRevision(h, h.String()))
	assert.False(t, matchesRevision(h, "0123"))
	assert.False(t, matchesRevision(h, "fedcba9"))
}
