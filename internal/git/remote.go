package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

// ErrNoHead is returned when a remote advertises no resolvable HEAD.
var ErrNoHead = errors.New("remote has no HEAD")

// RemoteHead returns the commit hash HEAD points at on the remote, using an
// in-memory ls-remote.
func (c *Client) RemoteHead(ctx context.Context, url string) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: c.auth()})
	if err != nil {
		return "", fmt.Errorf("failed to list remote references: %w", err)
	}
	return headHash(refs)
}

// Resolve implements repository.RevisionResolver.
func (c *Client) Resolve(ctx context.Context, ref repository.RepositoryRef) (string, error) {
	if ref.CloneURL == "" {
		return "", fmt.Errorf("resolve %s: no clone url", ref.FullName())
	}
	hash, err := c.RemoteHead(ctx, ref.CloneURL)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref.FullName(), err)
	}
	return hash, nil
}

// headHash follows a symbolic HEAD to the branch it targets.
func headHash(refs []*plumbing.Reference) (string, error) {
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, r := range refs {
		byName[r.Name()] = r
	}
	head, ok := byName[plumbing.HEAD]
	if !ok {
		return "", ErrNoHead
	}
	for range 5 {
		if head.Type() == plumbing.HashReference {
			return head.Hash().String(), nil
		}
		next, ok := byName[head.Target()]
		if !ok {
			return "", fmt.Errorf("%w: dangling target %s", ErrNoHead, head.Target())
		}
		head = next
	}
	return "", fmt.Errorf("%w: symbolic reference loop", ErrNoHead)
}
