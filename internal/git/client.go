package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/repobuilder/internal/logfields"
)

// Client performs clone and ls-remote operations.
type Client struct {
	token  string
	logger *slog.Logger
}

// NewClient creates a client. A non-empty token is sent as HTTP basic auth.
func NewClient(token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{token: token, logger: logger}
}

// auth returns token authentication; most hosts accept "token" as the username.
func (c *Client) auth() transport.AuthMethod {
	if c.token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "token", Password: c.token}
}

// Clone materializes url into dest at revision and returns the checked-out
// commit hash. An empty revision clones the default branch head. A shallow
// clone is tried first; when it does not contain revision the full history is
// fetched.
func (c *Client) Clone(ctx context.Context, url, dest, revision string) (string, error) {
	c.logger.Debug("Cloning repository", logfields.URL(url), logfields.Path(dest), logfields.Fingerprint(revision))

	repo, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:          url,
		Auth:         c.auth(),
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err == nil {
		head, headErr := repo.Head()
		if headErr != nil {
			return "", fmt.Errorf("failed to read HEAD of %s: %w", url, headErr)
		}
		if revision == "" || matchesRevision(head.Hash(), revision) {
			return head.Hash().String(), nil
		}
		c.logger.Debug("Revision not at shallow head, fetching full history", logfields.URL(url), logfields.Fingerprint(revision))
	} else {
		if ctx.Err() != nil {
			return "", fmt.Errorf("failed to clone repository %s: %w", url, err)
		}
		// Some transports reject shallow fetches; fall through to a full clone.
		c.logger.Debug("Shallow clone failed, retrying with full history", logfields.URL(url), logfields.Error(err))
	}

	if err := clearDir(dest); err != nil {
		return "", err
	}
	repo, err = git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:  url,
		Auth: c.auth(),
		Tags: git.NoTags,
	})
	if err != nil {
		return "", fmt.Errorf("failed to clone repository %s: %w", url, err)
	}
	if revision == "" {
		head, headErr := repo.Head()
		if headErr != nil {
			return "", fmt.Errorf("failed to read HEAD of %s: %w", url, headErr)
		}
		return head.Hash().String(), nil
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return "", fmt.Errorf("revision %s not found in %s: %w", revision, url, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return "", fmt.Errorf("failed to checkout %s: %w", revision, err)
	}
	return hash.String(), nil
}

func matchesRevision(h plumbing.Hash, revision string) bool {
	s := h.String()
	return len(revision) >= 7 && len(revision) <= len(s) && s[:len(revision)] == revision
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to clear %s: %w", dir, err)
		}
	}
	return nil
}
