package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

// Stager materializes a repository's files into dest and returns the content
// fingerprint of what it staged.
type Stager interface {
	Name() string
	Stage(ctx context.Context, ref repository.RepositoryRef, dest string) (string, error)
}

// Stagers picks a Stager for a ref: local directories first, then archives,
// then git clones.
type Stagers struct {
	Local   Stager
	Archive Stager
	Git     Stager
}

// ErrNoStager is returned when no configured stager can handle a ref.
var ErrNoStager = errors.New("no stager for repository")

// For returns the stager for ref.
func (s Stagers) For(ref repository.RepositoryRef) (Stager, error) {
	switch {
	case ref.LocalPath != "":
		if s.Local != nil {
			return s.Local, nil
		}
	case ref.ArchiveURL != "" && s.Archive != nil:
		return s.Archive, nil
	case ref.CloneURL != "" && s.Git != nil:
		return s.Git, nil
	case ref.Fingerprint != "" && s.Archive != nil:
		return s.Archive, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoStager, ref.FullName())
}

// Cloner clones a git URL at a revision and returns the checked-out hash.
type Cloner interface {
	Clone(ctx context.Context, url, dest, revision string) (string, error)
}

// GitStager stages by cloning.
type GitStager struct {
	Cloner Cloner
}

func (GitStager) Name() string { return "git" }

func (g GitStager) Stage(ctx context.Context, ref repository.RepositoryRef, dest string) (string, error) {
	return g.Cloner.Clone(ctx, ref.CloneURL, dest, ref.Fingerprint)
}

// isTransient reports whether a staging error is worth retrying.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *repository.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
