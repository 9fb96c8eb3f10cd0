package coordinator

import (
	"log/slog"

	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

type state string

const (
	stateCacheCheck state = "cache_check"
	stateStaging    state = "staging"
	stateDetecting  state = "detecting"
	stateTrying     state = "trying_descriptor"
	stateDone       state = "done"
)

func (c *Coordinator) enter(ref repository.RepositoryRef, s state, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+2)
	args = append(args, logfields.Repository(ref.FullName()), logfields.Stage(string(s)))
	for _, a := range attrs {
		args = append(args, a)
	}
	c.logger.Debug("Build state", args...)
}
