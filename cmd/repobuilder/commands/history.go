package commands

import (
	"context"

	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/history"
	"git.home.luguber.info/inful/repobuilder/internal/report"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" help:"Number of runs to show (0 for all)" default:"20"`
	JSON  bool `name:"json" help:"Write runs as JSON"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return foundationerrors.ValidationError("build history is disabled (history.enabled: false)").Build()
	}
	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	g.closers = append(g.closers, store)

	runs, err := store.Recent(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	if h.JSON {
		if runs == nil {
			runs = []history.Run{}
		}
		return report.JSON(g.Stdout, runs)
	}
	return report.RenderHistory(g.Stdout, runs)
}
