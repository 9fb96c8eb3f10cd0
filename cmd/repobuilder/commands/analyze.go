package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/repobuilder/internal/report"
)

// AnalyzeCmd implements the 'analyze' command.
type AnalyzeCmd struct {
	Target string `arg:"" name:"repository" help:"owner/name reference or local directory"`
	JSON   bool   `name:"json" help:"Write the analysis as JSON"`
}

func (a *AnalyzeCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	ref, err := parseRef(a.Target)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord, err := newCoordinator(cfg, g, nil)
	if err != nil {
		return err
	}
	analysis, err := coord.Analyze(ctx, ref)
	if err != nil {
		return err
	}
	if a.JSON {
		return report.JSON(g.Stdout, analysis)
	}
	return report.RenderAnalysis(g.Stdout, analysis)
}
