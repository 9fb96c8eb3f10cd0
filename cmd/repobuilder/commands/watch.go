package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/repobuilder/internal/build/queue"
	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/metrics"
	"git.home.luguber.info/inful/repobuilder/internal/report"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
	"git.home.luguber.info/inful/repobuilder/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Candidates  string `help:"Candidates file to watch; defaults to search.candidates_file"`
	MetricsAddr string `name:"metrics-addr" help:"Listen address for /metrics; overrides watch.metrics_addr"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	path := w.Candidates
	if path == "" {
		path = cfg.Search.CandidatesFile
	}
	if path == "" {
		return foundationerrors.ValidationError("watch needs a candidates file (--candidates or search.candidates_file)").Build()
	}
	src, err := candidateSource(cfg, path)
	if err != nil {
		return err
	}
	addr := cfg.Watch.MetricsAddr
	if w.MetricsAddr != "" {
		addr = w.MetricsAddr
	}

	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	coord, err := newCoordinator(cfg, g, rec)
	if err != nil {
		return err
	}
	sink := openHistory(cfg, g)
	opts := report.Options{DiagnosticLines: cfg.Report.DiagnosticLines}

	buildBatch := func(ctx context.Context, refs []repository.RepositoryRef) {
		results := queue.BuildAll(ctx, coord, refs, cfg.Build.MaxConcurrent, queue.JobTypeWatch, func(q *queue.BuildQueue) {
			q.SetLogger(g.Logger)
			q.SetRecorder(rec)
			if sink != nil {
				q.SetReportSink(sink)
			}
		})
		if err := report.RenderAll(g.Stdout, results, opts); err != nil {
			g.Logger.Warn("Failed to write reports", logfields.Error(err))
		}
	}

	runner, err := watch.NewRunner(watch.Config{
		Source:         src,
		CandidatesPath: path,
		Build:          buildBatch,
		Evicter:        coord.Cache(),
		EvictInterval:  cfg.Cache.EvictInterval,
		Debounce:       cfg.Watch.Debounce,
		MetricsAddr:    addr,
		Metrics:        metrics.HTTPHandler(reg),
		Logger:         g.Logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runner.Run(ctx)
}
