package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/repobuilder/internal/build"
	"git.home.luguber.info/inful/repobuilder/internal/build/queue"
	"git.home.luguber.info/inful/repobuilder/internal/config"
	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/report"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Refs       []string `arg:"" optional:"" name:"repository" help:"owner/name references or local directories"`
	Candidates string   `help:"Candidates file; defaults to search.candidates_file when no repositories are given"`
	JSON       bool     `name:"json" help:"Write reports as JSON"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refs, fromFile, err := b.candidates(ctx, cfg)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		if !fromFile {
			return foundationerrors.ValidationError("nothing to build: pass repositories or a candidates file").Build()
		}
		return b.nothingToBuild(g)
	}

	coord, err := newCoordinator(cfg, g, nil)
	if err != nil {
		return err
	}
	sink := openHistory(cfg, g)
	results := queue.BuildAll(ctx, coord, refs, cfg.Build.MaxConcurrent, queue.JobTypeManual, func(q *queue.BuildQueue) {
		q.SetLogger(g.Logger)
		if sink != nil {
			q.SetReportSink(sink)
		}
	})

	if b.JSON {
		err = report.JSON(g.Stdout, newBatchOutput(results))
	} else {
		err = report.RenderAll(g.Stdout, results, report.Options{DiagnosticLines: cfg.Report.DiagnosticLines})
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return canceledError(ctx)
	}
	return batchError(results)
}

// candidates returns the refs to build and whether they came from a
// candidates file.
func (b *BuildCmd) candidates(ctx context.Context, cfg *config.Config) ([]repository.RepositoryRef, bool, error) {
	if len(b.Refs) > 0 {
		refs, err := parseRefs(b.Refs)
		return refs, false, err
	}
	path := b.Candidates
	if path == "" {
		path = cfg.Search.CandidatesFile
	}
	if path == "" {
		return nil, false, nil
	}
	src, err := candidateSource(cfg, path)
	if err != nil {
		return nil, true, err
	}
	refs, err := src.Candidates(ctx)
	if err != nil {
		return nil, true, foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "load candidates").
			WithContext("path", path).Build()
	}
	return refs, true, nil
}

// nothingToBuild reports an empty candidate set. It is a result, not an error.
func (b *BuildCmd) nothingToBuild(g *Global) error {
	g.Logger.Info("No candidates left after filtering")
	if b.JSON {
		return report.JSON(g.Stdout, newBatchOutput(nil))
	}
	return report.RenderAll(g.Stdout, nil, report.Options{})
}

// batchError turns a batch into a process error only when no repository
// produced a report at all. Failed builds are results and exit 0.
func batchError(results []queue.Result) error {
	for _, r := range results {
		if r.Err == nil && r.Report != nil {
			return nil
		}
	}
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

type resultOutput struct {
	Repository string             `json:"repository"`
	JobID      string             `json:"job_id,omitempty"`
	Report     *build.BuildReport `json:"report,omitempty"`
	Canceled   bool               `json:"canceled,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type batchOutput struct {
	Results []resultOutput `json:"results"`
	Summary report.Summary `json:"summary"`
}

func newBatchOutput(results []queue.Result) batchOutput {
	out := batchOutput{Results: make([]resultOutput, 0, len(results)), Summary: report.Summarize(results)}
	for _, r := range results {
		ro := resultOutput{Repository: r.Ref.String(), JobID: r.JobID, Report: r.Report}
		if r.Report != nil {
			ro.Canceled = r.Report.Canceled()
		}
		if r.Err != nil {
			ro.Error = r.Err.Error()
		}
		out.Results = append(out.Results, ro)
	}
	return out
}
