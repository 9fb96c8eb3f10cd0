package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/repobuilder/internal/build/queue"
	"git.home.luguber.info/inful/repobuilder/internal/config"
	"git.home.luguber.info/inful/repobuilder/internal/coordinator"
	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/history"
	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/metrics"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
	"git.home.luguber.info/inful/repobuilder/internal/workspace"
)

// Global is shared state passed to every command's Run.
type Global struct {
	Logger *slog.Logger
	Stdout io.Writer

	closers []io.Closer
}

// Close releases resources opened by commands (log file, history database).
func (g *Global) Close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		_ = g.closers[i].Close()
	}
	g.closers = nil
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"repobuilder.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build repositories and report the outcome"`
	Detect  DetectCmd  `cmd:"" help:"List the build systems found in a local directory"`
	Analyze AnalyzeCmd `cmd:"" help:"Detect build systems and list declared dependencies"`
	Cache   CacheCmd   `cmd:"" help:"Inspect and maintain the result cache"`
	History HistoryCmd `cmd:"" help:"Show recent build runs"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild candidates whenever the candidates file changes"`
	Init    InitCmd    `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig loads the configuration and replaces the bootstrap logger with
// the configured one. A missing default config file means built-in defaults.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	path := c.Config
	if path == config.DefaultConfigFile {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, closer, err := cfg.Logging.NewLogger(c.Verbose)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "open log file").
			WithContext("path", cfg.Logging.File).Build()
	}
	g.closers = append(g.closers, closer)
	g.Logger = logger
	slog.SetDefault(logger)
	return cfg, nil
}

func newCoordinator(cfg *config.Config, g *Global, rec metrics.Recorder) (*coordinator.Coordinator, error) {
	return coordinator.New(cfg, coordinator.WithLogger(g.Logger), coordinator.WithRecorder(rec))
}

// openHistory opens the history database as a report sink. Failures are
// logged and builds proceed without history.
func openHistory(cfg *config.Config, g *Global) queue.ReportSink {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		g.Logger.Warn("Build history unavailable", logfields.Path(cfg.History.Path), logfields.Error(err))
		return nil
	}
	g.closers = append(g.closers, store)
	return store
}

// candidateSource reads path and applies the configured search filters.
func candidateSource(cfg *config.Config, path string) (repository.Source, error) {
	names, err := repository.NewNameFilter(cfg.Search.Include, cfg.Search.Exclude)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "invalid search filter").Build()
	}
	return repository.FilteredSource{
		Source:     repository.FileSource{Path: path},
		Names:      names,
		MinStars:   cfg.Search.MinStars,
		MaxResults: cfg.Search.MaxResults,
	}, nil
}

// parseRef turns a command-line argument into a repository reference. Existing
// directories are staged from disk and fingerprinted by content.
func parseRef(arg string) (repository.RepositoryRef, error) {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return localRef(arg)
	}
	ref, err := repository.ParseFullName(arg)
	if err != nil {
		return repository.RepositoryRef{}, foundationerrors.WrapError(err, foundationerrors.CategoryValidation,
			fmt.Sprintf("%q is neither a directory nor owner/name", arg)).Build()
	}
	return ref, nil
}

func localRef(dir string) (repository.RepositoryRef, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return repository.RepositoryRef{}, err
	}
	fp, err := workspace.DirFingerprint(abs)
	if err != nil {
		return repository.RepositoryRef{}, foundationerrors.WrapError(err, foundationerrors.CategoryWorkspace, "fingerprint local directory").
			WithContext("path", abs).Build()
	}
	return repository.RepositoryRef{
		Owner:       "local",
		Name:        filepath.Base(abs),
		Fingerprint: fp,
		LocalPath:   abs,
	}, nil
}

func parseRefs(args []string) ([]repository.RepositoryRef, error) {
	refs := make([]repository.RepositoryRef, 0, len(args))
	for _, a := range args {
		ref, err := parseRef(a)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func canceledError(ctx context.Context) error {
	return foundationerrors.WrapError(context.Cause(ctx), foundationerrors.CategoryCanceled, "interrupted").Build()
}
