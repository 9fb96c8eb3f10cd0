package coordinator

import (
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"git.home.luguber.info/inful/repobuilder/internal/build"
	"git.home.luguber.info/inful/repobuilder/internal/cache"
	"git.home.luguber.info/inful/repobuilder/internal/config"
	"git.home.luguber.info/inful/repobuilder/internal/detect"
	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/git"
	"git.home.luguber.info/inful/repobuilder/internal/metrics"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
	"git.home.luguber.info/inful/repobuilder/internal/retry"
	"git.home.luguber.info/inful/repobuilder/internal/workspace"
)

// Coordinator owns the per-request state machine. It is safe for concurrent use.
type Coordinator struct {
	cfg        *config.Config
	registry   *ecosystem.Registry
	detector   *detect.Detector
	workspaces *workspace.Manager
	cache      *cache.Manager
	revisions  repository.RevisionResolver
	resolver   *build.Resolver
	executor   *build.Executor
	run        build.RunFunc

	sem     *semaphore.Weighted
	flights flightGroup

	recorder metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRegistry replaces the built-in ecosystem adapters.
func WithRegistry(r *ecosystem.Registry) Option { return func(c *Coordinator) { c.registry = r } }

// WithWorkspaces replaces the workspace manager.
func WithWorkspaces(m *workspace.Manager) Option { return func(c *Coordinator) { c.workspaces = m } }

// WithCache replaces the cache built from configuration.
func WithCache(m *cache.Manager) Option { return func(c *Coordinator) { c.cache = m } }

// WithRevisionResolver sets how missing fingerprints are looked up before staging.
func WithRevisionResolver(r repository.RevisionResolver) Option {
	return func(c *Coordinator) { c.revisions = r }
}

// WithRunFunc replaces subprocess execution.
func WithRunFunc(run build.RunFunc) Option { return func(c *Coordinator) { c.run = run } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Coordinator) { c.recorder = metrics.OrNoop(r) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// New wires a Coordinator from cfg. Collaborators not supplied through options
// are built from cfg: GitHub archive and git staging, the two-tier cache, and
// git ls-remote for missing fingerprints.
func New(cfg *config.Config, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		return nil, foundationerrors.ConfigError("configuration is required").Build()
	}
	c := &Coordinator{
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}

	if c.registry == nil {
		c.registry = ecosystem.DefaultRegistry()
	}
	gitClient := git.NewClient(cfg.GitHub.Token, c.logger)
	if c.revisions == nil {
		c.revisions = gitClient
	}
	if c.workspaces == nil {
		stagers := defaultStagers(cfg, gitClient)
		c.workspaces = workspace.NewManager(cfg.Build.DownloadDir, stagers,
			workspace.WithKeep(cfg.Build.KeepWorkspaces),
			workspace.WithRetryPolicy(retry.FromConfig(cfg.Retry)),
			workspace.WithRecorder(c.recorder),
			workspace.WithLogger(c.logger))
	}
	if c.cache == nil {
		m, err := cache.New(cfg.Cache, cache.WithLogger(c.logger), cache.WithRecorder(c.recorder))
		if err != nil {
			return nil, err
		}
		c.cache = m
	}

	c.detector = detect.New(c.registry, detect.WithMaxDepth(cfg.Build.MaxDetectDepth), detect.WithLogger(c.logger))
	runOpts := build.Options{
		KillGrace: cfg.Build.KillGrace,
		OutputCap: cfg.Build.OutputCapBytes,
		Run:       c.run,
		Logger:    c.logger,
	}
	c.resolver = build.NewResolver(runOpts)
	c.executor = build.NewExecutor(runOpts)

	slots := int64(cfg.Build.MaxConcurrent)
	if slots < 1 {
		slots = 1
	}
	c.sem = semaphore.NewWeighted(slots)
	return c, nil
}

// Cache exposes the cache in use.
func (c *Coordinator) Cache() *cache.Manager { return c.cache }

// Registry exposes the ecosystem adapters in use.
func (c *Coordinator) Registry() *ecosystem.Registry { return c.registry }

func defaultStagers(cfg *config.Config, cloner workspace.Cloner) workspace.Stagers {
	return workspace.Stagers{
		Local: workspace.LocalStager{},
		Archive: workspace.ArchiveStager{
			Fetcher:  repository.NewHTTPArchiveFetcher(cfg.GitHub.APIURL, cfg.GitHub.Token),
			MaxBytes: cfg.Build.MaxArchiveBytes(),
		},
		Git: workspace.GitStager{Cloner: cloner},
	}
}
