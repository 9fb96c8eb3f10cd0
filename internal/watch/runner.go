package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

// BuildFunc builds one batch of candidates. Results are the caller's concern.
type BuildFunc func(ctx context.Context, refs []repository.RepositoryRef)

// Evicter removes expired cache entries.
type Evicter interface {
	Evict(ctx context.Context) (int, error)
}

// Config wires a Runner.
type Config struct {
	Source         repository.Source
	CandidatesPath string
	Build          BuildFunc
	Evicter        Evicter
	EvictInterval  time.Duration
	Debounce       time.Duration
	MetricsAddr    string
	Metrics        http.Handler
	Logger         *slog.Logger
}

// Runner is the watch loop. Builds never overlap: changes that arrive while a
// batch is running collapse into one follow-up batch.
type Runner struct {
	cfg     Config
	logger  *slog.Logger
	trigger chan struct{}

	mu       sync.Mutex
	batches  int
	listener net.Listener
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Source == nil {
		return nil, errors.New("watch: source is required")
	}
	if cfg.Build == nil {
		return nil, errors.New("watch: build function is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}, nil
}

// Batches reports how many build batches have completed.
func (r *Runner) Batches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

// MetricsAddr returns the bound metrics address, or "" when not serving.
func (r *Runner) MetricsAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Trigger requests a rebuild of all candidates.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run performs an initial build and then serves until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if r.cfg.CandidatesPath != "" {
		fw, err := NewFileWatcher(r.cfg.CandidatesPath, r.cfg.Debounce, func(context.Context) { r.Trigger() }, r.logger)
		if err != nil {
			return err
		}
		if err := fw.Start(ctx); err != nil {
			_ = fw.Stop()
			return err
		}
		defer func() { _ = fw.Stop() }()
	}

	if r.cfg.Evicter != nil && r.cfg.EvictInterval > 0 {
		sched, err := NewScheduler(r.logger)
		if err != nil {
			return err
		}
		if _, err := sched.Every(ctx, r.cfg.EvictInterval, "cache-evict", r.evict); err != nil {
			return err
		}
		sched.Start()
		defer func() {
			if err := sched.Stop(); err != nil {
				r.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	var srv *http.Server
	if r.cfg.MetricsAddr != "" && r.cfg.Metrics != nil {
		var err error
		srv, err = r.serveMetrics()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				r.logger.Warn("Metrics server shutdown failed", logfields.Error(err))
			}
		}()
	}

	r.Trigger()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Watch mode stopping")
			return nil
		case <-r.trigger:
			r.runBatch(ctx)
		}
	}
}

func (r *Runner) runBatch(ctx context.Context) {
	refs, err := r.cfg.Source.Candidates(ctx)
	if err != nil {
		r.logger.Error("Failed to load candidates", logfields.Error(err))
		return
	}
	r.logger.Info("Building candidates", slog.Int("count", len(refs)))
	start := time.Now()
	r.cfg.Build(ctx, refs)
	r.logger.Info("Batch finished", logfields.Duration(time.Since(start)))

	r.mu.Lock()
	r.batches++
	r.mu.Unlock()
}

func (r *Runner) evict(ctx context.Context) {
	removed, err := r.cfg.Evicter.Evict(ctx)
	if err != nil {
		r.logger.Warn("Cache eviction failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		r.logger.Info("Evicted cache entries", slog.Int("removed", removed))
	}
}

func (r *Runner) serveMetrics() (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.cfg.Metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ln, err := net.Listen("tcp", r.cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on metrics address %s: %w", r.cfg.MetricsAddr, err)
	}
	r.mu.Lock()
	r.listener = ln
	r.mu.Unlock()

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	r.logger.Info("Serving metrics", logfields.URL("http://"+ln.Addr().String()+"/metrics"))
	return srv, nil
}
