package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/metrics"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
	"git.home.luguber.info/inful/repobuilder/internal/retry"
)

// Manager creates and destroys workspaces under a base directory.
type Manager struct {
	baseDir  string
	keep     bool
	stagers  Stagers
	policy   retry.Policy
	logger   *slog.Logger
	recorder metrics.Recorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeep leaves released workspaces on disk for inspection.
func WithKeep(keep bool) Option { return func(m *Manager) { m.keep = keep } }

// WithRetryPolicy sets the policy for transient staging failures.
func WithRetryPolicy(p retry.Policy) Option { return func(m *Manager) { m.policy = p } }

// WithRecorder counts staging retries.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) { m.recorder = metrics.OrNoop(r) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a manager staging with stagers under baseDir (os.TempDir when empty).
func NewManager(baseDir string, stagers Stagers, opts ...Option) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	m := &Manager{
		baseDir:  baseDir,
		stagers:  stagers,
		policy:   retry.DefaultPolicy(),
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Workspace is an exclusively owned staged copy of one repository revision.
type Workspace struct {
	// Path is the root of the staged tree.
	Path string
	// Ref carries the fingerprint actually staged.
	Ref repository.RepositoryRef

	manager *Manager
	once    sync.Once
	err     error
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func dirName(ref repository.RepositoryRef) string {
	fp := ref.Fingerprint
	if len(fp) > 12 {
		fp = fp[:12]
	}
	name := fmt.Sprintf("%s-%s-%s-%s", ref.Owner, ref.Name, fp, uuid.NewString()[:8])
	return unsafeName.ReplaceAllString(name, "_")
}

// Acquire creates a fresh directory and stages ref into it. On failure nothing
// is left on disk.
func (m *Manager) Acquire(ctx context.Context, ref repository.RepositoryRef) (*Workspace, error) {
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryWorkspace, "failed to create workspace base directory").
			WithContext("path", m.baseDir).Build()
	}
	path, err := os.MkdirTemp(m.baseDir, dirName(ref)+"-")
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryWorkspace, "failed to create workspace directory").
			WithContext("path", m.baseDir).Build()
	}
	ws := &Workspace{Path: path, Ref: ref, manager: m}
	m.logger.Debug("Created workspace", logfields.Repository(ref.FullName()), logfields.Path(path))

	stager, err := m.stagers.For(ref)
	if err != nil {
		_ = ws.Release()
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryWorkspace, "no staging method for repository").
			WithContext("repository", ref.FullName()).Build()
	}

	var fingerprint string
	err = m.policy.Do(ctx, isTransient,
		func(n int, delay time.Duration, err error) {
			m.recorder.IncStagingRetry(stager.Name())
			m.logger.Warn("Staging failed, retrying",
				logfields.Repository(ref.FullName()),
				logfields.Stage(stager.Name()),
				logfields.Attempt(n),
				logfields.Duration(delay),
				logfields.Error(err))
		},
		func(ctx context.Context) error {
			if err := clearDir(path); err != nil {
				return err
			}
			fp, stageErr := stager.Stage(ctx, ref, path)
			fingerprint = fp
			return stageErr
		})
	if err != nil {
		_ = ws.Release()
		category := foundationerrors.CategoryWorkspace
		if isTransient(err) {
			category = foundationerrors.CategoryNetwork
		}
		if ctx.Err() != nil {
			category = foundationerrors.CategoryCanceled
		}
		return nil, foundationerrors.WrapError(err, category, "failed to stage repository").
			WithContext("repository", ref.FullName()).
			WithContext("stager", stager.Name()).Build()
	}
	if fingerprint != "" {
		ws.Ref = ref.WithFingerprint(fingerprint)
	}
	m.logger.Info("Staged repository",
		logfields.Repository(ref.FullName()),
		logfields.Fingerprint(logfields.Short(ws.Ref.Fingerprint)),
		logfields.Stage(stager.Name()),
		logfields.Path(path))
	return ws, nil
}

// Release destroys the workspace. It is idempotent and safe to defer.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		m := w.manager
		if m.keep {
			m.logger.Info("Keeping workspace", logfields.Path(w.Path))
			return
		}
		if err := os.RemoveAll(w.Path); err != nil {
			w.err = foundationerrors.WrapError(err, foundationerrors.CategoryWorkspace, "failed to cleanup workspace").
				WithContext("path", w.Path).Build()
			m.logger.Warn("Failed to cleanup workspace", logfields.Path(w.Path), logfields.Error(err))
			return
		}
		m.logger.Debug("Released workspace", logfields.Path(w.Path))
	})
	return w.err
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
