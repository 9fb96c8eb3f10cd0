package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/repobuilder/internal/build"
	"git.home.luguber.info/inful/repobuilder/internal/cache"
	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
	"git.home.luguber.info/inful/repobuilder/internal/workspace"
)

// Build produces a report for ref, from the cache when a fresh one exists.
//
// Build failures are part of the report, not errors. The error is non-nil only
// for fingerprint, staging, and detection problems, or when the request is
// canceled before the first attempt. Concurrent requests for the same key share
// one execution, which keeps running while any of them still waits. When the
// last waiter is canceled during an attempt it receives a report whose last
// attempt is canceled; such reports are never cached.
func (c *Coordinator) Build(ctx context.Context, ref repository.RepositoryRef) (*build.BuildReport, error) {
	ref, err := c.fingerprint(ctx, ref)
	if err != nil {
		return nil, err
	}
	key := cache.KeyFor(ref, cache.KindBuild)
	v, err, shared := c.flights.Do(ctx, key.String(), func(ctx context.Context) (any, error) {
		return c.build(ctx, ref)
	})
	if err != nil {
		return nil, classifyCanceled(err, ref)
	}
	if shared {
		c.logger.Debug("Shared in-flight build", logfields.Repository(ref.FullName()), logfields.CacheKey(key.String()))
	}
	report := *v.(*build.BuildReport)
	return &report, nil
}

func (c *Coordinator) build(ctx context.Context, ref repository.RepositoryRef) (*build.BuildReport, error) {
	started := c.now()
	if report, ok := c.cachedReport(ctx, ref); ok {
		return report, nil
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, canceled(err, ref)
	}
	defer c.sem.Release(1)
	c.recorder.AddActiveBuilds(1)
	defer c.recorder.AddActiveBuilds(-1)

	c.enter(ref, stateStaging)
	ws, err := c.workspaces.Acquire(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer c.release(ws)

	if ref.Fingerprint == "" && ws.Ref.Fingerprint != "" {
		if report, ok := c.cachedReport(ctx, ws.Ref); ok {
			return report, nil
		}
	}
	ref = ws.Ref

	descs, err := c.detect(ctx, ref, ws.Path)
	if err != nil {
		return nil, err
	}

	attempts := c.tryDescriptors(ctx, ref, ws.Path, descs)
	report := build.NewReport(ref, attempts, started, c.now())
	c.recorder.IncBuildVerdict(string(report.Verdict))
	c.recorder.ObserveBuildDuration(string(report.Verdict), report.Duration())
	c.enter(ref, stateDone, logfields.Verdict(string(report.Verdict)))
	c.logger.Info("Build finished",
		logfields.Repository(ref.FullName()),
		logfields.Fingerprint(logfields.Short(ref.Fingerprint)),
		logfields.Verdict(string(report.Verdict)),
		slog.Int("attempts", len(report.Attempts)),
		logfields.Duration(report.Duration()))

	if report.Canceled() || ctx.Err() != nil {
		c.logger.Info("Build canceled, result not cached", logfields.Repository(ref.FullName()))
		return report, nil
	}
	c.storeReport(ctx, report)
	return report, nil
}

func (c *Coordinator) tryDescriptors(ctx context.Context, ref repository.RepositoryRef, wsPath string, descs []ecosystem.BuildDescriptor) []build.BuildAttempt {
	attempts := make([]build.BuildAttempt, 0, len(descs))
	for i, desc := range descs {
		if err := ctx.Err(); err != nil {
			now := c.now()
			attempts = append(attempts, build.BuildAttempt{
				Descriptor: desc,
				Phase:      build.PhaseResolve,
				Outcome:    build.OutcomeCanceled,
				ExitCode:   -1,
				Error:      err.Error(),
				StartedAt:  now,
				EndedAt:    now,
			})
			break
		}
		c.enter(ref, stateTrying, logfields.Attempt(i+1), logfields.Descriptor(desc.String()))
		attempt := c.try(ctx, desc, wsPath)
		attempts = append(attempts, attempt)
		c.recorder.IncAttemptOutcome(string(desc.Kind), string(attempt.Outcome))

		attrs := []slog.Attr{
			logfields.Repository(ref.FullName()),
			logfields.Descriptor(desc.String()),
			logfields.Attempt(i + 1),
			logfields.Outcome(string(attempt.Outcome)),
			logfields.Duration(attempt.Duration()),
		}
		level := slog.LevelInfo
		if err := attempt.Err(); err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, logfields.Category(string(foundationerrors.GetCategory(err))), logfields.Error(err))
		}
		c.logger.LogAttrs(ctx, level, "Attempt finished", attrs...)

		if attempt.Succeeded() || attempt.Outcome == build.OutcomeCanceled {
			break
		}
	}
	return attempts
}

// try resolves then builds one descriptor. A resolution failure ends the
// descriptor with the failing step recorded as the attempt.
func (c *Coordinator) try(ctx context.Context, desc ecosystem.BuildDescriptor, wsPath string) build.BuildAttempt {
	if err := c.resolver.Resolve(ctx, desc, wsPath, c.cfg.Build.ResolveTimeout); err != nil {
		if f, ok := build.AsResolutionFailure(err); ok {
			return f.Attempt
		}
		now := c.now()
		return build.BuildAttempt{
			Descriptor: desc,
			Phase:      build.PhaseResolve,
			Outcome:    build.OutcomeDependencyError,
			ExitCode:   -1,
			Error:      err.Error(),
			StartedAt:  now,
			EndedAt:    now,
		}
	}
	return c.executor.Execute(ctx, desc, wsPath, c.cfg.Build.Timeout)
}

func (c *Coordinator) detect(ctx context.Context, ref repository.RepositoryRef, root string) ([]ecosystem.BuildDescriptor, error) {
	c.enter(ref, stateDetecting)
	descs, err := c.detector.Detect(ctx, root)
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceled(ctx.Err(), ref)
		}
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryDetection, "failed to scan workspace").
			WithContext("repository", ref.FullName()).Build()
	}
	if len(descs) == 0 {
		c.logger.Info("No detectable build system", logfields.Repository(ref.FullName()))
	}
	return descs, nil
}

// fingerprint fills in a missing fingerprint. Local trees are hashed; remote
// repositories are resolved with ls-remote. An unresolvable remote proceeds
// without one and is keyed after staging.
func (c *Coordinator) fingerprint(ctx context.Context, ref repository.RepositoryRef) (repository.RepositoryRef, error) {
	if ref.Fingerprint != "" {
		return ref, nil
	}
	if ref.LocalPath != "" {
		fp, err := workspace.DirFingerprint(ref.LocalPath)
		if err != nil {
			return ref, foundationerrors.WrapError(err, foundationerrors.CategoryWorkspace, "failed to fingerprint local repository").
				WithContext("path", ref.LocalPath).Build()
		}
		return ref.WithFingerprint(fp), nil
	}
	if c.revisions == nil {
		return ref, nil
	}
	fp, err := c.revisions.Resolve(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return ref, canceled(ctx.Err(), ref)
		}
		c.logger.Warn("Could not resolve revision before staging",
			logfields.Repository(ref.FullName()), logfields.Error(err))
		return ref, nil
	}
	return ref.WithFingerprint(fp), nil
}

func (c *Coordinator) cachedReport(ctx context.Context, ref repository.RepositoryRef) (*build.BuildReport, bool) {
	if ref.Fingerprint == "" {
		return nil, false
	}
	c.enter(ref, stateCacheCheck)
	key := cache.KeyFor(ref, cache.KindBuild)
	e, ok := c.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var report build.BuildReport
	if err := json.Unmarshal(e.Payload, &report); err != nil {
		c.logger.Warn("Discarding undecodable cached report", logfields.CacheKey(key.String()), logfields.Error(err))
		_ = c.cache.Invalidate(ctx, key)
		return nil, false
	}
	report.FromCache = true
	c.enter(ref, stateDone, logfields.Verdict(string(report.Verdict)), logfields.CacheKey(key.String()))
	return &report, true
}

func (c *Coordinator) storeReport(ctx context.Context, report *build.BuildReport) {
	if report.Repository.Fingerprint == "" {
		return
	}
	ttl := c.cfg.Cache.FailureTTL
	if report.Verdict == build.VerdictSucceeded {
		ttl = c.cfg.Cache.TTL
	}
	if ttl <= 0 || !c.cache.Enabled() {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		c.logger.Warn("Failed to encode report for cache", logfields.Repository(report.Repository.FullName()), logfields.Error(err))
		return
	}
	key := cache.KeyFor(report.Repository, cache.KindBuild)
	if err := c.cache.Put(ctx, key, payload, ttl); err != nil {
		c.logger.Debug("Report kept in memory only", logfields.CacheKey(key.String()), logfields.Error(err))
	}
}

func (c *Coordinator) release(ws *workspace.Workspace) {
	if c.cfg.Build.KeepWorkspaces && c.cfg.Build.CleanupArtifact {
		n, err := workspace.CleanArtifacts(ws.Path)
		if err != nil {
			c.logger.Warn("Failed to clean build artifacts", logfields.Path(ws.Path), logfields.Error(err))
		} else if n > 0 {
			c.logger.Debug("Cleaned build artifacts", logfields.Path(ws.Path), slog.Int("dirs", n))
		}
	}
	_ = ws.Release()
}

// classifyCanceled marks a bare context error as a canceled request.
func classifyCanceled(err error, ref repository.RepositoryRef) error {
	if foundationerrors.IsClassified(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return canceled(err, ref)
	}
	return err
}

func canceled(err error, ref repository.RepositoryRef) error {
	return foundationerrors.WrapError(err, foundationerrors.CategoryCanceled, "request canceled").
		WithContext("repository", ref.FullName()).Build()
}
