package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/repobuilder/internal/cache"
	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

// Analysis lists the build systems of a repository and the dependencies each
// declares. Nothing is executed to produce it.
type Analysis struct {
	Repository   repository.RepositoryRef    `json:"repository"`
	Descriptors  []ecosystem.BuildDescriptor `json:"descriptors"`
	Dependencies []ecosystem.DependencySet   `json:"dependencies"`
	AnalyzedAt   time.Time                   `json:"analyzed_at"`
	FromCache    bool                        `json:"from_cache"`
}

// Analyze stages ref, detects its build systems, and parses their manifests.
// Results are cached under the analysis kind for the success TTL.
func (c *Coordinator) Analyze(ctx context.Context, ref repository.RepositoryRef) (*Analysis, error) {
	ref, err := c.fingerprint(ctx, ref)
	if err != nil {
		return nil, err
	}
	key := cache.KeyFor(ref, cache.KindAnalysis)
	v, err, _ := c.flights.Do(ctx, key.String(), func(ctx context.Context) (any, error) {
		return c.analyze(ctx, ref)
	})
	if err != nil {
		return nil, classifyCanceled(err, ref)
	}
	a := *v.(*Analysis)
	return &a, nil
}

func (c *Coordinator) analyze(ctx context.Context, ref repository.RepositoryRef) (*Analysis, error) {
	if a, ok := c.cachedAnalysis(ctx, ref); ok {
		return a, nil
	}

	c.enter(ref, stateStaging)
	ws, err := c.workspaces.Acquire(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer c.release(ws)

	if ref.Fingerprint == "" && ws.Ref.Fingerprint != "" {
		if a, ok := c.cachedAnalysis(ctx, ws.Ref); ok {
			return a, nil
		}
	}
	ref = ws.Ref

	descs, err := c.detect(ctx, ref, ws.Path)
	if err != nil {
		return nil, err
	}
	a := &Analysis{
		Repository:   ref,
		Descriptors:  descs,
		Dependencies: c.registry.ListDependencies(ws.Path, descs, c.logger),
		AnalyzedAt:   c.now(),
	}
	if a.Descriptors == nil {
		a.Descriptors = []ecosystem.BuildDescriptor{}
	}
	c.enter(ref, stateDone)
	if ctx.Err() == nil {
		c.storeAnalysis(ctx, a)
	}
	return a, nil
}

func (c *Coordinator) cachedAnalysis(ctx context.Context, ref repository.RepositoryRef) (*Analysis, bool) {
	if ref.Fingerprint == "" {
		return nil, false
	}
	c.enter(ref, stateCacheCheck)
	key := cache.KeyFor(ref, cache.KindAnalysis)
	e, ok := c.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var a Analysis
	if err := json.Unmarshal(e.Payload, &a); err != nil {
		c.logger.Warn("Discarding undecodable cached analysis", logfields.CacheKey(key.String()), logfields.Error(err))
		_ = c.cache.Invalidate(ctx, key)
		return nil, false
	}
	a.FromCache = true
	return &a, true
}

func (c *Coordinator) storeAnalysis(ctx context.Context, a *Analysis) {
	if a.Repository.Fingerprint == "" || c.cfg.Cache.TTL <= 0 || !c.cache.Enabled() {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		c.logger.Warn("Failed to encode analysis for cache", logfields.Repository(a.Repository.FullName()), logfields.Error(err))
		return
	}
	key := cache.KeyFor(a.Repository, cache.KindAnalysis)
	if err := c.cache.Put(ctx, key, payload, c.cfg.Cache.TTL); err != nil {
		c.logger.Debug("Analysis kept in memory only", logfields.CacheKey(key.String()), logfields.Error(err))
	}
}
