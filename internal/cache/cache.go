package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"git.home.luguber.info/inful/repobuilder/internal/config"
	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/metrics"
)

// Manager is the two-tier cache. The zero value is not usable; call New.
type Manager struct {
	enabled  bool
	mem      *lru.Cache[string, *Entry]
	disk     *diskStore
	now      func() time.Time
	locks    keyLocks
	logger   *slog.Logger
	recorder metrics.Recorder

	hits, misses, errors atomic.Uint64
	lastErr              atomic.Pointer[foundationerrors.ClassifiedError]
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) { m.recorder = metrics.OrNoop(r) }
}

// New builds a Manager from configuration. A disabled cache misses every read
// and drops every write. An empty Dir keeps the cache memory-only.
func New(cfg config.CacheConfig, opts ...Option) (*Manager, error) {
	size := cfg.MaxEntries
	if size < 1 {
		size = 1
	}
	mem, err := lru.New[string, *Entry](size)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to create memory cache").
			WithContext("max_entries", cfg.MaxEntries).Build()
	}
	m := &Manager{
		enabled:  cfg.Enabled,
		mem:      mem,
		now:      time.Now,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
	for _, o := range opts {
		o(m)
	}
	if cfg.Dir != "" {
		m.disk = &diskStore{dir: cfg.Dir, maxBytes: int64(cfg.MaxSizeMB) * 1024 * 1024}
	}
	return m, nil
}

// Enabled reports whether the cache stores anything.
func (m *Manager) Enabled() bool { return m.enabled }

// Get returns a copy of the unexpired entry for key.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, bool) {
	if !m.enabled || ctx.Err() != nil {
		return nil, false
	}
	hash := key.Hash()
	unlock := m.locks.lock(hash)
	defer unlock()
	now := m.now()

	if e, ok := m.mem.Get(hash); ok {
		if !e.Expired(now) {
			m.hit(metrics.TierMemory, key)
			return e.clone(), true
		}
		m.mem.Remove(hash)
		m.removeDisk(key.Kind, hash)
		m.miss(key)
		return nil, false
	}
	m.recorder.IncCacheResult(metrics.TierMemory, metrics.ResultMiss)

	if m.disk == nil {
		m.miss(key)
		return nil, false
	}
	e, err := m.disk.read(key.Kind, hash)
	switch {
	case err == nil && e.Key != key:
		err = errKeyMismatch
		fallthrough
	case err != nil && !isNotExist(err):
		m.diskError("Discarding unreadable cache entry", err, key)
		m.removeDisk(key.Kind, hash)
		m.miss(key)
		return nil, false
	case err != nil:
		m.miss(key)
		return nil, false
	}
	if e.Expired(now) {
		m.removeDisk(key.Kind, hash)
		m.miss(key)
		return nil, false
	}
	m.mem.Add(hash, e)
	m.hit(metrics.TierDisk, key)
	return e.clone(), true
}

// Put stores payload under key for ttl. Memory is always written; a disk write
// failure is logged, counted, and returned as a cache error.
func (m *Manager) Put(ctx context.Context, key Key, payload []byte, ttl time.Duration) error {
	if !m.enabled {
		return nil
	}
	if ttl <= 0 {
		return foundationerrors.ValidationError("cache ttl must be positive").
			WithContext("key", key.String()).Build()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	hash := key.Hash()
	unlock := m.locks.lock(hash)
	defer unlock()

	e := &Entry{
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: m.now(),
		TTL:       ttl,
		Size:      int64(len(payload)),
	}
	m.mem.Add(hash, e)
	m.logger.Debug("Cached entry", logfields.CacheKey(key.String()), logfields.Duration(ttl))
	if m.disk == nil {
		return nil
	}
	if err := m.disk.write(hash, e); err != nil {
		m.diskError("Failed to write cache entry", err, key)
		return foundationerrors.WrapError(err, foundationerrors.CategoryCache, "failed to write cache entry").
			WithContext("key", key.String()).Build()
	}
	return nil
}

// Invalidate removes key from both tiers.
func (m *Manager) Invalidate(_ context.Context, key Key) error {
	hash := key.Hash()
	unlock := m.locks.lock(hash)
	defer unlock()
	m.mem.Remove(hash)
	if m.disk == nil {
		return nil
	}
	if err := m.disk.remove(key.Kind, hash); err != nil {
		m.diskError("Failed to remove cache entry", err, key)
		return foundationerrors.WrapError(err, foundationerrors.CategoryCache, "failed to invalidate cache entry").
			WithContext("key", key.String()).Build()
	}
	return nil
}

// Evict removes expired entries from both tiers, then trims the disk tier to
// its size budget oldest first. It returns the number of distinct keys removed.
func (m *Manager) Evict(ctx context.Context) (int, error) {
	now := m.now()
	removed := make(map[string]struct{})

	for _, hash := range m.mem.Keys() {
		unlock := m.locks.lock(hash)
		if e, ok := m.mem.Peek(hash); ok && e.Expired(now) {
			m.mem.Remove(hash)
			removed[hash] = struct{}{}
		}
		unlock()
	}

	if m.disk != nil {
		files, err := m.disk.list()
		if err != nil {
			return len(removed), foundationerrors.WrapError(err, foundationerrors.CategoryCache, "failed to list cache directory").
				WithContext("dir", m.disk.dir).Build()
		}
		var kept []diskFile
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return len(removed), err
			}
			if m.evictFile(f, now) {
				removed[f.hash] = struct{}{}
				continue
			}
			if f.entry != nil {
				kept = append(kept, f)
			}
		}
		for _, f := range m.disk.overBudget(kept) {
			unlock := m.locks.lock(f.hash)
			if err := m.disk.remove(f.kind, f.hash); err == nil {
				m.mem.Remove(f.hash)
				removed[f.hash] = struct{}{}
			}
			unlock()
		}
	}

	m.logger.Info("Evicted cache entries", slog.Int("removed", len(removed)))
	return len(removed), nil
}

// evictFile removes f when it is expired or unreadable.
func (m *Manager) evictFile(f diskFile, now time.Time) bool {
	unlock := m.locks.lock(f.hash)
	defer unlock()
	if f.entry != nil && !f.entry.Expired(now) {
		return false
	}
	if f.err != nil {
		m.logger.Warn("Removing unreadable cache file", logfields.Path(f.path), logfields.Error(f.err))
		m.errors.Add(1)
	}
	m.mem.Remove(f.hash)
	if err := m.disk.remove(f.kind, f.hash); err != nil {
		m.logger.Warn("Failed to remove cache file", logfields.Path(f.path), logfields.Error(err))
		m.errors.Add(1)
		return false
	}
	return true
}

// Clear drops every entry of every kind.
func (m *Manager) Clear(_ context.Context) error {
	m.mem.Purge()
	if m.disk == nil {
		return nil
	}
	if err := m.disk.clear(); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryCache, "failed to clear cache directory").
			WithContext("dir", m.disk.dir).Build()
	}
	m.logger.Info("Cleared cache", logfields.Path(m.disk.dir))
	return nil
}

// Stats summarizes cache contents and counters.
type Stats struct {
	Enabled       bool   `json:"enabled"`
	Dir           string `json:"dir,omitempty"`
	MemoryEntries int    `json:"memory_entries"`
	DiskEntries   int    `json:"disk_entries"`
	DiskBytes     int64  `json:"disk_bytes"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Errors        uint64 `json:"errors"`
	LastError     string `json:"last_error,omitempty"`
}

// Stats reports current sizes and the counters accumulated by this Manager.
func (m *Manager) Stats() Stats {
	s := Stats{
		Enabled:       m.enabled,
		MemoryEntries: m.mem.Len(),
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		Errors:        m.errors.Load(),
	}
	if err := m.LastError(); err != nil {
		s.LastError = err.Error()
	}
	if m.disk != nil {
		s.Dir = m.disk.dir
		files, err := m.disk.list()
		if err != nil {
			m.logger.Warn("Failed to list cache directory", logfields.Path(m.disk.dir), logfields.Error(err))
		}
		for _, f := range files {
			s.DiskEntries++
			s.DiskBytes += f.size
		}
	}
	return s
}

func (m *Manager) hit(tier string, key Key) {
	m.hits.Add(1)
	m.recorder.IncCacheResult(tier, metrics.ResultHit)
	m.logger.Debug("Cache hit", logfields.CacheKey(key.String()), logfields.CacheTier(tier))
}

func (m *Manager) miss(key Key) {
	m.misses.Add(1)
	if m.disk != nil {
		m.recorder.IncCacheResult(metrics.TierDisk, metrics.ResultMiss)
	}
	m.logger.Debug("Cache miss", logfields.CacheKey(key.String()))
}

// LastError returns the most recent disk tier failure, if any.
func (m *Manager) LastError() error {
	if err := m.lastErr.Load(); err != nil {
		return err
	}
	return nil
}

func (m *Manager) diskError(msg string, err error, key Key) {
	m.errors.Add(1)
	m.recorder.IncCacheResult(metrics.TierDisk, metrics.ResultError)
	classified := foundationerrors.CacheError(msg).WithCause(err).WithContext("cache_key", key.String()).Build()
	m.lastErr.Store(classified)
	m.logger.Warn(msg, logfields.CacheKey(key.String()), logfields.Error(classified))
}

func (m *Manager) removeDisk(kind Kind, hash string) {
	if m.disk == nil {
		return
	}
	if err := m.disk.remove(kind, hash); err != nil {
		m.errors.Add(1)
		m.logger.Warn("Failed to remove cache file", slog.String("hash", hash), logfields.Error(err))
	}
}
