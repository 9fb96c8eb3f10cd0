package config

import (
	"path/filepath"
	"time"
)

const (
	defaultDownloadDir     = "downloads"
	defaultBuildTimeout    = 300 * time.Second
	defaultResolveTimeout  = 300 * time.Second
	defaultKillGrace       = 2 * time.Second
	defaultMaxConcurrent   = 1
	defaultOutputCapBytes  = 64 * 1024
	defaultMaxDetectDepth  = 3
	defaultMaxArchiveMB    = 2048
	defaultCacheDir        = ".cache"
	defaultCacheTTL        = 24 * time.Hour
	defaultFailureTTL      = 10 * time.Minute
	defaultCacheMaxEntries = 256
	defaultCacheMaxSizeMB  = 1000
	defaultEvictInterval   = 10 * time.Minute
	defaultMaxResults      = 5
	defaultMinStars        = 100
	defaultGitHubAPIURL    = "https://api.github.com"
	defaultDiagnosticLines = 20
	defaultHistoryFile     = "history.db"
	defaultMetricsAddr     = ":9464"
	defaultWatchDebounce   = 500 * time.Millisecond
)

// DefaultApplier fills zero values for one configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config)
	Domain() string
}

type buildDefaultApplier struct{}

func (buildDefaultApplier) Domain() string { return "build" }

func (buildDefaultApplier) ApplyDefaults(cfg *Config) {
	b := &cfg.Build
	if b.DownloadDir == "" {
		b.DownloadDir = defaultDownloadDir
	}
	if b.Timeout == 0 {
		b.Timeout = defaultBuildTimeout
	}
	if b.ResolveTimeout == 0 {
		b.ResolveTimeout = defaultResolveTimeout
	}
	if b.KillGrace == 0 {
		b.KillGrace = defaultKillGrace
	}
	if b.MaxConcurrent == 0 {
		b.MaxConcurrent = defaultMaxConcurrent
	}
	if b.OutputCapBytes == 0 {
		b.OutputCapBytes = defaultOutputCapBytes
	}
	if b.MaxDetectDepth == 0 {
		b.MaxDetectDepth = defaultMaxDetectDepth
	}
	if b.MaxArchiveMB == 0 {
		b.MaxArchiveMB = defaultMaxArchiveMB
	}
}

type cacheDefaultApplier struct{}

func (cacheDefaultApplier) Domain() string { return "cache" }

func (cacheDefaultApplier) ApplyDefaults(cfg *Config) {
	c := &cfg.Cache
	if c.Dir == "" {
		c.Dir = defaultCacheDir
	}
	if c.TTL == 0 {
		c.TTL = defaultCacheTTL
	}
	if c.FailureTTL == 0 {
		c.FailureTTL = defaultFailureTTL
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = defaultCacheMaxEntries
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = defaultCacheMaxSizeMB
	}
	if c.EvictInterval == 0 {
		c.EvictInterval = defaultEvictInterval
	}
}

type searchDefaultApplier struct{}

func (searchDefaultApplier) Domain() string { return "search" }

func (searchDefaultApplier) ApplyDefaults(cfg *Config) {
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = defaultMaxResults
	}
	if cfg.GitHub.APIURL == "" {
		cfg.GitHub.APIURL = defaultGitHubAPIURL
	}
}

type retryDefaultApplier struct{}

func (retryDefaultApplier) Domain() string { return "retry" }

func (retryDefaultApplier) ApplyDefaults(cfg *Config) {
	r := &cfg.Retry
	if r.Backoff == "" {
		r.Backoff = RetryBackoffLinear
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = time.Second
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = 30 * time.Second
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 2
	}
}

type outputDefaultApplier struct{}

func (outputDefaultApplier) Domain() string { return "output" }

func (outputDefaultApplier) ApplyDefaults(cfg *Config) {
	if cfg.Report.DiagnosticLines == 0 {
		cfg.Report.DiagnosticLines = defaultDiagnosticLines
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.Cache.Dir, defaultHistoryFile)
	}
	if cfg.Watch.MetricsAddr == "" {
		cfg.Watch.MetricsAddr = defaultMetricsAddr
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = defaultWatchDebounce
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
}

var defaultAppliers = []DefaultApplier{
	buildDefaultApplier{},
	cacheDefaultApplier{},
	searchDefaultApplier{},
	retryDefaultApplier{},
	outputDefaultApplier{},
}

// presetDefaults sets the values whose zero value is meaningful, so an explicit
// "false" in the file is preserved.
func presetDefaults(cfg *Config) {
	cfg.Build.CleanupArtifact = true
	cfg.Cache.Enabled = true
	cfg.History.Enabled = true
	cfg.Search.MinStars = defaultMinStars
}

func applyDefaults(cfg *Config) {
	for _, applier := range defaultAppliers {
		applier.ApplyDefaults(cfg)
	}
	cfg.Retry.Backoff = NormalizeRetryBackoff(string(cfg.Retry.Backoff))
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
}
