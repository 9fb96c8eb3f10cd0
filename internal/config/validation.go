package config

import (
	"fmt"
	"strings"

	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
)

type configurationValidator struct {
	cfg      *Config
	problems []string
}

// Validate checks the configuration for invalid values. All problems are
// reported together in one configuration error.
func Validate(cfg *Config) error {
	v := &configurationValidator{cfg: cfg}
	v.validateBuild()
	v.validateCache()
	v.validateSearch()
	v.validateRetry()
	v.validateLogging()
	if len(v.problems) == 0 {
		return nil
	}
	return foundationerrors.ConfigError("invalid configuration: "+strings.Join(v.problems, "; ")).
		WithContext("problems", len(v.problems)).
		Build()
}

func (v *configurationValidator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *configurationValidator) validateBuild() {
	b := v.cfg.Build
	if b.Timeout <= 0 {
		v.addf("build.timeout must be positive")
	}
	if b.ResolveTimeout <= 0 {
		v.addf("build.resolve_timeout must be positive")
	}
	if b.KillGrace < 0 {
		v.addf("build.kill_grace must not be negative")
	}
	if b.MaxConcurrent < 1 {
		v.addf("build.max_concurrent must be at least 1, got %d", b.MaxConcurrent)
	}
	if b.OutputCapBytes < 1 {
		v.addf("build.output_cap_bytes must be positive")
	}
	if b.MaxDetectDepth < 1 {
		v.addf("build.max_detect_depth must be at least 1")
	}
	if b.MaxArchiveMB < 1 {
		v.addf("build.max_archive_mb must be at least 1, got %d", b.MaxArchiveMB)
	}
}

func (v *configurationValidator) validateCache() {
	c := v.cfg.Cache
	if !c.Enabled {
		return
	}
	if c.Dir == "" {
		v.addf("cache.dir is required when the cache is enabled")
	}
	if c.TTL <= 0 || c.FailureTTL <= 0 {
		v.addf("cache ttl values must be positive")
	}
	if c.MaxEntries < 1 {
		v.addf("cache.max_entries must be at least 1")
	}
	if c.MaxSizeMB < 0 {
		v.addf("cache.max_size_mb must not be negative")
	}
}

func (v *configurationValidator) validateSearch() {
	if v.cfg.Search.MaxResults < 1 {
		v.addf("search.max_results must be at least 1")
	}
	if v.cfg.Search.MinStars < 0 {
		v.addf("search.min_stars must not be negative")
	}
	if v.cfg.GitHub.RequireToken && v.cfg.GitHub.Token == "" {
		v.addf("github.token is required")
	}
}

func (v *configurationValidator) validateRetry() {
	r := v.cfg.Retry
	if r.Backoff == "" {
		v.addf("retry.backoff must be one of fixed, linear or exponential")
	}
	if r.MaxRetries < 0 {
		v.addf("retry.max_retries must not be negative")
	}
	if r.MaxDelay < r.InitialDelay {
		v.addf("retry.max_delay must be >= retry.initial_delay")
	}
}

func (v *configurationValidator) validateLogging() {
	if v.cfg.Logging.Level == "" {
		v.addf("logging.level must be one of debug, info, warn or error")
	}
	if v.cfg.Logging.Format == "" {
		v.addf("logging.format must be text or json")
	}
}
