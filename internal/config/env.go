package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
)

// LookupFunc mirrors os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// loadDotEnv loads .env.local and .env from the working directory. Existing
// environment variables win.
func loadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load env file", "file", name, "error", err)
		}
	}
}

// MapLookup adapts a map for LoadWithEnv.
func MapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

type envOverride struct {
	keys  []string
	apply func(cfg *Config, raw string) error
}

// Each entry lists the preferred REPOBUILDER_* name first, followed by the
// legacy names still honored.
var envOverrides = []envOverride{
	{[]string{"REPOBUILDER_DOWNLOAD_DIR", "BUILD_DOWNLOAD_DIR"}, func(c *Config, v string) error {
		c.Build.DownloadDir = v
		return nil
	}},
	{[]string{"REPOBUILDER_BUILD_TIMEOUT", "BUILD_TIMEOUT"}, func(c *Config, v string) error {
		return setDuration(&c.Build.Timeout, v)
	}},
	{[]string{"REPOBUILDER_MAX_CONCURRENT", "PARALLEL_BUILDS"}, func(c *Config, v string) error {
		return setInt(&c.Build.MaxConcurrent, v)
	}},
	{[]string{"REPOBUILDER_CLEANUP_ARTIFACTS", "CLEANUP_AFTER_BUILD"}, func(c *Config, v string) error {
		return setBool(&c.Build.CleanupArtifact, v)
	}},
	{[]string{"REPOBUILDER_CACHE_ENABLED", "CACHE_ENABLED"}, func(c *Config, v string) error {
		return setBool(&c.Cache.Enabled, v)
	}},
	{[]string{"REPOBUILDER_CACHE_DIR", "CACHE_DIR"}, func(c *Config, v string) error {
		c.Cache.Dir = v
		return nil
	}},
	{[]string{"REPOBUILDER_CACHE_TTL", "CACHE_TTL"}, func(c *Config, v string) error {
		return setDuration(&c.Cache.TTL, v)
	}},
	{[]string{"REPOBUILDER_CACHE_MAX_SIZE_MB", "CACHE_MAX_SIZE_MB"}, func(c *Config, v string) error {
		return setInt(&c.Cache.MaxSizeMB, v)
	}},
	{[]string{"REPOBUILDER_MAX_RESULTS", "MAX_RESULTS"}, func(c *Config, v string) error {
		return setInt(&c.Search.MaxResults, v)
	}},
	{[]string{"REPOBUILDER_MIN_STARS", "MIN_STARS"}, func(c *Config, v string) error {
		return setInt(&c.Search.MinStars, v)
	}},
	{[]string{"REPOBUILDER_GITHUB_TOKEN", "GITHUB_API_KEY", "GITHUB_TOKEN"}, func(c *Config, v string) error {
		c.GitHub.Token = v
		return nil
	}},
	{[]string{"REPOBUILDER_LOG_LEVEL", "LOG_LEVEL"}, func(c *Config, v string) error {
		c.Logging.Level = LogLevel(v)
		return nil
	}},
	{[]string{"REPOBUILDER_LOG_FILE", "LOG_FILE"}, func(c *Config, v string) error {
		c.Logging.File = v
		return nil
	}},
}

func applyEnvOverrides(cfg *Config, lookup LookupFunc) error {
	for _, o := range envOverrides {
		for _, key := range o.keys {
			raw, ok := lookup(key)
			if !ok || strings.TrimSpace(raw) == "" {
				continue
			}
			if err := o.apply(cfg, strings.TrimSpace(raw)); err != nil {
				return foundationerrors.ConfigError(fmt.Sprintf("invalid value for %s", key)).
					WithCause(err).
					WithContext("env", key).
					Build()
			}
			break
		}
	}
	return nil
}

func setInt(dst *int, raw string) error {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setBool(dst *bool, raw string) error {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

// setDuration accepts Go duration strings or a bare number of seconds.
func setDuration(dst *time.Duration, raw string) error {
	if secs, err := strconv.Atoi(raw); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
