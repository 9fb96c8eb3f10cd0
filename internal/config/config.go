package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
)

// DefaultConfigFile is the configuration file looked up when --config is not given.
const DefaultConfigFile = "repobuilder.yaml"

// Config is the explicit configuration structure built once at process start and
// passed by pointer into the coordinator. No component reads the environment after Load.
type Config struct {
	Build   BuildConfig   `yaml:"build"`
	Cache   CacheConfig   `yaml:"cache"`
	Search  SearchConfig  `yaml:"search"`
	GitHub  GitHubConfig  `yaml:"github"`
	Retry   RetryConfig   `yaml:"retry"`
	Report  ReportConfig  `yaml:"report"`
	History HistoryConfig `yaml:"history"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
}

// BuildConfig controls staging and subprocess execution.
type BuildConfig struct {
	DownloadDir     string        `yaml:"download_dir"`
	Timeout         time.Duration `yaml:"timeout"`
	ResolveTimeout  time.Duration `yaml:"resolve_timeout"`
	KillGrace       time.Duration `yaml:"kill_grace"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	OutputCapBytes  int           `yaml:"output_cap_bytes"`
	MaxDetectDepth  int           `yaml:"max_detect_depth"`
	MaxArchiveMB    int           `yaml:"max_archive_mb"`
	KeepWorkspaces  bool          `yaml:"keep_workspaces"`
	CleanupArtifact bool          `yaml:"cleanup_artifacts"`
}

// MaxArchiveBytes is the unpacked size limit for downloaded archives.
func (b BuildConfig) MaxArchiveBytes() int64 {
	return int64(b.MaxArchiveMB) << 20
}

// CacheConfig controls the two-tier result cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Dir           string        `yaml:"dir"`
	TTL           time.Duration `yaml:"ttl"`
	FailureTTL    time.Duration `yaml:"failure_ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	MaxSizeMB     int           `yaml:"max_size_mb"`
	EvictInterval time.Duration `yaml:"evict_interval"`
}

// SearchConfig holds candidate filtering values consumed upstream of the engine.
type SearchConfig struct {
	MaxResults     int      `yaml:"max_results"`
	MinStars       int      `yaml:"min_stars"`
	CandidatesFile string   `yaml:"candidates_file"`
	Include        []string `yaml:"include,omitempty"`
	Exclude        []string `yaml:"exclude,omitempty"`
}

// GitHubConfig holds code-host credentials.
type GitHubConfig struct {
	Token        string `yaml:"token,omitempty"`
	APIURL       string `yaml:"api_url"`
	RequireToken bool   `yaml:"require_token"`
}

// RetryConfig controls retries of transient staging failures.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay time.Duration    `yaml:"initial_delay"`
	MaxDelay     time.Duration    `yaml:"max_delay"`
	MaxRetries   int              `yaml:"max_retries"`
}

// ReportConfig controls human-readable report rendering.
type ReportConfig struct {
	DiagnosticLines int `yaml:"diagnostic_lines"`
}

// HistoryConfig controls the build history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig controls the long-running watch mode.
type WatchConfig struct {
	MetricsAddr string        `yaml:"metrics_addr"`
	Debounce    time.Duration `yaml:"debounce"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
	File   string    `yaml:"file,omitempty"`
}

// Load reads the configuration file (if path is non-empty), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	loadDotEnv()
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup function.
func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	cfg := &Config{}
	presetDefaults(cfg)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, foundationerrors.ConfigError(fmt.Sprintf("configuration file not found: %s", path)).Build()
			}
			return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "read configuration file").Fatal().Build()
		}
		expanded := os.Expand(string(data), func(key string) string {
			v, _ := lookup(key)
			return v
		})
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "parse configuration file").
				Fatal().WithContext("path", path).Build()
		}
	}

	if err := applyEnvOverrides(cfg, lookup); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a validated configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	presetDefaults(cfg)
	applyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return foundationerrors.ValidationError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", path)).Build()
	}
	example := Default()
	example.GitHub.Token = "${GITHUB_TOKEN}"
	example.Search.CandidatesFile = "candidates.yaml"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
