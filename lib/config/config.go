// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local runs against a scratch repository.
	Development Environment = "development"
	// Staging is for a rehearsal repository.
	Staging Environment = "staging"
	// Production is the team's real repository.
	Production Environment = "production"
)

// EnvVar names the environment variable [Load] reads the config path
// from.
const EnvVar = "RTMSYNC_CONFIG"

// Config is the rtmsync configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// GitHub configures the remote repository.
	GitHub GitHubConfig `yaml:"github"`

	// Store configures the traceability database.
	Store StoreConfig `yaml:"store"`

	// Sync configures the reconciliation cycle.
	Sync SyncConfig `yaml:"sync"`

	// Report configures report export defaults.
	Report ReportConfig `yaml:"report"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	GitHub *GitHubConfig `yaml:"github,omitempty"`
	Store  *StoreConfig  `yaml:"store,omitempty"`
	Sync   *SyncConfig   `yaml:"sync,omitempty"`
	Report *ReportConfig `yaml:"report,omitempty"`
}

// GitHubConfig identifies the repository and how to reach it.
type GitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`

	// BaseURL is the REST API root. Default: https://api.github.com
	BaseURL string `yaml:"base_url"`

	// TokenEnv names the environment variable holding the API token.
	// The token itself never appears in the config file.
	// Default: GITHUB_TOKEN
	TokenEnv string `yaml:"token_env"`

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	// Default: 0 (development), 1 (production)
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the pacing burst size.
	Burst int `yaml:"burst"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	// Root is the base directory for rtmsync data.
	Root string `yaml:"root"`

	// Path is the database file. Default: ${RTMSYNC_ROOT}/rtm.db
	Path string `yaml:"path"`

	// PoolSize is the number of pooled connections. Default: 4
	PoolSize int `yaml:"pool_size"`
}

// SyncConfig configures the reconciliation cycle. Durations use
// [time.ParseDuration] syntax.
type SyncConfig struct {
	// Workers bounds concurrent per-entity reconciliation. Default: 4
	Workers int `yaml:"workers"`

	// Interval is the daemon-mode period. Default: 15m
	Interval string `yaml:"interval"`

	// CycleTimeout bounds one cycle. Empty means unbounded.
	CycleTimeout string `yaml:"cycle_timeout"`
}

// ReportConfig holds defaults for `rtmsync report`.
type ReportConfig struct {
	// Compression is none, zstd or lz4. Default: none
	Compression string `yaml:"compression"`

	// Indent pretty-prints the JSON.
	Indent bool `yaml:"indent"`
}

// Default returns the default configuration, used as the base the
// config file is decoded over. The config file is still required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "rtmsync")

	return &Config{
		Environment: Development,
		GitHub: GitHubConfig{
			BaseURL:  "https://api.github.com",
			TokenEnv: "GITHUB_TOKEN",
		},
		Store: StoreConfig{
			Root:     defaultRoot,
			Path:     "${RTMSYNC_ROOT}/rtm.db",
			PoolSize: 4,
		},
		Sync: SyncConfig{
			Workers:  4,
			Interval: "15m",
		},
		Report: ReportConfig{
			Compression: "none",
		},
	}
}

// Load loads configuration from the RTMSYNC_CONFIG environment
// variable. There is no fallback: if it is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your rtmsync.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// A .env file in the same directory is loaded into the process
// environment first; variables that are already set are left alone.
// Environment variables never override config values directly: they
// reach the config only through ${VAR} expansion of path fields and
// through [GitHubConfig].TokenEnv.
func LoadFile(path string) (*Config, error) {
	if err := loadDotenv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func loadDotenv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// loadFile decodes a single configuration file over the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: pace requests against the shared quota.
		if overrides == nil {
			overrides = &ConfigOverrides{
				GitHub: &GitHubConfig{RequestsPerSecond: 1, Burst: 5},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.GitHub != nil {
		override(&c.GitHub.Owner, overrides.GitHub.Owner)
		override(&c.GitHub.Repo, overrides.GitHub.Repo)
		override(&c.GitHub.BaseURL, overrides.GitHub.BaseURL)
		override(&c.GitHub.TokenEnv, overrides.GitHub.TokenEnv)
		override(&c.GitHub.RequestsPerSecond, overrides.GitHub.RequestsPerSecond)
		override(&c.GitHub.Burst, overrides.GitHub.Burst)
	}

	if overrides.Store != nil {
		override(&c.Store.Root, overrides.Store.Root)
		override(&c.Store.Path, overrides.Store.Path)
		override(&c.Store.PoolSize, overrides.Store.PoolSize)
	}

	if overrides.Sync != nil {
		override(&c.Sync.Workers, overrides.Sync.Workers)
		override(&c.Sync.Interval, overrides.Sync.Interval)
		override(&c.Sync.CycleTimeout, overrides.Sync.CycleTimeout)
	}

	if overrides.Report != nil {
		override(&c.Report.Compression, overrides.Report.Compression)
		// Indent is a bool, so it is always taken from the override.
		c.Report.Indent = overrides.Report.Indent
	}
}

// override replaces *field with value unless value is the zero value.
func override[T comparable](field *T, value T) {
	var zero T
	if value != zero {
		*field = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"RTMSYNC_ROOT": c.Store.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Store.Root = expandVars(c.Store.Root, vars)
	vars["RTMSYNC_ROOT"] = c.Store.Root // Update for dependent paths.

	c.Store.Path = expandVars(c.Store.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors and reports all of
// them at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.GitHub.Owner == "" {
		errs = append(errs, fmt.Errorf("github.owner is required"))
	}
	if c.GitHub.Repo == "" {
		errs = append(errs, fmt.Errorf("github.repo is required"))
	}
	if c.GitHub.TokenEnv == "" {
		errs = append(errs, fmt.Errorf("github.token_env is required"))
	}
	if c.GitHub.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("github.requests_per_second must not be negative"))
	}

	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required"))
	}
	if c.Store.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("store.pool_size must be at least 1"))
	}

	if c.Sync.Workers < 1 {
		errs = append(errs, fmt.Errorf("sync.workers must be at least 1"))
	}
	if interval, err := parseDuration(c.Sync.Interval); err != nil {
		errs = append(errs, fmt.Errorf("sync.interval: %w", err))
	} else if interval <= 0 {
		errs = append(errs, fmt.Errorf("sync.interval must be positive"))
	}
	if _, err := parseDuration(c.Sync.CycleTimeout); err != nil {
		errs = append(errs, fmt.Errorf("sync.cycle_timeout: %w", err))
	}

	compressions := []string{"none", "zstd", "lz4"}
	if !slices.Contains(compressions, c.Report.Compression) {
		errs = append(errs, fmt.Errorf("report.compression must be one of: %v", compressions))
	}

	return errors.Join(errs...)
}

// Token returns the API token from the variable named by
// github.token_env.
func (c *Config) Token() (string, error) {
	token := os.Getenv(c.GitHub.TokenEnv)
	if token == "" {
		return "", fmt.Errorf("%s is not set; export it or add it to the .env file next to the config", c.GitHub.TokenEnv)
	}
	return token, nil
}

// IntervalDuration returns the parsed sync.interval.
func (s SyncConfig) IntervalDuration() (time.Duration, error) {
	return parseDuration(s.Interval)
}

// CycleTimeoutDuration returns the parsed sync.cycle_timeout, zero
// when unset.
func (s SyncConfig) CycleTimeoutDuration() (time.Duration, error) {
	return parseDuration(s.CycleTimeout)
}

// EnsureStoreDir creates the directory holding the database file.
func (c *Config) EnsureStoreDir() error {
	directory := filepath.Dir(c.Store.Path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", directory, err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if duration < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return duration, nil
}
