// Package config provides configuration management for codewatch.
// It uses koanf v2 to load configuration from YAML files and supports
// saving configuration back out (e.g. after first-run initialization).
//
// A missing config file is not an error: every field has a usable default,
// so the tool works out of the box and the file only overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default location of the configuration file,
// relative to the working directory.
const DefaultConfigPath = "codewatch.yaml"

// Config holds the codewatch configuration loaded from the YAML config file.
// Fields are tagged for both koanf (loading) and yaml (saving).
type Config struct {
	// WatchDir is the directory tree to watch for source file changes.
	WatchDir string `koanf:"watch_dir" yaml:"watch_dir"`

	// DatabasePath is where the execution history database lives.
	DatabasePath string `koanf:"database_path" yaml:"database_path"`

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error".
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// DebounceMs is the quiet window in milliseconds before a change
	// triggers an execution. Default: 100.
	DebounceMs int `koanf:"debounce_ms" yaml:"debounce_ms"`

	// ExecTimeoutSeconds bounds a single file execution. Default: 30.
	ExecTimeoutSeconds int `koanf:"exec_timeout_seconds" yaml:"exec_timeout_seconds"`

	// OutputLimitBytes caps captured combined output per execution.
	// Default: 1 MiB.
	OutputLimitBytes int `koanf:"output_limit_bytes" yaml:"output_limit_bytes"`

	// PythonCommand is the interpreter used for .py files. Default: python3.
	PythonCommand string `koanf:"python_command" yaml:"python_command"`

	// GoCommand is the toolchain used for .go files. Default: go.
	GoCommand string `koanf:"go_command" yaml:"go_command"`

	// ShellCommand is the shell used for .sh files. Default: bash.
	ShellCommand string `koanf:"shell_command" yaml:"shell_command"`

	// RetentionMaxAgeDays prunes history records older than this many days.
	// 0 disables retention (records are kept forever).
	RetentionMaxAgeDays int `koanf:"retention_max_age_days" yaml:"retention_max_age_days"`

	// RetentionSchedule is the cron expression driving the prune job.
	// Default: "@daily".
	RetentionSchedule string `koanf:"retention_schedule" yaml:"retention_schedule"`
}

// Validation errors returned by Load.
var (
	ErrInvalidDebounce  = errors.New("debounce_ms must be positive")
	ErrInvalidTimeout   = errors.New("exec_timeout_seconds must be positive")
	ErrInvalidRetention = errors.New("retention_max_age_days must not be negative")
)

// Load reads configuration from the specified YAML file path. A missing
// file yields the defaults; a present but malformed file is an error.
func Load(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.WatchDir == "" {
		c.WatchDir = "./examples"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "codewatch.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DebounceMs == 0 {
		c.DebounceMs = 100
	}
	if c.ExecTimeoutSeconds == 0 {
		c.ExecTimeoutSeconds = 30
	}
	if c.OutputLimitBytes == 0 {
		c.OutputLimitBytes = 1 << 20
	}
	if c.PythonCommand == "" {
		c.PythonCommand = "python3"
	}
	if c.GoCommand == "" {
		c.GoCommand = "go"
	}
	if c.ShellCommand == "" {
		c.ShellCommand = "bash"
	}
	if c.RetentionSchedule == "" {
		c.RetentionSchedule = "@daily"
	}
}

// validate checks that configuration values are usable.
func (c *Config) validate() error {
	if c.DebounceMs <= 0 {
		return ErrInvalidDebounce
	}
	if c.ExecTimeoutSeconds <= 0 {
		return ErrInvalidTimeout
	}
	if c.RetentionMaxAgeDays < 0 {
		return ErrInvalidRetention
	}
	return nil
}

// DebounceWindow returns the debounce window as a duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ExecTimeout returns the per-execution timeout as a duration.
func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutSeconds) * time.Second
}

// RetentionMaxAge returns the retention age as a duration; zero means
// retention is disabled.
func (c *Config) RetentionMaxAge() time.Duration {
	return time.Duration(c.RetentionMaxAgeDays) * 24 * time.Hour
}

// RetentionEnabled reports whether the prune job should run.
func (c *Config) RetentionEnabled() bool {
	return c.RetentionMaxAgeDays > 0
}

// Save writes the configuration to the specified YAML file path.
func Save(path string, cfg *Config) error {
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}

	return nil
}
