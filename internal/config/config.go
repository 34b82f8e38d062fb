// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pieceflowerrors "github.com/pieceflow/pieceflow/pkg/errors"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete pieceflow configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Poller PollerConfig `yaml:"poller"`
	Pieces PiecesConfig `yaml:"pieces"`
	HTTP   HTTPConfig   `yaml:"http"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: text
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// PollerConfig configures the trigger polling service.
type PollerConfig struct {
	// Interval is the delay between poll cycles of one trigger.
	// Environment: PIECEFLOW_POLL_INTERVAL
	// Default: 30s
	Interval time.Duration `yaml:"interval"`

	// MaxPages caps pagination within one poll cycle.
	// Environment: PIECEFLOW_POLL_MAX_PAGES
	// Default: 50
	MaxPages int `yaml:"max_pages"`

	// DatabasePath is the SQLite file holding trigger cursors.
	// Environment: PIECEFLOW_POLL_DB
	// Default: <data dir>/poll.db
	DatabasePath string `yaml:"database_path,omitempty"`

	// MetricsAddr is the listen address for the Prometheus endpoint.
	// Empty disables the endpoint.
	// Environment: PIECEFLOW_METRICS_ADDR
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// PiecesConfig configures piece discovery.
type PiecesConfig struct {
	// ManifestDirs are directories searched for declarative piece
	// manifests. Glob patterns are allowed.
	// Environment: PIECEFLOW_MANIFEST_DIRS (colon-separated)
	ManifestDirs []string `yaml:"manifest_dirs,omitempty"`

	// WatchManifests reloads manifests when their files change.
	// Default: false
	WatchManifests bool `yaml:"watch_manifests"`
}

// HTTPConfig configures outbound API calls made by pieces.
type HTTPConfig struct {
	// Timeout is the per-request timeout.
	// Environment: PIECEFLOW_HTTP_TIMEOUT
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// RetryAttempts is the number of retries for transient failures.
	// Environment: PIECEFLOW_HTTP_RETRIES
	// Default: 3
	RetryAttempts int `yaml:"retry_attempts"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Poller: PollerConfig{
			Interval:     30 * time.Second,
			MaxPages:     50,
			DatabasePath: filepath.Join(defaultDataDir(), "poll.db"),
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
		},
	}
}

// Load loads configuration from an optional YAML file with environment
// variable overrides. Environment variables take precedence over the
// file; both take precedence over defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &pieceflowerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &pieceflowerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills zero values so minimal config files work.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Poller.Interval == 0 {
		c.Poller.Interval = defaults.Poller.Interval
	}
	if c.Poller.MaxPages == 0 {
		c.Poller.MaxPages = defaults.Poller.MaxPages
	}
	if c.Poller.DatabasePath == "" {
		c.Poller.DatabasePath = defaults.Poller.DatabasePath
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = defaults.HTTP.Timeout
	}
	if c.HTTP.RetryAttempts == 0 {
		c.HTTP.RetryAttempts = defaults.HTTP.RetryAttempts
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies environment variable overrides.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("PIECEFLOW_POLL_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Poller.Interval = duration
		}
	}
	if val := os.Getenv("PIECEFLOW_POLL_MAX_PAGES"); val != "" {
		if pages, err := strconv.Atoi(val); err == nil {
			c.Poller.MaxPages = pages
		}
	}
	if val := os.Getenv("PIECEFLOW_POLL_DB"); val != "" {
		c.Poller.DatabasePath = val
	}
	if val := os.Getenv("PIECEFLOW_METRICS_ADDR"); val != "" {
		c.Poller.MetricsAddr = val
	}

	if val := os.Getenv("PIECEFLOW_MANIFEST_DIRS"); val != "" {
		c.Pieces.ManifestDirs = strings.Split(val, ":")
	}

	if val := os.Getenv("PIECEFLOW_HTTP_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.HTTP.Timeout = duration
		}
	}
	if val := os.Getenv("PIECEFLOW_HTTP_RETRIES"); val != "" {
		if retries, err := strconv.Atoi(val); err == nil {
			c.HTTP.RetryAttempts = retries
		}
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Poller.Interval < time.Second {
		errs = append(errs, fmt.Sprintf("poller.interval must be at least 1s, got %v", c.Poller.Interval))
	}
	if c.Poller.MaxPages <= 0 {
		errs = append(errs, fmt.Sprintf("poller.max_pages must be positive, got %d", c.Poller.MaxPages))
	}

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("http.timeout must be positive, got %v", c.HTTP.Timeout))
	}
	if c.HTTP.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("http.retry_attempts must be non-negative, got %d", c.HTTP.RetryAttempts))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// defaultDataDir returns the default data directory.
func defaultDataDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "pieceflow")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/pieceflow-data"
	}
	return filepath.Join(homeDir, ".pieceflow", "data")
}
