// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/noesis-chat/client-core/internal/conn"
	"github.com/noesis-chat/client-core/internal/graphcache"
	"github.com/noesis-chat/client-core/internal/search"
	"github.com/noesis-chat/client-core/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete noesis configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Connection ConnectionConfig `toml:"connection" json:"connection"`
	Cache      CacheConfig      `toml:"cache" json:"cache"`
	Search     SearchConfig     `toml:"search" json:"search"`
	Backend    BackendConfig    `toml:"backend" json:"backend"`
	Storage    StorageConfig    `toml:"storage" json:"storage"`
}

// ConnectionConfig tunes the live connection's reconnect behavior.
type ConnectionConfig struct {
	// URL is the websocket endpoint for the live event stream.
	URL string `toml:"url" json:"url"`

	// InitialDelayMS is the first reconnect delay in milliseconds.
	InitialDelayMS int `toml:"initial_delay_ms" json:"initial_delay_ms"`

	// MaxDelayMS caps the exponential backoff in milliseconds.
	MaxDelayMS int `toml:"max_delay_ms" json:"max_delay_ms"`

	// MaxAttempts is the consecutive-failure budget before fail-stop.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts"`

	// BackoffFactor multiplies the delay per consecutive failure.
	BackoffFactor float64 `toml:"backoff_factor" json:"backoff_factor"`

	// EnableJitter perturbs each delay by up to ±25%.
	EnableJitter bool `toml:"enable_jitter" json:"enable_jitter"`

	// TimeoutSecs bounds a single connection attempt in seconds.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// CacheConfig tunes the graph snapshot cache.
type CacheConfig struct {
	// TTLSecs is the entry time-to-live in seconds.
	TTLSecs int `toml:"ttl_secs" json:"ttl_secs"`

	// MaxEntries bounds the cache before LRU eviction kicks in.
	MaxEntries int `toml:"max_entries" json:"max_entries"`

	// EnableStatistics turns hit/miss accounting on.
	EnableStatistics bool `toml:"enable_statistics" json:"enable_statistics"`

	// AutoCleanup sweeps expired entries opportunistically on reads.
	AutoCleanup bool `toml:"auto_cleanup" json:"auto_cleanup"`
}

// SearchConfig tunes the conversation search engine.
type SearchConfig struct {
	// MaxResults bounds one search pass.
	MaxResults int `toml:"max_results" json:"max_results"`

	// HistoryLimit caps the stored query history.
	HistoryLimit int `toml:"history_limit" json:"history_limit"`

	// Weights are the relevance scoring coefficients.
	Weights search.Weights `toml:"weights" json:"weights"`
}

// BackendConfig points at the backend's HTTP API.
type BackendConfig struct {
	// BaseURL is the backend API root.
	BaseURL string `toml:"base_url" json:"base_url"`

	// TimeoutSecs bounds a single request in seconds.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// MaxRetries is the attempt budget for transient errors.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// StorageConfig controls the conversation archive.
type StorageConfig struct {
	// ArchiveEnabled persists sessions to SQLite.
	ArchiveEnabled bool `toml:"archive_enabled" json:"archive_enabled"`

	// ArchivePath is the SQLite database location. Empty means
	// ~/.noesis/archive.db.
	ArchivePath string `toml:"archive_path" json:"archive_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Connection: ConnectionConfig{
			URL:            "ws://localhost:8000/api/v1/events",
			InitialDelayMS: int(conn.DefaultInitialDelay / time.Millisecond),
			MaxDelayMS:     int(conn.DefaultMaxDelay / time.Millisecond),
			MaxAttempts:    conn.DefaultMaxAttempts,
			BackoffFactor:  conn.DefaultBackoffFactor,
			EnableJitter:   true,
			TimeoutSecs:    int(conn.DefaultTimeoutDuration / time.Second),
		},
		Cache: CacheConfig{
			TTLSecs:          int(graphcache.DefaultTTL / time.Second),
			MaxEntries:       graphcache.DefaultMaxEntries,
			EnableStatistics: true,
			AutoCleanup:      true,
		},
		Search: SearchConfig{
			MaxResults:   search.DefaultMaxResults,
			HistoryLimit: search.DefaultHistoryLimit,
			Weights:      search.DefaultWeights(),
		},
		Backend: BackendConfig{
			BaseURL:     "http://localhost:8000/api/v1",
			TimeoutSecs: 60,
			MaxRetries:  3,
		},
		Storage: StorageConfig{
			ArchiveEnabled: true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the noesis configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".noesis"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultArchivePath returns the default SQLite archive location.
func DefaultArchivePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "archive.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads configuration from the standard locations: TOML first,
// then JSON, then built-in defaults. Environment overrides and
// validation apply in every case.
func Load() (*Config, error) {
	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFrom(path)
		}
	}
	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFrom(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFrom reads configuration from a specific file. The format is
// chosen by extension: .json decodes as JSON, anything else as TOML.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse JSON config: %w", err)
		}
	} else {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse TOML config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default TOML file atomically.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file atomically.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - NOESIS_BACKEND_URL: backend API base URL
//   - NOESIS_WS_URL: websocket endpoint for the live stream
//   - NOESIS_ARCHIVE_PATH: SQLite archive location
//   - NOESIS_MAX_ATTEMPTS: reconnect attempt budget
func (c *Config) ApplyEnvOverrides() {
	if url := os.Getenv("NOESIS_BACKEND_URL"); url != "" {
		c.Backend.BaseURL = url
	}
	if url := os.Getenv("NOESIS_WS_URL"); url != "" {
		c.Connection.URL = url
	}
	if path := os.Getenv("NOESIS_ARCHIVE_PATH"); path != "" {
		c.Storage.ArchivePath = path
	}
	if attempts := os.Getenv("NOESIS_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil && n > 0 {
			c.Connection.MaxAttempts = n
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration, clamping soft mistakes and
// reporting hard ones.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Connection.URL == "" {
		errs = append(errs, ValidationError{"connection.url", "must not be empty"})
	} else if !strings.HasPrefix(c.Connection.URL, "ws://") && !strings.HasPrefix(c.Connection.URL, "wss://") {
		errs = append(errs, ValidationError{"connection.url", "must use ws:// or wss://"})
	}
	if c.Connection.InitialDelayMS < 0 {
		c.Connection.InitialDelayMS = int(conn.DefaultInitialDelay / time.Millisecond)
	}
	if c.Connection.MaxDelayMS < c.Connection.InitialDelayMS {
		c.Connection.MaxDelayMS = c.Connection.InitialDelayMS
	}
	if c.Connection.MaxAttempts <= 0 {
		c.Connection.MaxAttempts = conn.DefaultMaxAttempts
	}
	if c.Connection.BackoffFactor < 1 {
		c.Connection.BackoffFactor = conn.DefaultBackoffFactor
	}
	if c.Connection.TimeoutSecs <= 0 {
		c.Connection.TimeoutSecs = int(conn.DefaultTimeoutDuration / time.Second)
	}

	if c.Cache.TTLSecs <= 0 {
		c.Cache.TTLSecs = int(graphcache.DefaultTTL / time.Second)
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = graphcache.DefaultMaxEntries
	}
	if c.Cache.MaxEntries > 100000 {
		errs = append(errs, ValidationError{"cache.max_entries", "must be at most 100000"})
	}

	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = search.DefaultMaxResults
	}
	if c.Search.HistoryLimit <= 0 {
		c.Search.HistoryLimit = search.DefaultHistoryLimit
	}
	if w := c.Search.Weights; w.MatchBase < 0 || w.TitleMatch < 0 || w.RecencyMax < 0 ||
		w.UserMessage < 0 || w.GraphData < 0 {
		errs = append(errs, ValidationError{"search.weights", "coefficients must not be negative"})
	}

	if c.Backend.BaseURL == "" {
		errs = append(errs, ValidationError{"backend.base_url", "must not be empty"})
	} else if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		errs = append(errs, ValidationError{"backend.base_url", "must use http:// or https://"})
	}
	if c.Backend.TimeoutSecs <= 0 {
		c.Backend.TimeoutSecs = 60
	}
	if c.Backend.MaxRetries <= 0 {
		c.Backend.MaxRetries = 3
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// ConnConfig converts the connection section to the manager's config.
func (c *Config) ConnConfig() conn.Config {
	return conn.Config{
		InitialDelay:    time.Duration(c.Connection.InitialDelayMS) * time.Millisecond,
		MaxDelay:        time.Duration(c.Connection.MaxDelayMS) * time.Millisecond,
		MaxAttempts:     c.Connection.MaxAttempts,
		BackoffFactor:   c.Connection.BackoffFactor,
		EnableJitter:    c.Connection.EnableJitter,
		TimeoutDuration: time.Duration(c.Connection.TimeoutSecs) * time.Second,
	}
}

// GraphCacheConfig converts the cache section to the graph cache's config.
func (c *Config) GraphCacheConfig() graphcache.Config {
	return graphcache.Config{
		DefaultTTL:       time.Duration(c.Cache.TTLSecs) * time.Second,
		MaxEntries:       c.Cache.MaxEntries,
		EnableStatistics: c.Cache.EnableStatistics,
		AutoCleanup:      c.Cache.AutoCleanup,
	}
}

// SearchWeights returns the relevance coefficients.
func (c *Config) SearchWeights() search.Weights {
	return c.Search.Weights
}

// BackendTimeout returns the per-request backend timeout.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSecs) * time.Second
}

// ResolvedArchivePath returns the archive location, applying the
// default when unset.
func (c *Config) ResolvedArchivePath() (string, error) {
	if c.Storage.ArchivePath != "" {
		return c.Storage.ArchivePath, nil
	}
	return DefaultArchivePath()
}
