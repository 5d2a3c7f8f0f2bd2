// Package config loads and validates the indexmirror configuration.
// Values come from defaults, then an optional YAML file, then
// INDEXMIRROR_* environment variables, highest last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "indexmirror.yaml"

// Config is the complete indexmirror configuration.
type Config struct {
	Version int           `yaml:"version"`
	Source  SourceConfig  `yaml:"source"`
	Index   IndexConfig   `yaml:"index"`
	Data    DataConfig    `yaml:"data"`
	Owners  []string      `yaml:"owners"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
}

// SourceConfig locates the content database the index mirrors.
type SourceConfig struct {
	// Path is the SQLite content database.
	Path string `yaml:"path"`
}

// IndexConfig locates the search indexes.
type IndexConfig struct {
	// Dir holds one Bleve index per owner, in Dir/<owner>.
	Dir string `yaml:"dir"`
}

// DataConfig locates durable synchronization state.
type DataConfig struct {
	// Dir holds per-owner watermark and lock files, in Dir/<owner>.
	Dir string `yaml:"dir"`
}

// SyncConfig tunes synchronization passes. Durations are Go duration
// strings ("24h", "500ms").
type SyncConfig struct {
	// FullResyncInterval is the staleness threshold for forcing a full
	// pass. Empty or "0" disables staleness-driven full passes.
	FullResyncInterval string `yaml:"full_resync_interval"`

	// AddBatchSize bounds documents per index commit.
	AddBatchSize int `yaml:"add_batch_size"`

	// RemoveBatchSize bounds ids per index removal.
	RemoveBatchSize int `yaml:"remove_batch_size"`

	// Inflight bounds concurrent index commits per owner.
	Inflight int `yaml:"inflight"`

	// MaxMappingAttempts is the retry budget for records that fail
	// document mapping before they are skipped for good.
	MaxMappingAttempts int `yaml:"max_mapping_attempts"`

	// WatchDebounce is the quiet window for watch-mode file events.
	WatchDebounce string `yaml:"watch_debounce"`

	// WatchInterval is watch mode's periodic fallback trigger. Empty
	// or "0" disables it.
	WatchInterval string `yaml:"watch_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// File receives JSON logs; empty logs to stderr.
	File string `yaml:"file"`
}

// NewConfig returns the configuration defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Source:  SourceConfig{Path: "content.db"},
		Index:   IndexConfig{Dir: ".indexmirror/index"},
		Data:    DataConfig{Dir: ".indexmirror/data"},
		Sync: SyncConfig{
			FullResyncInterval: "24h",
			AddBatchSize:       64,
			RemoveBatchSize:    256,
			Inflight:           4,
			MaxMappingAttempts: 3,
			WatchDebounce:      "500ms",
			WatchInterval:      "5m",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the effective configuration. path names an explicit config
// file; when empty, FileName in the working directory is used if present,
// otherwise the user config, otherwise pure defaults.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = discoverPath()
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UserConfigPath returns the per-user config file location, honoring
// XDG_CONFIG_HOME.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "indexmirror", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "indexmirror", "config.yaml")
}

func discoverPath() string {
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}
	if p := UserConfigPath(); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies INDEXMIRROR_* environment variables on top
// of file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("INDEXMIRROR_SOURCE_PATH"); v != "" {
		c.Source.Path = v
	}
	if v := os.Getenv("INDEXMIRROR_INDEX_DIR"); v != "" {
		c.Index.Dir = v
	}
	if v := os.Getenv("INDEXMIRROR_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("INDEXMIRROR_OWNERS"); v != "" {
		c.Owners = c.Owners[:0]
		for _, owner := range strings.Split(v, ",") {
			if owner = strings.TrimSpace(owner); owner != "" {
				c.Owners = append(c.Owners, owner)
			}
		}
	}
	if v := os.Getenv("INDEXMIRROR_FULL_RESYNC_INTERVAL"); v != "" {
		c.Sync.FullResyncInterval = v
	}
	if v := os.Getenv("INDEXMIRROR_ADD_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.AddBatchSize = n
		}
	}
	if v := os.Getenv("INDEXMIRROR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("INDEXMIRROR_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}
	if c.Index.Dir == "" {
		return fmt.Errorf("index.dir is required")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	for _, owner := range c.Owners {
		if err := ValidateOwner(owner); err != nil {
			return err
		}
	}
	if c.Sync.AddBatchSize < 1 {
		return fmt.Errorf("sync.add_batch_size must be >= 1, got %d", c.Sync.AddBatchSize)
	}
	if c.Sync.RemoveBatchSize < 1 {
		return fmt.Errorf("sync.remove_batch_size must be >= 1, got %d", c.Sync.RemoveBatchSize)
	}
	if c.Sync.MaxMappingAttempts < 1 {
		return fmt.Errorf("sync.max_mapping_attempts must be >= 1, got %d", c.Sync.MaxMappingAttempts)
	}
	for name, v := range map[string]string{
		"sync.full_resync_interval": c.Sync.FullResyncInterval,
		"sync.watch_debounce":       c.Sync.WatchDebounce,
		"sync.watch_interval":       c.Sync.WatchInterval,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// ValidateOwner checks that an owner name is safe to use as a directory
// component.
func ValidateOwner(owner string) error {
	if owner == "" {
		return fmt.Errorf("owner name must not be empty")
	}
	if owner == "." || owner == ".." {
		return fmt.Errorf("owner name %q is reserved", owner)
	}
	if strings.ContainsAny(owner, `/\`) {
		return fmt.Errorf("owner name %q must not contain path separators", owner)
	}
	return nil
}

// FullResyncEvery returns the parsed staleness threshold; zero disables
// staleness-driven full passes.
func (s SyncConfig) FullResyncEvery() time.Duration {
	d, _ := parseDuration(s.FullResyncInterval)
	return d
}

// DebounceWindow returns the parsed watch debounce window.
func (s SyncConfig) DebounceWindow() time.Duration {
	d, _ := parseDuration(s.WatchDebounce)
	return d
}

// TickInterval returns the parsed watch fallback interval; zero disables
// it.
func (s SyncConfig) TickInterval() time.Duration {
	d, _ := parseDuration(s.WatchInterval)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}
