// Package config provides project configuration for ns.
// Configuration is optional: a .ns.yaml file at the repository root can
// tune exclusions and index behavior, and flags override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional project config file.
const ConfigFileName = ".ns.yaml"

// DataDirName is the index directory created at the repository root.
const DataDirName = ".ns"

// DefaultMaxFileSize is the default maximum file size to index (1 MiB).
const DefaultMaxFileSize int64 = 1 << 20

// DefaultWatchDebounce is the quiet window before a watch-triggered
// incremental build.
const DefaultWatchDebounce = 500 * time.Millisecond

// Config represents the complete ns configuration.
type Config struct {
	Paths PathsConfig `yaml:"paths"`
	Index IndexConfig `yaml:"index"`
	Watch WatchConfig `yaml:"watch"`
}

// PathsConfig configures which paths to exclude beyond ignore files.
type PathsConfig struct {
	Exclude []string `yaml:"exclude"`
}

// IndexConfig configures index builds.
type IndexConfig struct {
	// MaxFileSize is the maximum file size to index in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
	// Workers is the number of concurrent read+extract workers
	// (0 = NumCPU).
	Workers int `yaml:"workers"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is the quiet window before rebuilding (e.g., "500ms").
	Debounce string `yaml:"debounce"`
}

// New returns a Config with defaults applied.
func New() *Config {
	return &Config{
		Index: IndexConfig{
			MaxFileSize: DefaultMaxFileSize,
		},
	}
}

// Load reads .ns.yaml from root if present and merges it over defaults.
// A missing file is not an error.
func Load(root string) (*Config, error) {
	cfg := New()

	data, err := os.ReadFile(filepath.Join(root, ConfigFileName))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ConfigFileName, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}
	if cfg.Index.MaxFileSize <= 0 {
		cfg.Index.MaxFileSize = DefaultMaxFileSize
	}
	return cfg, nil
}

// WatchDebounce returns the parsed debounce window, falling back to the
// default on absent or malformed values.
func (c *Config) WatchDebounce() time.Duration {
	if c.Watch.Debounce == "" {
		return DefaultWatchDebounce
	}
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return DefaultWatchDebounce
	}
	return d
}

// FindRoot walks up from start looking for a directory containing .git or
// an existing .ns index. Falls back to the absolute form of start.
func FindRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	dir := abs
	for {
		for _, marker := range []string{".git", DataDirName} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

// DataDir returns the index directory for a root.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}
