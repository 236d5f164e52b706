// Package config provides configuration management for trellis.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/trellis-io/trellis/internal/util"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
	// TrellisDir is the trellis configuration directory.
	TrellisDir = ".trellis"
	// TasksDirName is the subdirectory holding per-project task files.
	TasksDirName = "tasks"
	// IndexFileName is the embedded index database file.
	IndexFileName = "index.db"
)

// ServerConfig holds dashboard API settings.
type ServerConfig struct {
	// Addr is the listen address for the dashboard API.
	Addr string `yaml:"addr"`
}

// WatcherConfig holds sync watcher settings.
type WatcherConfig struct {
	// Enabled controls whether the watcher runs under 'trellis serve'.
	Enabled bool `yaml:"enabled"`

	// DebounceMs is the quiet period before a file event settles.
	// Filesystem APIs emit duplicate events for one logical write;
	// coalescing them keeps reconciliation idempotent and cheap.
	DebounceMs int `yaml:"debounce_ms"`
}

// Config represents the trellis configuration.
type Config struct {
	// Version is the config file version.
	Version int `yaml:"version"`

	// TasksRoot is the directory holding <project>/task-<id>.md files.
	TasksRoot string `yaml:"tasks_root"`

	// DBPath is the embedded index database path.
	DBPath string `yaml:"db_path"`

	// DefaultProject receives tasks created without an explicit project.
	DefaultProject string `yaml:"default_project"`

	// MaxSubtreeWarn is the subtree size above which a cascading move
	// logs a warning before proceeding.
	MaxSubtreeWarn int `yaml:"max_subtree_warn"`

	Watcher WatcherConfig `yaml:"watcher"`
	Server  ServerConfig  `yaml:"server"`
}

// Default returns the configuration defaults rooted at workDir.
func Default(workDir string) *Config {
	base := filepath.Join(workDir, TrellisDir)
	return &Config{
		Version:        1,
		TasksRoot:      filepath.Join(base, TasksDirName),
		DBPath:         filepath.Join(base, IndexFileName),
		DefaultProject: "default",
		MaxSubtreeWarn: 500,
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMs: 500,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8321",
		},
	}
}

// Path returns the config file path for a work directory.
func Path(workDir string) string {
	return filepath.Join(workDir, TrellisDir, ConfigFileName)
}

// Load reads the config from workDir, falling back to defaults for a
// missing file and missing fields.
func Load(workDir string) (*Config, error) {
	cfg := Default(workDir)

	data, err := os.ReadFile(Path(workDir))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults(workDir)
	return cfg, nil
}

// Save writes the config atomically.
func (c *Config) Save(workDir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := util.AtomicWriteFile(Path(workDir), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyDefaults fills zero-valued fields after a partial file load.
func (c *Config) applyDefaults(workDir string) {
	def := Default(workDir)
	if c.TasksRoot == "" {
		c.TasksRoot = def.TasksRoot
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.DefaultProject == "" {
		c.DefaultProject = def.DefaultProject
	}
	if c.MaxSubtreeWarn <= 0 {
		c.MaxSubtreeWarn = def.MaxSubtreeWarn
	}
	if c.Watcher.DebounceMs <= 0 {
		c.Watcher.DebounceMs = def.Watcher.DebounceMs
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
}

// Validate checks the config for obviously broken values.
func (c *Config) Validate() error {
	if c.TasksRoot == "" {
		return fmt.Errorf("tasks_root is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Watcher.DebounceMs < 0 {
		return fmt.Errorf("watcher.debounce_ms cannot be negative")
	}
	return nil
}
