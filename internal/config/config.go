// Package config loads openbbox settings from config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PathEnv names an explicit config file.
const PathEnv = "OPENBBOX_CONFIG"

// FileName is the config file looked up inside the data directory.
const FileName = "config.yaml"

type Config struct {
	WindowSeconds        int     `yaml:"window_seconds"`
	MinResponseChars     int     `yaml:"min_response_chars"`
	FlushIntervalSeconds int     `yaml:"flush_interval_seconds"`
	DataDir              string  `yaml:"data_dir,omitempty"`
	Git                  Git     `yaml:"git"`
	Watcher              Watcher `yaml:"watcher"`
	Log                  Log     `yaml:"log"`
}

type Git struct {
	Binary         string `yaml:"binary"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Watcher struct {
	Enabled    *bool    `yaml:"enabled"`
	DebounceMS int      `yaml:"debounce_ms"`
	Ignore     []string `yaml:"ignore,omitempty"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	enabled := true
	return Config{
		WindowSeconds:        90,
		MinResponseChars:     20,
		FlushIntervalSeconds: 30,
		Git:                  Git{Binary: "git", TimeoutSeconds: 10},
		Watcher:              Watcher{Enabled: &enabled, DebounceMS: 200},
		Log:                  Log{Level: "info", Format: "text"},
	}
}

// Path resolves the config file: $OPENBBOX_CONFIG, else config.yaml in dataDir.
func Path(dataDir string) string {
	if p := strings.TrimSpace(os.Getenv(PathEnv)); p != "" {
		return os.ExpandEnv(p)
	}
	return filepath.Join(dataDir, FileName)
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.expandEnv()
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) expandEnv() {
	c.DataDir = os.ExpandEnv(c.DataDir)
	c.Git.Binary = os.ExpandEnv(c.Git.Binary)
	c.Log.Level = os.ExpandEnv(c.Log.Level)
	c.Log.Format = os.ExpandEnv(c.Log.Format)
	for i, name := range c.Watcher.Ignore {
		c.Watcher.Ignore[i] = os.ExpandEnv(name)
	}
}

// fillDefaults restores defaults for zero or negative values.
func (c *Config) fillDefaults() {
	def := Default()
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = def.WindowSeconds
	}
	if c.MinResponseChars <= 0 {
		c.MinResponseChars = def.MinResponseChars
	}
	if c.FlushIntervalSeconds <= 0 {
		c.FlushIntervalSeconds = def.FlushIntervalSeconds
	}
	if strings.TrimSpace(c.Git.Binary) == "" {
		c.Git.Binary = def.Git.Binary
	}
	if c.Git.TimeoutSeconds <= 0 {
		c.Git.TimeoutSeconds = def.Git.TimeoutSeconds
	}
	if c.Watcher.Enabled == nil {
		c.Watcher.Enabled = def.Watcher.Enabled
	}
	if c.Watcher.DebounceMS <= 0 {
		c.Watcher.DebounceMS = def.Watcher.DebounceMS
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

func (c Config) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

func (c Config) GitTimeout() time.Duration {
	return time.Duration(c.Git.TimeoutSeconds) * time.Second
}

func (c Config) WatcherEnabled() bool {
	return c.Watcher.Enabled == nil || *c.Watcher.Enabled
}

func (c Config) WatcherDebounce() time.Duration {
	return time.Duration(c.Watcher.DebounceMS) * time.Millisecond
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
