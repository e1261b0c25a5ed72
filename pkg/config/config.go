// Package config loads sessionview settings from an optional YAML file and
// SESSIONVIEW_* environment variables. Environment values win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the config file when no path is given.
const EnvConfigPath = "SESSIONVIEW_CONFIG"

// Config holds all sessionview configuration.
type Config struct {
	// ClaudeDir is the directory holding projects/; reads never leave it.
	ClaudeDir string `yaml:"claude_dir"`
	// Addr is the listen address of `serve`.
	Addr string `yaml:"addr"`
	// APIURL is the server the CLI talks to unless --local is set.
	APIURL string `yaml:"api_url"`
	// MaxDepth bounds sub-agent nesting.
	MaxDepth int `yaml:"max_depth"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogJSON switches logs to JSON lines on stderr.
	LogJSON bool `yaml:"log_json"`
	// Timeout applies to each API request made by the CLI.
	Timeout time.Duration `yaml:"timeout"`
	// WatchInterval is the poll period of /api/tree/watch.
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ClaudeDir:     "~/.claude",
		Addr:          ":8000",
		APIURL:        "http://localhost:8000",
		MaxDepth:      10,
		LogLevel:      "info",
		Timeout:       30 * time.Second,
		WatchInterval: time.Second,
	}
}

// Load reads the YAML file at path, or at $SESSIONVIEW_CONFIG when path is
// empty, over the defaults and then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()

	dir, err := ExpandHome(cfg.ClaudeDir)
	if err != nil {
		return cfg, err
	}
	cfg.ClaudeDir = dir

	if cfg.MaxDepth < 1 {
		return cfg, fmt.Errorf("max_depth must be positive, got %d", cfg.MaxDepth)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ClaudeDir = getenv("SESSIONVIEW_CLAUDE_DIR", c.ClaudeDir)
	c.Addr = getenv("SESSIONVIEW_ADDR", c.Addr)
	c.APIURL = getenv("SESSIONVIEW_API_URL", c.APIURL)
	c.MaxDepth = getenvInt("SESSIONVIEW_MAX_DEPTH", c.MaxDepth)
	c.LogLevel = getenv("SESSIONVIEW_LOG_LEVEL", c.LogLevel)
	c.LogJSON = getenvBool("SESSIONVIEW_LOG_JSON", c.LogJSON)
	c.Timeout = getenvDuration("SESSIONVIEW_TIMEOUT", c.Timeout)
	c.WatchInterval = getenvDuration("SESSIONVIEW_WATCH_INTERVAL", c.WatchInterval)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
