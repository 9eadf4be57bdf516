// ABOUTME: Configuration loading and parsing for coven-inbox and its development server
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-inbox configuration
type Config struct {
	Remote  RemoteConfig  `yaml:"remote" toml:"remote"`
	Sync    SyncConfig    `yaml:"sync" toml:"sync"`
	Scroll  ScrollConfig  `yaml:"scroll" toml:"scroll"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// RemoteConfig tells the client where the conversation store lives
type RemoteConfig struct {
	URL      string `yaml:"url" toml:"url"`
	ViewerID string `yaml:"viewer_id" toml:"viewer_id"`
	Token    string `yaml:"token" toml:"token"`
}

// SyncConfig holds polling intervals and retry behavior
type SyncConfig struct {
	ListInterval     time.Duration `yaml:"-" toml:"-"`
	TimelineInterval time.Duration `yaml:"-" toml:"-"`
	RequestTimeout   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ListIntervalRaw     string `yaml:"list_interval" toml:"list_interval"`
	TimelineIntervalRaw string `yaml:"timeline_interval" toml:"timeline_interval"`
	RequestTimeoutRaw   string `yaml:"request_timeout" toml:"request_timeout"`

	Backoff BackoffConfig `yaml:"backoff" toml:"backoff"`
}

// BackoffConfig selects how refresh timers react to failures
type BackoffConfig struct {
	Strategy       string        `yaml:"strategy" toml:"strategy"`
	MaxInterval    time.Duration `yaml:"-" toml:"-"`
	MaxIntervalRaw string        `yaml:"max_interval" toml:"max_interval"`
}

// ScrollConfig holds timeline scroll anchoring settings
type ScrollConfig struct {
	BottomTolerance int `yaml:"bottom_tolerance" toml:"bottom_tolerance"`
}

// ServerConfig holds development server settings
type ServerConfig struct {
	HTTPAddr     string `yaml:"http_addr" toml:"http_addr"`
	DatabasePath string `yaml:"database_path" toml:"database_path"`
	JWTSecret    string `yaml:"jwt_secret" toml:"jwt_secret"`
	DedupeMax    int    `yaml:"dedupe_max" toml:"dedupe_max"`

	DedupeTTL    time.Duration `yaml:"-" toml:"-"`
	DedupeTTLRaw string        `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	// File redirects logs away from the terminal; the TUI needs this.
	File string `yaml:"file" toml:"file"`
}

// Default returns a Config with every optional field set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Path returns the config file to use.
// Priority: COVEN_INBOX_CONFIG env var > XDG_CONFIG_HOME/coven/inbox.yaml > ~/.config/coven/inbox.yaml
func Path() string {
	if envPath := os.Getenv("COVEN_INBOX_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "inbox.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "inbox.yaml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.ListInterval == 0 {
		cfg.Sync.ListInterval = 5 * time.Second
	}
	if cfg.Sync.TimelineInterval == 0 {
		cfg.Sync.TimelineInterval = 4 * time.Second
	}
	if cfg.Sync.RequestTimeout == 0 {
		cfg.Sync.RequestTimeout = 10 * time.Second
	}
	if cfg.Sync.Backoff.Strategy == "" {
		cfg.Sync.Backoff.Strategy = "constant"
	}
	if cfg.Sync.Backoff.MaxInterval == 0 {
		cfg.Sync.Backoff.MaxInterval = time.Minute
	}
	if cfg.Scroll.BottomTolerance == 0 {
		cfg.Scroll.BottomTolerance = 1
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = "127.0.0.1:8480"
	}
	if cfg.Server.DedupeTTL == 0 {
		cfg.Server.DedupeTTL = 10 * time.Minute
	}
	if cfg.Server.DedupeMax == 0 {
		cfg.Server.DedupeMax = 10000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks the settings shared by every binary.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Sync.ListInterval < 0 {
		return fmt.Errorf("sync.list_interval must be positive")
	}
	if c.Sync.TimelineInterval < 0 {
		return fmt.Errorf("sync.timeline_interval must be positive")
	}
	if c.Sync.RequestTimeout < 0 {
		return fmt.Errorf("sync.request_timeout must be positive")
	}

	switch c.Sync.Backoff.Strategy {
	case "", "constant", "exponential":
	default:
		return fmt.Errorf("sync.backoff.strategy must be constant or exponential, got %q", c.Sync.Backoff.Strategy)
	}

	if c.Scroll.BottomTolerance < 0 {
		return fmt.Errorf("scroll.bottom_tolerance must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// ValidateClient checks what the terminal client needs to reach the remote.
func (c *Config) ValidateClient() error {
	if c.Remote.URL == "" {
		return fmt.Errorf("remote.url is required")
	}
	u, err := url.Parse(c.Remote.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote.url must be an http(s) URL, got %q", c.Remote.URL)
	}
	if c.Remote.ViewerID == "" {
		return fmt.Errorf("remote.viewer_id is required")
	}
	if c.Remote.Token == "" {
		return fmt.Errorf("remote.token is required")
	}
	return nil
}

// ValidateServer checks what the development server needs.
func (c *Config) ValidateServer() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.DatabasePath == "" {
		return fmt.Errorf("server.database_path is required")
	}
	if len(c.Server.JWTSecret) < 32 {
		return fmt.Errorf("server.jwt_secret must be at least 32 bytes")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"sync.list_interval", cfg.Sync.ListIntervalRaw, &cfg.Sync.ListInterval},
		{"sync.timeline_interval", cfg.Sync.TimelineIntervalRaw, &cfg.Sync.TimelineInterval},
		{"sync.request_timeout", cfg.Sync.RequestTimeoutRaw, &cfg.Sync.RequestTimeout},
		{"sync.backoff.max_interval", cfg.Sync.Backoff.MaxIntervalRaw, &cfg.Sync.Backoff.MaxInterval},
		{"server.dedupe_ttl", cfg.Server.DedupeTTLRaw, &cfg.Server.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
