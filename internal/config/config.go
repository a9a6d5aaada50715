// ABOUTME: Configuration loading and parsing for runi-mcp
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// CollectionsDirEnv overrides collections.dir when set.
const CollectionsDirEnv = "RUNI_COLLECTIONS_DIR"

// Defaults
const (
	DefaultHTTPAddr        = "127.0.0.1:7331"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultCleanupInterval = time.Minute
	DefaultBurst           = 20
)

// Config represents the complete runi-mcp configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Collections CollectionsConfig `yaml:"collections" toml:"collections"`
	Journal     JournalConfig     `yaml:"journal" toml:"journal"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" toml:"rate_limit"`
	Streams     StreamsConfig     `yaml:"streams" toml:"streams"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// CollectionsConfig locates the collection store
type CollectionsConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// JournalConfig controls the SQLite event journal
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret" toml:"jwt_secret"`
	RequireAuth bool   `yaml:"require_auth" toml:"require_auth"`

	// Tokens maps opaque bearer tokens to the principal they authenticate
	Tokens map[string]string `yaml:"tokens" toml:"tokens"`
}

// RateLimitConfig limits POST /mcp. Zero requests_per_second disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// StreamsConfig holds named-stream broadcaster settings
type StreamsConfig struct {
	CleanupInterval time.Duration `yaml:"-" toml:"-"`

	CleanupIntervalRaw string `yaml:"cleanup_interval" toml:"cleanup_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DefaultPath returns the default config file location under the XDG config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "runi", "mcp.yaml")
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        DefaultHTTPAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Collections: CollectionsConfig{
			Dir: filepath.Join(xdg.DataHome, "runi", "collections"),
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(xdg.DataHome, "runi", "journal.db"),
		},
		RateLimit: RateLimitConfig{Burst: DefaultBurst},
		Streams:   StreamsConfig{CleanupInterval: DefaultCleanupInterval},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}
	return Load(path)
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() {
	if dir := os.Getenv(CollectionsDirEnv); dir != "" {
		c.Collections.Dir = dir
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Collections.Dir == "" {
		return fmt.Errorf("collections.dir is required")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	if c.Auth.RequireAuth && c.Auth.JWTSecret == "" && len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("auth.jwt_secret or auth.tokens is required when auth.require_auth is set")
	}
	for token, principal := range c.Auth.Tokens {
		if token == "" || principal == "" {
			return fmt.Errorf("auth.tokens entries need a non-empty token and principal")
		}
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1")
	}
	if c.Streams.CleanupInterval <= 0 {
		return fmt.Errorf("streams.cleanup_interval must be positive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ShutdownTimeoutRaw != "" {
		cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
	}

	if cfg.Streams.CleanupIntervalRaw != "" {
		cfg.Streams.CleanupInterval, err = time.ParseDuration(cfg.Streams.CleanupIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing cleanup_interval %q: %w", cfg.Streams.CleanupIntervalRaw, err)
		}
	}

	return nil
}
