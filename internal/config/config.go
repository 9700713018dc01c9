// Package config provides configuration management for reftrack.
// It loads settings from environment variables with the REFTRACK_ prefix
// and provides sensible defaults for all configuration options.
//
// LoadConfigFile reads a YAML file first and lets environment variables
// override whatever the file sets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Registry backends.
const (
	RegistryManifest = "manifest"
	RegistryPostgres = "postgres"
)

// Log formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config holds all configuration settings for the reftrack tools.
type Config struct {
	Document DocumentConfig `yaml:"document"`
	Registry RegistryConfig `yaml:"registry"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Log      LogConfig      `yaml:"log"`
	Events   EventsConfig   `yaml:"events"`
}

// DocumentConfig locates the host document.
type DocumentConfig struct {
	Path string `yaml:"path"` // SQLite document path (default: ./scene.db)
}

// RegistryConfig selects the file/version registry.
type RegistryConfig struct {
	Backend     string `yaml:"backend"`      // manifest or postgres (default: manifest)
	ProjectRoot string `yaml:"project_root"` // root of the project file tree (default: .)
	Manifest    string `yaml:"manifest"`     // manifest path (default: ./project.yaml)
	PostgresDSN string `yaml:"postgres_dsn"` // required for the postgres backend
}

// BreakerConfig tunes the circuit breaker around remote registries.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"` // default: 3
	Timeout     time.Duration `yaml:"timeout"`      // default: 30s
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `yaml:"level"`  // zerolog level name (default: info)
	Format string `yaml:"format"` // console or json (default: console)
	File   string `yaml:"file"`   // optional log file; stderr when empty
}

// EventsConfig locates the change event directory.
type EventsConfig struct {
	Path string `yaml:"path"` // empty disables change events
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the REFTRACK_ prefix.
func LoadConfig() (*Config, error) {
	cfg := defaults()
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads configuration from a YAML file, then applies
// environment variables on top. A missing file is an error.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values the tools cannot act on.
func (c *Config) Validate() error {
	switch c.Registry.Backend {
	case RegistryManifest:
	case RegistryPostgres:
		if c.Registry.PostgresDSN == "" {
			return errors.New("config: postgres registry requires REFTRACK_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: unknown registry backend %q", c.Registry.Backend)
	}

	switch c.Log.Format {
	case LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}

	if c.Breaker.MaxFailures < 0 {
		return fmt.Errorf("config: breaker max failures must not be negative, got %d", c.Breaker.MaxFailures)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Document: DocumentConfig{Path: "./scene.db"},
		Registry: RegistryConfig{
			Backend:     RegistryManifest,
			ProjectRoot: ".",
			Manifest:    "./project.yaml",
		},
		Breaker: BreakerConfig{MaxFailures: 3, Timeout: 30 * time.Second},
		Log:     LogConfig{Level: "info", Format: LogFormatConsole},
	}
}

// applyEnv overrides cfg with every REFTRACK_ variable that is set.
func applyEnv(cfg *Config) {
	cfg.Document.Path = getEnv("REFTRACK_DOCUMENT", cfg.Document.Path)
	cfg.Registry.Backend = getEnv("REFTRACK_REGISTRY", cfg.Registry.Backend)
	cfg.Registry.ProjectRoot = getEnv("REFTRACK_PROJECT_ROOT", cfg.Registry.ProjectRoot)
	cfg.Registry.Manifest = getEnv("REFTRACK_MANIFEST", cfg.Registry.Manifest)
	cfg.Registry.PostgresDSN = getEnv("REFTRACK_POSTGRES_DSN", cfg.Registry.PostgresDSN)
	cfg.Breaker.MaxFailures = getEnvInt("REFTRACK_BREAKER_MAX_FAILURES", cfg.Breaker.MaxFailures)
	cfg.Breaker.Timeout = getEnvDuration("REFTRACK_BREAKER_TIMEOUT", cfg.Breaker.Timeout)
	cfg.Log.Level = getEnv("REFTRACK_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("REFTRACK_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("REFTRACK_LOG_FILE", cfg.Log.File)
	cfg.Events.Path = getEnv("REFTRACK_EVENTS_PATH", cfg.Events.Path)
	if getEnvBool("REFTRACK_EVENTS_DISABLED", false) {
		cfg.Events.Path = ""
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration is getEnvInt for time.ParseDuration values.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
