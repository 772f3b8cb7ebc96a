// Package config provides environment- and file-based configuration
// for the agent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all agent configuration.
type Config struct {
	// Server configuration
	Host string
	Port int

	// Storage configuration
	Storage StorageConfig

	// LogBuffer is the per-subscriber capacity of build log channels.
	LogBuffer int

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration
}

// StorageConfig holds project storage configuration.
type StorageConfig struct {
	// ProjectsDir is the extraction root owned by the project cache.
	ProjectsDir string
	// CleanupAfter is how long an untouched project directory is kept.
	CleanupAfter time.Duration
	// CleanupInterval is how often the janitor runs.
	CleanupInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()
	cfg := &Config{
		Host:            getEnv("XSCAPE_HOST", "0.0.0.0"),
		Port:            getIntEnv("XSCAPE_PORT", 8080),
		LogBuffer:       getIntEnv("XSCAPE_LOG_BUFFER", 1000),
		ShutdownTimeout: getDurationEnv("XSCAPE_SHUTDOWN_TIMEOUT", 30*time.Second),
		Storage: StorageConfig{
			ProjectsDir:     getEnv("XSCAPE_PROJECTS_DIR", filepath.Join(home, ".xscape", "projects")),
			CleanupAfter:    getDurationEnv("XSCAPE_CLEANUP_AFTER", 24*time.Hour),
			CleanupInterval: getDurationEnv("XSCAPE_CLEANUP_INTERVAL", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig mirrors Config for YAML decoding. Durations are strings
// in the file ("30s", "24h") and parsed during the overlay.
type fileConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	LogBuffer       int    `yaml:"log_buffer"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	Storage         struct {
		ProjectsDir     string `yaml:"projects_dir"`
		CleanupAfter    string `yaml:"cleanup_after"`
		CleanupInterval string `yaml:"cleanup_interval"`
	} `yaml:"storage"`
}

// LoadFile loads configuration from environment variables, then
// overlays values from a YAML config file. Keys absent from the file
// keep their environment values.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if file.Host != "" {
		cfg.Host = file.Host
	}
	if file.Port != 0 {
		cfg.Port = file.Port
	}
	if file.LogBuffer != 0 {
		cfg.LogBuffer = file.LogBuffer
	}
	if file.Storage.ProjectsDir != "" {
		cfg.Storage.ProjectsDir = file.Storage.ProjectsDir
	}
	overlays := []struct {
		value string
		key   string
		dst   *time.Duration
	}{
		{file.ShutdownTimeout, "shutdown_timeout", &cfg.ShutdownTimeout},
		{file.Storage.CleanupAfter, "storage.cleanup_after", &cfg.Storage.CleanupAfter},
		{file.Storage.CleanupInterval, "storage.cleanup_interval", &cfg.Storage.CleanupInterval},
	}
	for _, o := range overlays {
		if o.value == "" {
			continue
		}
		d, err := time.ParseDuration(o.value)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", o.key, err)
		}
		*o.dst = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Storage.ProjectsDir == "" {
		return fmt.Errorf("projects directory is required")
	}
	if c.LogBuffer <= 0 {
		return fmt.Errorf("log buffer must be positive")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
