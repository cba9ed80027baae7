package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

// Environment variables that override the file.
const (
	EnvListen   = "KINBOX_LISTEN"
	EnvLogLevel = "KINBOX_LOG_LEVEL"
	EnvPassword = "KINBOX_PASSWORD"
)

// Config is the top-level application configuration.
type Config struct {
	Listen          string            `yaml:"listen"`
	LogLevel        string            `yaml:"log_level"`
	IMAPPort        int               `yaml:"imap_port"`
	FolderLimit     int               `yaml:"folder_limit"`
	CacheEnabled    bool              `yaml:"cache_enabled"`
	CacheTTLSeconds int               `yaml:"cache_ttl_seconds"`
	TimeoutSeconds  int               `yaml:"timeout_seconds"`
	Coalesce        bool              `yaml:"coalesce"`
	Servers         map[string]string `yaml:"servers"` // domain -> IMAP host
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Listen:          ":8000",
		LogLevel:        "info",
		IMAPPort:        993,
		FolderLimit:     30,
		CacheEnabled:    true,
		CacheTTLSeconds: 600,
		TimeoutSeconds:  60,
		Coalesce:        true,
	}
}

// CacheTTL returns the cache entry lifetime, defaulting to 10 minutes.
func (c *Config) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return 600 * time.Second
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Timeout returns the bound on one aggregation, defaulting to 60 seconds.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads a YAML configuration file. A missing file yields the defaults.
// Values from a .env file in the working directory, or the process
// environment, override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		c.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	if c.IMAPPort <= 0 || c.IMAPPort > 65535 {
		return fmt.Errorf("imap_port must be between 1 and 65535")
	}
	if c.FolderLimit < 0 {
		return fmt.Errorf("folder_limit must not be negative")
	}
	for domain, host := range c.Servers {
		if strings.TrimSpace(domain) == "" || strings.TrimSpace(host) == "" {
			return fmt.Errorf("servers: empty domain or host")
		}
	}
	return nil
}
