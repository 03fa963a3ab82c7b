package config

import (
	"fmt"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/firewall-policy-manager.db"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	// APIKey is the bootstrap key, accepted on /api/v1 while no API key is
	// stored. With neither, the API is open.
	APIKey string `env:"API_KEY"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	JSON  bool   `env:"LOG_JSON" envDefault:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("parsing auth config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	switch c.Database.Driver {
	case "sqlite3", "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be one of sqlite3, sqlite, postgres")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return nil
}

// Logging returns the logger configuration described by c.
func (c *LogConfig) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.JSON = c.JSON
	if level, err := logging.ParseLevel(c.Level); err == nil {
		cfg.Level = level
	}
	return cfg
}
