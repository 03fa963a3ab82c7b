package config

import (
	"os"
	"testing"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_HOST", "SERVER_PORT", "SERVER_SHUTDOWN_TIMEOUT", "DB_DRIVER", "DB_DSN", "API_KEY", "LOG_LEVEL", "LOG_JSON"} {
		// Setenv restores the original value when the test ends.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "data/firewall-policy-manager.db", cfg.Database.DSN)
	assert.Empty(t, cfg.Auth.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_HOST", "127.0.0.1")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/fw?sslmode=disable")
	t.Setenv("API_KEY", "secret")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_JSON", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "secret", cfg.Auth.APIKey)
	require.NoError(t, cfg.Validate())

	logCfg := cfg.Log.Logging()
	assert.Equal(t, logging.LevelDebug, logCfg.Level)
	assert.True(t, logCfg.JSON)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Host: "0.0.0.0", Port: 8080, ShutdownTimeout: time.Second},
			Database: DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
			Log:      LogConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "SERVER_PORT"},
		{"no shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "SERVER_SHUTDOWN_TIMEOUT"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "DB_DSN"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
