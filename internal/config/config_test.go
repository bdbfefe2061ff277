package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "manual", cfg.Ingestion.Source)
	assert.Equal(t, 1000, cfg.Ingestion.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Ingestion.RetryInitialInterval)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_NAME", "warehouse")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("INGEST_WORKERS", "8")
	t.Setenv("INGEST_WATCH_INTERVAL", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "warehouse", cfg.Database.Database)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Ingestion.Workers)
	assert.Equal(t, 30*time.Second, cfg.Ingestion.WatchInterval)
}

func TestLoadConfig_MalformedValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("INGEST_RETRY_MAX_INTERVAL", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_PORT")
	assert.Contains(t, err.Error(), "INGEST_RETRY_MAX_INTERVAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "Level"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "Port"},
		{"idle above open", func(c *Config) { c.Database.MaxIdleConns = 100 }, "MaxIdleConns"},
		{"zero batch", func(c *Config) { c.Ingestion.BatchSize = 0 }, "BatchSize"},
		{"max below initial", func(c *Config) { c.Ingestion.RetryMaxInterval = time.Millisecond }, "RetryMaxInterval"},
		{"bad sslmode", func(c *Config) { c.Database.SSLMode = "sometimes" }, "SSLMode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDatabaseConfig_Postgres(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	pg := cfg.Database.Postgres()
	assert.Equal(t, "db.internal", pg.Host)
	assert.Equal(t, 6543, pg.Port)
	assert.Contains(t, pg.DSN(), "host=db.internal port=6543")
}
