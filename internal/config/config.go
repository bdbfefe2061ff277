// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"weather-warehouse/pkg/database"
)

// Config holds all service settings
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Ingestion IngestionConfig
}

// ServerConfig configures the read API
type ServerConfig struct {
	Host            string        `validate:"required"`
	Port            int           `validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	IdleTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// DatabaseConfig configures the PostgreSQL pool
type DatabaseConfig struct {
	Host            string `validate:"required"`
	Port            int    `validate:"min=1,max=65535"`
	User            string `validate:"required"`
	Password        string
	Database        string        `validate:"required"`
	SSLMode         string        `validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `validate:"min=1"`
	MaxIdleConns    int           `validate:"min=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
	ConnMaxIdleTime time.Duration `validate:"gte=0"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

// IngestionConfig configures the ingester binary
type IngestionConfig struct {
	DataDir              string
	Source               string        `validate:"required,max=50"`
	BatchSize            int           `validate:"min=1,max=100000"`
	Workers              int           `validate:"min=1,max=64"`
	RetryAttempts        int           `validate:"min=1,max=10"`
	RetryInitialInterval time.Duration `validate:"gt=0"`
	RetryMaxInterval     time.Duration `validate:"gtefield=RetryInitialInterval"`
	BreakerThreshold     uint32
	BreakerTimeout       time.Duration `validate:"gt=0"`
	QualityPolicyPath    string
	WatchDir             string
	ArchiveDir           string
	WatchInterval        time.Duration `validate:"gt=0"`
}

// LoadConfig reads configuration from the environment after loading an
// optional .env file, applying defaults where unset.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		Server: ServerConfig{
			Host:            getenv("SERVER_HOST", "0.0.0.0"),
			Port:            p.intVar("SERVER_PORT", 8080),
			ReadTimeout:     p.durationVar("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    p.durationVar("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     p.durationVar("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: p.durationVar("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getenv("DB_HOST", "localhost"),
			Port:            p.intVar("DB_PORT", 5432),
			User:            getenv("DB_USER", "postgres"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        getenv("DB_NAME", "weather"),
			SSLMode:         getenv("DB_SSLMODE", "disable"),
			MaxOpenConns:    p.intVar("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    p.intVar("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.durationVar("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: p.durationVar("DB_CONN_MAX_IDLE_TIME", time.Minute),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(getenv("LOG_LEVEL", "info")),
		},
		Ingestion: IngestionConfig{
			DataDir:              getenv("INGEST_DATA_DIR", "wx_data"),
			Source:               getenv("INGEST_SOURCE", "manual"),
			BatchSize:            p.intVar("INGEST_BATCH_SIZE", 1000),
			Workers:              p.intVar("INGEST_WORKERS", 4),
			RetryAttempts:        p.intVar("INGEST_RETRY_ATTEMPTS", 3),
			RetryInitialInterval: p.durationVar("INGEST_RETRY_INITIAL_INTERVAL", 100*time.Millisecond),
			RetryMaxInterval:     p.durationVar("INGEST_RETRY_MAX_INTERVAL", 2*time.Second),
			BreakerThreshold:     uint32(p.intVar("INGEST_BREAKER_THRESHOLD", 10)),
			BreakerTimeout:       p.durationVar("INGEST_BREAKER_TIMEOUT", 30*time.Second),
			QualityPolicyPath:    os.Getenv("QUALITY_POLICY_PATH"),
			WatchDir:             getenv("INGEST_WATCH_DIR", "incoming"),
			ArchiveDir:           getenv("INGEST_ARCHIVE_DIR", "archive"),
			WatchInterval:        p.durationVar("INGEST_WATCH_INTERVAL", time.Minute),
		},
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return cfg, nil
}

// Validate checks field constraints declared in struct tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Postgres returns the pool settings for database.NewPostgresDB
func (c DatabaseConfig) Postgres() *database.Config {
	return &database.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// parser collects every malformed variable instead of stopping at the first
type parser struct {
	errs []error
}

func (p *parser) intVar(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
