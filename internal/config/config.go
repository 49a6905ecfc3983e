package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// History backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

const minSigningKeyLen = 32

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	ReferenceYear  int           `mapstructure:"REFERENCE_YEAR"`
	BatchWorkers   int           `mapstructure:"BATCH_WORKERS"`
	MaxFileSize    int64         `mapstructure:"MAX_FILE_SIZE"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	BatchBodyLimit string        `mapstructure:"BATCH_BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	HistoryBackend string        `mapstructure:"HISTORY_BACKEND"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	SQLitePath     string        `mapstructure:"SQLITE_PATH"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "REFERENCE_YEAR", "BATCH_WORKERS",
	"MAX_FILE_SIZE", "BODY_LIMIT", "BATCH_BODY_LIMIT", "REQUEST_TIMEOUT",
	"HISTORY_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"SQLITE_PATH", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "CORS_ORIGINS",
}

// Load reads the environment and an optional .env file in the working
// directory. It does not validate; call Validate once flags are applied.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REFERENCE_YEAR", 2024)
	v.SetDefault("BATCH_WORKERS", 0)
	v.SetDefault("MAX_FILE_SIZE", 10<<20)
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("BATCH_BODY_LIMIT", "64M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("HISTORY_BACKEND", BackendMemory)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("SQLITE_PATH", "cdastats.db")
	v.SetDefault("AUTH_ISSUER", "cdastats")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// a missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.HistoryBackend = strings.ToLower(strings.TrimSpace(cfg.HistoryBackend))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is usable for the selected
// backend and environment.
func (c *Config) Validate() error {
	switch c.HistoryBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when HISTORY_BACKEND is %q", BackendPostgres)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when HISTORY_BACKEND is %q", BackendSQLite)
		}
	default:
		return fmt.Errorf("HISTORY_BACKEND must be %q, %q or %q, got %q",
			BackendMemory, BackendPostgres, BackendSQLite, c.HistoryBackend)
	}

	if c.ReferenceYear < 1900 || c.ReferenceYear > 2200 {
		return fmt.Errorf("REFERENCE_YEAR must be between 1900 and 2200, got %d", c.ReferenceYear)
	}
	if c.BatchWorkers < 0 {
		return fmt.Errorf("BATCH_WORKERS must not be negative, got %d", c.BatchWorkers)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}

	if !c.IsDev() && len(c.AuthSigningKey) < minSigningKeyLen {
		return fmt.Errorf("AUTH_SIGNING_KEY of at least %d bytes is required outside development (ENV=%q)",
			minSigningKeyLen, c.Env)
	}

	return nil
}
