package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/cdastats/internal/config"
	"github.com/ehr/cdastats/internal/domain/analysis"
	"github.com/ehr/cdastats/internal/platform/db"
)

const (
	custodianName = "cdastats synthetic corpus"
	custodianOID  = "2.16.840.1.113883.3.9999"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cdastats",
		Short:         "CDA clinical document extraction and corpus statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Logs always go to stderr so that
// stdout carries only command output; the console format is used in
// development and whenever stderr is a color-capable terminal.
func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.IsDev() || !color.NoColor {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// loadConfig loads and validates configuration. apply runs between the
// two so command flags take precedence over the environment.
func loadConfig(apply func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// history is the run repository selected by HISTORY_BACKEND together with
// its health check and cleanup.
type history struct {
	repo   analysis.RunRepository
	health echo.HandlerFunc // nil for the memory backend
	close  func()
}

func openHistory(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*history, error) {
	switch cfg.HistoryBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("backend", cfg.HistoryBackend).Msg("connected to database")
		return &history{
			repo:   analysis.NewRunRepoPG(pool),
			health: db.PoolHealthHandler(pool),
			close:  pool.Close,
		}, nil

	case config.BackendSQLite:
		conn, err := analysis.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("backend", cfg.HistoryBackend).Str("path", cfg.SQLitePath).Msg("opened run history")
		return &history{
			repo:   analysis.NewRunRepoSQLite(conn),
			health: sqliteHealth(conn),
			close:  func() { conn.Close() },
		}, nil

	default:
		return &history{
			repo:  analysis.NewRunRepoMemory(),
			close: func() {},
		}, nil
	}
}

func sqliteHealth(conn *sql.DB) echo.HandlerFunc {
	return db.HealthHandler(config.BackendSQLite, conn.PingContext, func() interface{} {
		st := conn.Stats()
		return map[string]int{
			"open_connections": st.OpenConnections,
			"in_use":           st.InUse,
			"idle":             st.Idle,
		}
	})
}

// connectPostgres is used by commands that only make sense against the
// shared database.
func connectPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}
