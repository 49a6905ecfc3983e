package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/cdastats/internal/config"
	"github.com/ehr/cdastats/internal/domain/analysis"
	"github.com/ehr/cdastats/internal/platform/auth"
	"github.com/ehr/cdastats/internal/platform/ccda"
	"github.com/ehr/cdastats/internal/platform/middleware"
)

const version = "0.1.0"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	hist, err := openHistory(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open run history")
		return err
	}
	defer hist.close()

	parser := ccda.NewParser(ccda.WithReferenceYear(cfg.ReferenceYear))
	svc := analysis.NewService(parser, hist.repo,
		analysis.WithWorkers(cfg.BatchWorkers),
		analysis.WithLogger(logger),
	)

	if cfg.IsDev() {
		logger.Warn().Msg("ENV=development: requests without a token run as an admin dev user")
	}

	e := newServer(cfg, logger, svc, parser, hist.health)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.HistoryBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer assembles the echo instance. dbHealth may be nil, in which
// case /health/db is not registered.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *analysis.Service, parser *ccda.Parser, dbHealth echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.BatchBodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if dbHealth != nil {
		e.GET("/health/db", dbHealth)
	}

	apiV1 := e.Group("/api/v1")
	analysis.NewHandler(svc).RegisterRoutes(apiV1)

	ccdaGroup := apiV1.Group("", auth.RequireRole(auth.RoleAnalyst))
	ccda.NewHandler(ccda.NewGenerator(custodianName, custodianOID), parser).RegisterRoutes(ccdaGroup)

	return e
}
