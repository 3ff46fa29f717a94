// Package main is the entrypoint for the Taskline server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/api"
	"github.com/taskline/taskline/internal/auth"
	"github.com/taskline/taskline/internal/config"
	"github.com/taskline/taskline/internal/db"
	"github.com/taskline/taskline/internal/maintenance"
	"github.com/taskline/taskline/internal/realtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting Taskline server")

	// Load configuration
	cfg := config.LoadServerConfig()

	if cfg.DatabaseURL == "" {
		logger.Error().Msg("DATABASE_URL environment variable is required")
		return 1
	}
	if cfg.JWTSecret == "" {
		logger.Error().Msg("JWT_SECRET environment variable is required")
		return 1
	}

	// Connect to database
	dbCfg := db.DefaultConfig(cfg.DatabaseURL)
	dbCfg.MaxConns = int32(cfg.DBMaxConns)
	database, err := db.New(ctx, dbCfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Provision the default organization before serving traffic. Read paths
	// never create or repair it; startup and the periodic sweep do.
	defaultOrg, err := database.ResolveDefaultOrg(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to provision default organization")
		return 1
	}
	logger.Info().
		Str("org_id", defaultOrg.ID.String()).
		Str("slug", defaultOrg.Slug).
		Msg("default organization ready")

	// Token manager
	tokenCfg := auth.DefaultTokenConfig([]byte(cfg.JWTSecret))
	tokenCfg.AccessTTL = cfg.AccessTokenTTL
	tokenCfg.RefreshTTL = cfg.RefreshTokenTTL
	tokens, err := auth.NewTokenManager(tokenCfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize token manager")
		return 1
	}

	// Realtime hub. The bridge and the subscribe authorizer must both be
	// installed before Start, so the hub starts only after router setup.
	hub := realtime.NewHub(realtime.DefaultConfig(), nil, logger)

	// Optional cross-process event bridge
	if cfg.RedisURL != "" {
		bridge, err := realtime.NewRedisBridge(ctx, cfg.RedisURL, hub, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect redis event bridge")
			return 1
		}
		defer bridge.Close()
	}

	router, err := api.NewRouter(cfg, database, tokens, hub, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize router")
		return 1
	}

	hub.Start()
	defer hub.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Start the default-org reconciliation sweep
	if cfg.ReconcileSchedule != "" {
		reconciler := maintenance.NewReconciler(database, logger)
		if err := reconciler.Start(cfg.ReconcileSchedule); err != nil {
			logger.Error().Err(err).Msg("Failed to start reconciler")
			return 1
		}
		defer reconciler.Stop()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped")
	return 0
}
