package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ardhptr21/myits-lapor/internal/cache"
	"github.com/ardhptr21/myits-lapor/internal/config"
	"github.com/ardhptr21/myits-lapor/internal/database"
	"github.com/ardhptr21/myits-lapor/internal/handlers"
	"github.com/ardhptr21/myits-lapor/internal/jobs"
	"github.com/ardhptr21/myits-lapor/internal/log"
	"github.com/ardhptr21/myits-lapor/internal/server"
	"github.com/ardhptr21/myits-lapor/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped")
	}
	logger.Info().Msg("api exited cleanly")
}

func run(cfg *config.AppConfig, logger zerolog.Logger) error {
	if cfg.Security.JWTSecret == config.DefaultJWTSecret {
		logger.Warn().Msg("using the default jwt secret, set LAPOR_SECURITY_JWTSECRET")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, "myits-lapor-api")
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if err := database.Migrate(ctx, dbPool); err != nil {
		return err
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("file store %q: %w", cfg.Storage.Driver, err)
	}

	handlerSet, err := handlers.NewHandlerSet(logger, dbPool, redisClient, store, cfg)
	if err != nil {
		return err
	}

	scheduler := jobs.NewScheduler(jobs.NewQueue(redisClient, cfg.Cleanup.Stream), cfg.Cleanup.Schedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Str("schedule", cfg.Cleanup.Schedule).Msg("cleanup sweeps disabled")
	}

	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Start()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduler did not stop in time")
	}
	return nil
}
