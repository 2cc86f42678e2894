package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardhptr21/myits-lapor/internal/cache"
	"github.com/ardhptr21/myits-lapor/internal/config"
	"github.com/ardhptr21/myits-lapor/internal/database"
	"github.com/ardhptr21/myits-lapor/internal/log"
	"github.com/ardhptr21/myits-lapor/internal/queue"
	"github.com/ardhptr21/myits-lapor/internal/repository"
	"github.com/ardhptr21/myits-lapor/internal/storage"
	"github.com/ardhptr21/myits-lapor/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, "myits-lapor-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init file store")
	}

	processor := tasks.NewProcessor(
		store,
		storage.NewLayout(cfg.Storage.PublicPrefix),
		repository.NewReportRepository(dbPool),
		cfg.Cleanup.Grace,
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Cleanup.Stream,
		cfg.Cleanup.Group,
		cfg.Cleanup.Consumer,
		cfg.Cleanup.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(ctx)
	}()
	logger.Info().Str("stream", cfg.Cleanup.Stream).Str("group", cfg.Cleanup.Group).Msg("worker started")

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			return
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("consumer did not stop in time")
		}
	}
	logger.Info().Msg("worker exited")
}
