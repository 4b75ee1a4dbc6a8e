package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pubdetect/internal/cache"
	"pubdetect/internal/config"
	"pubdetect/internal/database"
	"pubdetect/internal/log"
	"pubdetect/internal/queue"
	"pubdetect/internal/repository"
	"pubdetect/internal/tasks"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, "pubdetect-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer pool.Close()

	audits := repository.NewAuditRepository(pool)
	if err := audits.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure audit schema failed")
	}

	client, err := cache.NewRedisClient(ctx, cache.Options{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		ClientName: cfg.Redis.Consumer,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	processor := tasks.NewProcessor(audits, cfg.Audit.Retention, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.Queues.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

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
	logger.Info().Msg("worker exited cleanly")
}
