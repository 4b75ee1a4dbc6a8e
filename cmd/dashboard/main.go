package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pubdetect/internal/audit"
	"pubdetect/internal/backend"
	"pubdetect/internal/cache"
	"pubdetect/internal/capture"
	"pubdetect/internal/config"
	"pubdetect/internal/handlers"
	"pubdetect/internal/jobs"
	"pubdetect/internal/log"
	"pubdetect/internal/middleware"
	"pubdetect/internal/repository"
	"pubdetect/internal/server"
	"pubdetect/internal/service"
	"pubdetect/internal/storage"
	"pubdetect/internal/theme"
	"pubdetect/internal/views"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadDashboard()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		sessions  repository.SessionStore
		publisher audit.Publisher = audit.Discard{}
		enqueuer  jobs.CleanupEnqueuer
		checks    []handlers.HealthCheck
	)

	redisClient, err := cache.NewRedisClient(ctx, cache.Options{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		ClientName: "pubdetect-dashboard",
	})
	switch {
	case err == nil:
		defer closeRedis(logger, redisClient)
		sessions = repository.NewSessionRepository(redisClient, cfg.Session.TTL)
		stream := audit.NewStreamPublisher(redisClient, cfg.Audit.Stream)
		publisher, enqueuer = stream, stream
		checks = append(checks, handlers.HealthCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	case cfg.IsProduction():
		logger.Fatal().Err(err).Msg("failed to connect redis")
	default:
		logger.Warn().Err(err).Msg("redis unavailable, keeping sessions in memory and dropping audit events")
		sessions = repository.NewMemorySessionStore(cfg.Session.TTL)
	}

	var archive service.Archiver
	if cfg.Storage.Enabled {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
		archive = objectStore
		checks = append(checks, handlers.HealthCheck{Name: "storage", Ping: objectStore.Ping})
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	buffers := capture.NewBuffers()
	predictions := service.NewPredictionService(client, archive, publisher, 3*cfg.Backend.Timeout, logger)
	themes := theme.NewRegistry(repository.NewSessionThemes(sessions))

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Log:         logger,
		Config:      cfg,
		Sessions:    sessions,
		Auth:        service.NewAuthService(client, sessions, publisher, logger),
		Predictions: predictions,
		Themes:      themes,
		Buffers:     buffers,
		Images:      client,
		Checks:      checks,
	})

	tmpl, err := views.Parse()
	if err != nil {
		logger.Fatal().Err(err).Msg("parse templates failed")
	}

	opts := server.Options{Name: "dashboard", Environment: cfg.Environment, HTTP: cfg.HTTP}
	if len(cfg.AllowCORSOrigins) > 0 {
		opts.CORS = &middleware.CORSOptions{
			AllowedOrigins:   cfg.AllowCORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "X-Requested-With"},
			AllowCredentials: true,
		}
	}
	httpServer := server.NewHTTPServer(opts, logger, func(e *gin.Engine) {
		e.SetHTMLTemplate(tmpl)
		handlerSet.Register(e)
	})

	httpServer.Metrics().Registry().MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "capture_buffers",
			Help: "Capture buffers held for preview and submission.",
		}, func() float64 { return float64(buffers.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "theme_stores",
			Help: "Cached per-client theme stores.",
		}, func() float64 { return float64(themes.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "prediction_workflows",
			Help: "Per-client prediction workflows held in memory.",
		}, func() float64 { return float64(predictions.Len()) }),
	)

	scheduler := jobs.NewScheduler(enqueuer, logger,
		jobs.Sweep{Name: "capture buffers", Target: buffers, TTL: cfg.Capture.BufferTTL},
		jobs.Sweep{Name: "theme stores", Target: themes, TTL: cfg.Session.TTL},
		jobs.Sweep{Name: "prediction workflows", Target: predictions, TTL: cfg.Session.TTL},
	)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Run(gctx, 10*time.Second)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		scheduler.Stop(stopCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("dashboard stopped with error")
		return
	}
	logger.Info().Msg("dashboard exited cleanly")
}

func closeRedis(logger zerolog.Logger, client *redis.Client) {
	if err := client.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}
}
