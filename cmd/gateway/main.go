package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"pubdetect/internal/config"
	"pubdetect/internal/database"
	"pubdetect/internal/gateway"
	"pubdetect/internal/log"
	"pubdetect/internal/middleware"
	"pubdetect/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadGateway()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, "pubdetect-gateway")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer pool.Close()

	handler := gateway.NewHandler(database.NewClock(pool), cfg.Gateway.WriteTimeout, logger)
	httpServer := server.NewHTTPServer(server.Options{
		Name:        "gateway",
		Environment: cfg.Environment,
		HTTP:        cfg.Gateway,
		CORS:        &middleware.CORSOptions{},
	}, logger, func(e *gin.Engine) {
		handler.Register(e)
	})

	if err := httpServer.Run(ctx, 5*time.Second); err != nil {
		logger.Error().Err(err).Msg("gateway stopped with error")
		return
	}
	logger.Info().Msg("gateway exited cleanly")
}
