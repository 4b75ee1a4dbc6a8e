package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"pubdetect/internal/backend"
	"pubdetect/internal/config"
	"pubdetect/internal/log"
	"pubdetect/internal/relay"
	"pubdetect/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	handler := relay.NewHandler(client, cfg.Backend.PredictPath, cfg.Capture.MaxUploadBytes, logger)

	httpServer := server.NewHTTPServer(server.Options{
		Name:        "relay",
		Environment: cfg.Environment,
		HTTP:        cfg.Relay,
	}, logger, func(e *gin.Engine) {
		handler.Register(e)
	})

	if err := httpServer.Run(ctx, 10*time.Second); err != nil {
		logger.Fatal().Err(err).Msg("relay stopped with error")
	}
	logger.Info().Msg("relay exited cleanly")
}
