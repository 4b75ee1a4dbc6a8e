package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pubdetect/internal/config"
	"pubdetect/internal/middleware"
)

// Options describe one of the HTTP binaries.
type Options struct {
	Name        string
	Environment string
	HTTP        config.HTTPConfig
	// CORS is applied to every route when set.
	CORS *middleware.CORSOptions
}

type HTTPServer struct {
	engine  *gin.Engine
	server  *http.Server
	metrics *middleware.Metrics
	log     zerolog.Logger
}

// NewHTTPServer builds the engine with the shared middleware chain and a
// /metrics endpoint, then lets routes add the application handlers.
func NewHTTPServer(opts Options, log zerolog.Logger, routes func(*gin.Engine)) *HTTPServer {
	if opts.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log = log.With().Str("server", opts.Name).Logger()
	metrics := middleware.NewMetrics(opts.Name)

	engine := gin.New()
	engine.RedirectTrailingSlash = true
	engine.RedirectFixedPath = true

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		metrics.Middleware(),
	)
	if opts.CORS != nil {
		engine.Use(middleware.CORS(*opts.CORS))
	}

	engine.GET("/metrics", metrics.Handler())
	if routes != nil {
		routes(engine)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.HTTP.Host, opts.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  opts.HTTP.ReadTimeout,
		WriteTimeout: opts.HTTP.WriteTimeout,
		IdleTimeout:  opts.HTTP.IdleTimeout,
	}

	return &HTTPServer{
		engine:  engine,
		server:  srv,
		metrics: metrics,
		log:     log,
	}
}

func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}

func (s *HTTPServer) Metrics() *middleware.Metrics {
	return s.metrics
}

func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

func (s *HTTPServer) Start() error {
	s.log.Info().
		Str("addr", s.server.Addr).
		Msg("http server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return <-errCh
}
