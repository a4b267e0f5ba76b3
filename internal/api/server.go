package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	mw "github.com/ycry/ycry-go/internal/api/middleware"
	"github.com/ycry/ycry-go/internal/classifier"
	"github.com/ycry/ycry-go/internal/inference"
	"github.com/ycry/ycry-go/internal/logger"
	"github.com/ycry/ycry-go/internal/observability"
)

// Analyzer runs cry analysis requests. *inference.Service implements it.
type Analyzer interface {
	Analyze(ctx context.Context, up inference.Upload) (*inference.Prediction, error)
	Labels() classifier.LabelSet
	ModelLoaded() bool
}

// Server is the HTTP server. It manages the Echo instance, middleware and
// routes.
type Server struct {
	echo      *echo.Echo
	config    *Config
	analyzer  Analyzer
	metrics   *observability.Metrics
	log       logger.Logger
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics sets the metrics exposed on /metrics and fed by the request
// middleware.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// New creates a new HTTP server.
func New(config *Config, analyzer Analyzer, opts ...ServerOption) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}

	s := &Server{
		config:    config,
		analyzer:  analyzer,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.httpErrorHandler
	s.echo.Logger = logger.NewEchoAdapter(s.log.Module("echo"))

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Listen),
		logger.String("body_limit", config.BodyLimit),
		logger.Float64("rate_limit", config.RateLimit),
		logger.Bool("debug", config.Debug))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}
	// Recovery middleware - first after metrics so panics are counted as 500
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestID())
	if s.config.Debug {
		s.echo.Use(mw.NewRequestLogger(s.log))
	}
	s.echo.Use(mw.NewSecureHeaders())
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	var analyzeMiddleware []echo.MiddlewareFunc
	if s.config.RateLimit > 0 {
		analyzeMiddleware = append(analyzeMiddleware, mw.NewRateLimiter(mw.RateLimitConfig{
			Rate:      s.config.RateLimit,
			Burst:     s.config.RateBurst,
			ExpiresIn: rateLimitExpiry,
			OnLimited: s.rateLimited,
		}))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/cry", s.handleCry, analyzeMiddleware...)
	v1.GET("/cry/labels", s.handleLabels)
	v1.GET("/health", s.handleHealth)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("Starting HTTP server", logger.String("address", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("Server shutdown complete", logger.Duration("uptime", time.Since(s.startTime)))
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
