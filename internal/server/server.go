// Package server provides the HTTP server for the taskforge API.
// It wires the middleware pipeline, routes, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piwi3910/taskforge/internal/cache"
	"github.com/piwi3910/taskforge/internal/config"
	"github.com/piwi3910/taskforge/internal/middleware"
	"github.com/piwi3910/taskforge/internal/observability"
	"github.com/piwi3910/taskforge/internal/storage"
)

// Server represents the HTTP server for the taskforge API.
//
// It provides:
//   - Auth endpoints (/api/v1/auth/*)
//   - Task CRUD endpoints (/api/v1/tasks/*)
//   - Audit trail endpoint (/api/v1/audit)
//   - Health, readiness, and liveness endpoints (/health, /ready, /live)
//   - Prometheus metrics endpoint (404 when metrics are disabled)
//   - Graceful shutdown support
type Server struct {
	config       *config.Config
	logger       *observability.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	router       *gin.Engine
	httpServer   *http.Server
	store        storage.Store
	cache        *cache.TaskCache
	healthCheck  *observability.HealthChecker
	shutdownOnce sync.Once
}

// New creates a new Server instance and configures its middleware and
// routes. The cache may be nil when caching is disabled.
func New(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer, store storage.Store, taskCache *cache.TaskCache) *Server {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if metrics == nil {
		panic("metrics cannot be nil")
	}
	if tracer == nil {
		panic("tracer cannot be nil")
	}
	if store == nil {
		panic("store cannot be nil")
	}

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	srv := &Server{
		config:      cfg,
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
		router:      router,
		store:       store,
		cache:       taskCache,
		healthCheck: initHealthChecker(cfg, store, taskCache),
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

// initHealthChecker registers component checks for the /health endpoint.
func initHealthChecker(cfg *config.Config, store storage.Store, taskCache *cache.TaskCache) *observability.HealthChecker {
	checker := observability.NewHealthChecker(cfg.App.Version, cfg.App.Environment)

	checker.RegisterCheck("database", func(ctx context.Context) error {
		return store.Ping(ctx)
	})
	if taskCache != nil {
		checker.RegisterCheck("cache", func(ctx context.Context) error {
			return taskCache.Ping(ctx)
		})
	}

	return checker
}

// setupMiddleware registers the observability pipeline. Order matters:
// RequestID runs outermost so the correlation header is always written,
// and Recovery runs innermost so the outer defers observe the 500 it
// writes for a panic.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Tracing(s.tracer))
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.Recovery(s.logger, s.metrics))

	if s.config.Security.EnableCORS {
		s.router.Use(s.corsMiddleware())
	}
}

// corsMiddleware handles CORS headers for the configured origins.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowedOrigins := s.config.Security.AllowedOrigins
	allowAll := len(allowedOrigins) == 0

	methods := s.config.Security.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	headers := s.config.Security.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			allowed := allowAll
			for _, candidate := range allowedOrigins {
				if candidate == origin || candidate == "*" {
					allowed = true
					break
				}
			}
			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Methods", strings.Join(methods, ", "))
				c.Header("Access-Control-Allow-Headers", strings.Join(headers, ", "))
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Start starts the HTTP server and blocks until shutdown.
// It supports graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting HTTP server",
			zap.String("address", addr),
			zap.String("mode", s.config.Server.GinMode),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the HTTP server, waiting for active
// requests up to the configured timeout. Safe to call multiple times.
func (s *Server) Shutdown() error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown",
			zap.Duration("timeout", s.config.Server.ShutdownTimeout),
		)

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.logger.Error("error during shutdown", zap.Error(err))
				shutdownErr = fmt.Errorf("server shutdown failed: %w", err)
				return
			}
		}

		s.logger.Info("server shutdown complete")
	})

	return shutdownErr
}

// Router returns the underlying Gin router.
// Useful for tests and for mounting extra routes.
func (s *Server) Router() *gin.Engine {
	return s.router
}
