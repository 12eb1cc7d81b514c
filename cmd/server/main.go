// Package main is the entry point for the taskforge API server.
//
// The application performs the following initialization sequence:
//  1. Load configuration from config file and environment variables
//  2. Initialize structured logging with zap
//  3. Initialize the Prometheus metrics registry
//  4. Initialize the OpenTelemetry tracer provider
//  5. Connect to the database and run pending migrations
//  6. Connect to Redis for task list caching (optional)
//  7. Configure the HTTP server with routes and middleware
//  8. Start the HTTP server with graceful shutdown support
//
// Graceful shutdown is triggered by SIGINT (Ctrl+C) or SIGTERM signals.
//
// Example usage:
//
//	# Start with default config
//	./server
//
//	# Start with custom config file
//	./server --config=/etc/taskforge/config.yaml
//
//	# Start with environment variable overrides
//	export TASKFORGE_SERVER_PORT=9090
//	export TASKFORGE_DATABASE_DRIVER=postgres
//	./server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/taskforge/internal/cache"
	"github.com/piwi3910/taskforge/internal/config"
	"github.com/piwi3910/taskforge/internal/observability"
	"github.com/piwi3910/taskforge/internal/server"
	"github.com/piwi3910/taskforge/internal/storage"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "%s version %s\n", cfg.App.Name, cfg.App.Version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic. It returns an error if any
// critical initialization or runtime error occurs.
func run() error {
	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := observability.InitLogger(cfg.Observability.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("taskforge API starting",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close(logger)

	return components.server.Start()
}

// applicationComponents holds all initialized application components.
type applicationComponents struct {
	tracer *observability.Tracer
	store  storage.Store
	cache  *cache.TaskCache
	server *server.Server
}

// Close closes all components gracefully, in reverse initialization order.
func (c *applicationComponents) Close(logger *observability.Logger) {
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			logger.Warn("failed to close Redis connection", zap.Error(err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			logger.Warn("failed to close database connection", zap.Error(err))
		}
	}
	if c.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.tracer.Shutdown(ctx); err != nil {
			logger.Warn("failed to shut down tracer provider", zap.Error(err))
		}
	}
}

// loadConfiguration loads and validates the application configuration.
func loadConfiguration(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initializeComponents initializes all application components.
func initializeComponents(cfg *config.Config, logger *observability.Logger) (*applicationComponents, error) {
	metrics := observability.NewMetrics(cfg.Observability.Metrics)
	logger.Info("metrics initialized",
		zap.Bool("enabled", cfg.Observability.Metrics.Enabled),
		zap.String("namespace", cfg.Observability.Metrics.Namespace),
	)

	tracer, err := observability.NewTracer(cfg.Observability.Tracing, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	logger.Info("tracing initialized",
		zap.Bool("enabled", cfg.Observability.Tracing.Enabled),
		zap.String("exporter", cfg.Observability.Tracing.Exporter),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.NewSQLStore(ctx, cfg.Database, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("database initialized",
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("migrated", cfg.Database.MigrateOnStart),
	)

	taskCache, err := cache.New(ctx, cfg.Redis, metrics)
	if err != nil {
		logger.Warn("cache unavailable, continuing without it", zap.Error(err))
		taskCache = nil
	} else if taskCache != nil {
		logger.Info("task cache initialized",
			zap.String("address", cfg.Redis.Address),
			zap.Duration("ttl", cfg.Redis.TTL),
		)
	}

	srv := server.New(cfg, logger, metrics, tracer, store, taskCache)
	logger.Info("HTTP server created",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.GinMode),
	)

	return &applicationComponents{
		tracer: tracer,
		store:  store,
		cache:  taskCache,
		server: srv,
	}, nil
}
