// Package observability provides the observability toolkit for Taskforge.
// It includes structured logging with zap, Prometheus metrics, OpenTelemetry
// tracing, and health checks.
//
// # Logging
//
// Initialize the logger once at application startup:
//
//	logger, err := observability.InitLogger(cfg.Observability.Logging, cfg.App)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Use structured logging throughout the application:
//
//	logger.Info("task created",
//	    zap.String("task_id", taskID),
//	    zap.String("user_id", userID),
//	)
//
// Use context-aware logging to pick up the request-scoped logger that the
// middleware stores in the request context:
//
//	logger := observability.LoggerFromContext(ctx)
//	logger.Info("operation completed")
//
// # Metrics
//
// Initialize metrics once at application startup:
//
//	metrics, err := observability.NewMetrics(cfg.Observability.Metrics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Record request and domain metrics:
//
//	metrics.RecordRequest("GET", "/api/v1/tasks", 200, duration, reqSize, respSize)
//	metrics.RecordUserRegistration()
//	metrics.RecordLoginAttempt(true)
//	metrics.RecordError("validation_error", "http")
//
// All recording methods are no-ops when metrics are disabled, so callers never
// need to branch on the configuration.
//
// # Tracing
//
// Initialize the tracer once at application startup:
//
//	tracer, err := observability.NewTracer(cfg.Observability.Tracing, cfg.App)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
//
// Start spans around units of work:
//
//	ctx, span := tracer.Start(ctx, "storage.CreateTask")
//	defer span.End()
//
// # Health Checks
//
// Create a health checker with registered component checks:
//
//	healthChecker := observability.NewHealthChecker(cfg.App.Version, cfg.App.Environment)
//	healthChecker.RegisterCheck("database", func(ctx context.Context) error {
//	    return store.Ping(ctx)
//	})
//	healthChecker.RegisterCheck("cache", func(ctx context.Context) error {
//	    return cache.Ping(ctx)
//	})
//
// The server wires CheckHealth into the /health endpoint.
package observability
