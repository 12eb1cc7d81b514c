package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/piwi3910/taskforge/internal/auth"
	"github.com/piwi3910/taskforge/internal/config"
	"github.com/piwi3910/taskforge/internal/middleware"
	"github.com/piwi3910/taskforge/internal/observability"
)

type pipeline struct {
	router  *gin.Engine
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logs    *observer.ObservedLogs
}

// newPipeline assembles the full middleware stack in production order.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.DebugLevel)
	logger := &observability.Logger{Logger: zap.New(core)}

	metrics := observability.NewMetrics(config.MetricsConfig{
		Enabled:   true,
		Namespace: "taskforge",
	})

	tracer, err := observability.NewTracer(config.TracingConfig{
		Enabled:      true,
		Exporter:     "none",
		SamplingRate: 1.0,
	}, config.AppConfig{Name: "taskforge-api", Version: "test", Environment: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Tracing(tracer),
		middleware.Logging(logger),
		middleware.Metrics(metrics),
		middleware.Recovery(logger, metrics),
	)

	return &pipeline{router: router, metrics: metrics, tracer: tracer, logs: logs}
}

func TestRequestIDAssigned(t *testing.T) {
	p := newPipeline(t)
	p.router.GET("/ok", func(c *gin.Context) {
		assert.NotEmpty(t, auth.RequestIDFromContext(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestRequestIDHonorsInbound(t *testing.T) {
	p := newPipeline(t)
	p.router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(middleware.RequestIDHeader, "upstream-id")
	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-id", rec.Header().Get(middleware.RequestIDHeader))
}

func TestRequestIDsAreUniqueUnderLoad(t *testing.T) {
	p := newPipeline(t)
	p.router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	const requests = 1000
	var mu sync.Mutex
	seen := make(map[string]struct{}, requests)

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			p.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

			id := rec.Header().Get(middleware.RequestIDHeader)
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, requests)
}

func TestMetricsOneSamplePerRequest(t *testing.T) {
	p := newPipeline(t)
	p.router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		p.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Labeled with the route template, not the raw path.
	count := testutil.ToFloat64(p.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/items/:id", "200"))
	assert.Equal(t, float64(3), count)
	assert.Equal(t, float64(0), testutil.ToFloat64(p.metrics.HTTPRequestsInFlight))
}

func TestPanicProducesFinalizedObservations(t *testing.T) {
	p := newPipeline(t)
	p.router.GET("/boom", func(_ *gin.Context) {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	// Recovery rewrote the response.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")

	// Correlation header survived the panic.
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	// The outer defers still sampled the request with the rewritten 500.
	count := testutil.ToFloat64(p.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/boom", "500"))
	assert.Equal(t, float64(1), count)
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.ErrorsTotal.WithLabelValues("panic", "http")))
	assert.Equal(t, float64(0), testutil.ToFloat64(p.metrics.HTTPRequestsInFlight))

	// Panic log carries a stack, completion log reports the failure.
	panicLogs := p.logs.FilterMessage("panic recovered").All()
	require.Len(t, panicLogs, 1)
	failedLogs := p.logs.FilterMessage("request failed").All()
	require.Len(t, failedLogs, 1)
	assert.Equal(t, int64(http.StatusInternalServerError), failedLogs[0].ContextMap()["status"])
}

func TestClientDisconnectRecordedAs499(t *testing.T) {
	p := newPipeline(t)
	p.router.GET("/slow", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/slow", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, req)

	count := testutil.ToFloat64(p.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/slow", "499"))
	assert.Equal(t, float64(1), count)
}

func TestLoggingEmitsStartAndCompletion(t *testing.T) {
	p := newPipeline(t)
	p.router.GET("/ok", func(c *gin.Context) {
		// The request-scoped logger is reachable from the handler context.
		observability.LoggerFromContext(c.Request.Context()).Info("handler event")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	started := p.logs.FilterMessage("request started").All()
	require.Len(t, started, 1)
	// The start event must survive the default info level.
	assert.Equal(t, zap.InfoLevel, started[0].Level)

	completed := p.logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	fields := completed[0].ContextMap()
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/ok", fields["endpoint"])
	assert.NotEmpty(t, fields["request_id"])
	assert.NotEmpty(t, fields["trace_id"])

	// Handler events inherit the request fields.
	handlerLogs := p.logs.FilterMessage("handler event").All()
	require.Len(t, handlerLogs, 1)
	assert.Equal(t, fields["request_id"], handlerLogs[0].ContextMap()["request_id"])
}

func TestLoggingWarnsOn4xx(t *testing.T) {
	p := newPipeline(t)
	p.router.GET("/bad", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad"})
	})

	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bad", nil))

	completed := p.logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, zap.WarnLevel, completed[0].Level)
}

func TestTracingContinuesInboundTrace(t *testing.T) {
	p := newPipeline(t)

	var gotTraceID string
	p.router.GET("/traced", func(c *gin.Context) {
		gotTraceID = observability.TraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/traced", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", gotTraceID)
}

func TestTaskTimer(t *testing.T) {
	p := newPipeline(t)
	p.router.GET("/timed", middleware.TaskTimer(p.metrics, "list_items"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/timed", nil))

	families, err := p.metrics.Registry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "taskforge_task_duration_seconds" {
			for _, metric := range mf.GetMetric() {
				for _, label := range metric.GetLabel() {
					if label.GetName() == "task_name" && label.GetValue() == "list_items" {
						found = true
						assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
					}
				}
			}
		}
	}
	assert.True(t, found, "expected task_duration_seconds sample for list_items")
}

func TestUnmatchedRouteLabelIsBounded(t *testing.T) {
	p := newPipeline(t)

	for _, path := range []string{"/nope/1", "/nope/2", "/other"} {
		rec := httptest.NewRecorder()
		p.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	count := testutil.ToFloat64(p.metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	assert.Equal(t, float64(3), count)
}
