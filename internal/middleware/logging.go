package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piwi3910/taskforge/internal/observability"
)

// Logging derives a request-scoped logger carrying the request id and trace
// id, stores it in the request context for handlers and lower layers, and
// emits a start and a completion event per request. The completion event is
// emitted from a defer, so panics recovered further down still log.
func Logging(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		fields := []zap.Field{
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("endpoint", RouteTemplate(c)),
			zap.String("path", c.Request.URL.Path),
		}
		if traceID := observability.TraceID(c.Request.Context()); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}

		reqLogger := logger.WithFields(fields...)
		c.Request = c.Request.WithContext(observability.ContextWithLogger(c.Request.Context(), reqLogger))

		reqLogger.Info("request started")

		defer func() {
			status := c.Writer.Status()
			completed := reqLogger.WithFields(
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.Int("request_size", requestSize(c.Request)),
				zap.Int("response_size", responseSize(c)),
				zap.String("client_ip", c.ClientIP()),
			)

			switch {
			case status >= 500:
				completed.Error("request failed")
			case status >= 400:
				completed.Warn("request completed")
			default:
				completed.Info("request completed")
			}
		}()

		c.Next()
	}
}
