package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/piwi3910/taskforge/internal/observability"
)

// Tracing opens one server span per request. Inbound W3C trace context is
// continued when present; otherwise the request starts a new trace. The span
// closes in a defer with the final status, so failure paths are captured.
func Tracing(tracer *observability.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := tracer.Extract(c.Request.Context(), c.Request.Header)

		spanName := fmt.Sprintf("HTTP %s %s", c.Request.Method, RouteTemplate(c))
		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethodKey.String(c.Request.Method),
				semconv.HTTPRouteKey.String(RouteTemplate(c)),
				semconv.HTTPTargetKey.String(c.Request.URL.Path),
				attribute.String("request_id", c.GetString("request_id")),
			),
		)
		c.Request = c.Request.WithContext(ctx)

		defer func() {
			status := c.Writer.Status()
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(status))
			if status >= 500 {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}()

		c.Next()
	}
}
