package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/piwi3910/taskforge/internal/observability"
)

// statusClientClosedRequest is recorded when the client disconnects before
// the response is written.
const statusClientClosedRequest = 499

// Metrics records exactly one sample per request: the counter, the duration
// histogram, and the size histograms, all labeled with the route template.
// Recording happens in a defer, so recovered panics and cancelled requests
// are sampled with their final status.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.InFlightInc()

		defer func() {
			m.InFlightDec()

			status := c.Writer.Status()
			if errors.Is(c.Request.Context().Err(), context.Canceled) {
				status = statusClientClosedRequest
			}

			m.RecordRequest(
				c.Request.Method,
				RouteTemplate(c),
				status,
				time.Since(start),
				requestSize(c.Request),
				responseSize(c),
			)
		}()

		c.Next()
	}
}

// TaskTimer times a named operation into task_duration_seconds. It is
// applied per route so each operation reports under its own name.
func TaskTimer(m *observability.Metrics, taskName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			m.ObserveTask(taskName, time.Since(start))
		}()
		c.Next()
	}
}
