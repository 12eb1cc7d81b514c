// Package middleware provides the observability middleware pipeline for the
// taskforge API.
//
// The pipeline is registered outermost to innermost as RequestID, Tracing,
// Logging, Metrics, Recovery. Each observability middleware finalizes its
// bookkeeping in a defer, so panics recovered further down and client
// cancellations still produce exactly one log line, one metric sample, and
// one closed span per request.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/piwi3910/taskforge/internal/auth"
)

// RequestIDHeader carries the correlation id on every response.
const RequestIDHeader = "X-Request-ID"

// unmatchedRoute labels requests that hit no registered route. Using a fixed
// value keeps the endpoint label bounded.
const unmatchedRoute = "unmatched"

// RouteTemplate returns the matched route pattern for labeling, never the
// raw URL path.
func RouteTemplate(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

// RequestID assigns a unique id to each request. An inbound X-Request-ID is
// honored so ids correlate across services. The response header is written
// before the handler chain runs, so it is present even when a later
// middleware or handler fails.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(auth.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// responseSize normalizes gin's -1 for unwritten bodies.
func responseSize(c *gin.Context) int {
	if size := c.Writer.Size(); size > 0 {
		return size
	}
	return 0
}

// requestSize returns the declared request body size.
func requestSize(r *http.Request) int {
	if r.ContentLength > 0 {
		return int(r.ContentLength)
	}
	return 0
}
