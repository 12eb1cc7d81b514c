package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piwi3910/taskforge/internal/models"
	"github.com/piwi3910/taskforge/internal/observability"
)

// Recovery converts panics into 500 responses. It is registered innermost so
// the outer logging, metrics, and tracing defers observe the rewritten
// status instead of unwinding past it.
func Recovery(logger *observability.Logger, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				reqLogger := observability.LoggerFromContext(c.Request.Context())
				reqLogger.Error("panic recovered",
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				m.RecordError("panic", "http")

				c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
					Error:   "InternalError",
					Message: "Internal server error",
					Code:    http.StatusInternalServerError,
				})
			}
		}()

		c.Next()
	}
}
