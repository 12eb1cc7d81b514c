package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piwi3910/taskforge/internal/models"
	"github.com/piwi3910/taskforge/internal/observability"
	"github.com/piwi3910/taskforge/internal/storage"
)

// defaultAuditLimit bounds audit listings when no limit is given.
const defaultAuditLimit = 50

// AuditHandler exposes the audit trail to superusers.
// Route registration applies RequireSuperuser, so by the time a request
// reaches here it is already authorized.
type AuditHandler struct {
	store   storage.Store
	metrics *observability.Metrics
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(store storage.Store, metrics *observability.Metrics) *AuditHandler {
	if store == nil {
		panic("store cannot be nil")
	}

	return &AuditHandler{
		store:   store,
		metrics: metrics,
	}
}

// List handles GET /api/v1/audit.
func (h *AuditHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	logger := observability.LoggerFromContext(ctx)

	limit := defaultAuditLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "BadRequest",
				Message: "Invalid limit parameter",
				Code:    http.StatusBadRequest,
			})
			return
		}
		limit = parsed
	}

	h.metrics.RecordAPICall("audit", "list")

	events, err := h.store.ListAuditEvents(ctx, limit)
	if err != nil {
		logger.Error("failed to list audit events", zap.Error(err))
		h.metrics.RecordError("db_error", "storage")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "InternalError",
			Message: "Failed to list audit events",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  len(events),
	})
}
