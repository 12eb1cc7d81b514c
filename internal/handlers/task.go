package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/piwi3910/taskforge/internal/auth"
	"github.com/piwi3910/taskforge/internal/cache"
	"github.com/piwi3910/taskforge/internal/models"
	"github.com/piwi3910/taskforge/internal/observability"
	"github.com/piwi3910/taskforge/internal/storage"
)

// maxListLimit caps a single page of tasks.
const maxListLimit = 100

// TaskHandler handles the task CRUD endpoints.
// All operations are scoped to the authenticated user; another user's task
// is indistinguishable from a missing one.
type TaskHandler struct {
	store   storage.Store
	cache   *cache.TaskCache
	metrics *observability.Metrics
}

// NewTaskHandler creates a new TaskHandler. The cache may be nil.
func NewTaskHandler(store storage.Store, taskCache *cache.TaskCache, metrics *observability.Metrics) *TaskHandler {
	if store == nil {
		panic("store cannot be nil")
	}

	return &TaskHandler{
		store:   store,
		cache:   taskCache,
		metrics: metrics,
	}
}

// Create handles POST /api/v1/tasks.
func (h *TaskHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	logger := observability.LoggerFromContext(ctx)
	user := auth.UserFromContext(ctx)

	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "BadRequest",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "BadRequest",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskStatusPending,
		Priority:    priority,
		UserID:      user.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.CreateTask(ctx, task); err != nil {
		logger.Error("failed to create task", zap.Error(err))
		h.metrics.RecordError("db_error", "storage")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "InternalError",
			Message: "Failed to create task",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	h.metrics.RecordAPICall("tasks", "create")
	h.cache.InvalidateUser(ctx, user.ID)
	audit(c, h.store, user.ID, "task.create", "task", task.ID, task.Title)

	logger.Info("task created", zap.String("task_id", task.ID))
	c.JSON(http.StatusCreated, task)
}

// listParams extracts and validates pagination and status filtering.
func listParams(c *gin.Context) (storage.TaskFilter, bool) {
	user := auth.UserFromContext(c.Request.Context())
	filter := storage.TaskFilter{UserID: user.ID, Limit: 10}

	if v := c.Query("skip"); v != "" {
		skip, err := strconv.Atoi(v)
		if err != nil || skip < 0 {
			return filter, false
		}
		filter.Skip = skip
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxListLimit {
			return filter, false
		}
		filter.Limit = limit
	}
	if v := c.Query("status"); v != "" {
		status := models.TaskStatus(v)
		if !status.Valid() {
			return filter, false
		}
		filter.Status = status
	}
	return filter, true
}

// List handles GET /api/v1/tasks.
// Listings are served from the cache when possible; a miss falls through to
// storage and populates the cache.
func (h *TaskHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	logger := observability.LoggerFromContext(ctx)

	filter, ok := listParams(c)
	if !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "BadRequest",
			Message: "Invalid pagination or status parameter",
			Code:    http.StatusBadRequest,
		})
		return
	}

	h.metrics.RecordAPICall("tasks", "list")

	if cached, ok := h.cache.GetTaskList(ctx, filter.UserID, filter.Status, filter.Skip, filter.Limit); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	tasks, err := h.store.ListTasks(ctx, filter)
	if err != nil {
		logger.Error("failed to list tasks", zap.Error(err))
		h.metrics.RecordError("db_error", "storage")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "InternalError",
			Message: "Failed to list tasks",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	total, err := h.store.CountTasksByUser(ctx, filter)
	if err != nil {
		logger.Error("failed to count tasks", zap.Error(err))
		h.metrics.RecordError("db_error", "storage")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "InternalError",
			Message: "Failed to list tasks",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	resp := &models.TaskListResponse{
		Tasks: tasks,
		Total: total,
		Skip:  filter.Skip,
		Limit: filter.Limit,
	}
	h.cache.SetTaskList(ctx, filter.UserID, filter.Status, filter.Skip, filter.Limit, resp)

	c.JSON(http.StatusOK, resp)
}

// Get handles GET /api/v1/tasks/:taskId.
func (h *TaskHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	user := auth.UserFromContext(ctx)

	h.metrics.RecordAPICall("tasks", "get")

	task, err := h.store.GetTask(ctx, user.ID, c.Param("taskId"))
	if err != nil {
		h.respondTaskError(c, err, "get")
		return
	}

	c.JSON(http.StatusOK, task)
}

// Update handles PUT /api/v1/tasks/:taskId.
func (h *TaskHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	logger := observability.LoggerFromContext(ctx)
	user := auth.UserFromContext(ctx)

	var req models.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "BadRequest",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "BadRequest",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	task, err := h.store.GetTask(ctx, user.ID, c.Param("taskId"))
	if err != nil {
		h.respondTaskError(c, err, "update")
		return
	}

	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.Status != nil && *req.Status != task.Status {
		task.Status = *req.Status
		if task.Status == models.TaskStatusCompleted {
			now := time.Now().UTC()
			task.CompletedAt = &now
		} else {
			task.CompletedAt = nil
		}
	}
	task.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateTask(ctx, user.ID, task); err != nil {
		h.respondTaskError(c, err, "update")
		return
	}

	h.metrics.RecordAPICall("tasks", "update")
	h.cache.InvalidateUser(ctx, user.ID)
	audit(c, h.store, user.ID, "task.update", "task", task.ID, string(task.Status))

	logger.Info("task updated", zap.String("task_id", task.ID))
	c.JSON(http.StatusOK, task)
}

// Delete handles DELETE /api/v1/tasks/:taskId.
func (h *TaskHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	logger := observability.LoggerFromContext(ctx)
	user := auth.UserFromContext(ctx)

	taskID := c.Param("taskId")
	if err := h.store.DeleteTask(ctx, user.ID, taskID); err != nil {
		h.respondTaskError(c, err, "delete")
		return
	}

	h.metrics.RecordAPICall("tasks", "delete")
	h.cache.InvalidateUser(ctx, user.ID)
	audit(c, h.store, user.ID, "task.delete", "task", taskID, "")

	logger.Info("task deleted", zap.String("task_id", taskID))
	c.Status(http.StatusNoContent)
}

// respondTaskError maps storage errors to HTTP responses.
func (h *TaskHandler) respondTaskError(c *gin.Context, err error, operation string) {
	if errors.Is(err, storage.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "NotFound",
			Message: "Task not found",
			Code:    http.StatusNotFound,
		})
		return
	}

	observability.LoggerFromContext(c.Request.Context()).Error("task operation failed",
		zap.String("operation", operation),
		zap.Error(err),
	)
	h.metrics.RecordError("db_error", "storage")
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "InternalError",
		Message: "Task operation failed",
		Code:    http.StatusInternalServerError,
	})
}
