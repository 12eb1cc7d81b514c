// Package handlers implements the HTTP handlers for the taskforge API.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/piwi3910/taskforge/internal/auth"
	"github.com/piwi3910/taskforge/internal/models"
	"github.com/piwi3910/taskforge/internal/observability"
	"github.com/piwi3910/taskforge/internal/storage"
)

// UserHandler handles registration, login, and profile endpoints.
type UserHandler struct {
	store   storage.Store
	hasher  *auth.PasswordHasher
	tokens  *auth.TokenService
	metrics *observability.Metrics
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(store storage.Store, hasher *auth.PasswordHasher, tokens *auth.TokenService, metrics *observability.Metrics) *UserHandler {
	if store == nil {
		panic("store cannot be nil")
	}
	if hasher == nil {
		panic("password hasher cannot be nil")
	}
	if tokens == nil {
		panic("token service cannot be nil")
	}

	return &UserHandler{
		store:   store,
		hasher:  hasher,
		tokens:  tokens,
		metrics: metrics,
	}
}

// audit appends an audit event for the request. Failures are logged and
// swallowed; bookkeeping never changes the request outcome.
func audit(c *gin.Context, store storage.Store, userID, action, resourceType, resourceID, details string) {
	ctx := c.Request.Context()
	event := &models.AuditEvent{
		ID:           uuid.New().String(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		ClientIP:     c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.LogAuditEvent(ctx, event); err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to write audit event",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// Register handles POST /api/v1/auth/register.
func (h *UserHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	logger := observability.LoggerFromContext(ctx)

	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid registration request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "BadRequest",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	hashed, err := h.hasher.Hash(req.Password)
	if err != nil {
		logger.Error("failed to hash password", zap.Error(err))
		h.metrics.RecordError("internal_error", "auth")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "InternalError",
			Message: "Failed to register user",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:             uuid.New().String(),
		Email:          req.Email,
		Username:       req.Username,
		HashedPassword: hashed,
		FullName:       req.FullName,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			logger.Warn("duplicate registration", zap.String("email", req.Email))
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "BadRequest",
				Message: "Email or username already registered",
				Code:    http.StatusBadRequest,
			})
			return
		}
		logger.Error("failed to create user", zap.Error(err))
		h.metrics.RecordError("db_error", "storage")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "InternalError",
			Message: "Failed to register user",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	h.metrics.RecordUserRegistration()
	h.metrics.RecordAPICall("auth", "register")
	audit(c, h.store, user.ID, "user.register", "user", user.ID, "")

	logger.Info("user registered", zap.String("user_id", user.ID))
	c.JSON(http.StatusCreated, user.ToResponse())
}

// Login handles POST /api/v1/auth/login.
func (h *UserHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	logger := observability.LoggerFromContext(ctx)

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "BadRequest",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	user, err := h.store.GetUserByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		logger.Error("failed to look up user", zap.Error(err))
		h.metrics.RecordError("db_error", "storage")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "InternalError",
			Message: "Failed to authenticate",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if err != nil || !h.hasher.Verify(user.HashedPassword, req.Password) || !user.IsActive {
		h.metrics.RecordLoginAttempt(false)
		logger.Warn("login failed", zap.String("email", req.Email))
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "Unauthorized",
			Message: "Incorrect email or password",
			Code:    http.StatusUnauthorized,
		})
		return
	}

	token, expiresIn, err := h.tokens.Issue(user)
	if err != nil {
		logger.Error("failed to issue token", zap.Error(err))
		h.metrics.RecordError("internal_error", "auth")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "InternalError",
			Message: "Failed to authenticate",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	if err := h.store.UpdateLastLogin(ctx, user.ID); err != nil {
		logger.Warn("failed to update last login", zap.Error(err))
	}

	h.metrics.RecordLoginAttempt(true)
	h.metrics.RecordAPICall("auth", "login")
	audit(c, h.store, user.ID, "user.login", "user", user.ID, "")

	logger.Info("user logged in", zap.String("user_id", user.ID))
	c.JSON(http.StatusOK, models.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
	})
}

// Me handles GET /api/v1/auth/me.
func (h *UserHandler) Me(c *gin.Context) {
	user := auth.UserFromContext(c.Request.Context())
	if user == nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "Unauthorized",
			Message: "Not authenticated",
			Code:    http.StatusUnauthorized,
		})
		return
	}

	h.metrics.RecordAPICall("auth", "me")
	c.JSON(http.StatusOK, user.ToResponse())
}
