package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piwi3910/taskforge/internal/models"
	"github.com/piwi3910/taskforge/internal/observability"
	"github.com/piwi3910/taskforge/internal/storage"
)

const bearerPrefix = "Bearer "

// UserGetter looks up users during token validation.
// Satisfied by storage.Store.
type UserGetter interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Middleware provides Bearer token authentication for Gin routes.
type Middleware struct {
	tokens  *TokenService
	users   UserGetter
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(tokens *TokenService, users UserGetter, logger *observability.Logger, metrics *observability.Metrics) *Middleware {
	if tokens == nil {
		panic("token service cannot be nil")
	}
	if users == nil {
		panic("user getter cannot be nil")
	}

	return &Middleware{
		tokens:  tokens,
		users:   users,
		logger:  logger,
		metrics: metrics,
	}
}

// RequireAuth enforces Bearer token authentication.
//
// A request with no credentials at all is rejected with 403; a request that
// presents a token that fails validation, or whose subject is missing or
// deactivated, is rejected with 401. On success the user is stored in the
// request context for downstream handlers.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			m.reject(c, http.StatusForbidden, "Forbidden", "Not authenticated", "auth_missing_token")
			return
		}

		if !strings.HasPrefix(header, bearerPrefix) {
			m.reject(c, http.StatusUnauthorized, "Unauthorized", "Invalid authorization header", "auth_invalid_token")
			return
		}

		tokenString := strings.TrimPrefix(header, bearerPrefix)
		claims, err := m.tokens.Verify(tokenString)
		if err != nil {
			message := "Could not validate credentials"
			if errors.Is(err, ErrTokenExpired) {
				message = "Token has expired"
			}
			m.reject(c, http.StatusUnauthorized, "Unauthorized", message, "auth_invalid_token")
			return
		}

		ctx := c.Request.Context()
		user, err := m.users.GetUserByID(ctx, claims.UserID)
		if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
			logger := observability.LoggerFromContext(ctx)
			logger.Error("failed to look up token subject", zap.Error(err))
			if m.metrics != nil {
				m.metrics.RecordError("db_error", "storage")
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:   "InternalError",
				Message: "Failed to authenticate",
				Code:    http.StatusInternalServerError,
			})
			return
		}
		if err != nil || user == nil {
			m.reject(c, http.StatusUnauthorized, "Unauthorized", "Could not validate credentials", "auth_unknown_user")
			return
		}

		if !user.IsActive {
			m.reject(c, http.StatusUnauthorized, "Unauthorized", "Inactive user", "auth_inactive_user")
			return
		}

		c.Set("user", user)
		c.Request = c.Request.WithContext(ContextWithUser(ctx, user))
		c.Next()
	}
}

// RequireSuperuser enforces that the authenticated user is a superuser.
// Must be registered after RequireAuth.
func (m *Middleware) RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsSuperuserFromContext(c.Request.Context()) {
			m.reject(c, http.StatusForbidden, "Forbidden", "Superuser privileges required", "auth_not_superuser")
			return
		}
		c.Next()
	}
}

// reject aborts the request with the given status and records the failure.
func (m *Middleware) reject(c *gin.Context, status int, errName, message, errorType string) {
	logger := observability.LoggerFromContext(c.Request.Context())
	logger.Warn("authentication failed",
		zap.String("path", c.Request.URL.Path),
		zap.String("reason", errorType),
	)
	if m.metrics != nil {
		m.metrics.RecordError(errorType, "auth")
	}
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error:   errName,
		Message: message,
		Code:    status,
	})
}
