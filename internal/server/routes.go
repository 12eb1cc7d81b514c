package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/piwi3910/taskforge/internal/auth"
	"github.com/piwi3910/taskforge/internal/handlers"
	"github.com/piwi3910/taskforge/internal/middleware"
	"github.com/piwi3910/taskforge/internal/models"
	"github.com/piwi3910/taskforge/internal/observability"
)

// setupRoutes registers all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReadiness)
	s.router.GET("/live", s.handleLiveness)

	// The metrics route is only registered when enabled, so a disabled
	// deployment returns 404 on the metrics path.
	if s.config.Observability.Metrics.Enabled {
		s.router.GET(s.config.Observability.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	hasher := auth.NewPasswordHasher()
	tokens := auth.NewTokenService(s.config.Auth)
	authMw := auth.NewMiddleware(tokens, s.store, s.logger, s.metrics)

	userHandler := handlers.NewUserHandler(s.store, hasher, tokens, s.metrics)
	taskHandler := handlers.NewTaskHandler(s.store, s.cache, s.metrics)
	auditHandler := handlers.NewAuditHandler(s.store, s.metrics)

	v1 := s.router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register",
				middleware.TaskTimer(s.metrics, "register_user"), userHandler.Register)
			authGroup.POST("/login",
				middleware.TaskTimer(s.metrics, "login_user"), userHandler.Login)
			authGroup.GET("/me", authMw.RequireAuth(), userHandler.Me)
		}

		tasks := v1.Group("/tasks", authMw.RequireAuth())
		{
			tasks.POST("",
				middleware.TaskTimer(s.metrics, "create_task"), taskHandler.Create)
			tasks.GET("",
				middleware.TaskTimer(s.metrics, "list_tasks"), taskHandler.List)
			tasks.GET("/:taskId",
				middleware.TaskTimer(s.metrics, "get_task"), taskHandler.Get)
			tasks.PUT("/:taskId",
				middleware.TaskTimer(s.metrics, "update_task"), taskHandler.Update)
			tasks.DELETE("/:taskId",
				middleware.TaskTimer(s.metrics, "delete_task"), taskHandler.Delete)
		}

		v1.GET("/audit",
			authMw.RequireAuth(), authMw.RequireSuperuser(),
			middleware.TaskTimer(s.metrics, "list_audit"), auditHandler.List)
	}
}

// handleRoot returns basic service information.
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, models.ServiceInfo{
		Service:     s.config.App.Name,
		Version:     s.config.App.Version,
		Environment: s.config.App.Environment,
		Docs:        "/health",
	})
}

// handleHealth runs the registered component checks and reports the
// aggregate result. Returns 503 when any component is unhealthy.
func (s *Server) handleHealth(c *gin.Context) {
	health := s.healthCheck.CheckHealth(c.Request.Context())

	status := http.StatusOK
	if health.Status == observability.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, health)
}

// handleReadiness reports whether the server is ready to accept traffic.
func (s *Server) handleReadiness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleLiveness reports whether the process is alive.
func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
