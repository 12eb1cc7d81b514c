package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/taskforge/internal/auth"
	"github.com/piwi3910/taskforge/internal/config"
	"github.com/piwi3910/taskforge/internal/models"
	"github.com/piwi3910/taskforge/internal/observability"
	"github.com/piwi3910/taskforge/internal/storage"
)

type fakeUserGetter struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUserGetter) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	user, ok := f.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func setupAuthRouter(t *testing.T, users map[string]*models.User) (*gin.Engine, *auth.TokenService, *observability.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := auth.NewTokenService(testAuthConfig())
	metrics := observability.NewMetrics(config.MetricsConfig{
		Enabled:   true,
		Namespace: "taskforge",
	})
	mw := auth.NewMiddleware(tokens, &fakeUserGetter{users: users}, observability.NewNop(), metrics)

	router := gin.New()
	router.GET("/protected", mw.RequireAuth(), func(c *gin.Context) {
		user := auth.UserFromContext(c.Request.Context())
		require.NotNil(t, user)
		c.JSON(http.StatusOK, gin.H{"user_id": user.ID})
	})
	router.GET("/admin", mw.RequireAuth(), mw.RequireSuperuser(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router, tokens, metrics
}

func TestRequireAuthMissingToken(t *testing.T) {
	router, _, metrics := setupAuthRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("auth_missing_token", "auth")))
}

func TestRequireAuthInvalidToken(t *testing.T) {
	router, _, metrics := setupAuthRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("auth_invalid_token", "auth")))
}

func TestRequireAuthExpiredToken(t *testing.T) {
	user := testUser()
	router, _, _ := setupAuthRouter(t, map[string]*models.User{user.ID: user})

	cfg := testAuthConfig()
	cfg.TokenTTL = -time.Minute
	expired := auth.NewTokenService(cfg)
	token, _, err := expired.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestRequireAuthUnknownUser(t *testing.T) {
	router, tokens, _ := setupAuthRouter(t, nil)

	token, _, err := tokens.Issue(testUser())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthStorageFailureIsServerError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tokens := auth.NewTokenService(testAuthConfig())
	metrics := observability.NewMetrics(config.MetricsConfig{
		Enabled:   true,
		Namespace: "taskforge",
	})
	getter := &fakeUserGetter{err: errors.New("connection refused")}
	mw := auth.NewMiddleware(tokens, getter, observability.NewNop(), metrics)

	router := gin.New()
	router.GET("/protected", mw.RequireAuth(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	token, _, err := tokens.Issue(testUser())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// A lookup failure is not a credential problem.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to authenticate")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("db_error", "storage")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("auth_unknown_user", "auth")))
}

func TestRequireAuthInactiveUser(t *testing.T) {
	user := testUser()
	user.IsActive = false
	router, tokens, _ := setupAuthRouter(t, map[string]*models.User{user.ID: user})

	token, _, err := tokens.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Inactive user")
}

func TestRequireAuthSuccess(t *testing.T) {
	user := testUser()
	router, tokens, _ := setupAuthRouter(t, map[string]*models.User{user.ID: user})

	token, _, err := tokens.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user-1")
}

func TestRequireSuperuser(t *testing.T) {
	regular := testUser()
	admin := &models.User{ID: "admin-1", Email: "root@example.com", IsActive: true, IsSuperuser: true}
	router, tokens, _ := setupAuthRouter(t, map[string]*models.User{
		regular.ID: regular,
		admin.ID:   admin,
	})

	for _, tt := range []struct {
		name string
		user *models.User
		want int
	}{
		{"regular user is rejected", regular, http.StatusForbidden},
		{"superuser is allowed", admin, http.StatusOK},
	} {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := tokens.Issue(tt.user)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
