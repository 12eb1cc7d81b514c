package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/taskforge/internal/auth"
	"github.com/piwi3910/taskforge/internal/config"
	"github.com/piwi3910/taskforge/internal/models"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		SecretKey: "test-secret-key-for-unit-tests",
		TokenTTL:  30 * time.Minute,
		Issuer:    "taskforge-api",
	}
}

func testUser() *models.User {
	return &models.User{
		ID:       "user-1",
		Email:    "alice@example.com",
		Username: "alice",
		IsActive: true,
	}
}

func TestTokenRoundtrip(t *testing.T) {
	svc := auth.NewTokenService(testAuthConfig())

	token, expiresIn, err := svc.Issue(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, int((30 * time.Minute).Seconds()), expiresIn)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "taskforge-api", claims.Issuer)
}

func TestVerifyExpiredToken(t *testing.T) {
	cfg := testAuthConfig()
	cfg.TokenTTL = -time.Minute
	svc := auth.NewTokenService(cfg)

	token, _, err := svc.Issue(testUser())
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestVerifyGarbageToken(t *testing.T) {
	svc := auth.NewTokenService(testAuthConfig())

	_, err := svc.Verify("not.a.token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	svc := auth.NewTokenService(testAuthConfig())
	token, _, err := svc.Issue(testUser())
	require.NoError(t, err)

	other := auth.NewTokenService(config.AuthConfig{
		SecretKey: "a-completely-different-secret",
		TokenTTL:  30 * time.Minute,
		Issuer:    "taskforge-api",
	})
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
