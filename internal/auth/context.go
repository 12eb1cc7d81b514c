package auth

import (
	"context"

	"github.com/piwi3910/taskforge/internal/models"
)

// Context keys for storing authentication data.
type contextKey string

const (
	// userContextKey is the key for storing the authenticated user in context.
	userContextKey contextKey = "authenticated_user"

	// requestIDContextKey is the key for storing the request ID in context.
	requestIDContextKey contextKey = "request_id"
)

// ContextWithUser adds an authenticated user to the context.
func ContextWithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from the context.
// Returns nil if no user is found in the context.
func UserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID from the context.
// Returns an empty string if no request ID is found.
func RequestIDFromContext(ctx context.Context) string {
	requestID, ok := ctx.Value(requestIDContextKey).(string)
	if !ok {
		return ""
	}
	return requestID
}

// IsSuperuserFromContext checks if the authenticated user is a superuser.
func IsSuperuserFromContext(ctx context.Context) bool {
	user := UserFromContext(ctx)
	if user == nil {
		return false
	}
	return user.IsSuperuser
}
