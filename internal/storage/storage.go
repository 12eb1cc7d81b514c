// Package storage provides the persistence layer for the taskforge API.
//
// The Store interface abstracts the SQL backend so handlers and middleware
// never depend on a concrete driver. SQLStore implements it over
// database/sql with either the sqlite or postgres driver.
package storage

import (
	"context"
	"errors"

	"github.com/piwi3910/taskforge/internal/models"
)

// Common storage errors.
var (
	// ErrUserExists is returned when a user with the same email or username exists.
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrTaskNotFound is returned when a task does not exist or belongs to
	// a different user.
	ErrTaskNotFound = errors.New("task not found")
)

// TaskFilter narrows a task listing.
type TaskFilter struct {
	// UserID scopes the listing to one owner. Required.
	UserID string

	// Status filters by task status when non-empty.
	Status models.TaskStatus

	// Skip is the number of tasks to skip for pagination.
	Skip int

	// Limit caps the number of returned tasks. Zero means the default page size.
	Limit int
}

// Stats reports connection pool statistics for the metrics gauge.
type Stats struct {
	OpenConnections int
	InUse           int
	Idle            int
}

// Store defines the persistence operations used by the API.
//
// All operations accept a context for cancellation and tracing. Errors are
// reported via the sentinel errors above so handlers can map them to HTTP
// statuses with errors.Is.
type Store interface {
	// CreateUser persists a new user.
	// Returns ErrUserExists if the email or username is already taken.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail retrieves a user by email.
	// Returns ErrUserNotFound if no user matches.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID retrieves a user by ID.
	// Returns ErrUserNotFound if no user matches.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// UpdateLastLogin stamps the user's last successful login time.
	UpdateLastLogin(ctx context.Context, userID string) error

	// CreateTask persists a new task.
	CreateTask(ctx context.Context, task *models.Task) error

	// ListTasks returns the tasks matching the filter, newest first.
	ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error)

	// GetTask retrieves a task owned by userID.
	// Returns ErrTaskNotFound if the task does not exist or is owned by
	// someone else.
	GetTask(ctx context.Context, userID, taskID string) (*models.Task, error)

	// UpdateTask persists changes to a task owned by userID.
	// Returns ErrTaskNotFound if the task does not exist or is owned by
	// someone else.
	UpdateTask(ctx context.Context, userID string, task *models.Task) error

	// DeleteTask removes a task owned by userID.
	// Returns ErrTaskNotFound if the task does not exist or is owned by
	// someone else.
	DeleteTask(ctx context.Context, userID, taskID string) error

	// CountTasksByUser returns the number of tasks matching the filter
	// ignoring pagination.
	CountTasksByUser(ctx context.Context, filter TaskFilter) (int, error)

	// LogAuditEvent appends an audit event.
	LogAuditEvent(ctx context.Context, event *models.AuditEvent) error

	// ListAuditEvents returns the most recent audit events, newest first.
	ListAuditEvents(ctx context.Context, limit int) ([]models.AuditEvent, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Stats reports connection pool statistics.
	Stats() Stats

	// Close releases the backend connection.
	Close() error
}
