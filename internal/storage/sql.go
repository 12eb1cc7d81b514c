package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	// SQL drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/piwi3910/taskforge/internal/config"
	"github.com/piwi3910/taskforge/internal/models"
	"github.com/piwi3910/taskforge/internal/observability"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// defaultListLimit caps task listings when the caller does not set one.
const defaultListLimit = 100

// SQLStore implements Store over database/sql with either the sqlite or
// postgres driver. Queries are written with ? placeholders and rebound to
// $1.. for postgres.
type SQLStore struct {
	db      *sql.DB
	driver  string
	metrics *observability.Metrics
	tracer  trace.Tracer
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore opens a connection pool for the configured driver and
// verifies connectivity. When cfg.MigrateOnStart is set, pending schema
// migrations run before the store is returned.
func NewSQLStore(ctx context.Context, cfg config.DatabaseConfig, metrics *observability.Metrics) (*SQLStore, error) {
	var driverName, dsn string
	switch cfg.Driver {
	case config.DriverSQLite:
		driverName = "sqlite"
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.DSN)
	case config.DriverPostgres:
		driverName = "pgx"
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{
		db:      db,
		driver:  cfg.Driver,
		metrics: metrics,
		tracer:  otel.Tracer("taskforge/storage"),
	}

	if cfg.MigrateOnStart {
		if err := s.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Migrate applies pending schema migrations from the embedded per-driver
// migration files.
func (s *SQLStore) Migrate() error {
	source, err := iofs.New(migrationsFS, "migrations/"+s.driver)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	var m *migrate.Migrate

	switch s.driver {
	case config.DriverSQLite:
		d, derr := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
		if derr != nil {
			return fmt.Errorf("failed to create migration driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "sqlite3", d)
	case config.DriverPostgres:
		d, derr := migratepg.WithInstance(s.db, &migratepg.Config{})
		if derr != nil {
			return fmt.Errorf("failed to create migration driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "postgres", d)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// rebind converts ? placeholders to $1.. for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// startSpan opens a child span of whatever span is in ctx and refreshes
// the connection gauge. Spans are no-ops when no tracer provider is set.
func (s *SQLStore) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.metrics != nil {
		s.metrics.SetDatabaseConnections(s.db.Stats().InUse)
	}
	return s.tracer.Start(ctx, name)
}

// isUniqueViolation reports whether err is a unique constraint failure
// for either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := s.startSpan(ctx, "storage.CreateUser")
	defer span.End()

	query := s.rebind(`
		INSERT INTO users (id, email, username, hashed_password, full_name, is_active, is_superuser, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.HashedPassword, user.FullName,
		user.IsActive, user.IsSuperuser, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		observability.RecordError(span, err)
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const userColumns = `id, email, username, hashed_password, full_name, is_active, is_superuser, created_at, updated_at, last_login`

func (s *SQLStore) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.HashedPassword, &user.FullName,
		&user.IsActive, &user.IsSuperuser, &user.CreatedAt, &user.UpdatedAt, &user.LastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := s.startSpan(ctx, "storage.GetUserByEmail")
	defer span.End()

	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	ctx, span := s.startSpan(ctx, "storage.GetUserByID")
	defer span.End()

	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) UpdateLastLogin(ctx context.Context, userID string) error {
	ctx, span := s.startSpan(ctx, "storage.UpdateLastLogin")
	defer span.End()

	query := s.rebind(`UPDATE users SET last_login = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to update last login: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLStore) CreateTask(ctx context.Context, task *models.Task) error {
	ctx, span := s.startSpan(ctx, "storage.CreateTask")
	defer span.End()

	query := s.rebind(`
		INSERT INTO tasks (id, title, description, status, priority, user_id, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		task.ID, task.Title, task.Description, task.Status, task.Priority,
		task.UserID, task.CreatedAt, task.UpdatedAt, task.CompletedAt,
	)
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

const taskColumns = `id, title, description, status, priority, user_id, created_at, updated_at, completed_at`

func scanTask(scan func(dest ...any) error) (*models.Task, error) {
	var task models.Task
	err := scan(
		&task.ID, &task.Title, &task.Description, &task.Status, &task.Priority,
		&task.UserID, &task.CreatedAt, &task.UpdatedAt, &task.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *SQLStore) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	ctx, span := s.startSpan(ctx, "storage.ListTasks")
	defer span.End()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{filter.UserID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Skip)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (s *SQLStore) GetTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	ctx, span := s.startSpan(ctx, "storage.GetTask")
	defer span.End()

	query := s.rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND user_id = ?`)
	task, err := scanTask(s.db.QueryRowContext(ctx, query, taskID, userID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (s *SQLStore) UpdateTask(ctx context.Context, userID string, task *models.Task) error {
	ctx, span := s.startSpan(ctx, "storage.UpdateTask")
	defer span.End()

	query := s.rebind(`
		UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND user_id = ?`)
	result, err := s.db.ExecContext(ctx, query,
		task.Title, task.Description, task.Status, task.Priority,
		task.UpdatedAt, task.CompletedAt, task.ID, userID,
	)
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to update task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLStore) DeleteTask(ctx context.Context, userID, taskID string) error {
	ctx, span := s.startSpan(ctx, "storage.DeleteTask")
	defer span.End()

	query := s.rebind(`DELETE FROM tasks WHERE id = ? AND user_id = ?`)
	result, err := s.db.ExecContext(ctx, query, taskID, userID)
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLStore) CountTasksByUser(ctx context.Context, filter TaskFilter) (int, error) {
	ctx, span := s.startSpan(ctx, "storage.CountTasksByUser")
	defer span.End()

	query := `SELECT COUNT(*) FROM tasks WHERE user_id = ?`
	args := []any{filter.UserID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&count); err != nil {
		observability.RecordError(span, err)
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

func (s *SQLStore) LogAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	ctx, span := s.startSpan(ctx, "storage.LogAuditEvent")
	defer span.End()

	query := s.rebind(`
		INSERT INTO audit_events (id, user_id, action, resource_type, resource_id, details, client_ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.UserID, event.Action, event.ResourceType, event.ResourceID,
		event.Details, event.ClientIP, event.UserAgent, event.CreatedAt,
	)
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

func (s *SQLStore) ListAuditEvents(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	ctx, span := s.startSpan(ctx, "storage.ListAuditEvents")
	defer span.End()

	if limit <= 0 {
		limit = defaultListLimit
	}

	query := s.rebind(`
		SELECT id, user_id, action, resource_type, resource_id, details, client_ip, user_agent, created_at
		FROM audit_events ORDER BY created_at DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]models.AuditEvent, 0)
	for rows.Next() {
		var ev models.AuditEvent
		if err := rows.Scan(
			&ev.ID, &ev.UserID, &ev.Action, &ev.ResourceType, &ev.ResourceID,
			&ev.Details, &ev.ClientIP, &ev.UserAgent, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}

// Ping verifies the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Stats reports connection pool statistics.
func (s *SQLStore) Stats() Stats {
	dbStats := s.db.Stats()
	return Stats{
		OpenConnections: dbStats.OpenConnections,
		InUse:           dbStats.InUse,
		Idle:            dbStats.Idle,
	}
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
