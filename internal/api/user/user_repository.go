package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/pencraft/pencraft/app/observability/metrics"
	"github.com/pencraft/pencraft/internal/api"
)

var _ Repository = (*PostgresUserRepo)(nil)

// Repository defines the contract for user persistence.
type Repository interface {
	// FindAll returns every user with their role set populated.
	FindAll(ctx context.Context) ([]api.User, error)

	// FindOneByUsername returns (nil, nil) when no user has that username;
	// callers decide whether absence is an error.
	FindOneByUsername(ctx context.Context, username string) (*api.User, error)

	// Create inserts the user and grants the given roles. Role names that do
	// not exist are silently skipped. The password must already be hashed.
	Create(ctx context.Context, params api.CreateUserParams) (*api.User, error)

	// UpdateRoles replaces the user's role set wholesale. Unknown usernames
	// and unknown role ids both surface as ErrNotFound.
	UpdateRoles(ctx context.Context, params api.UpdateUserRolesParams) error

	// UpdatePassword verifies the current password before storing the new
	// hash. A wrong current password surfaces as ErrUnauthenticated.
	UpdatePassword(ctx context.Context, username, oldPassword, newHash string) error
}

// poolIface is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type poolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresUserRepo struct {
	logger *slog.Logger
	pgpool poolIface
}

func NewPostgresUserRepo(pgpool poolIface, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresUserRepo) FindAll(ctx context.Context) (_ []api.User, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "user.FindAll", start, err) }()

	ctx, span := otel.Tracer("UserRepo").Start(ctx, "FindAll", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "FindAll"))
	l.DebugContext(ctx, "Fetching all users")

	rows, err := r.pgpool.Query(ctx, `
        SELECT id, username, email, created_at, updated_at
        FROM users
        ORDER BY id`)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query users", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching users: %w", err)
	}
	defer rows.Close()

	var users []api.User
	var ids []int64
	for rows.Next() {
		var u api.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("database error scanning user: %w", err)
		}
		users = append(users, u)
		ids = append(ids, u.ID)
	}
	if err = rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("database error reading users: %w", err)
	}

	if err := r.attachRoles(ctx, users, ids); err != nil {
		l.ErrorContext(ctx, "Failed to load user roles", slog.Any("error", err))
		span.RecordError(err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "Users fetched")
	return users, nil
}

// attachRoles populates Roles for every user in one batched query.
func (r *PostgresUserRepo) attachRoles(ctx context.Context, users []api.User, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	rows, err := r.pgpool.Query(ctx, `
        SELECT ur.user_id, ro.id, ro.role_name
        FROM user_roles ur
        JOIN roles ro ON ro.id = ur.role_id
        WHERE ur.user_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("database error fetching roles: %w", err)
	}
	defer rows.Close()

	rolesByUser := make(map[int64][]api.RoleInfo, len(ids))
	for rows.Next() {
		var userID int64
		var role api.RoleInfo
		if err := rows.Scan(&userID, &role.ID, &role.Name); err != nil {
			return fmt.Errorf("database error scanning role: %w", err)
		}
		rolesByUser[userID] = append(rolesByUser[userID], role)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("database error reading roles: %w", err)
	}

	for i := range users {
		users[i].Roles = rolesByUser[users[i].ID]
	}
	return nil
}

func (r *PostgresUserRepo) FindOneByUsername(ctx context.Context, username string) (_ *api.User, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "user.FindOneByUsername", start, err) }()

	ctx, span := otel.Tracer("UserRepo").Start(ctx, "FindOneByUsername", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "FindOneByUsername"), slog.String("username", username))

	var u api.User
	err = r.pgpool.QueryRow(ctx, `
        SELECT id, username, email, password_hash, created_at, updated_at
        FROM users
        WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			l.DebugContext(ctx, "User not found")
			span.SetStatus(codes.Ok, "User not found")
			return nil, nil
		}
		l.ErrorContext(ctx, "Failed to query user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}

	users := []api.User{u}
	if err := r.attachRoles(ctx, users, []int64{u.ID}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "User fetched")
	return &users[0], nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, params api.CreateUserParams) (_ *api.User, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "user.Create", start, err) }()

	ctx, span := otel.Tracer("UserRepo").Start(ctx, "Create", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Create"), slog.String("username", params.Username))
	l.DebugContext(ctx, "Creating user")

	// Resolve role names first. Names that match no role are dropped rather
	// than rejected, so a registration never fails on a stale role name.
	roles, err := r.resolveRoleNames(ctx, params.Roles)
	if err != nil {
		l.ErrorContext(ctx, "Failed to resolve roles", slog.Any("error", err))
		span.RecordError(err)
		return nil, err
	}

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var u api.User
	err = tx.QueryRow(ctx, `
        INSERT INTO users (username, email, password_hash)
        VALUES ($1, $2, $3)
        RETURNING id, username, email, created_at, updated_at`,
		params.Username, params.Email, params.Password).
		Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique violation
			l.WarnContext(ctx, "Username or email already taken", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Duplicate user")
			return nil, fmt.Errorf("username or email already registered: %w", api.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return nil, fmt.Errorf("database error creating user: %w", err)
	}

	for _, role := range roles {
		if _, err := tx.Exec(ctx,
			"INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)",
			u.ID, role.ID); err != nil {
			l.ErrorContext(ctx, "Failed to grant role", slog.Int64("roleID", role.ID), slog.Any("error", err))
			span.RecordError(err)
			return nil, fmt.Errorf("database error granting role: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.Roles = roles

	l.InfoContext(ctx, "User created", slog.Int64("userID", u.ID))
	span.SetStatus(codes.Ok, "User created")
	return &u, nil
}

func (r *PostgresUserRepo) resolveRoleNames(ctx context.Context, names []string) ([]api.RoleInfo, error) {
	if len(names) == 0 {
		return nil, nil
	}

	rows, err := r.pgpool.Query(ctx,
		"SELECT id, role_name FROM roles WHERE role_name = ANY($1)", names)
	if err != nil {
		return nil, fmt.Errorf("database error resolving roles: %w", err)
	}
	defer rows.Close()

	var roles []api.RoleInfo
	for rows.Next() {
		var role api.RoleInfo
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("database error scanning role: %w", err)
		}
		roles = append(roles, role)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("database error reading roles: %w", err)
	}
	return roles, nil
}

func (r *PostgresUserRepo) UpdateRoles(ctx context.Context, params api.UpdateUserRolesParams) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "user.UpdateRoles", start, err) }()

	ctx, span := otel.Tracer("UserRepo").Start(ctx, "UpdateRoles", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "user_roles"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "UpdateRoles"), slog.String("username", params.Username))
	l.DebugContext(ctx, "Replacing user roles")

	var userID int64
	err = r.pgpool.QueryRow(ctx,
		"SELECT id FROM users WHERE username = $1", params.Username).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "User not found")
			return fmt.Errorf("user '%s' not found: %w", params.Username, api.ErrNotFound)
		}
		span.RecordError(err)
		return fmt.Errorf("database error fetching user: %w", err)
	}

	// Unlike registration, role replacement is strict: every requested id
	// must exist or the whole operation fails.
	var count int
	err = r.pgpool.QueryRow(ctx,
		"SELECT COUNT(*) FROM roles WHERE id = ANY($1)", params.RoleIDs).Scan(&count)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("database error resolving roles: %w", err)
	}
	if count != len(params.RoleIDs) {
		span.SetStatus(codes.Error, "Unknown role id")
		return fmt.Errorf("one or more roles not found: %w", api.ErrNotFound)
	}

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM user_roles WHERE user_id = $1", userID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("database error clearing roles: %w", err)
	}
	for _, roleID := range params.RoleIDs {
		if _, err := tx.Exec(ctx,
			"INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)",
			userID, roleID); err != nil {
			span.RecordError(err)
			return fmt.Errorf("database error granting role: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.InfoContext(ctx, "User roles replaced", slog.Int("roleCount", len(params.RoleIDs)))
	span.SetStatus(codes.Ok, "Roles updated")
	return nil
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, username, oldPassword, newHash string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "user.UpdatePassword", start, err) }()

	ctx, span := otel.Tracer("UserRepo").Start(ctx, "UpdatePassword", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "UpdatePassword"), slog.String("username", username))
	l.DebugContext(ctx, "Updating user password")

	var userID int64
	var currentHash string
	err = r.pgpool.QueryRow(ctx,
		"SELECT id, password_hash FROM users WHERE username = $1", username).
		Scan(&userID, &currentHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "User not found")
			return fmt.Errorf("user '%s' not found: %w", username, api.ErrNotFound)
		}
		span.RecordError(err)
		return fmt.Errorf("database error fetching user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(oldPassword)); err != nil {
		l.WarnContext(ctx, "Current password mismatch")
		span.SetStatus(codes.Error, "Password mismatch")
		return fmt.Errorf("current password does not match: %w", api.ErrUnauthenticated)
	}

	tag, err := r.pgpool.Exec(ctx,
		"UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2",
		newHash, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to update password", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("database error updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user '%s' not found: %w", username, api.ErrNotFound)
	}

	l.InfoContext(ctx, "Password updated")
	span.SetStatus(codes.Ok, "Password updated")
	return nil
}
