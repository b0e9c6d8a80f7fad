package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pencraft/pencraft/app/observability/metrics"
	"github.com/pencraft/pencraft/internal/api"
)

var _ Repository = (*PostgresAuthRepo)(nil)

// Repository defines the persistence contract for authentication: credential
// lookup and the refresh token lifecycle.
type Repository interface {
	// GetUserByUsername returns the user with password hash and roles, or
	// (nil, nil) for an unknown username.
	GetUserByUsername(ctx context.Context, username string) (*api.User, error)

	// GetUserByID returns the user with roles or ErrNotFound.
	GetUserByID(ctx context.Context, userID int64) (*api.User, error)

	StoreRefreshToken(ctx context.Context, userID int64, token uuid.UUID, expiresAt time.Time) error

	// GetRefreshTokenInfo returns the owner, expiry and revocation time of a
	// refresh token. An unknown token surfaces as ErrUnauthenticated.
	GetRefreshTokenInfo(ctx context.Context, token uuid.UUID) (int64, time.Time, *time.Time, error)

	// InvalidateRefreshToken revokes a token. Revoking an already revoked or
	// unknown token is a no-op.
	InvalidateRefreshToken(ctx context.Context, token uuid.UUID) error
}

// poolIface is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type poolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresAuthRepo struct {
	logger *slog.Logger
	pgpool poolIface
}

func NewPostgresAuthRepo(pgpool poolIface, logger *slog.Logger) *PostgresAuthRepo {
	return &PostgresAuthRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresAuthRepo) GetUserByUsername(ctx context.Context, username string) (_ *api.User, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "auth.GetUserByUsername", start, err) }()

	l := r.logger.With(slog.String("method", "GetUserByUsername"), slog.String("username", username))

	var u api.User
	err = r.pgpool.QueryRow(ctx, `
        SELECT id, username, email, password_hash, created_at, updated_at
        FROM users
        WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		l.ErrorContext(ctx, "Failed to query user", slog.Any("error", err))
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}

	if err := r.loadRoles(ctx, &u); err != nil {
		l.ErrorContext(ctx, "Failed to load roles", slog.Any("error", err))
		return nil, err
	}
	return &u, nil
}

func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, userID int64) (_ *api.User, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "auth.GetUserByID", start, err) }()

	l := r.logger.With(slog.String("method", "GetUserByID"), slog.Int64("userID", userID))

	var u api.User
	err = r.pgpool.QueryRow(ctx, `
        SELECT id, username, email, created_at, updated_at
        FROM users
        WHERE id = $1`, userID).
		Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d not found: %w", userID, api.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to query user", slog.Any("error", err))
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}

	if err := r.loadRoles(ctx, &u); err != nil {
		l.ErrorContext(ctx, "Failed to load roles", slog.Any("error", err))
		return nil, err
	}
	return &u, nil
}

func (r *PostgresAuthRepo) loadRoles(ctx context.Context, u *api.User) error {
	rows, err := r.pgpool.Query(ctx, `
        SELECT ro.id, ro.role_name
        FROM user_roles ur
        JOIN roles ro ON ro.id = ur.role_id
        WHERE ur.user_id = $1`, u.ID)
	if err != nil {
		return fmt.Errorf("database error fetching roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role api.RoleInfo
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return fmt.Errorf("database error scanning role: %w", err)
		}
		u.Roles = append(u.Roles, role)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("database error reading roles: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) StoreRefreshToken(ctx context.Context, userID int64, token uuid.UUID, expiresAt time.Time) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "auth.StoreRefreshToken", start, err) }()

	_, err = r.pgpool.Exec(ctx, `
        INSERT INTO refresh_tokens (user_id, token, expires_at)
        VALUES ($1, $2, $3)`,
		userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("store refresh token: db insert failed: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) GetRefreshTokenInfo(ctx context.Context, token uuid.UUID) (_ int64, _ time.Time, _ *time.Time, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "auth.GetRefreshTokenInfo", start, err) }()

	var userID int64
	var expiresAt time.Time
	var revokedAt *time.Time

	err = r.pgpool.QueryRow(ctx, `
        SELECT user_id, expires_at, revoked_at
        FROM refresh_tokens
        WHERE token = $1`, token).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, nil, fmt.Errorf("unknown refresh token: %w", api.ErrUnauthenticated)
		}
		return 0, time.Time{}, nil, fmt.Errorf("get refresh token info: query failed: %w", err)
	}
	return userID, expiresAt, revokedAt, nil
}

func (r *PostgresAuthRepo) InvalidateRefreshToken(ctx context.Context, token uuid.UUID) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "auth.InvalidateRefreshToken", start, err) }()

	l := r.logger.With(slog.String("method", "InvalidateRefreshToken"))

	tag, err := r.pgpool.Exec(ctx, `
        UPDATE refresh_tokens SET revoked_at = NOW()
        WHERE token = $1 AND revoked_at IS NULL`, token)
	if err != nil {
		return fmt.Errorf("invalidate refresh token: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already revoked or never issued; logout stays idempotent.
		l.DebugContext(ctx, "Refresh token already revoked or unknown")
	}
	return nil
}
