package user

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/pencraft/pencraft/internal/api"
)

var _ Service = (*ServiceImpl)(nil)

// Service defines the business logic contract for user operations.
type Service interface {
	FindAll(ctx context.Context) ([]api.User, error)

	// FindOneByUsername returns (nil, nil) for an unknown username.
	FindOneByUsername(ctx context.Context, username string) (*api.User, error)

	// Create registers a new account. Absent roles default to USER; the
	// password is hashed before it reaches the store.
	Create(ctx context.Context, params api.CreateUserParams) (*api.User, error)

	UpdateRoles(ctx context.Context, params api.UpdateUserRolesParams) error

	// UpdatePassword changes the password of the named user after verifying
	// the current one.
	UpdatePassword(ctx context.Context, username string, params api.UpdatePasswordParams) error
}

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
}

func NewUserService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *ServiceImpl) FindAll(ctx context.Context) ([]api.User, error) {
	l := s.logger.With(slog.String("method", "FindAll"))

	users, err := s.repo.FindAll(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch users", slog.Any("error", err))
		return nil, fmt.Errorf("error fetching users: %w", err)
	}
	return users, nil
}

func (s *ServiceImpl) FindOneByUsername(ctx context.Context, username string) (*api.User, error) {
	l := s.logger.With(slog.String("method", "FindOneByUsername"), slog.String("username", username))

	user, err := s.repo.FindOneByUsername(ctx, username)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch user", slog.Any("error", err))
		return nil, fmt.Errorf("error fetching user: %w", err)
	}
	return user, nil
}

func (s *ServiceImpl) Create(ctx context.Context, params api.CreateUserParams) (*api.User, error) {
	l := s.logger.With(slog.String("method", "Create"), slog.String("username", params.Username))

	fields := make(map[string]string)
	if params.Username == "" {
		fields["username"] = "must not be empty"
	}
	if params.Email == "" {
		fields["email"] = "must not be empty"
	}
	if params.Password == "" {
		fields["password"] = "must not be empty"
	}
	if len(fields) > 0 {
		err := &api.ValidationError{Fields: fields}
		l.WarnContext(ctx, "User validation failed", slog.Any("error", err))
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		l.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	params.Password = string(hash)

	if len(params.Roles) == 0 {
		params.Roles = []string{api.RoleUser}
	}

	created, err := s.repo.Create(ctx, params)
	if err != nil {
		l.ErrorContext(ctx, "Failed to create user", slog.Any("error", err))
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	l.InfoContext(ctx, "User registered", slog.Int64("userID", created.ID))
	return created, nil
}

func (s *ServiceImpl) UpdateRoles(ctx context.Context, params api.UpdateUserRolesParams) error {
	l := s.logger.With(slog.String("method", "UpdateRoles"), slog.String("username", params.Username))

	if params.Username == "" {
		return &api.ValidationError{Fields: map[string]string{"username": "must not be empty"}}
	}

	if err := s.repo.UpdateRoles(ctx, params); err != nil {
		l.ErrorContext(ctx, "Failed to update user roles", slog.Any("error", err))
		return fmt.Errorf("error updating user roles: %w", err)
	}

	l.InfoContext(ctx, "User roles updated")
	return nil
}

func (s *ServiceImpl) UpdatePassword(ctx context.Context, username string, params api.UpdatePasswordParams) error {
	l := s.logger.With(slog.String("method", "UpdatePassword"), slog.String("username", username))

	if params.Password == "" {
		err := &api.ValidationError{Fields: map[string]string{"password": "must not be empty"}}
		l.WarnContext(ctx, "Password validation failed")
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		l.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
		return fmt.Errorf("error hashing password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, username, params.OldPassword, string(hash)); err != nil {
		l.WarnContext(ctx, "Failed to update password", slog.Any("error", err))
		return fmt.Errorf("error updating password: %w", err)
	}

	l.InfoContext(ctx, "Password changed")
	return nil
}
