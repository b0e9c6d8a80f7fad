package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"

	"github.com/pencraft/pencraft/app/observability/metrics"
	"github.com/pencraft/pencraft/config"
	"github.com/pencraft/pencraft/internal/api"
)

var _ Service = (*ServiceImpl)(nil)

// Service defines the authentication business logic: credential checks and
// the access/refresh token lifecycle.
type Service interface {
	// Login verifies the credentials and issues a token pair. Bad credentials
	// and unknown usernames are indistinguishable to the caller.
	Login(ctx context.Context, username, password string) (*TokenResponse, error)

	// Refresh rotates a refresh token: the old one is revoked and a new pair
	// is issued. Expired, revoked and unknown tokens all fail the same way.
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)

	// Logout revokes a refresh token. Revoking twice is harmless.
	Logout(ctx context.Context, refreshToken string) error
}

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
	jwtCfg config.JWTConfig
}

func NewAuthService(repo Repository, jwtCfg config.JWTConfig, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
		jwtCfg: jwtCfg,
	}
}

func (s *ServiceImpl) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	l := s.logger.With(slog.String("method", "Login"), slog.String("username", username))

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch user for login", slog.Any("error", err))
		s.recordLogin(ctx, "error")
		return nil, fmt.Errorf("error during login: %w", err)
	}
	if user == nil {
		l.WarnContext(ctx, "Login attempt for unknown username")
		s.recordLogin(ctx, "failure")
		return nil, fmt.Errorf("invalid credentials: %w", api.ErrUnauthenticated)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		l.WarnContext(ctx, "Password mismatch on login")
		s.recordLogin(ctx, "failure")
		return nil, fmt.Errorf("invalid credentials: %w", api.ErrUnauthenticated)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		s.recordLogin(ctx, "error")
		return nil, err
	}

	l.InfoContext(ctx, "Login successful", slog.Int64("userID", user.ID))
	s.recordLogin(ctx, "success")
	return tokens, nil
}

func (s *ServiceImpl) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	l := s.logger.With(slog.String("method", "Refresh"))

	token, err := uuid.Parse(refreshToken)
	if err != nil {
		l.WarnContext(ctx, "Malformed refresh token")
		return nil, fmt.Errorf("invalid refresh token: %w", api.ErrUnauthenticated)
	}

	userID, expiresAt, revokedAt, err := s.repo.GetRefreshTokenInfo(ctx, token)
	if err != nil {
		l.WarnContext(ctx, "Refresh token lookup failed", slog.Any("error", err))
		return nil, fmt.Errorf("error refreshing session: %w", err)
	}
	if time.Now().After(expiresAt) || revokedAt != nil {
		l.WarnContext(ctx, "Refresh token expired or revoked", slog.Int64("userID", userID))
		return nil, fmt.Errorf("refresh token expired or revoked: %w", api.ErrUnauthenticated)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch user for refresh", slog.Any("error", err))
		return nil, fmt.Errorf("error refreshing session: %w", err)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	// Rotation: the old token dies when the new pair is issued. A failure
	// here is logged but does not fail the refresh.
	if err := s.repo.InvalidateRefreshToken(ctx, token); err != nil {
		l.WarnContext(ctx, "Failed to revoke rotated refresh token", slog.Any("error", err))
	}

	l.InfoContext(ctx, "Session refreshed", slog.Int64("userID", userID))
	return tokens, nil
}

func (s *ServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	l := s.logger.With(slog.String("method", "Logout"))

	token, err := uuid.Parse(refreshToken)
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", api.ErrBadRequest)
	}

	if err := s.repo.InvalidateRefreshToken(ctx, token); err != nil {
		l.ErrorContext(ctx, "Failed to revoke refresh token", slog.Any("error", err))
		return fmt.Errorf("error during logout: %w", err)
	}

	l.InfoContext(ctx, "Logout successful")
	return nil
}

// issueTokens builds a signed access token plus a stored refresh token.
func (s *ServiceImpl) issueTokens(ctx context.Context, user *api.User) (*TokenResponse, error) {
	now := time.Now()
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, role.Name)
	}

	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			Issuer:    s.jwtCfg.Issuer,
			Audience:  jwt.ClaimStrings{s.jwtCfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtCfg.AccessTokenTTL)),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.jwtCfg.SecretKey))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to sign access token", slog.Any("error", err))
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken := uuid.New()
	expiresAt := now.Add(s.jwtCfg.RefreshTokenTTL)
	if err := s.repo.StoreRefreshToken(ctx, user.ID, refreshToken, expiresAt); err != nil {
		s.logger.ErrorContext(ctx, "Failed to store refresh token", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.String(),
	}, nil
}

func (s *ServiceImpl) recordLogin(ctx context.Context, outcome string) {
	if m := metrics.Get(); m != nil {
		m.LoginRequestsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}
