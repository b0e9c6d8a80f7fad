package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pencraft/pencraft/internal/api"
)

// MockAuthService is a mock implementation of the Service interface
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TokenResponse), args.Error(1)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TokenResponse), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func setupAuthHandlerTest() (*HandlerImpl, *MockAuthService) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockService := new(MockAuthService)
	handler := NewHandlerImpl(mockService, logger)
	return handler, mockService
}

func postJSON(t *testing.T, target string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandlerImpl_Login(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		handler, mockService := setupAuthHandlerTest()
		mockService.On("Login", mock.Anything, "alice", "hunter2!").
			Return(&TokenResponse{AccessToken: "access", RefreshToken: "refresh"}, nil).Once()

		req := postJSON(t, "/api/v1/auth/login", LoginRequest{Username: "alice", Password: "hunter2!"})
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp TokenResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "access", resp.AccessToken)
		assert.Equal(t, "refresh", resp.RefreshToken)
		mockService.AssertExpectations(t)
	})

	t.Run("bad credentials are a uniform 401", func(t *testing.T) {
		handler, mockService := setupAuthHandlerTest()
		mockService.On("Login", mock.Anything, "alice", "wrong").
			Return(nil, api.ErrUnauthenticated).Once()

		req := postJSON(t, "/api/v1/auth/login", LoginRequest{Username: "alice", Password: "wrong"})
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("missing fields are a 400", func(t *testing.T) {
		handler, mockService := setupAuthHandlerTest()

		req := postJSON(t, "/api/v1/auth/login", LoginRequest{Username: "alice"})
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "Login")
	})
}

func TestHandlerImpl_Refresh(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		handler, mockService := setupAuthHandlerTest()
		mockService.On("Refresh", mock.Anything, "some-token").
			Return(&TokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh"}, nil).Once()

		req := postJSON(t, "/api/v1/auth/refresh", RefreshTokenRequest{RefreshToken: "some-token"})
		w := httptest.NewRecorder()
		handler.Refresh(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("expired token is a 401", func(t *testing.T) {
		handler, mockService := setupAuthHandlerTest()
		mockService.On("Refresh", mock.Anything, "stale-token").
			Return(nil, api.ErrUnauthenticated).Once()

		req := postJSON(t, "/api/v1/auth/refresh", RefreshTokenRequest{RefreshToken: "stale-token"})
		w := httptest.NewRecorder()
		handler.Refresh(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockService.AssertExpectations(t)
	})
}

func TestHandlerImpl_Logout(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		handler, mockService := setupAuthHandlerTest()
		mockService.On("Logout", mock.Anything, "some-token").Return(nil).Once()

		req := postJSON(t, "/api/v1/auth/logout", LogoutRequest{RefreshToken: "some-token"})
		w := httptest.NewRecorder()
		handler.Logout(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})
}

func TestAuthenticateMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwtCfg := testJWTConfig()

	signToken := func(t *testing.T, claims Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
			SignedString([]byte(jwtCfg.SecretKey))
		require.NoError(t, err)
		return token
	}

	validClaims := func() Claims {
		now := time.Now()
		return Claims{
			UserID:   10,
			Username: "alice",
			Roles:    []string{api.RoleUser},
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "10",
				Issuer:    jwtCfg.Issuer,
				Audience:  jwt.ClaimStrings{jwtCfg.Audience},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
			},
		}
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		userID, ok := GetUserIDFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, int64(10), userID)
		username, ok := GetUsernameFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "alice", username)
		w.WriteHeader(http.StatusOK)
	})
	middleware := Authenticate(logger, jwtCfg)(next)

	t.Run("valid token populates the context", func(t *testing.T) {
		nextCalled = false
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims()))
		w := httptest.NewRecorder()

		middleware.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, nextCalled)
	})

	t.Run("missing header is a 401", func(t *testing.T) {
		nextCalled = false
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current", nil)
		w := httptest.NewRecorder()

		middleware.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, nextCalled)
	})

	t.Run("expired token is a 401", func(t *testing.T) {
		nextCalled = false
		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, claims))
		w := httptest.NewRecorder()

		middleware.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, nextCalled)
	})

	t.Run("wrong issuer is a 401", func(t *testing.T) {
		nextCalled = false
		claims := validClaims()
		claims.Issuer = "someone-else"
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, claims))
		w := httptest.NewRecorder()

		middleware.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, nextCalled)
	})
}

func TestRequireRole(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	middleware := RequireRole(logger, api.RoleAdmin)(next)

	t.Run("admin passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
		ctx := context.WithValue(req.Context(), RolesKey, []string{api.RoleAdmin, api.RoleUser})
		w := httptest.NewRecorder()

		middleware.ServeHTTP(w, req.WithContext(ctx))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("plain user is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
		ctx := context.WithValue(req.Context(), RolesKey, []string{api.RoleUser})
		w := httptest.NewRecorder()

		middleware.ServeHTTP(w, req.WithContext(ctx))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing role claims are forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
		w := httptest.NewRecorder()

		middleware.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
