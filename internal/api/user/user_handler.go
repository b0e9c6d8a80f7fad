package user

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pencraft/pencraft/internal/api"
	"github.com/pencraft/pencraft/internal/api/auth"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	FindAll(w http.ResponseWriter, r *http.Request)
	FindByUsername(w http.ResponseWriter, r *http.Request)
	Current(w http.ResponseWriter, r *http.Request)
	Create(w http.ResponseWriter, r *http.Request)
	UpdateRoles(w http.ResponseWriter, r *http.Request)
	UpdatePassword(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	userService Service
	logger      *slog.Logger
}

func NewHandlerImpl(userService Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		userService: userService,
		logger:      logger,
	}
}

func (h *HandlerImpl) FindAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("UserHandler").Start(r.Context(), "FindAll", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/users"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "FindAll"))

	users, err := h.userService.FindAll(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch users", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch users")
		api.ErrorResponse(w, r, api.StatusFromError(err), "Failed to retrieve users")
		return
	}

	span.SetStatus(codes.Ok, "Users retrieved")
	api.WriteJSONResponse(w, r, http.StatusOK, users)
}

func (h *HandlerImpl) FindByUsername(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("UserHandler").Start(r.Context(), "FindByUsername", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/users/get/{username}"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "FindByUsername"))

	username := chi.URLParam(r, "username")
	if username == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "username is required")
		return
	}

	user, err := h.userService.FindOneByUsername(ctx, username)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch user")
		api.ErrorResponse(w, r, api.StatusFromError(err), "Failed to retrieve user")
		return
	}
	if user == nil {
		span.SetStatus(codes.Error, "User not found")
		api.ErrorResponse(w, r, http.StatusNotFound, "user not found")
		return
	}

	span.SetStatus(codes.Ok, "User retrieved")
	api.WriteJSONResponse(w, r, http.StatusOK, user)
}

func (h *HandlerImpl) Current(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("UserHandler").Start(r.Context(), "Current", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/users/current"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Current"))

	username, ok := auth.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		l.WarnContext(ctx, "Username not found in context")
		span.SetStatus(codes.Error, "Authentication required")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := h.userService.FindOneByUsername(ctx, username)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch current user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch current user")
		api.ErrorResponse(w, r, api.StatusFromError(err), "Failed to retrieve user")
		return
	}
	if user == nil {
		// Token references an account that no longer exists.
		span.SetStatus(codes.Error, "User not found")
		api.ErrorResponse(w, r, http.StatusNotFound, "user not found")
		return
	}

	span.SetStatus(codes.Ok, "Current user retrieved")
	api.WriteJSONResponse(w, r, http.StatusOK, user)
}

func (h *HandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("UserHandler").Start(r.Context(), "Create", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/users/save"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Create"))

	var req api.CreateUserParams
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode request")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.userService.Create(ctx, req)
	if err != nil {
		l.ErrorContext(ctx, "Failed to create user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create user")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "User created")
	api.WriteJSONResponse(w, r, http.StatusCreated, created)
}

func (h *HandlerImpl) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("UserHandler").Start(r.Context(), "UpdateRoles", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/users/update/roles"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "UpdateRoles"))

	var req api.UpdateUserRolesParams
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode request")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.UpdateRoles(ctx, req); err != nil {
		l.ErrorContext(ctx, "Failed to update roles", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update roles")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "Roles updated")
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{"message": "roles updated"})
}

func (h *HandlerImpl) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("UserHandler").Start(r.Context(), "UpdatePassword", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/users/update"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "UpdatePassword"))

	username, ok := auth.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		l.WarnContext(ctx, "Username not found in context")
		span.SetStatus(codes.Error, "Authentication required")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req api.UpdatePasswordParams
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode request")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.UpdatePassword(ctx, username, req); err != nil {
		l.WarnContext(ctx, "Failed to change password", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to change password")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "Password changed")
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{"message": "password updated"})
}
