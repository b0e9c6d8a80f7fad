package blog

import (
	"log/slog"
	"net/http"
	"strconv"

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
	FindBySlug(w http.ResponseWriter, r *http.Request)
	FindByUserID(w http.ResponseWriter, r *http.Request)
	Create(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	blogService Service
	logger      *slog.Logger
}

func NewHandlerImpl(blogService Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		blogService: blogService,
		logger:      logger,
	}
}

// blogRequest is the body of a blog create or update; tag ids travel
// alongside the scalar fields.
type blogRequest struct {
	api.CreateBlogParams
	Tags []int64 `json:"tags"`
}

func (h *HandlerImpl) FindAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("BlogHandler").Start(r.Context(), "FindAll", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/blogs"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "FindAll"))

	params, err := api.ParseBlogPageParams(r)
	if err != nil {
		l.WarnContext(ctx, "Invalid query parameters", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid query parameters")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.blogService.Find(ctx, params, nil)
	if err != nil {
		l.ErrorContext(ctx, "Failed to search blogs", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to search blogs")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "Blogs retrieved")
	api.WriteJSONResponse(w, r, http.StatusOK, page)
}

func (h *HandlerImpl) FindBySlug(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("BlogHandler").Start(r.Context(), "FindBySlug", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/blogs/{slug}"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "FindBySlug"))

	slug := chi.URLParam(r, "slug")
	if slug == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "slug is required")
		return
	}

	blog, err := h.blogService.FindBySlug(ctx, slug)
	if err != nil {
		l.WarnContext(ctx, "Failed to fetch blog", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch blog")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "Blog retrieved")
	api.WriteJSONResponse(w, r, http.StatusOK, blog)
}

func (h *HandlerImpl) FindByUserID(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("BlogHandler").Start(r.Context(), "FindByUserID", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/blogs/user/{userID}"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "FindByUserID"))

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		l.WarnContext(ctx, "Invalid user id", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid user id")
		api.ErrorResponse(w, r, http.StatusBadRequest, "user id must be an integer")
		return
	}

	params, err := api.ParseBlogPageParams(r)
	if err != nil {
		l.WarnContext(ctx, "Invalid query parameters", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid query parameters")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.blogService.Find(ctx, params, &userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to search blogs", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to search blogs")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "Blogs retrieved")
	api.WriteJSONResponse(w, r, http.StatusOK, page)
}

func (h *HandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("BlogHandler").Start(r.Context(), "Create", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/blogs/save"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Create"))

	userID, ok := auth.GetUserIDFromContext(ctx)
	if !ok || userID == 0 {
		l.WarnContext(ctx, "User ID not found in context")
		span.SetStatus(codes.Error, "Authentication required")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req blogRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode request")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.blogService.Create(ctx, userID, req.CreateBlogParams, req.Tags)
	if err != nil {
		l.ErrorContext(ctx, "Failed to create blog", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create blog")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "Blog created")
	api.WriteJSONResponse(w, r, http.StatusCreated, created)
}

func (h *HandlerImpl) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("BlogHandler").Start(r.Context(), "Update", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/blogs/update/{id}"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Update"))

	blogID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		l.WarnContext(ctx, "Invalid blog id", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid blog id")
		api.ErrorResponse(w, r, http.StatusBadRequest, "blog id must be an integer")
		return
	}

	var req blogRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode request")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.blogService.Update(ctx, blogID, req.CreateBlogParams, req.Tags)
	if err != nil {
		l.ErrorContext(ctx, "Failed to update blog", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update blog")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "Blog updated")
	api.WriteJSONResponse(w, r, http.StatusOK, updated)
}

func (h *HandlerImpl) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("BlogHandler").Start(r.Context(), "Delete", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/blogs/delete"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Delete"))

	userID, ok := auth.GetUserIDFromContext(ctx)
	if !ok {
		l.WarnContext(ctx, "User ID not found in context")
		span.SetStatus(codes.Error, "Authentication required")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req struct {
		ID int64 `json:"id"`
	}
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode request")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID <= 0 {
		api.ErrorResponse(w, r, http.StatusBadRequest, "blog id must be a positive integer")
		return
	}

	if err := h.blogService.Delete(ctx, req.ID, userID); err != nil {
		l.WarnContext(ctx, "Failed to delete blog", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete blog")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "Blog deleted")
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{"message": "blog deleted"})
}
