package tag

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pencraft/pencraft/internal/api"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	FindAll(w http.ResponseWriter, r *http.Request)
	Create(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	tagService Service
	logger     *slog.Logger
}

func NewHandlerImpl(tagService Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		tagService: tagService,
		logger:     logger,
	}
}

func (h *HandlerImpl) FindAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TagHandler").Start(r.Context(), "FindAll", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/tags"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "FindAll"))
	l.DebugContext(ctx, "Fetching tags")

	name := r.URL.Query().Get("name")
	var tagTypeID *int64
	if v := r.URL.Query().Get("tagTypeId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			l.WarnContext(ctx, "Invalid tag type id", slog.String("tagTypeId", v))
			span.SetStatus(codes.Error, "Invalid tag type id")
			api.ErrorResponse(w, r, http.StatusBadRequest, "tagTypeId must be an integer")
			return
		}
		tagTypeID = &id
	}

	tags, err := h.tagService.FindAll(ctx, name, tagTypeID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch tags", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch tags")
		api.ErrorResponse(w, r, api.StatusFromError(err), "Failed to retrieve tags")
		return
	}

	span.SetStatus(codes.Ok, "Tags retrieved")
	api.WriteJSONResponse(w, r, http.StatusOK, tags)
}

func (h *HandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TagHandler").Start(r.Context(), "Create", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/tags/save"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Create"))

	var req api.CreateTagParams
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode request")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.tagService.Create(ctx, req)
	if err != nil {
		l.ErrorContext(ctx, "Failed to create tag", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create tag")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "Tag created")
	api.WriteJSONResponse(w, r, http.StatusCreated, created)
}

func (h *HandlerImpl) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TagHandler").Start(r.Context(), "Update", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/tags/update/{id}"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Update"))

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		l.WarnContext(ctx, "Invalid tag id", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid tag id")
		api.ErrorResponse(w, r, http.StatusBadRequest, "tag id must be an integer")
		return
	}

	var req api.CreateTagParams
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode request")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tagService.Update(ctx, id, req); err != nil {
		l.ErrorContext(ctx, "Failed to update tag", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update tag")
		api.ErrorResponse(w, r, api.StatusFromError(err), err.Error())
		return
	}

	span.SetStatus(codes.Ok, "Tag updated")
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{"message": "tag updated"})
}

func (h *HandlerImpl) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TagHandler").Start(r.Context(), "Delete", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/tags/delete"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Delete"))

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
		api.ErrorResponse(w, r, http.StatusBadRequest, "tag id must be a positive integer")
		return
	}

	if err := h.tagService.Delete(ctx, req.ID); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "tag not found")
			return
		}
		l.ErrorContext(ctx, "Failed to delete tag", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete tag")
		api.ErrorResponse(w, r, api.StatusFromError(err), "Failed to delete tag")
		return
	}

	span.SetStatus(codes.Ok, "Tag deleted")
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{"message": "tag deleted"})
}
