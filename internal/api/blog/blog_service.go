package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pencraft/pencraft/app/observability/metrics"
	"github.com/pencraft/pencraft/internal/api"
)

var _ Service = (*ServiceImpl)(nil)

// Service defines the business logic contract for blog operations.
type Service interface {
	// Find returns one page of blogs. Requested tag ids that match nothing
	// make the result empty without touching the blog store.
	Find(ctx context.Context, params api.BlogPageParams, userID *int64) (*api.BlogPage, error)

	FindBySlug(ctx context.Context, slug string) (*api.Blog, error)

	// Create publishes a blog owned by userID. Every requested tag id must
	// exist or the whole create fails.
	Create(ctx context.Context, userID int64, params api.CreateBlogParams, tagIDs []int64) (*api.Blog, error)

	// Update overwrites the blog and replaces its tag set. Ownership is not
	// checked here; any authenticated caller may update.
	Update(ctx context.Context, blogID int64, params api.CreateBlogParams, tagIDs []int64) (*api.Blog, error)

	// Delete removes a blog, but only for its owner.
	Delete(ctx context.Context, blogID, requesterID int64) error
}

// TagResolver is the slice of the tag store the blog service needs to
// validate tag references.
type TagResolver interface {
	ResolveByIDs(ctx context.Context, ids []int64) ([]api.Tag, error)
}

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
	tags   TagResolver
}

func NewBlogService(repo Repository, tags TagResolver, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
		tags:   tags,
	}
}

func (s *ServiceImpl) Find(ctx context.Context, params api.BlogPageParams, userID *int64) (*api.BlogPage, error) {
	l := s.logger.With(slog.String("method", "Find"))

	if err := validateSort(params.SortBy, params.SortOrder); err != nil {
		l.WarnContext(ctx, "Invalid sort parameters", slog.Any("error", err))
		return nil, err
	}

	if m := metrics.Get(); m != nil {
		m.BlogSearchesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("filtered_by_tags", len(params.Tags) > 0),
		))
	}

	if len(params.Tags) > 0 {
		resolved, err := s.tags.ResolveByIDs(ctx, params.Tags)
		if err != nil {
			l.ErrorContext(ctx, "Failed to resolve tag filter", slog.Any("error", err))
			return nil, fmt.Errorf("error resolving tag filter: %w", err)
		}
		// None of the requested tags exist, so no blog can match. Skip the
		// search entirely.
		if len(resolved) == 0 {
			l.DebugContext(ctx, "Tag filter matched no tags; returning empty page")
			return &api.BlogPage{
				Items:       []api.Blog{},
				CurrentPage: params.CurrentPage,
				Limit:       params.Limit,
				Total:       0,
			}, nil
		}
		ids := make([]int64, 0, len(resolved))
		for _, t := range resolved {
			ids = append(ids, t.ID)
		}
		params.Tags = ids
	}

	page, err := s.repo.Find(ctx, params, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to search blogs", slog.Any("error", err))
		return nil, fmt.Errorf("error searching blogs: %w", err)
	}
	return page, nil
}

func (s *ServiceImpl) FindBySlug(ctx context.Context, slug string) (*api.Blog, error) {
	l := s.logger.With(slog.String("method", "FindBySlug"), slog.String("slug", slug))

	blog, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if !errors.Is(err, api.ErrNotFound) {
			l.ErrorContext(ctx, "Failed to fetch blog", slog.Any("error", err))
		}
		return nil, fmt.Errorf("error fetching blog: %w", err)
	}
	return blog, nil
}

func (s *ServiceImpl) Create(ctx context.Context, userID int64, params api.CreateBlogParams, tagIDs []int64) (*api.Blog, error) {
	l := s.logger.With(slog.String("method", "Create"), slog.Int64("userID", userID))

	if err := validateBlogParams(params); err != nil {
		l.WarnContext(ctx, "Blog validation failed", slog.Any("error", err))
		return nil, err
	}
	if err := s.resolveTagsStrict(ctx, tagIDs); err != nil {
		l.WarnContext(ctx, "Tag resolution failed", slog.Any("error", err))
		return nil, err
	}

	created, err := s.repo.Create(ctx, userID, params, tagIDs)
	if err != nil {
		l.ErrorContext(ctx, "Failed to create blog", slog.Any("error", err))
		return nil, fmt.Errorf("error creating blog: %w", err)
	}

	if m := metrics.Get(); m != nil {
		m.BlogMutationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "create")))
	}
	l.InfoContext(ctx, "Blog created", slog.Int64("blogID", created.ID))
	return created, nil
}

func (s *ServiceImpl) Update(ctx context.Context, blogID int64, params api.CreateBlogParams, tagIDs []int64) (*api.Blog, error) {
	l := s.logger.With(slog.String("method", "Update"), slog.Int64("blogID", blogID))

	if err := validateBlogParams(params); err != nil {
		l.WarnContext(ctx, "Blog validation failed", slog.Any("error", err))
		return nil, err
	}
	if err := s.resolveTagsStrict(ctx, tagIDs); err != nil {
		l.WarnContext(ctx, "Tag resolution failed", slog.Any("error", err))
		return nil, err
	}

	updated, err := s.repo.Update(ctx, blogID, params, tagIDs)
	if err != nil {
		l.ErrorContext(ctx, "Failed to update blog", slog.Any("error", err))
		return nil, fmt.Errorf("error updating blog: %w", err)
	}

	if m := metrics.Get(); m != nil {
		m.BlogMutationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "update")))
	}
	l.InfoContext(ctx, "Blog updated")
	return updated, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, blogID, requesterID int64) error {
	l := s.logger.With(slog.String("method", "Delete"), slog.Int64("blogID", blogID))

	ownerID, err := s.repo.GetOwnerID(ctx, blogID)
	if err != nil {
		l.WarnContext(ctx, "Failed to resolve blog owner", slog.Any("error", err))
		return fmt.Errorf("error resolving blog owner: %w", err)
	}
	if requesterID == 0 || requesterID != ownerID {
		l.WarnContext(ctx, "Delete refused for non-owner",
			slog.Int64("requesterID", requesterID),
			slog.Int64("ownerID", ownerID),
		)
		return fmt.Errorf("only the owner may delete a blog: %w", api.ErrForbidden)
	}

	if err := s.repo.Delete(ctx, blogID); err != nil {
		l.ErrorContext(ctx, "Failed to delete blog", slog.Any("error", err))
		return fmt.Errorf("error deleting blog: %w", err)
	}

	if m := metrics.Get(); m != nil {
		m.BlogMutationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "delete")))
	}
	l.InfoContext(ctx, "Blog deleted")
	return nil
}

// resolveTagsStrict verifies that every requested tag id exists. The counts
// must match exactly, so duplicated ids in the request also fail here.
func (s *ServiceImpl) resolveTagsStrict(ctx context.Context, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	resolved, err := s.tags.ResolveByIDs(ctx, tagIDs)
	if err != nil {
		return fmt.Errorf("error resolving tags: %w", err)
	}
	if len(resolved) != len(tagIDs) {
		return fmt.Errorf("one or more tags not found: %w", api.ErrNotFound)
	}
	return nil
}

func validateBlogParams(params api.CreateBlogParams) error {
	fields := make(map[string]string)
	if params.Title == "" {
		fields["title"] = "must not be empty"
	}
	if params.Slug == "" {
		fields["slug"] = "must not be empty"
	}
	if len(fields) > 0 {
		return &api.ValidationError{Fields: fields}
	}
	return nil
}

// validateSort enforces the closed set of sortable fields. Anything outside
// createdAt/updatedAt is rejected rather than silently ignored.
func validateSort(sortBy, sortOrder string) error {
	fields := make(map[string]string)
	if sortBy != "" && sortBy != "createdAt" && sortBy != "updatedAt" {
		fields["sortBy"] = "must be one of: createdAt, updatedAt"
	}
	if sortOrder != "" && !strings.EqualFold(sortOrder, "ASC") && !strings.EqualFold(sortOrder, "DESC") {
		fields["sortOrder"] = "must be ASC or DESC"
	}
	if len(fields) > 0 {
		return &api.ValidationError{Fields: fields}
	}
	return nil
}
