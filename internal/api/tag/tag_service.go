package tag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pencraft/pencraft/internal/api"
)

var _ Service = (*ServiceImpl)(nil)

// Service defines the business logic contract for tag operations.
type Service interface {
	FindAll(ctx context.Context, name string, tagTypeID *int64) ([]api.Tag, error)
	Create(ctx context.Context, params api.CreateTagParams) (*api.Tag, error)
	Update(ctx context.Context, id int64, params api.CreateTagParams) error
	Delete(ctx context.Context, id int64) error
}

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
}

func NewTagService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *ServiceImpl) FindAll(ctx context.Context, name string, tagTypeID *int64) ([]api.Tag, error) {
	l := s.logger.With(slog.String("method", "FindAll"))
	l.DebugContext(ctx, "Fetching tags")

	tags, err := s.repo.FindAll(ctx, name, tagTypeID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch tags", slog.Any("error", err))
		return nil, fmt.Errorf("error fetching tags: %w", err)
	}
	return tags, nil
}

func (s *ServiceImpl) Create(ctx context.Context, params api.CreateTagParams) (*api.Tag, error) {
	l := s.logger.With(slog.String("method", "Create"), slog.String("name", params.Name))

	if err := validateTagParams(params); err != nil {
		l.WarnContext(ctx, "Tag validation failed", slog.Any("error", err))
		return nil, err
	}

	created, err := s.repo.Create(ctx, params)
	if err != nil {
		l.ErrorContext(ctx, "Failed to create tag", slog.Any("error", err))
		return nil, fmt.Errorf("error creating tag: %w", err)
	}

	l.InfoContext(ctx, "Tag created", slog.Int64("tagID", created.ID))
	return created, nil
}

func (s *ServiceImpl) Update(ctx context.Context, id int64, params api.CreateTagParams) error {
	l := s.logger.With(slog.String("method", "Update"), slog.Int64("tagID", id))

	if err := validateTagParams(params); err != nil {
		l.WarnContext(ctx, "Tag validation failed", slog.Any("error", err))
		return err
	}

	if err := s.repo.Update(ctx, id, params); err != nil {
		l.ErrorContext(ctx, "Failed to update tag", slog.Any("error", err))
		return fmt.Errorf("error updating tag: %w", err)
	}
	return nil
}

func (s *ServiceImpl) Delete(ctx context.Context, id int64) error {
	l := s.logger.With(slog.String("method", "Delete"), slog.Int64("tagID", id))

	if err := s.repo.Delete(ctx, id); err != nil {
		l.ErrorContext(ctx, "Failed to delete tag", slog.Any("error", err))
		return fmt.Errorf("error deleting tag: %w", err)
	}
	l.InfoContext(ctx, "Tag deleted")
	return nil
}

// validateTagParams checks every field at once and reports all failures.
func validateTagParams(params api.CreateTagParams) error {
	fields := make(map[string]string)
	if params.Name == "" {
		fields["name"] = "must not be empty"
	}
	if params.TagTypeID <= 0 {
		fields["tagTypeId"] = "must be a positive id"
	}
	if len(fields) > 0 {
		return &api.ValidationError{Fields: fields}
	}
	return nil
}
