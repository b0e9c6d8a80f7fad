package tag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pencraft/pencraft/internal/api"
)

// MockTagRepository is a mock implementation of Repository
type MockTagRepository struct {
	mock.Mock
}

func (m *MockTagRepository) FindAll(ctx context.Context, name string, tagTypeID *int64) ([]api.Tag, error) {
	args := m.Called(ctx, name, tagTypeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]api.Tag), args.Error(1)
}

func (m *MockTagRepository) ResolveByIDs(ctx context.Context, ids []int64) ([]api.Tag, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]api.Tag), args.Error(1)
}

func (m *MockTagRepository) Create(ctx context.Context, params api.CreateTagParams) (*api.Tag, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.Tag), args.Error(1)
}

func (m *MockTagRepository) Update(ctx context.Context, id int64, params api.CreateTagParams) error {
	args := m.Called(ctx, id, params)
	return args.Error(0)
}

func (m *MockTagRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func setupTagServiceTest() (*ServiceImpl, *MockTagRepository) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockRepo := new(MockTagRepository)
	service := NewTagService(mockRepo, logger)
	return service, mockRepo
}

func TestServiceImpl_FindAll(t *testing.T) {
	service, mockRepo := setupTagServiceTest()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		expected := []api.Tag{
			{ID: 1, Name: "golang", TagType: &api.TagType{ID: 1, Name: "language"}},
			{ID: 2, Name: "postgres", TagType: &api.TagType{ID: 2, Name: "database"}},
		}
		mockRepo.On("FindAll", ctx, "", (*int64)(nil)).Return(expected, nil).Once()

		tags, err := service.FindAll(ctx, "", nil)
		require.NoError(t, err)
		assert.Equal(t, expected, tags)
		mockRepo.AssertExpectations(t)
	})

	t.Run("repository error", func(t *testing.T) {
		repoErr := errors.New("database connection error")
		mockRepo.On("FindAll", ctx, "go", (*int64)(nil)).Return(nil, repoErr).Once()

		_, err := service.FindAll(ctx, "go", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, repoErr))
		assert.Contains(t, err.Error(), "error fetching tags:")
		mockRepo.AssertExpectations(t)
	})
}

func TestServiceImpl_Create(t *testing.T) {
	service, mockRepo := setupTagServiceTest()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		params := api.CreateTagParams{Name: "golang", TagTypeID: 1}
		expected := &api.Tag{ID: 7, Name: "golang", TagType: &api.TagType{ID: 1}}
		mockRepo.On("Create", ctx, params).Return(expected, nil).Once()

		created, err := service.Create(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, expected, created)
		mockRepo.AssertExpectations(t)
	})

	t.Run("empty name rejected before repository is touched", func(t *testing.T) {
		_, err := service.Create(ctx, api.CreateTagParams{Name: "", TagTypeID: 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrBadRequest))

		var vErr *api.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Contains(t, vErr.Fields, "name")
		mockRepo.AssertNotCalled(t, "Create")
	})

	t.Run("duplicate name surfaces conflict", func(t *testing.T) {
		params := api.CreateTagParams{Name: "golang", TagTypeID: 1}
		mockRepo.On("Create", ctx, params).Return(nil, api.ErrConflict).Once()

		_, err := service.Create(ctx, params)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrConflict))
		mockRepo.AssertExpectations(t)
	})
}

func TestServiceImpl_Update(t *testing.T) {
	service, mockRepo := setupTagServiceTest()
	ctx := context.Background()

	t.Run("update of missing id is still a success", func(t *testing.T) {
		params := api.CreateTagParams{Name: "rustlang", TagTypeID: 1}
		mockRepo.On("Update", ctx, int64(999), params).Return(nil).Once()

		err := service.Update(ctx, 999, params)
		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("validation failure", func(t *testing.T) {
		err := service.Update(ctx, 1, api.CreateTagParams{Name: "", TagTypeID: 0})
		require.Error(t, err)
		var vErr *api.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Len(t, vErr.Fields, 2)
		mockRepo.AssertNotCalled(t, "Update")
	})
}

func TestServiceImpl_Delete(t *testing.T) {
	service, mockRepo := setupTagServiceTest()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mockRepo.On("Delete", ctx, int64(3)).Return(nil).Once()

		err := service.Delete(ctx, 3)
		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("repository error", func(t *testing.T) {
		repoErr := errors.New("database connection error")
		mockRepo.On("Delete", ctx, int64(3)).Return(repoErr).Once()

		err := service.Delete(ctx, 3)
		require.Error(t, err)
		assert.True(t, errors.Is(err, repoErr))
		mockRepo.AssertExpectations(t)
	})
}
