package blog

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

// MockBlogRepository is a mock implementation of Repository
type MockBlogRepository struct {
	mock.Mock
}

func (m *MockBlogRepository) Find(ctx context.Context, params api.BlogPageParams, userID *int64) (*api.BlogPage, error) {
	args := m.Called(ctx, params, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.BlogPage), args.Error(1)
}

func (m *MockBlogRepository) FindBySlug(ctx context.Context, slug string) (*api.Blog, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.Blog), args.Error(1)
}

func (m *MockBlogRepository) GetOwnerID(ctx context.Context, blogID int64) (int64, error) {
	args := m.Called(ctx, blogID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBlogRepository) Create(ctx context.Context, userID int64, params api.CreateBlogParams, tagIDs []int64) (*api.Blog, error) {
	args := m.Called(ctx, userID, params, tagIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.Blog), args.Error(1)
}

func (m *MockBlogRepository) Update(ctx context.Context, blogID int64, params api.CreateBlogParams, tagIDs []int64) (*api.Blog, error) {
	args := m.Called(ctx, blogID, params, tagIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.Blog), args.Error(1)
}

func (m *MockBlogRepository) Delete(ctx context.Context, blogID int64) error {
	args := m.Called(ctx, blogID)
	return args.Error(0)
}

// MockTagResolver is a mock implementation of TagResolver
type MockTagResolver struct {
	mock.Mock
}

func (m *MockTagResolver) ResolveByIDs(ctx context.Context, ids []int64) ([]api.Tag, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]api.Tag), args.Error(1)
}

func setupBlogServiceTest() (*ServiceImpl, *MockBlogRepository, *MockTagResolver) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockRepo := new(MockBlogRepository)
	mockTags := new(MockTagResolver)
	service := NewBlogService(mockRepo, mockTags, logger)
	return service, mockRepo, mockTags
}

func TestServiceImpl_Find(t *testing.T) {
	ctx := context.Background()

	t.Run("success without filters", func(t *testing.T) {
		service, mockRepo, _ := setupBlogServiceTest()
		params := api.BlogPageParams{CurrentPage: 1, Limit: 10}
		expected := &api.BlogPage{
			Items:       []api.Blog{{ID: 1, Title: "Hello", Slug: "hello"}},
			CurrentPage: 1,
			Limit:       10,
			Total:       1,
		}
		mockRepo.On("Find", ctx, params, (*int64)(nil)).Return(expected, nil).Once()

		page, err := service.Find(ctx, params, nil)
		require.NoError(t, err)
		assert.Equal(t, expected, page)
		mockRepo.AssertExpectations(t)
	})

	t.Run("unsortable field is rejected", func(t *testing.T) {
		service, mockRepo, _ := setupBlogServiceTest()
		params := api.BlogPageParams{CurrentPage: 1, Limit: 10, SortBy: "title"}

		_, err := service.Find(ctx, params, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrBadRequest))
		mockRepo.AssertNotCalled(t, "Find")
	})

	t.Run("invalid sort order is rejected", func(t *testing.T) {
		service, mockRepo, _ := setupBlogServiceTest()
		params := api.BlogPageParams{CurrentPage: 1, Limit: 10, SortBy: "createdAt", SortOrder: "SIDEWAYS"}

		_, err := service.Find(ctx, params, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrBadRequest))
		mockRepo.AssertNotCalled(t, "Find")
	})

	t.Run("tag filter resolving to nothing short-circuits the search", func(t *testing.T) {
		service, mockRepo, mockTags := setupBlogServiceTest()
		params := api.BlogPageParams{CurrentPage: 1, Limit: 10, Tags: []int64{999999}}
		mockTags.On("ResolveByIDs", ctx, []int64{999999}).Return([]api.Tag{}, nil).Once()

		page, err := service.Find(ctx, params, nil)
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, int64(0), page.Total)
		assert.Equal(t, 1, page.CurrentPage)
		assert.Equal(t, 10, page.Limit)
		mockRepo.AssertNotCalled(t, "Find")
		mockTags.AssertExpectations(t)
	})

	t.Run("resolved tag ids are forwarded to the search", func(t *testing.T) {
		service, mockRepo, mockTags := setupBlogServiceTest()
		params := api.BlogPageParams{CurrentPage: 1, Limit: 10, Tags: []int64{1, 999999}}
		mockTags.On("ResolveByIDs", ctx, []int64{1, 999999}).
			Return([]api.Tag{{ID: 1, Name: "golang"}}, nil).Once()

		forwarded := params
		forwarded.Tags = []int64{1}
		expected := &api.BlogPage{Items: []api.Blog{{ID: 3}}, CurrentPage: 1, Limit: 10, Total: 1}
		mockRepo.On("Find", ctx, forwarded, (*int64)(nil)).Return(expected, nil).Once()

		page, err := service.Find(ctx, params, nil)
		require.NoError(t, err)
		assert.Equal(t, expected, page)
		mockRepo.AssertExpectations(t)
		mockTags.AssertExpectations(t)
	})
}

func TestServiceImpl_Create(t *testing.T) {
	ctx := context.Background()
	params := api.CreateBlogParams{Title: "Hello", Content: "World", Slug: "hello"}

	t.Run("success with tags", func(t *testing.T) {
		service, mockRepo, mockTags := setupBlogServiceTest()
		tagIDs := []int64{1, 2}
		mockTags.On("ResolveByIDs", ctx, tagIDs).
			Return([]api.Tag{{ID: 1}, {ID: 2}}, nil).Once()
		expected := &api.Blog{ID: 5, Title: "Hello", Slug: "hello"}
		mockRepo.On("Create", ctx, int64(10), params, tagIDs).Return(expected, nil).Once()

		created, err := service.Create(ctx, 10, params, tagIDs)
		require.NoError(t, err)
		assert.Equal(t, expected, created)
		mockRepo.AssertExpectations(t)
		mockTags.AssertExpectations(t)
	})

	t.Run("any unknown tag id fails the whole create", func(t *testing.T) {
		service, mockRepo, mockTags := setupBlogServiceTest()
		tagIDs := []int64{1, 999999}
		mockTags.On("ResolveByIDs", ctx, tagIDs).
			Return([]api.Tag{{ID: 1}}, nil).Once()

		_, err := service.Create(ctx, 10, params, tagIDs)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrNotFound))
		mockRepo.AssertNotCalled(t, "Create")
		mockTags.AssertExpectations(t)
	})

	t.Run("missing title and slug rejected", func(t *testing.T) {
		service, mockRepo, _ := setupBlogServiceTest()
		_, err := service.Create(ctx, 10, api.CreateBlogParams{Content: "x"}, nil)
		require.Error(t, err)

		var vErr *api.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Len(t, vErr.Fields, 2)
		mockRepo.AssertNotCalled(t, "Create")
	})

	t.Run("duplicate slug surfaces conflict", func(t *testing.T) {
		service, mockRepo, _ := setupBlogServiceTest()
		mockRepo.On("Create", ctx, int64(10), params, []int64(nil)).
			Return(nil, api.ErrConflict).Once()

		_, err := service.Create(ctx, 10, params, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrConflict))
		mockRepo.AssertExpectations(t)
	})
}

func TestServiceImpl_Update(t *testing.T) {
	ctx := context.Background()
	params := api.CreateBlogParams{Title: "Hello", Content: "World", Slug: "hello"}

	t.Run("tag set replaced after strict resolution", func(t *testing.T) {
		service, mockRepo, mockTags := setupBlogServiceTest()
		tagIDs := []int64{3}
		mockTags.On("ResolveByIDs", ctx, tagIDs).Return([]api.Tag{{ID: 3}}, nil).Once()
		expected := &api.Blog{ID: 5, Title: "Hello", Slug: "hello"}
		mockRepo.On("Update", ctx, int64(5), params, tagIDs).Return(expected, nil).Once()

		updated, err := service.Update(ctx, 5, params, tagIDs)
		require.NoError(t, err)
		assert.Equal(t, expected, updated)
		mockRepo.AssertExpectations(t)
	})

	t.Run("unknown blog id surfaces not found", func(t *testing.T) {
		service, mockRepo, _ := setupBlogServiceTest()
		mockRepo.On("Update", ctx, int64(404), params, []int64(nil)).
			Return(nil, api.ErrNotFound).Once()

		_, err := service.Update(ctx, 404, params, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrNotFound))
		mockRepo.AssertExpectations(t)
	})

	t.Run("any unknown tag id fails the whole update", func(t *testing.T) {
		service, mockRepo, mockTags := setupBlogServiceTest()
		tagIDs := []int64{1, 999999}
		mockTags.On("ResolveByIDs", ctx, tagIDs).
			Return([]api.Tag{{ID: 1}}, nil).Once()

		_, err := service.Update(ctx, 5, params, tagIDs)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrNotFound))
		mockRepo.AssertNotCalled(t, "Update")
	})
}

func TestServiceImpl_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("owner may delete", func(t *testing.T) {
		service, mockRepo, _ := setupBlogServiceTest()
		mockRepo.On("GetOwnerID", ctx, int64(5)).Return(int64(10), nil).Once()
		mockRepo.On("Delete", ctx, int64(5)).Return(nil).Once()

		err := service.Delete(ctx, 5, 10)
		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		service, mockRepo, _ := setupBlogServiceTest()
		mockRepo.On("GetOwnerID", ctx, int64(5)).Return(int64(10), nil).Once()

		err := service.Delete(ctx, 5, 11)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrForbidden))
		mockRepo.AssertNotCalled(t, "Delete")
	})

	t.Run("zero requester id is forbidden even when it matches nothing", func(t *testing.T) {
		service, mockRepo, _ := setupBlogServiceTest()
		mockRepo.On("GetOwnerID", ctx, int64(5)).Return(int64(0), nil).Once()

		err := service.Delete(ctx, 5, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrForbidden))
		mockRepo.AssertNotCalled(t, "Delete")
	})

	t.Run("unknown blog id surfaces not found", func(t *testing.T) {
		service, mockRepo, _ := setupBlogServiceTest()
		mockRepo.On("GetOwnerID", ctx, int64(404)).Return(int64(0), api.ErrNotFound).Once()

		err := service.Delete(ctx, 404, 10)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrNotFound))
		mockRepo.AssertNotCalled(t, "Delete")
	})
}
