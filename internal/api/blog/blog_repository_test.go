package blog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pencraft/pencraft/internal/api"
)

func setupBlogRepoTest(t *testing.T) (*PostgresBlogRepo, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostgresBlogRepo(mockPool, logger), mockPool
}

func blogColumns() []string {
	return []string{"id", "title", "content", "slug", "published", "created_at", "updated_at", "id", "username", "email"}
}

func TestPostgresBlogRepo_Find(t *testing.T) {
	repo, mockPool := setupBlogRepoTest(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("first page without filters", func(t *testing.T) {
		mockPool.ExpectQuery("SELECT COUNT").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

		rows := pgxmock.NewRows(blogColumns()).
			AddRow(int64(1), "Hello", "World", "hello", true, now, now, int64(10), "alice", "alice@example.com").
			AddRow(int64(2), "Second", "Post", "second", false, now, now, int64(10), "alice", "alice@example.com")
		mockPool.ExpectQuery("SELECT b.id, b.title, b.content").
			WithArgs(0, 10).
			WillReturnRows(rows)

		tagRows := pgxmock.NewRows([]string{"blog_id", "id", "name"}).
			AddRow(int64(1), int64(1), "golang")
		mockPool.ExpectQuery("SELECT bt.blog_id, t.id, t.name").
			WithArgs([]int64{1, 2}).
			WillReturnRows(tagRows)

		page, err := repo.Find(ctx, api.BlogPageParams{CurrentPage: 1, Limit: 10}, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "alice", page.Items[0].User.Username)
		require.Len(t, page.Items[0].Tags, 1)
		assert.Empty(t, page.Items[1].Tags)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("tag filter uses a membership subquery", func(t *testing.T) {
		tagIDs := []int64{1, 2}
		mockPool.ExpectQuery(`SELECT COUNT\(\*\) FROM blogs b\s+WHERE b.id IN \(SELECT blog_id FROM blog_tags WHERE tag_id = ANY`).
			WithArgs(tagIDs).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

		rows := pgxmock.NewRows(blogColumns()).
			AddRow(int64(3), "Tagged", "Body", "tagged", true, now, now, int64(10), "alice", "alice@example.com")
		mockPool.ExpectQuery("SELECT b.id, b.title, b.content").
			WithArgs(tagIDs, 0, 10).
			WillReturnRows(rows)

		mockPool.ExpectQuery("SELECT bt.blog_id, t.id, t.name").
			WithArgs([]int64{3}).
			WillReturnRows(pgxmock.NewRows([]string{"blog_id", "id", "name"}).
				AddRow(int64(3), int64(1), "golang"))

		page, err := repo.Find(ctx, api.BlogPageParams{CurrentPage: 1, Limit: 10, Tags: tagIDs}, nil)
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "tagged", page.Items[0].Slug)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("author filter and page offset", func(t *testing.T) {
		userID := int64(10)
		mockPool.ExpectQuery(`SELECT COUNT\(\*\) FROM blogs b\s+WHERE b.user_id = \$1`).
			WithArgs(userID).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))

		// page 3 with limit 5 skips the first 10 rows
		mockPool.ExpectQuery("ORDER BY b.created_at DESC").
			WithArgs(userID, 10, 5).
			WillReturnRows(pgxmock.NewRows(blogColumns()))

		page, err := repo.Find(ctx, api.BlogPageParams{
			CurrentPage: 3,
			Limit:       5,
			SortBy:      "createdAt",
			SortOrder:   "DESC",
		}, &userID)
		require.NoError(t, err)
		assert.Equal(t, int64(12), page.Total)
		assert.Empty(t, page.Items)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("title and tag filters compose on a middle page", func(t *testing.T) {
		tagIDs := []int64{1, 2}

		// title binds $1, the tag subquery $2, and the count sees both
		mockPool.ExpectQuery(`SELECT COUNT\(\*\) FROM blogs b\s+WHERE b.title LIKE '%' \|\| \$1 \|\| '%' AND b.id IN \(SELECT blog_id FROM blog_tags WHERE tag_id = ANY\(\$2\)\)`).
			WithArgs("go", tagIDs).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))

		// page 2 with limit 5 lands on OFFSET $3 LIMIT $4 = (5, 5)
		rows := pgxmock.NewRows(blogColumns()).
			AddRow(int64(6), "Go generics", "Body", "go-generics", true, now, now, int64(10), "alice", "alice@example.com")
		mockPool.ExpectQuery(`ORDER BY b.updated_at ASC\s+OFFSET \$3 LIMIT \$4`).
			WithArgs("go", tagIDs, 5, 5).
			WillReturnRows(rows)

		mockPool.ExpectQuery("SELECT bt.blog_id, t.id, t.name").
			WithArgs([]int64{6}).
			WillReturnRows(pgxmock.NewRows([]string{"blog_id", "id", "name"}).
				AddRow(int64(6), int64(1), "golang"))

		page, err := repo.Find(ctx, api.BlogPageParams{
			CurrentPage: 2,
			Limit:       5,
			SortBy:      "updatedAt",
			SortOrder:   "ASC",
			Title:       "go",
			Tags:        tagIDs,
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(12), page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "go-generics", page.Items[0].Slug)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresBlogRepo_FindBySlug(t *testing.T) {
	repo, mockPool := setupBlogRepoTest(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		rows := pgxmock.NewRows(blogColumns()).
			AddRow(int64(1), "Hello", "World", "hello", true, now, now, int64(10), "alice", "alice@example.com")
		mockPool.ExpectQuery("WHERE b.slug").
			WithArgs("hello").
			WillReturnRows(rows)
		mockPool.ExpectQuery("SELECT bt.blog_id, t.id, t.name").
			WithArgs([]int64{1}).
			WillReturnRows(pgxmock.NewRows([]string{"blog_id", "id", "name"}))

		blog, err := repo.FindBySlug(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, "Hello", blog.Title)
		assert.NotNil(t, blog.Tags)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unknown slug maps to not found", func(t *testing.T) {
		mockPool.ExpectQuery("WHERE b.slug").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.FindBySlug(ctx, "ghost")
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrNotFound))
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresBlogRepo_Create(t *testing.T) {
	repo, mockPool := setupBlogRepoTest(t)
	ctx := context.Background()
	now := time.Now()
	params := api.CreateBlogParams{Title: "Hello", Content: "World", Slug: "hello", Published: true}

	t.Run("blog and tag links inserted in one transaction", func(t *testing.T) {
		mockPool.ExpectBegin()
		rows := pgxmock.NewRows([]string{"id", "title", "content", "slug", "published", "created_at", "updated_at"}).
			AddRow(int64(5), "Hello", "World", "hello", true, now, now)
		mockPool.ExpectQuery("INSERT INTO blogs").
			WithArgs("Hello", "World", "hello", true, int64(10)).
			WillReturnRows(rows)
		mockPool.ExpectExec("INSERT INTO blog_tags").
			WithArgs(int64(5), int64(1)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec("INSERT INTO blog_tags").
			WithArgs(int64(5), int64(2)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()

		blog, err := repo.Create(ctx, 10, params, []int64{1, 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), blog.ID)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("duplicate slug maps to conflict", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectQuery("INSERT INTO blogs").
			WithArgs("Hello", "World", "hello", true, int64(10)).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mockPool.ExpectRollback()

		_, err := repo.Create(ctx, 10, params, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrConflict))
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresBlogRepo_Update(t *testing.T) {
	repo, mockPool := setupBlogRepoTest(t)
	ctx := context.Background()
	now := time.Now()
	params := api.CreateBlogParams{Title: "Hello", Content: "World", Slug: "hello", Published: true}

	t.Run("tag set replaced wholesale", func(t *testing.T) {
		mockPool.ExpectBegin()
		rows := pgxmock.NewRows([]string{"id", "title", "content", "slug", "published", "created_at", "updated_at"}).
			AddRow(int64(5), "Hello", "World", "hello", true, now, now)
		mockPool.ExpectQuery("UPDATE blogs").
			WithArgs("Hello", "World", "hello", true, int64(5)).
			WillReturnRows(rows)
		mockPool.ExpectExec("DELETE FROM blog_tags").
			WithArgs(int64(5)).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mockPool.ExpectExec("INSERT INTO blog_tags").
			WithArgs(int64(5), int64(3)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()

		blog, err := repo.Update(ctx, 5, params, []int64{3})
		require.NoError(t, err)
		assert.Equal(t, int64(5), blog.ID)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unknown blog id maps to not found", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectQuery("UPDATE blogs").
			WithArgs("Hello", "World", "hello", true, int64(404)).
			WillReturnError(pgx.ErrNoRows)
		mockPool.ExpectRollback()

		_, err := repo.Update(ctx, 404, params, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrNotFound))
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresBlogRepo_Delete(t *testing.T) {
	repo, mockPool := setupBlogRepoTest(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mockPool.ExpectExec("DELETE FROM blogs WHERE id").
			WithArgs(int64(5)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		err := repo.Delete(ctx, 5)
		require.NoError(t, err)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("zero rows affected maps to not found", func(t *testing.T) {
		mockPool.ExpectExec("DELETE FROM blogs WHERE id").
			WithArgs(int64(404)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := repo.Delete(ctx, 404)
		require.Error(t, err)
		assert.True(t, errors.Is(err, api.ErrNotFound))
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}
