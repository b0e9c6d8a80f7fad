package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pencraft/pencraft/app/observability/metrics"
	"github.com/pencraft/pencraft/internal/api"
)

var _ Repository = (*PostgresBlogRepo)(nil)

// Repository defines the contract for blog persistence.
type Repository interface {
	// Find returns one page of blogs matching the given filters. A non-nil
	// userID restricts to that author; tagIDs restrict to blogs carrying at
	// least one of the tags. Total counts matches before pagination.
	Find(ctx context.Context, params api.BlogPageParams, userID *int64) (*api.BlogPage, error)

	// FindBySlug returns the blog with that slug or ErrNotFound.
	FindBySlug(ctx context.Context, slug string) (*api.Blog, error)

	// GetOwnerID returns the author id of a blog or ErrNotFound.
	GetOwnerID(ctx context.Context, blogID int64) (int64, error)

	// Create inserts the blog and its tag links in one transaction. The tag
	// ids must already be verified to exist.
	Create(ctx context.Context, userID int64, params api.CreateBlogParams, tagIDs []int64) (*api.Blog, error)

	// Update overwrites the blog's fields and replaces its tag set wholesale.
	// An unknown blog id surfaces as ErrNotFound.
	Update(ctx context.Context, blogID int64, params api.CreateBlogParams, tagIDs []int64) (*api.Blog, error)

	Delete(ctx context.Context, blogID int64) error
}

// poolIface is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type poolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresBlogRepo struct {
	logger *slog.Logger
	pgpool poolIface
}

func NewPostgresBlogRepo(pgpool poolIface, logger *slog.Logger) *PostgresBlogRepo {
	return &PostgresBlogRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

// sortColumns maps the external sort field names to real columns. Anything
// else falls back to the primary key for a stable order.
var sortColumns = map[string]string{
	"createdAt": "b.created_at",
	"updatedAt": "b.updated_at",
}

func (r *PostgresBlogRepo) Find(ctx context.Context, params api.BlogPageParams, userID *int64) (_ *api.BlogPage, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "blog.Find", start, err) }()

	ctx, span := otel.Tracer("BlogRepo").Start(ctx, "Find", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "blogs"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Find"))
	l.DebugContext(ctx, "Searching blogs",
		slog.Int("currentPage", params.CurrentPage),
		slog.Int("limit", params.Limit),
	)

	var whereClauses []string
	var args []interface{}
	argID := 1

	if userID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("b.user_id = $%d", argID))
		args = append(args, *userID)
		argID++
	}
	if params.Title != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("b.title LIKE '%%' || $%d || '%%'", argID))
		args = append(args, params.Title)
		argID++
	}
	if len(params.Tags) > 0 {
		whereClauses = append(whereClauses,
			fmt.Sprintf("b.id IN (SELECT blog_id FROM blog_tags WHERE tag_id = ANY($%d))", argID))
		args = append(args, params.Tags)
		argID++
	}

	where := ""
	if len(whereClauses) > 0 {
		where = "\n        WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM blogs b" + where
	if err = r.pgpool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		l.ErrorContext(ctx, "Failed to count blogs", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB count failed")
		return nil, fmt.Errorf("database error counting blogs: %w", err)
	}

	orderBy := "b.id"
	if col, ok := sortColumns[params.SortBy]; ok {
		orderBy = col
	}
	order := "ASC"
	if strings.EqualFold(params.SortOrder, "DESC") {
		order = "DESC"
	}

	query := `
        SELECT b.id, b.title, b.content, b.slug, b.published, b.created_at, b.updated_at,
               u.id, u.username, u.email
        FROM blogs b
        JOIN users u ON u.id = b.user_id` + where +
		fmt.Sprintf("\n        ORDER BY %s %s", orderBy, order) +
		fmt.Sprintf("\n        OFFSET $%d LIMIT $%d", argID, argID+1)
	args = append(args, (params.CurrentPage-1)*params.Limit, params.Limit)

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query blogs", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error searching blogs: %w", err)
	}
	defer rows.Close()

	blogs := []api.Blog{}
	var ids []int64
	for rows.Next() {
		var b api.Blog
		var u api.User
		if err := rows.Scan(&b.ID, &b.Title, &b.Content, &b.Slug, &b.Published, &b.CreatedAt, &b.UpdatedAt,
			&u.ID, &u.Username, &u.Email); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("database error scanning blog: %w", err)
		}
		b.User = &u
		blogs = append(blogs, b)
		ids = append(ids, b.ID)
	}
	if err = rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("database error reading blogs: %w", err)
	}

	if err := r.attachTags(ctx, blogs, ids); err != nil {
		l.ErrorContext(ctx, "Failed to load blog tags", slog.Any("error", err))
		span.RecordError(err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "Blogs fetched")
	return &api.BlogPage{
		Items:       blogs,
		CurrentPage: params.CurrentPage,
		Limit:       params.Limit,
		Total:       total,
	}, nil
}

// attachTags populates Tags for every blog in one batched query.
func (r *PostgresBlogRepo) attachTags(ctx context.Context, blogs []api.Blog, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	rows, err := r.pgpool.Query(ctx, `
        SELECT bt.blog_id, t.id, t.name
        FROM blog_tags bt
        JOIN tags t ON t.id = bt.tag_id
        WHERE bt.blog_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("database error fetching blog tags: %w", err)
	}
	defer rows.Close()

	tagsByBlog := make(map[int64][]api.Tag, len(ids))
	for rows.Next() {
		var blogID int64
		var t api.Tag
		if err := rows.Scan(&blogID, &t.ID, &t.Name); err != nil {
			return fmt.Errorf("database error scanning blog tag: %w", err)
		}
		tagsByBlog[blogID] = append(tagsByBlog[blogID], t)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("database error reading blog tags: %w", err)
	}

	for i := range blogs {
		tags := tagsByBlog[blogs[i].ID]
		if tags == nil {
			tags = []api.Tag{}
		}
		blogs[i].Tags = tags
	}
	return nil
}

func (r *PostgresBlogRepo) FindBySlug(ctx context.Context, slug string) (_ *api.Blog, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "blog.FindBySlug", start, err) }()

	ctx, span := otel.Tracer("BlogRepo").Start(ctx, "FindBySlug", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "blogs"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "FindBySlug"), slog.String("slug", slug))

	var b api.Blog
	var u api.User
	err = r.pgpool.QueryRow(ctx, `
        SELECT b.id, b.title, b.content, b.slug, b.published, b.created_at, b.updated_at,
               u.id, u.username, u.email
        FROM blogs b
        JOIN users u ON u.id = b.user_id
        WHERE b.slug = $1`, slug).
		Scan(&b.ID, &b.Title, &b.Content, &b.Slug, &b.Published, &b.CreatedAt, &b.UpdatedAt,
			&u.ID, &u.Username, &u.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			l.DebugContext(ctx, "Blog not found")
			span.SetStatus(codes.Error, "Blog not found")
			return nil, fmt.Errorf("blog with slug '%s' not found: %w", slug, api.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to query blog", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching blog: %w", err)
	}
	b.User = &u

	blogs := []api.Blog{b}
	if err := r.attachTags(ctx, blogs, []int64{b.ID}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "Blog fetched")
	return &blogs[0], nil
}

func (r *PostgresBlogRepo) GetOwnerID(ctx context.Context, blogID int64) (_ int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "blog.GetOwnerID", start, err) }()

	l := r.logger.With(slog.String("method", "GetOwnerID"), slog.Int64("blogID", blogID))

	var ownerID int64
	err = r.pgpool.QueryRow(ctx,
		"SELECT user_id FROM blogs WHERE id = $1", blogID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("blog %d not found: %w", blogID, api.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to query blog owner", slog.Any("error", err))
		return 0, fmt.Errorf("database error fetching blog owner: %w", err)
	}
	return ownerID, nil
}

func (r *PostgresBlogRepo) Create(ctx context.Context, userID int64, params api.CreateBlogParams, tagIDs []int64) (_ *api.Blog, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "blog.Create", start, err) }()

	ctx, span := otel.Tracer("BlogRepo").Start(ctx, "Create", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "blogs"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Create"), slog.Int64("userID", userID))
	l.DebugContext(ctx, "Creating blog", slog.String("slug", params.Slug))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var b api.Blog
	err = tx.QueryRow(ctx, `
        INSERT INTO blogs (title, content, slug, published, user_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, title, content, slug, published, created_at, updated_at`,
		params.Title, params.Content, params.Slug, params.Published, userID).
		Scan(&b.ID, &b.Title, &b.Content, &b.Slug, &b.Published, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique violation on slug
			l.WarnContext(ctx, "Slug already taken", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Duplicate slug")
			return nil, fmt.Errorf("blog with slug '%s' already exists: %w", params.Slug, api.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to insert blog", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return nil, fmt.Errorf("database error creating blog: %w", err)
	}

	for _, tagID := range tagIDs {
		if _, err := tx.Exec(ctx,
			"INSERT INTO blog_tags (blog_id, tag_id) VALUES ($1, $2)",
			b.ID, tagID); err != nil {
			l.ErrorContext(ctx, "Failed to link tag", slog.Int64("tagID", tagID), slog.Any("error", err))
			span.RecordError(err)
			return nil, fmt.Errorf("database error linking tag: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.InfoContext(ctx, "Blog created", slog.Int64("blogID", b.ID))
	span.SetStatus(codes.Ok, "Blog created")
	return &b, nil
}

func (r *PostgresBlogRepo) Update(ctx context.Context, blogID int64, params api.CreateBlogParams, tagIDs []int64) (_ *api.Blog, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "blog.Update", start, err) }()

	ctx, span := otel.Tracer("BlogRepo").Start(ctx, "Update", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "blogs"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Update"), slog.Int64("blogID", blogID))
	l.DebugContext(ctx, "Updating blog")

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var b api.Blog
	err = tx.QueryRow(ctx, `
        UPDATE blogs
        SET title = $1, content = $2, slug = $3, published = $4, updated_at = NOW()
        WHERE id = $5
        RETURNING id, title, content, slug, published, created_at, updated_at`,
		params.Title, params.Content, params.Slug, params.Published, blogID).
		Scan(&b.ID, &b.Title, &b.Content, &b.Slug, &b.Published, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "Blog not found")
			return nil, fmt.Errorf("blog %d not found: %w", blogID, api.ErrNotFound)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Duplicate slug")
			return nil, fmt.Errorf("blog with slug '%s' already exists: %w", params.Slug, api.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to update blog", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return nil, fmt.Errorf("database error updating blog: %w", err)
	}

	// The tag set is replaced wholesale, never merged.
	if _, err := tx.Exec(ctx, "DELETE FROM blog_tags WHERE blog_id = $1", blogID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("database error clearing tags: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.Exec(ctx,
			"INSERT INTO blog_tags (blog_id, tag_id) VALUES ($1, $2)",
			blogID, tagID); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("database error linking tag: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.InfoContext(ctx, "Blog updated")
	span.SetStatus(codes.Ok, "Blog updated")
	return &b, nil
}

func (r *PostgresBlogRepo) Delete(ctx context.Context, blogID int64) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "blog.Delete", start, err) }()

	ctx, span := otel.Tracer("BlogRepo").Start(ctx, "Delete", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", "blogs"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Delete"), slog.Int64("blogID", blogID))

	tag, err := r.pgpool.Exec(ctx, "DELETE FROM blogs WHERE id = $1", blogID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to delete blog", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB DELETE failed")
		return fmt.Errorf("database error deleting blog: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "Blog not found")
		return fmt.Errorf("blog %d not found: %w", blogID, api.ErrNotFound)
	}

	l.InfoContext(ctx, "Blog deleted")
	span.SetStatus(codes.Ok, "Blog deleted")
	return nil
}
