package tag

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

var _ Repository = (*PostgresTagRepo)(nil)

// Repository defines the contract for tag persistence.
type Repository interface {
	// FindAll returns tags matching an optional name substring and/or an
	// exact tag type id, with the tag type populated. Both filters combine
	// with AND.
	FindAll(ctx context.Context, name string, tagTypeID *int64) ([]api.Tag, error)

	// ResolveByIDs returns exactly the tags whose id is in the set. It does
	// no existence validation itself; callers compare cardinality to detect
	// missing ids.
	ResolveByIDs(ctx context.Context, ids []int64) ([]api.Tag, error)

	Create(ctx context.Context, params api.CreateTagParams) (*api.Tag, error)

	// Update overwrites a tag's fields. An id that matches no row is not an
	// error; the update is a zero-rows-affected no-op.
	Update(ctx context.Context, id int64, params api.CreateTagParams) error

	Delete(ctx context.Context, id int64) error
}

// poolIface is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type poolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresTagRepo struct {
	logger *slog.Logger
	pgpool poolIface
}

func NewPostgresTagRepo(pgpool poolIface, logger *slog.Logger) *PostgresTagRepo {
	return &PostgresTagRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresTagRepo) FindAll(ctx context.Context, name string, tagTypeID *int64) (_ []api.Tag, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "tag.FindAll", start, err) }()

	ctx, span := otel.Tracer("TagRepo").Start(ctx, "FindAll", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "tags, tag_types"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "FindAll"))
	l.DebugContext(ctx, "Fetching tags", slog.String("name", name))

	var whereClauses []string
	var args []interface{}
	argID := 1

	if name != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("t.name LIKE '%%' || $%d || '%%'", argID))
		args = append(args, name)
		argID++
	}
	if tagTypeID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("t.tag_type_id = $%d", argID))
		args = append(args, *tagTypeID)
		argID++
	}

	query := `
        SELECT t.id, t.name, tt.id, tt.name
        FROM tags t
        JOIN tag_types tt ON tt.id = t.tag_type_id`
	if len(whereClauses) > 0 {
		query += "\n        WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += "\n        ORDER BY t.name"

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query tags", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching tags: %w", err)
	}
	defer rows.Close()

	var tags []api.Tag
	for rows.Next() {
		var t api.Tag
		var tt api.TagType
		if err := rows.Scan(&t.ID, &t.Name, &tt.ID, &tt.Name); err != nil {
			l.ErrorContext(ctx, "Failed to scan tag row", slog.Any("error", err))
			span.RecordError(err)
			return nil, fmt.Errorf("database error scanning tag: %w", err)
		}
		t.TagType = &tt
		tags = append(tags, t)
	}
	if err = rows.Err(); err != nil {
		l.ErrorContext(ctx, "Error iterating tag rows", slog.Any("error", err))
		span.RecordError(err)
		return nil, fmt.Errorf("database error reading tags: %w", err)
	}

	span.SetStatus(codes.Ok, "Tags fetched")
	return tags, nil
}

func (r *PostgresTagRepo) ResolveByIDs(ctx context.Context, ids []int64) (_ []api.Tag, err error) {
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "tag.ResolveByIDs", start, err) }()

	l := r.logger.With(slog.String("method", "ResolveByIDs"))

	rows, err := r.pgpool.Query(ctx,
		"SELECT id, name FROM tags WHERE id = ANY($1)", ids)
	if err != nil {
		l.ErrorContext(ctx, "Failed to resolve tag ids", slog.Any("error", err))
		return nil, fmt.Errorf("database error resolving tags: %w", err)
	}
	defer rows.Close()

	var tags []api.Tag
	for rows.Next() {
		var t api.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("database error scanning tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("database error reading tags: %w", err)
	}
	return tags, nil
}

func (r *PostgresTagRepo) Create(ctx context.Context, params api.CreateTagParams) (_ *api.Tag, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "tag.Create", start, err) }()

	ctx, span := otel.Tracer("TagRepo").Start(ctx, "Create", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "tags"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Create"), slog.String("name", params.Name))
	l.DebugContext(ctx, "Creating tag")

	var t api.Tag
	var tagTypeID int64
	err = r.pgpool.QueryRow(ctx, `
        INSERT INTO tags (name, tag_type_id)
        VALUES ($1, $2)
        RETURNING id, name, tag_type_id`,
		params.Name, params.TagTypeID).Scan(&t.ID, &t.Name, &tagTypeID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique violation
				l.WarnContext(ctx, "Attempted to create tag with duplicate name", slog.Any("error", err))
				span.RecordError(err)
				span.SetStatus(codes.Error, "Duplicate tag name")
				return nil, fmt.Errorf("tag with name '%s' already exists: %w", params.Name, api.ErrConflict)
			case "23503": // foreign key violation
				l.WarnContext(ctx, "Tag type does not exist", slog.Any("error", err))
				span.RecordError(err)
				span.SetStatus(codes.Error, "Unknown tag type")
				return nil, fmt.Errorf("tag type %d does not exist: %w", params.TagTypeID, api.ErrNotFound)
			}
		}
		l.ErrorContext(ctx, "Failed to insert tag", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return nil, fmt.Errorf("database error creating tag: %w", err)
	}
	t.TagType = &api.TagType{ID: tagTypeID}

	span.SetStatus(codes.Ok, "Tag created")
	return &t, nil
}

func (r *PostgresTagRepo) Update(ctx context.Context, id int64, params api.CreateTagParams) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "tag.Update", start, err) }()

	l := r.logger.With(slog.String("method", "Update"), slog.Int64("tagID", id))

	tag, err := r.pgpool.Exec(ctx,
		"UPDATE tags SET name = $1, tag_type_id = $2 WHERE id = $3",
		params.Name, params.TagTypeID, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("tag with name '%s' already exists: %w", params.Name, api.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to update tag", slog.Any("error", err))
		return fmt.Errorf("database error updating tag: %w", err)
	}

	// Matching zero rows is deliberately not an error here.
	if tag.RowsAffected() == 0 {
		l.DebugContext(ctx, "Tag update matched no rows")
	}
	return nil
}

func (r *PostgresTagRepo) Delete(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(ctx, "tag.Delete", start, err) }()

	l := r.logger.With(slog.String("method", "Delete"), slog.Int64("tagID", id))

	tag, err := r.pgpool.Exec(ctx, "DELETE FROM tags WHERE id = $1", id)
	if err != nil {
		l.ErrorContext(ctx, "Failed to delete tag", slog.Any("error", err))
		return fmt.Errorf("database error deleting tag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		l.DebugContext(ctx, "Tag delete matched no rows")
	}
	return nil
}
