package container

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/pencraft/pencraft/app/db"
	"github.com/pencraft/pencraft/config"
	"github.com/pencraft/pencraft/internal/api/auth"
	"github.com/pencraft/pencraft/internal/api/blog"
	"github.com/pencraft/pencraft/internal/api/tag"
	"github.com/pencraft/pencraft/internal/api/user"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *slog.Logger
	Pool        *pgxpool.Pool
	AuthHandler *auth.HandlerImpl
	UserHandler *user.HandlerImpl
	BlogHandler *blog.HandlerImpl
	TagHandler  *tag.HandlerImpl
}

// NewContainer initializes and returns a new dependency container
func NewContainer(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	authRepo := auth.NewPostgresAuthRepo(pool, logger)
	authService := auth.NewAuthService(authRepo, cfg.JWT, logger)
	authHandler := auth.NewHandlerImpl(authService, logger)

	userRepo := user.NewPostgresUserRepo(pool, logger)
	userService := user.NewUserService(userRepo, logger)
	userHandler := user.NewHandlerImpl(userService, logger)

	tagRepo := tag.NewPostgresTagRepo(pool, logger)
	tagService := tag.NewTagService(tagRepo, logger)
	tagHandler := tag.NewHandlerImpl(tagService, logger)

	// The blog service leans on the tag repository to validate tag
	// references before anything is written.
	blogRepo := blog.NewPostgresBlogRepo(pool, logger)
	blogService := blog.NewBlogService(blogRepo, tagRepo, logger)
	blogHandler := blog.NewHandlerImpl(blogService, logger)

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		AuthHandler: authHandler,
		UserHandler: userHandler,
		BlogHandler: blogHandler,
		TagHandler:  tagHandler,
	}, nil
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB waits for the database to be ready
func (c *Container) WaitForDB(ctx context.Context) bool {
	return database.WaitForDB(ctx, c.Pool, c.Logger)
}

// RunMigrations runs database migrations
func (c *Container) RunMigrations(connectionURL string) error {
	return database.RunMigrations(connectionURL, c.Logger)
}
