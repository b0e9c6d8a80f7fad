package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pencraft/pencraft/app/logger"
	"github.com/pencraft/pencraft/internal/api"
	"github.com/pencraft/pencraft/internal/api/auth"
	"github.com/pencraft/pencraft/internal/container"
)

// SetupRouter wires every HTTP route to its handler. Routes fall into three
// rings: public, authenticated, and admin-only.
func SetupRouter(c *container.Container) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.StructuredLogger(c.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5, "application/json"))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Heartbeat
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	authenticate := auth.Authenticate(c.Logger, c.Config.JWT)
	requireAdmin := auth.RequireRole(c.Logger, api.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Post("/auth/login", c.AuthHandler.Login)
			r.Post("/auth/refresh", c.AuthHandler.Refresh)
			r.Post("/users/save", c.UserHandler.Create)
			r.Get("/blogs", c.BlogHandler.FindAll)
			r.Get("/blogs/{slug}", c.BlogHandler.FindBySlug)
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/auth/logout", c.AuthHandler.Logout)

			r.Get("/blogs/user/{userID}", c.BlogHandler.FindByUserID)
			r.Post("/blogs/save", c.BlogHandler.Create)
			r.Put("/blogs/update/{id}", c.BlogHandler.Update)
			r.Post("/blogs/delete", c.BlogHandler.Delete)

			r.Get("/tags", c.TagHandler.FindAll)
			r.Post("/tags/save", c.TagHandler.Create)
			r.Put("/tags/update/{id}", c.TagHandler.Update)
			r.Post("/tags/delete", c.TagHandler.Delete)

			r.Get("/users/get/{username}", c.UserHandler.FindByUsername)
			r.Get("/users/current", c.UserHandler.Current)
			r.Put("/users/update", c.UserHandler.UpdatePassword)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(requireAdmin)

			r.Get("/users", c.UserHandler.FindAll)
			r.Put("/users/update/roles", c.UserHandler.UpdateRoles)
		})
	})

	return r
}
