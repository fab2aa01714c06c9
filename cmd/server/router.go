package main

import (
	"net/http"

	"github.com/defineconsult/consult-api/internal/api"
	apiMiddleware "github.com/defineconsult/consult-api/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// setupRouter creates the application router with its middleware and routes.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(app.logger))
	if len(app.config.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   app.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{apiMiddleware.TraceHeader},
			AllowCredentials: true,
		}).Handler)
	}

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	consultHandler := api.NewConsultHandler(app.consultService, app.llm.Name())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		consultHandler.RegisterRoutes(r)
	})

	r.Get("/health", api.Health)

	return r
}
