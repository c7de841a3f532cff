/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the revenue dashboard

ROUTE GROUPS:
  /api/ingest            Stay batch ingestion
  /api/facts             Daily fact reads
  /api/training          Forecast training dataset
  /api/forecast/*        Forecast grid and adjustments
  /api/recommendations/* Generation and lifecycle
  /api/export/*          Export collaborator surface
  /api/config/*          Runtime configuration reload

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Ingestion routes
		r.Post("/ingest", h.Ingest)
		r.Get("/facts", h.GetFacts)
		r.Get("/training", h.GetTrainingSet)

		// Forecast routes
		r.Route("/forecast", func(r chi.Router) {
			r.Post("/", h.PushForecast)
			r.Get("/", h.GetForecast)
			r.Post("/adjust", h.AdjustForecast)
		})

		// Recommendation routes
		r.Route("/recommendations", func(r chi.Router) {
			r.Post("/generate", h.GenerateRecommendations)
			r.Get("/", h.ListRecommendations)
			r.Post("/approve", h.ApproveRecommendations)
			r.Post("/{id}/reject", h.RejectRecommendation)
		})

		// Export routes
		r.Route("/export", func(r chi.Router) {
			r.Get("/approved", h.GetApprovedForExport)
			r.Post("/confirm", h.ConfirmExport)
		})

		// Configuration routes
		r.Route("/config", func(r chi.Router) {
			r.Post("/reload", h.ReloadConfig)
		})
	})

	// Health check for deployment probes
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
