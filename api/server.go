/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin tooling

ROUTE GROUPS:
  /api/stock-events     Movement ingestion
  /api/stock-cards/*    Cards, balances, range summaries
  /api/reasons          Reason catalog

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
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
		// Stock event ingestion
		r.Post("/stock-events", h.CreateStockEvent)

		// Stock card routes
		r.Route("/stock-cards", func(r chi.Router) {
			r.Get("/", h.ListStockCards)
			r.Get("/{id}", h.GetStockCard)
			r.Get("/{id}/stock-on-hand", h.GetStockOnHand)
			r.Get("/{id}/range-summary", h.GetRangeSummary)
			r.Post("/{id}/rebuild", h.RebuildStockCard)
		})

		// Reason catalog routes
		r.Route("/reasons", func(r chi.Router) {
			r.Get("/", h.ListReasons)
			r.Post("/", h.CreateReason)
		})
	})

	return r
}
