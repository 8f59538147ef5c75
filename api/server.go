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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/entries/*    Ledger entries
  /api/cards/*      Cards, invoice history, summaries
  /api/invoices/*   Invoice lifecycle and payments
  /api/limits/*     Category spending limits
  /api/admin/*      Admin operations
  /api/reset        Database reset (dev only)

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

// NewRouter creates a new router with all routes configured. With no
// origins given, local development defaults apply.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/", h.CreateEntry)
			r.Get("/{id}", h.GetEntry)
		})

		// Card routes
		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Post("/", h.SaveCard)
			r.Get("/{id}", h.GetCard)
			r.Get("/{id}/invoices", h.CardInvoices)
			r.Get("/{id}/invoice", h.CurrentInvoice)
			r.Get("/{id}/summary", h.CardSummary)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/recompute", h.RecomputeInvoice)
			r.Get("/{id}/payments", h.ListPayments)
			r.Post("/{id}/payments", h.RecordPayment)
		})

		// Limit routes
		r.Route("/limits", func(r chi.Router) {
			r.Get("/", h.ListLimits)
			r.Post("/", h.SaveLimit)
			r.Post("/recompute", h.RecomputeLimits)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/close-invoices", h.CloseInvoices)
		})

		// Scenario routes (dev/demo)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
