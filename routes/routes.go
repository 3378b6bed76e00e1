package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/card-control/app"
	"github.com/upb/card-control/handlers"
	"github.com/upb/card-control/middleware"
	"github.com/upb/card-control/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger.Named("http")))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.RequestMetrics(deps.Metrics))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(deps.ReadinessChecks(), deps.Logger)
	cards := handlers.NewCardHandler(deps.Cards, deps.Logger)
	controls := handlers.NewControlHandler(deps.Controls, deps.Logger)
	transactions := handlers.NewTransactionHandler(deps.Authorization, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// Stub endpoints driven by the card gateway
	r.Route("/stub", func(r chi.Router) {
		r.Get("/txn", transactions.HandleProcessStubTransaction)
		r.With(deps.AuthMiddleware.RequireAuth).Post("/card", cards.HandleCreateCard)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)

		r.Route("/card/{card_id}", func(r chi.Router) {
			r.Get("/control", controls.HandleListControls)
			r.Post("/control", controls.HandleCreateControl)
			r.Delete("/control/{id}", controls.HandleDeleteControl)
			r.Get("/transactions", transactions.HandleCardTransactions)
		})

		r.Get("/controls/definitions", controls.HandleListDefinitions)

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/authorize", transactions.HandleAuthorize)
			r.Get("/{id}", transactions.HandleGetTransaction)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
