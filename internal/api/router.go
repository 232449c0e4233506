// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slotmine/internal/api/handler"
)

// NewRouter sets up and returns a new HTTP router.
func NewRouter(slotHandler *handler.SlotHandler, adminHandler *handler.AdminHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(handler.DefaultTimeout))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Owner API routes
	r.Post("/owners", slotHandler.CreateOwner)
	r.Route("/owners/{ownerID}", func(r chi.Router) {
		r.Get("/earnings", slotHandler.GetProjectedEarnings)
		r.Post("/claim", slotHandler.Claim)
		r.Get("/wallet", slotHandler.GetWallet)
		r.Post("/wallet/deposit", slotHandler.Deposit)
		r.Get("/activity", slotHandler.GetActivity)
	})

	// Slot purchase
	r.Post("/slots", slotHandler.PurchaseSlot)

	// Admin/operational endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Post("/expiry/run", adminHandler.RunExpiryNow)
		r.Get("/processing/status", adminHandler.GetProcessingStatus)
	})

	return r
}
