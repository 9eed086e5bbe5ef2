/**
 * @description
 * This file sets up the HTTP router for the billing-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies the authentication middleware. The webhook endpoint stays outside
 * the authenticated group: its authentication is the provider signature.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// BillingRoutes creates and returns a new router for the billing service.
func BillingRoutes(h *BillingHandlers, wh *WebhookHandler, auth AuthOptions) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Provider webhooks are verified by signature, not by session.
	r.Post("/webhooks/stripe", wh.ServeHTTP)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(auth))

		r.Post("/payments/intent", h.CreatePaymentIntentHandler)
		r.Get("/payments", h.PaymentHistoryHandler)

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/", h.AnalyticsHandler)
			r.Post("/", h.AnalyticsHandler)
			r.Delete("/", h.InvalidateAnalyticsHandler)
		})
	})

	return r
}
