/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from
 * the payment provider. It acts as the primary entry point for all real-time
 * payment notifications.
 *
 * Key features:
 * - Security: Validates the provider's signature on every request before any
 *   event is trusted. Fails closed: a missing configured secret rejects the
 *   request instead of skipping verification.
 * - Routing: Hands the verified event to the reconciliation service, which
 *   dispatches by event type.
 *
 * @dependencies
 * - io, net/http: Standard HTTP server functionality.
 * - github.com/stripe/stripe-go/v82/webhook: Signature verification.
 */
package api

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/proptly/billing-service/internal/app"
)

// maxWebhookBodyBytes caps the request body. Invoice events with many line
// items run well past the typical event size, so the cap is generous.
const maxWebhookBodyBytes = 1 << 20

// WebhookHandler processes incoming payment-provider webhooks.
type WebhookHandler struct {
	service *app.Service
	secret  string
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(service *app.Service, secret string) *WebhookHandler {
	return &WebhookHandler{service: service, secret: secret}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		// Never process an unverified event; an unconfigured secret is an
		// operator error, not a reason to trust the payload.
		log.Printf("level=error component=webhook msg=\"webhook secret not configured; rejecting delivery\"")
		http.Error(w, "Webhook verification is not configured", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Printf("level=warn component=webhook msg=\"failed to read webhook body\" err=%v", err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		log.Printf("level=warn component=webhook msg=\"missing signature header\" remote=%s", r.RemoteAddr)
		http.Error(w, "Missing signature header", http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, signature, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Printf("level=warn component=webhook msg=\"signature verification failed\" remote=%s err=%v", r.RemoteAddr, err)
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	log.Printf("level=info component=webhook msg=\"event received\" event_id=%s type=%s", event.ID, event.Type)

	if err := h.service.ProcessWebhookEvent(r.Context(), event.ID, string(event.Type), event.Data.Raw); err != nil {
		if errors.Is(err, app.ErrUnsupportedEventType) {
			log.Printf("level=warn component=webhook msg=\"unsupported event type\" event_id=%s type=%s", event.ID, event.Type)
			http.Error(w, "Unsupported event type", http.StatusBadRequest)
			return
		}
		log.Printf("level=error component=webhook msg=\"event processing failed\" event_id=%s type=%s err=%v", event.ID, event.Type, err)
		http.Error(w, "Internal server error during event processing", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Webhook processed"))
}
