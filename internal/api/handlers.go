/**
 * @description
 * This file contains the HTTP handlers for the billing-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/proptly/billing-service/internal/app"
	"github.com/proptly/billing-service/internal/domain"
	"github.com/proptly/billing-service/internal/store"
)

// BillingHandlers holds the application service that handlers will use.
type BillingHandlers struct {
	service *app.Service
}

// NewBillingHandlers creates a new instance of BillingHandlers.
func NewBillingHandlers(service *app.Service) *BillingHandlers {
	return &BillingHandlers{service: service}
}

// CreatePaymentIntentHandler handles requests to start a payment for a lease.
func (h *BillingHandlers) CreatePaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req domain.CreatePaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_payment_intent outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.LeaseID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "lease_id is required")
		return
	}

	result, err := h.service.CreatePaymentIntent(r.Context(), req)
	if err != nil {
		var rateErr *app.RateLimitError
		switch {
		case errors.Is(err, store.ErrLeaseNotFound) || errors.Is(err, store.ErrTenantNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, app.ErrInvalidPaymentAmount) || errors.Is(err, app.ErrInvalidPaymentType):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &rateErr):
			w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many payment attempts. Please wait and try again.")
		default:
			log.Printf("level=error component=api endpoint=create_payment_intent outcome=failed user_id=%s err=%v", ident.UserID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"client_secret": result.ClientSecret,
		"payment_id":    result.PaymentID.String(),
	})
}

// PaymentHistoryHandler returns a lease's payments, newest first, with
// optional status and date-range filters.
func (h *BillingHandlers) PaymentHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := IdentityFromContext(r.Context()); !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	leaseIDStr := r.URL.Query().Get("lease_id")
	if leaseIDStr == "" {
		h.writeError(w, http.StatusBadRequest, "lease_id is required")
		return
	}
	leaseID, err := uuid.Parse(leaseIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid lease_id format")
		return
	}

	opts := domain.PaymentListOptions{LeaseID: leaseID}
	if status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))); status != "" {
		if !domain.ValidPaymentStatus(status) {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown payment status %q", status))
			return
		}
		opts.Status = status
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, parseErr := time.Parse("2006-01-02", raw)
		if parseErr != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid from date, expected YYYY-MM-DD")
			return
		}
		opts.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, parseErr := time.Parse("2006-01-02", raw)
		if parseErr != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid to date, expected YYYY-MM-DD")
			return
		}
		// The range is inclusive of the end date on the wire.
		to = to.AddDate(0, 0, 1)
		opts.To = &to
	}

	payments, err := h.service.PaymentHistory(r.Context(), opts)
	if err != nil {
		if errors.Is(err, store.ErrLeaseNotFound) {
			h.writeError(w, http.StatusNotFound, "Lease not found")
			return
		}
		log.Printf("level=error component=api endpoint=payment_history outcome=failed lease_id=%s err=%v", leaseID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

// AnalyticsHandler serves the cached aggregate report. GET serves from cache
// within the TTL; POST recomputes and overwrites the cached entry.
func (h *BillingHandlers) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var query domain.AnalyticsQuery
	refresh := r.Method == http.MethodPost
	if refresh {
		if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
	} else {
		query = analyticsQueryFromURL(r)
	}

	report, cached, err := h.service.Analytics(r.Context(), ident, query, refresh)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAnalyticsQuery) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=analytics outcome=failed user_id=%s err=%v", ident.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":   report,
		"cached": cached,
	})
}

// InvalidateAnalyticsHandler clears cached analytics. Admins clear
// everything; other roles only clear entries scoped to their own identity.
func (h *BillingHandlers) InvalidateAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	removed := h.service.InvalidateAnalytics(ident)
	h.writeJSON(w, http.StatusOK, map[string]any{"cleared": removed})
}

// analyticsQueryFromURL maps the GET query string onto the analytics schema.
// Metrics accept both repeated `metrics[]` keys and comma-separated values.
func analyticsQueryFromURL(r *http.Request) domain.AnalyticsQuery {
	values := r.URL.Query()
	query := domain.AnalyticsQuery{
		DateRange:  values.Get("date_range"),
		StartDate:  values.Get("start_date"),
		EndDate:    values.Get("end_date"),
		PropertyID: values.Get("property_id"),
		GroupBy:    values.Get("group_by"),
	}

	raw := values["metrics[]"]
	raw = append(raw, values["metrics"]...)
	for _, entry := range raw {
		for _, m := range strings.Split(entry, ",") {
			if m = strings.TrimSpace(m); m != "" {
				query.Metrics = append(query.Metrics, m)
			}
		}
	}
	return query
}

// writeJSON is a helper for writing JSON responses.
func (h *BillingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *BillingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
