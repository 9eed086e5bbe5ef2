/**
 * @description
 * This file defines the core domain models for the billing-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (cents), which avoids floating-point inaccuracies with financial data.
 * - Payment rows are created in PENDING state by the intent-creation flow and
 *   mutated only by webhook reconciliation afterwards. They are never deleted.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment statuses. A payment starts PENDING and moves to exactly one of the
// terminal states in response to a verified provider webhook.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusPaid      = "PAID"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCancelled = "CANCELLED"
)

// Payment types.
const (
	PaymentTypeRent         = "RENT"
	PaymentTypeSubscription = "SUBSCRIPTION"
	PaymentTypeDeposit      = "DEPOSIT"
	PaymentTypeFee          = "FEE"
)

// ValidPaymentType reports whether t is one of the supported payment types.
func ValidPaymentType(t string) bool {
	switch t {
	case PaymentTypeRent, PaymentTypeSubscription, PaymentTypeDeposit, PaymentTypeFee:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// Payment is the ledger record for a single billable event. This struct maps
// directly to the `payments` table in the database.
type Payment struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenant_id"`
	LeaseID         *uuid.UUID `json:"lease_id,omitempty"`
	PropertyID      *uuid.UUID `json:"property_id,omitempty"`
	Amount          int64      `json:"amount"` // in cents
	Status          string     `json:"status"`
	PaymentType     string     `json:"payment_type"`
	PaymentIntentID *string    `json:"payment_intent_id,omitempty"`
	InvoiceID       *string    `json:"invoice_id,omitempty"`
	Description     string     `json:"description"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	PeriodStart     *time.Time `json:"period_start,omitempty"`
	PeriodEnd       *time.Time `json:"period_end,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

// CreatePaymentIntentRequest is the DTO for incoming payment-intent API requests.
type CreatePaymentIntentRequest struct {
	LeaseID       uuid.UUID `json:"lease_id"`
	PaymentAmount int64     `json:"payment_amount"` // in cents
	PaymentType   string    `json:"payment_type"`
	Description   string    `json:"description"`
}

// CreatePaymentIntentResult is returned to the client after an intent has been
// created with the provider and a PENDING payment row has been persisted.
type CreatePaymentIntentResult struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	ClientSecret string    `json:"client_secret"`
}

// ProviderIntent is the subset of the provider's payment-intent resource the
// service needs after creation.
type ProviderIntent struct {
	ID           string
	ClientSecret string
}

// PaymentListOptions controls filtering for the payment-history endpoint.
// LeaseID is required; the remaining filters are optional.
type PaymentListOptions struct {
	LeaseID uuid.UUID
	Status  string
	From    *time.Time
	To      *time.Time
}
