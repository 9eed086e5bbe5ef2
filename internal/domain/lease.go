/**
 * @description
 * Lease and tenant domain models for the billing-service.
 *
 * @notes
 * - Lease lifecycle status and the outcome of the most recent rent payment are
 *   kept in separate fields. Reconciliation only ever writes
 *   `last_payment_status`; lease lifecycle transitions belong to the
 *   lease-management surface and are never touched here.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Lease lifecycle statuses.
const (
	LeaseStatusActive     = "ACTIVE"
	LeaseStatusExpired    = "EXPIRED"
	LeaseStatusTerminated = "TERMINATED"
)

// Last-payment outcomes recorded on a lease by rent reconciliation.
const (
	LeasePaymentOutcomePaid   = "PAID"
	LeasePaymentOutcomeFailed = "FAILED"
)

// Lease represents a rental agreement between a property and a tenant.
type Lease struct {
	ID                uuid.UUID `json:"id"`
	PropertyID        uuid.UUID `json:"property_id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	Status            string    `json:"status"`
	LastPaymentStatus *string   `json:"last_payment_status,omitempty"`
	RentAmount        int64     `json:"rent_amount"` // in cents
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
