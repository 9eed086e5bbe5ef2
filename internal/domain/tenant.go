package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant subscription statuses, driven by provider invoice webhooks.
const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusPastDue   = "PAST_DUE"
	SubscriptionStatusCancelled = "CANCELLED"
)

// Tenant represents a renter known to the platform. StripeCustomerID is nil
// until the tenant's first payment intent is created, at which point the
// provider customer is created lazily and the id is persisted.
type Tenant struct {
	ID                 uuid.UUID `json:"id"`
	FullName           string    `json:"full_name"`
	Email              string    `json:"email"`
	StripeCustomerID   *string   `json:"stripe_customer_id,omitempty"`
	SubscriptionStatus *string   `json:"subscription_status,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
