/**
 * @description
 * This file defines the Go structs that model the payloads of provider webhook
 * events the service reconciles against. These structures are essential for
 * safely unmarshaling the `data.object` node of a verified event and
 * processing it in a type-safe manner.
 *
 * @notes
 * - Only the fields the reconciliation handlers read are modeled; the provider
 *   sends far more. Decoding into narrow structs keeps the handlers stable
 *   across provider API versions.
 * - Signature verification happens before any of these are populated; an
 *   unverified payload is never decoded.
 */
package domain

// Supported provider event types. Dispatch over these is closed and
// exhaustive; anything else is rejected upstream with a client error.
const (
	EventPaymentIntentSucceeded  = "payment_intent.succeeded"
	EventPaymentIntentFailed     = "payment_intent.payment_failed"
	EventPaymentIntentCanceled   = "payment_intent.canceled"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// SupportedEventType reports whether the service has a reconciliation handler
// for the given provider event type.
func SupportedEventType(t string) bool {
	switch t {
	case EventPaymentIntentSucceeded,
		EventPaymentIntentFailed,
		EventPaymentIntentCanceled,
		EventInvoicePaymentSucceeded,
		EventInvoicePaymentFailed:
		return true
	}
	return false
}

// PaymentIntentPayload models the `data.object` of payment_intent.* events.
type PaymentIntentPayload struct {
	ID               string               `json:"id"`
	Amount           int64                `json:"amount"`
	Metadata         map[string]string    `json:"metadata,omitempty"`
	LastPaymentError *PaymentErrorPayload `json:"last_payment_error,omitempty"`
}

// PaymentErrorPayload carries the provider's failure detail for a declined or
// errored payment attempt.
type PaymentErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// InvoicePayload models the `data.object` of invoice.* events. Customer and
// Subscription are plain ids because the service never requests expansion.
type InvoicePayload struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription,omitempty"`
	AmountPaid    int64  `json:"amount_paid"`
	AmountDue     int64  `json:"amount_due"`
	PeriodStart   int64  `json:"period_start"` // unix seconds
	PeriodEnd     int64  `json:"period_end"`   // unix seconds
	BillingReason string `json:"billing_reason,omitempty"`

	LastFinalizationError *PaymentErrorPayload `json:"last_finalization_error,omitempty"`
}
