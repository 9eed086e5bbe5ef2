/**
 * @description
 * Webhook-driven payment reconciliation. A verified provider event is routed
 * by type to exactly one handler; handlers update payment rows by matching on
 * the provider's payment-intent id and, for rent payments, record the outcome
 * on the owning lease.
 *
 * Key properties:
 * - Closed dispatch: the supported event set is small and static. Unsupported
 *   types are rejected so the provider stops retrying them, rather than being
 *   silently swallowed.
 * - At-least-once tolerant: every handler is safe to run twice. Intent-keyed
 *   updates are naturally idempotent; invoice inserts are guarded by a unique
 *   index on the invoice id.
 * - Event-id dedupe: the provider event id is recorded after a handler
 *   completes, so a redelivered event is acknowledged without side effects.
 *   Recording happens last: a crash mid-handler leaves the event unrecorded
 *   and the provider's retry reprocesses it.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/proptly/billing-service/internal/domain"
	"github.com/proptly/billing-service/internal/store"
)

// ErrUnsupportedEventType rejects events outside the closed dispatch set.
var ErrUnsupportedEventType = errors.New("unsupported event type")

// ProcessWebhookEvent routes a verified provider event to its reconciliation
// handler. payload is the raw `data.object` node of the event.
func (s *Service) ProcessWebhookEvent(ctx context.Context, eventID, eventType string, payload []byte) error {
	if !domain.SupportedEventType(eventType) {
		return fmt.Errorf("%w: %q", ErrUnsupportedEventType, eventType)
	}

	if eventID != "" {
		seen, err := s.repo.SeenWebhookEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("failed to check event dedupe state: %w", err)
		}
		if seen {
			log.Printf("level=info component=reconcile msg=\"duplicate event acknowledged\" event_id=%s type=%s", eventID, eventType)
			return nil
		}
	}

	var err error
	switch eventType {
	case domain.EventPaymentIntentSucceeded:
		err = s.handlePaymentIntentSucceeded(ctx, payload)
	case domain.EventPaymentIntentFailed:
		err = s.handlePaymentIntentFailed(ctx, payload)
	case domain.EventPaymentIntentCanceled:
		err = s.handlePaymentIntentCanceled(ctx, payload)
	case domain.EventInvoicePaymentSucceeded:
		err = s.handleInvoicePaymentSucceeded(ctx, payload)
	case domain.EventInvoicePaymentFailed:
		err = s.handleInvoicePaymentFailed(ctx, payload)
	}
	if err != nil {
		return err
	}

	if eventID != "" {
		if _, err := s.repo.RecordWebhookEvent(ctx, eventID, eventType); err != nil {
			// Effects are already applied and handlers are idempotent, so a
			// redelivery without the dedupe row is harmless.
			log.Printf("level=warn component=reconcile msg=\"failed to record processed event\" event_id=%s err=%v", eventID, err)
		}
	}
	return nil
}

func (s *Service) handlePaymentIntentSucceeded(ctx context.Context, payload []byte) error {
	var intent domain.PaymentIntentPayload
	if err := json.Unmarshal(payload, &intent); err != nil {
		return fmt.Errorf("failed to decode payment_intent payload: %w", err)
	}

	updated, err := s.repo.MarkPaymentsPaid(ctx, intent.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		// Intent not originated by this application; nothing to reconcile.
		log.Printf("level=info component=reconcile msg=\"no payment matched intent\" intent_id=%s", intent.ID)
		return nil
	}

	for _, p := range updated {
		if p.PaymentType != domain.PaymentTypeRent || p.LeaseID == nil {
			continue
		}
		if err := s.repo.SetLeaseLastPaymentStatus(ctx, *p.LeaseID, domain.LeasePaymentOutcomePaid); err != nil {
			return fmt.Errorf("failed to record rent outcome on lease %s: %w", p.LeaseID, err)
		}
		log.Printf("level=info component=reconcile msg=\"rent payment settled\" payment_id=%s lease_id=%s amount=%d", p.ID, p.LeaseID, p.Amount)
	}
	return nil
}

func (s *Service) handlePaymentIntentFailed(ctx context.Context, payload []byte) error {
	var intent domain.PaymentIntentPayload
	if err := json.Unmarshal(payload, &intent); err != nil {
		return fmt.Errorf("failed to decode payment_intent payload: %w", err)
	}

	message := "payment failed"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Message != "" {
		message = intent.LastPaymentError.Message
	}

	updated, err := s.repo.MarkPaymentsFailed(ctx, intent.ID, message)
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		log.Printf("level=info component=reconcile msg=\"no payment matched intent\" intent_id=%s", intent.ID)
		return nil
	}

	for _, p := range updated {
		if p.PaymentType != domain.PaymentTypeRent || p.LeaseID == nil {
			continue
		}
		if err := s.repo.SetLeaseLastPaymentStatus(ctx, *p.LeaseID, domain.LeasePaymentOutcomeFailed); err != nil {
			return fmt.Errorf("failed to record rent outcome on lease %s: %w", p.LeaseID, err)
		}
	}
	log.Printf("level=info component=reconcile msg=\"payment marked failed\" intent_id=%s reason=%q", intent.ID, message)
	return nil
}

func (s *Service) handlePaymentIntentCanceled(ctx context.Context, payload []byte) error {
	var intent domain.PaymentIntentPayload
	if err := json.Unmarshal(payload, &intent); err != nil {
		return fmt.Errorf("failed to decode payment_intent payload: %w", err)
	}

	n, err := s.repo.MarkPaymentsCancelled(ctx, intent.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		log.Printf("level=info component=reconcile msg=\"no payment matched intent\" intent_id=%s", intent.ID)
	}
	return nil
}

func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, payload []byte) error {
	invoice, tenant, err := s.resolveSubscriptionInvoice(ctx, payload)
	if err != nil || tenant == nil {
		return err
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		TenantID:    tenant.ID,
		Amount:      invoice.AmountPaid,
		Status:      domain.PaymentStatusPaid,
		PaymentType: domain.PaymentTypeSubscription,
		InvoiceID:   &invoice.ID,
		Description: subscriptionDescription(invoice),
		PeriodStart: unixTimePtr(invoice.PeriodStart),
		PeriodEnd:   unixTimePtr(invoice.PeriodEnd),
		ProcessedAt: &now,
	}
	// A failed charge for this invoice may already hold the invoice id; the
	// settle path upgrades that row instead of dropping the success.
	recorded, err := s.repo.SettleInvoicePayment(ctx, payment)
	if err != nil {
		return err
	}
	if !recorded {
		log.Printf("level=info component=reconcile msg=\"invoice already settled\" invoice_id=%s", invoice.ID)
		return nil
	}
	log.Printf("level=info component=reconcile msg=\"subscription invoice settled\" invoice_id=%s tenant_id=%s amount=%d", invoice.ID, tenant.ID, invoice.AmountPaid)
	return nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, payload []byte) error {
	invoice, tenant, err := s.resolveSubscriptionInvoice(ctx, payload)
	if err != nil || tenant == nil {
		return err
	}

	reason := "invoice payment failed"
	if invoice.LastFinalizationError != nil && invoice.LastFinalizationError.Message != "" {
		reason = invoice.LastFinalizationError.Message
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		TenantID:     tenant.ID,
		Amount:       invoice.AmountDue,
		Status:       domain.PaymentStatusFailed,
		PaymentType:  domain.PaymentTypeSubscription,
		InvoiceID:    &invoice.ID,
		Description:  subscriptionDescription(invoice),
		ErrorMessage: &reason,
		PeriodStart:  unixTimePtr(invoice.PeriodStart),
		PeriodEnd:    unixTimePtr(invoice.PeriodEnd),
		ProcessedAt:  &now,
	}
	if _, err := s.repo.InsertInvoicePayment(ctx, payment); err != nil {
		return err
	}

	if err := s.repo.SetTenantSubscriptionStatus(ctx, tenant.ID, domain.SubscriptionStatusPastDue); err != nil {
		return fmt.Errorf("failed to mark tenant past due: %w", err)
	}
	log.Printf("level=warn component=reconcile msg=\"subscription invoice failed\" invoice_id=%s tenant_id=%s reason=%q", invoice.ID, tenant.ID, reason)
	return nil
}

// resolveSubscriptionInvoice decodes an invoice payload and resolves its
// tenant. A nil tenant with nil error means the event should be acknowledged
// without action: either the invoice is not subscription billing, or the
// customer is unknown to this application.
func (s *Service) resolveSubscriptionInvoice(ctx context.Context, payload []byte) (*domain.InvoicePayload, *domain.Tenant, error) {
	var invoice domain.InvoicePayload
	if err := json.Unmarshal(payload, &invoice); err != nil {
		return nil, nil, fmt.Errorf("failed to decode invoice payload: %w", err)
	}
	if invoice.Subscription == "" {
		log.Printf("level=info component=reconcile msg=\"ignoring non-subscription invoice\" invoice_id=%s", invoice.ID)
		return &invoice, nil, nil
	}

	tenant, err := s.repo.FindTenantByStripeCustomerID(ctx, invoice.Customer)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			log.Printf("level=info component=reconcile msg=\"no tenant for provider customer\" customer_id=%s invoice_id=%s", invoice.Customer, invoice.ID)
			return &invoice, nil, nil
		}
		return nil, nil, err
	}
	return &invoice, tenant, nil
}

func subscriptionDescription(invoice *domain.InvoicePayload) string {
	start := unixTimePtr(invoice.PeriodStart)
	end := unixTimePtr(invoice.PeriodEnd)
	if start == nil || end == nil {
		return "Subscription billing"
	}
	return fmt.Sprintf("Subscription billing %s to %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
}

func unixTimePtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
