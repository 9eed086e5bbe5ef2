package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/proptly/billing-service/internal/domain"
)

func TestProcessWebhookEvent_UnsupportedTypeRejectedBeforeAnyWork(t *testing.T) {
	repo := newBillingRepoStub()
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	err := svc.ProcessWebhookEvent(context.Background(), "evt_1", "charge.refunded", []byte(`{}`))
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected ErrUnsupportedEventType, got %v", err)
	}
	if len(repo.recordedEvents) != 0 {
		t.Fatal("did not expect an unsupported event to be recorded")
	}
}

func TestProcessWebhookEvent_DuplicateEventAcknowledgedWithoutSideEffects(t *testing.T) {
	repo := newBillingRepoStub()
	repo.seenEvents["evt_dup"] = true
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	err := svc.ProcessWebhookEvent(context.Background(), "evt_dup", domain.EventPaymentIntentSucceeded, []byte(`{"id":"pi_123"}`))
	if err != nil {
		t.Fatalf("expected duplicate delivery to be acknowledged, got %v", err)
	}
	if len(repo.paidIntents) != 0 {
		t.Fatal("did not expect a duplicate event to reach its handler")
	}
}

func TestProcessWebhookEvent_SucceededMarksPaymentAndLease(t *testing.T) {
	repo := newBillingRepoStub()
	leaseID := uuid.New()
	repo.paidResult = []domain.Payment{{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		LeaseID:     &leaseID,
		Amount:      150000,
		Status:      domain.PaymentStatusPaid,
		PaymentType: domain.PaymentTypeRent,
	}}
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	err := svc.ProcessWebhookEvent(context.Background(), "evt_ok", domain.EventPaymentIntentSucceeded, []byte(`{"id":"pi_abc","amount":150000}`))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.paidIntents) != 1 || repo.paidIntents[0] != "pi_abc" {
		t.Fatalf("expected payments keyed to pi_abc to be marked paid, got %v", repo.paidIntents)
	}
	if outcome := repo.leaseOutcomes[leaseID]; outcome != domain.LeasePaymentOutcomePaid {
		t.Fatalf("expected lease last payment outcome PAID, got %q", outcome)
	}
	if len(repo.recordedEvents) != 1 || repo.recordedEvents[0] != "evt_ok" {
		t.Fatalf("expected event id to be recorded after handling, got %v", repo.recordedEvents)
	}
}

func TestProcessWebhookEvent_SucceededNonRentDoesNotTouchLease(t *testing.T) {
	repo := newBillingRepoStub()
	leaseID := uuid.New()
	repo.paidResult = []domain.Payment{{
		ID:          uuid.New(),
		LeaseID:     &leaseID,
		PaymentType: domain.PaymentTypeDeposit,
	}}
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	if err := svc.ProcessWebhookEvent(context.Background(), "evt_dep", domain.EventPaymentIntentSucceeded, []byte(`{"id":"pi_dep"}`)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.leaseOutcomes) != 0 {
		t.Fatalf("did not expect a lease outcome for a deposit, got %v", repo.leaseOutcomes)
	}
}

func TestProcessWebhookEvent_SucceededWithNoMatchingPaymentIsAcknowledged(t *testing.T) {
	repo := newBillingRepoStub()
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	err := svc.ProcessWebhookEvent(context.Background(), "evt_foreign", domain.EventPaymentIntentSucceeded, []byte(`{"id":"pi_foreign"}`))
	if err != nil {
		t.Fatalf("expected foreign intent to be acknowledged, got %v", err)
	}
	if len(repo.recordedEvents) != 1 {
		t.Fatal("expected the event to be recorded even with nothing to reconcile")
	}
}

func TestProcessWebhookEvent_FailedCarriesProviderMessage(t *testing.T) {
	repo := newBillingRepoStub()
	repo.failedResult = []domain.Payment{{ID: uuid.New(), PaymentType: domain.PaymentTypeFee}}
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	payload := []byte(`{"id":"pi_bad","last_payment_error":{"code":"card_declined","message":"Your card was declined."}}`)
	if err := svc.ProcessWebhookEvent(context.Background(), "evt_fail", domain.EventPaymentIntentFailed, payload); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.failedMessages) != 1 || repo.failedMessages[0] != "Your card was declined." {
		t.Fatalf("expected provider failure message to be stored, got %v", repo.failedMessages)
	}
}

func TestProcessWebhookEvent_FailedWithoutDetailUsesFallbackMessage(t *testing.T) {
	repo := newBillingRepoStub()
	repo.failedResult = []domain.Payment{{ID: uuid.New(), PaymentType: domain.PaymentTypeFee}}
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	if err := svc.ProcessWebhookEvent(context.Background(), "evt_fail2", domain.EventPaymentIntentFailed, []byte(`{"id":"pi_bad2"}`)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.failedMessages) != 1 || repo.failedMessages[0] != "payment failed" {
		t.Fatalf("expected fallback failure message, got %v", repo.failedMessages)
	}
}

func TestProcessWebhookEvent_FailedRentRecordsLeaseOutcome(t *testing.T) {
	repo := newBillingRepoStub()
	leaseID := uuid.New()
	repo.failedResult = []domain.Payment{{
		ID:          uuid.New(),
		LeaseID:     &leaseID,
		PaymentType: domain.PaymentTypeRent,
	}}
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	if err := svc.ProcessWebhookEvent(context.Background(), "evt_rent_fail", domain.EventPaymentIntentFailed, []byte(`{"id":"pi_rent"}`)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if outcome := repo.leaseOutcomes[leaseID]; outcome != domain.LeasePaymentOutcomeFailed {
		t.Fatalf("expected lease last payment outcome FAILED, got %q", outcome)
	}
}

func TestProcessWebhookEvent_CanceledMarksPayments(t *testing.T) {
	repo := newBillingRepoStub()
	repo.cancelledRows = 1
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	if err := svc.ProcessWebhookEvent(context.Background(), "evt_cancel", domain.EventPaymentIntentCanceled, []byte(`{"id":"pi_gone"}`)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.cancelledIntents) != 1 || repo.cancelledIntents[0] != "pi_gone" {
		t.Fatalf("expected pi_gone to be cancelled, got %v", repo.cancelledIntents)
	}
}

func TestProcessWebhookEvent_InvoiceSucceededRecordsSubscriptionPayment(t *testing.T) {
	repo := newBillingRepoStub()
	repo.tenant = &domain.Tenant{
		ID:               uuid.New(),
		FullName:         "Ada Renter",
		Email:            "ada@example.com",
		StripeCustomerID: ptrString("cus_sub"),
	}
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	payload := []byte(`{"id":"in_1","customer":"cus_sub","subscription":"sub_1","amount_paid":2900,"period_start":1735689600,"period_end":1738368000}`)
	if err := svc.ProcessWebhookEvent(context.Background(), "evt_inv", domain.EventInvoicePaymentSucceeded, payload); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.invoiceRows) != 1 {
		t.Fatalf("expected one subscription payment row, got %d", len(repo.invoiceRows))
	}
	payment := repo.invoiceRows["in_1"]
	if payment.Status != domain.PaymentStatusPaid || payment.PaymentType != domain.PaymentTypeSubscription {
		t.Fatalf("unexpected payment status=%q type=%q", payment.Status, payment.PaymentType)
	}
	if payment.Amount != 2900 {
		t.Fatalf("expected amount 2900, got %d", payment.Amount)
	}
	if payment.InvoiceID == nil || *payment.InvoiceID != "in_1" {
		t.Fatal("expected the invoice id on the payment row")
	}
	if payment.PeriodStart == nil || payment.PeriodEnd == nil {
		t.Fatal("expected the billing period on the payment row")
	}
}

func TestProcessWebhookEvent_InvoiceFailedMarksTenantPastDue(t *testing.T) {
	repo := newBillingRepoStub()
	tenant := &domain.Tenant{
		ID:               uuid.New(),
		StripeCustomerID: ptrString("cus_sub"),
	}
	repo.tenant = tenant
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	payload := []byte(`{"id":"in_2","customer":"cus_sub","subscription":"sub_1","amount_due":2900}`)
	if err := svc.ProcessWebhookEvent(context.Background(), "evt_inv_fail", domain.EventInvoicePaymentFailed, payload); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.invoiceRows) != 1 {
		t.Fatalf("expected a FAILED subscription payment row, got %d", len(repo.invoiceRows))
	}
	if repo.invoiceRows["in_2"].Status != domain.PaymentStatusFailed {
		t.Fatalf("expected FAILED status, got %q", repo.invoiceRows["in_2"].Status)
	}
	if status := repo.subscriptionStatus[tenant.ID]; status != domain.SubscriptionStatusPastDue {
		t.Fatalf("expected tenant marked PAST_DUE, got %q", status)
	}
}

func TestProcessWebhookEvent_NonSubscriptionInvoiceIsIgnored(t *testing.T) {
	repo := newBillingRepoStub()
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	payload := []byte(`{"id":"in_3","customer":"cus_oneoff","amount_paid":500}`)
	if err := svc.ProcessWebhookEvent(context.Background(), "evt_oneoff", domain.EventInvoicePaymentSucceeded, payload); err != nil {
		t.Fatalf("expected one-off invoice to be acknowledged, got %v", err)
	}
	if len(repo.invoiceRows) != 0 {
		t.Fatal("did not expect a payment row for a non-subscription invoice")
	}
}

func TestProcessWebhookEvent_UnknownCustomerInvoiceIsIgnored(t *testing.T) {
	repo := newBillingRepoStub()
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	payload := []byte(`{"id":"in_4","customer":"cus_stranger","subscription":"sub_x","amount_paid":2900}`)
	if err := svc.ProcessWebhookEvent(context.Background(), "evt_stranger", domain.EventInvoicePaymentSucceeded, payload); err != nil {
		t.Fatalf("expected unknown customer to be acknowledged, got %v", err)
	}
	if len(repo.invoiceRows) != 0 {
		t.Fatal("did not expect a payment row for an unknown customer")
	}
}

func TestProcessWebhookEvent_RedeliveredInvoiceInsertsOnce(t *testing.T) {
	repo := newBillingRepoStub()
	repo.tenant = &domain.Tenant{
		ID:               uuid.New(),
		StripeCustomerID: ptrString("cus_sub"),
	}
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	// Same invoice under a fresh event id: the unique invoice index is the
	// guard, not the event-id dedupe.
	payload := []byte(`{"id":"in_5","customer":"cus_sub","subscription":"sub_1","amount_paid":2900}`)
	if err := svc.ProcessWebhookEvent(context.Background(), "evt_r1", domain.EventInvoicePaymentSucceeded, payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.ProcessWebhookEvent(context.Background(), "evt_r2", domain.EventInvoicePaymentSucceeded, payload); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if len(repo.invoiceRows) != 1 {
		t.Fatalf("expected a single payment row across redeliveries, got %d", len(repo.invoiceRows))
	}
	if repo.invoiceRows["in_5"].Status != domain.PaymentStatusPaid {
		t.Fatalf("expected PAID row, got %q", repo.invoiceRows["in_5"].Status)
	}
}

func TestProcessWebhookEvent_FailedInvoiceLaterSucceedsUpgradesRow(t *testing.T) {
	repo := newBillingRepoStub()
	tenant := &domain.Tenant{
		ID:               uuid.New(),
		StripeCustomerID: ptrString("cus_sub"),
	}
	repo.tenant = tenant
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	// A declined subscription charge is retried by the provider under the
	// same invoice id; the eventual success must overwrite the FAILED row.
	failedPayload := []byte(`{"id":"in_9","customer":"cus_sub","subscription":"sub_1","amount_due":2900}`)
	if err := svc.ProcessWebhookEvent(context.Background(), "evt_f1", domain.EventInvoicePaymentFailed, failedPayload); err != nil {
		t.Fatalf("failed delivery: %v", err)
	}
	if repo.invoiceRows["in_9"].Status != domain.PaymentStatusFailed {
		t.Fatalf("expected FAILED row after first delivery, got %q", repo.invoiceRows["in_9"].Status)
	}

	succeededPayload := []byte(`{"id":"in_9","customer":"cus_sub","subscription":"sub_1","amount_paid":2900}`)
	if err := svc.ProcessWebhookEvent(context.Background(), "evt_s1", domain.EventInvoicePaymentSucceeded, succeededPayload); err != nil {
		t.Fatalf("succeeded delivery: %v", err)
	}
	if len(repo.invoiceRows) != 1 {
		t.Fatalf("expected a single row for the invoice, got %d", len(repo.invoiceRows))
	}
	row := repo.invoiceRows["in_9"]
	if row.Status != domain.PaymentStatusPaid {
		t.Fatalf("expected the retried invoice to end PAID, got %q", row.Status)
	}
	if row.Amount != 2900 {
		t.Fatalf("expected the settled amount, got %d", row.Amount)
	}
}

func TestProcessWebhookEvent_MalformedPayloadFails(t *testing.T) {
	repo := newBillingRepoStub()
	svc := NewService(repo, &providerStub{}, NewAnalyticsCache(0, 0), "usd")

	err := svc.ProcessWebhookEvent(context.Background(), "evt_bad", domain.EventPaymentIntentSucceeded, []byte(`{not json`))
	if err == nil {
		t.Fatal("expected an error for a malformed payload")
	}
	if len(repo.recordedEvents) != 0 {
		t.Fatal("did not expect a failed event to be recorded as processed")
	}
}
