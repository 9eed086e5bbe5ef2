package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/proptly/billing-service/internal/domain"
	"github.com/proptly/billing-service/internal/store"
)

// billingRepoStub embeds the Repository interface so each test only overrides
// the methods its flow touches; an unexpected call panics.
type billingRepoStub struct {
	Repository

	lease  *domain.Lease
	tenant *domain.Tenant

	seenEvents     map[string]bool
	recordedEvents []string

	createdPayments []domain.Payment
	invoiceRows     map[string]domain.Payment

	paidIntents      []string
	paidResult       []domain.Payment
	failedIntents    []string
	failedMessages   []string
	failedResult     []domain.Payment
	cancelledIntents []string
	cancelledRows    int64

	leaseOutcomes       map[uuid.UUID]string
	subscriptionStatus  map[uuid.UUID]string
	storedCustomerIDs   map[uuid.UUID]string
	listPaymentsResult  []domain.Payment
	listPaymentsOptions domain.PaymentListOptions

	analyticsReport *domain.AnalyticsReport
	analyticsCalls  int
	analyticsFrom   time.Time
	analyticsTo     time.Time
}

func newBillingRepoStub() *billingRepoStub {
	return &billingRepoStub{
		seenEvents:         map[string]bool{},
		invoiceRows:        map[string]domain.Payment{},
		leaseOutcomes:      map[uuid.UUID]string{},
		subscriptionStatus: map[uuid.UUID]string{},
		storedCustomerIDs:  map[uuid.UUID]string{},
	}
}

func (s *billingRepoStub) FindLeaseByID(ctx context.Context, leaseID uuid.UUID) (*domain.Lease, error) {
	if s.lease == nil || s.lease.ID != leaseID {
		return nil, store.ErrLeaseNotFound
	}
	return s.lease, nil
}

func (s *billingRepoStub) FindTenantByID(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	if s.tenant == nil || s.tenant.ID != tenantID {
		return nil, store.ErrTenantNotFound
	}
	return s.tenant, nil
}

func (s *billingRepoStub) FindTenantByStripeCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error) {
	if s.tenant == nil || s.tenant.StripeCustomerID == nil || *s.tenant.StripeCustomerID != customerID {
		return nil, store.ErrTenantNotFound
	}
	return s.tenant, nil
}

func (s *billingRepoStub) SetTenantStripeCustomerID(ctx context.Context, tenantID uuid.UUID, customerID string) error {
	s.storedCustomerIDs[tenantID] = customerID
	return nil
}

func (s *billingRepoStub) SetTenantSubscriptionStatus(ctx context.Context, tenantID uuid.UUID, status string) error {
	s.subscriptionStatus[tenantID] = status
	return nil
}

func (s *billingRepoStub) CreatePayment(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	created := *p
	created.ID = uuid.New()
	created.CreatedAt = time.Now().UTC()
	s.createdPayments = append(s.createdPayments, created)
	return &created, nil
}

func (s *billingRepoStub) InsertInvoicePayment(ctx context.Context, p *domain.Payment) (bool, error) {
	if _, exists := s.invoiceRows[*p.InvoiceID]; exists {
		return false, nil
	}
	s.invoiceRows[*p.InvoiceID] = *p
	return true, nil
}

func (s *billingRepoStub) SettleInvoicePayment(ctx context.Context, p *domain.Payment) (bool, error) {
	if existing, exists := s.invoiceRows[*p.InvoiceID]; exists && existing.Status != domain.PaymentStatusFailed {
		return false, nil
	}
	s.invoiceRows[*p.InvoiceID] = *p
	return true, nil
}

func (s *billingRepoStub) ListPayments(ctx context.Context, opts domain.PaymentListOptions) ([]domain.Payment, error) {
	s.listPaymentsOptions = opts
	return s.listPaymentsResult, nil
}

func (s *billingRepoStub) MarkPaymentsPaid(ctx context.Context, paymentIntentID string, processedAt time.Time) ([]domain.Payment, error) {
	s.paidIntents = append(s.paidIntents, paymentIntentID)
	return s.paidResult, nil
}

func (s *billingRepoStub) MarkPaymentsFailed(ctx context.Context, paymentIntentID string, message string) ([]domain.Payment, error) {
	s.failedIntents = append(s.failedIntents, paymentIntentID)
	s.failedMessages = append(s.failedMessages, message)
	return s.failedResult, nil
}

func (s *billingRepoStub) MarkPaymentsCancelled(ctx context.Context, paymentIntentID string) (int64, error) {
	s.cancelledIntents = append(s.cancelledIntents, paymentIntentID)
	return s.cancelledRows, nil
}

func (s *billingRepoStub) SetLeaseLastPaymentStatus(ctx context.Context, leaseID uuid.UUID, status string) error {
	s.leaseOutcomes[leaseID] = status
	return nil
}

func (s *billingRepoStub) SeenWebhookEvent(ctx context.Context, eventID string) (bool, error) {
	return s.seenEvents[eventID], nil
}

func (s *billingRepoStub) RecordWebhookEvent(ctx context.Context, eventID string, eventType string) (bool, error) {
	s.recordedEvents = append(s.recordedEvents, eventID)
	s.seenEvents[eventID] = true
	return true, nil
}

func (s *billingRepoStub) ComputeAnalytics(ctx context.Context, q domain.AnalyticsQuery, from, to time.Time) (*domain.AnalyticsReport, error) {
	s.analyticsCalls++
	s.analyticsFrom = from
	s.analyticsTo = to
	if s.analyticsReport != nil {
		return s.analyticsReport, nil
	}
	return &domain.AnalyticsReport{GroupBy: q.GroupBy, ComputedAt: time.Now().UTC()}, nil
}

// providerStub fakes the payment provider.
type providerStub struct {
	customerID   string
	intent       *domain.ProviderIntent
	intentErr    error
	customerErr  error
	customers    int
	intents      int
	lastAmount   int64
	lastCurrency string
	lastCustomer string
	lastMetadata map[string]string
}

func (p *providerStub) CreateCustomer(ctx context.Context, name, email string, metadata map[string]string) (string, error) {
	p.customers++
	if p.customerErr != nil {
		return "", p.customerErr
	}
	if p.customerID == "" {
		p.customerID = "cus_test"
	}
	return p.customerID, nil
}

func (p *providerStub) CreatePaymentIntent(ctx context.Context, amount int64, currency, customerID, description string, metadata map[string]string) (*domain.ProviderIntent, error) {
	p.intents++
	p.lastAmount = amount
	p.lastCurrency = currency
	p.lastCustomer = customerID
	p.lastMetadata = metadata
	if p.intentErr != nil {
		return nil, p.intentErr
	}
	if p.intent != nil {
		return p.intent, nil
	}
	return &domain.ProviderIntent{ID: "pi_test", ClientSecret: "pi_test_secret"}, nil
}

func ptrString(value string) *string {
	return &value
}
