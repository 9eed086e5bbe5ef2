/**
 * @description
 * This file contains the core business logic for the billing-service. The
 * Service layer orchestrates the repository, the payment provider client and
 * the analytics cache, and applies the business rules for payment-intent
 * creation and payment history.
 *
 * @dependencies
 * - internal/domain: Domain models.
 * - internal/store: Sentinel errors surfaced to the API layer.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/proptly/billing-service/internal/domain"
)

var (
	ErrInvalidPaymentAmount = errors.New("payment amount must be greater than zero")
	ErrInvalidPaymentType   = errors.New("unsupported payment type")
)

// RateLimitError is returned when the caller has exhausted the payment
// creation window. RetryAfter is in seconds.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %ds", e.RetryAfter)
}

// Repository defines the data access operations the service needs.
type Repository interface {
	FindLeaseByID(ctx context.Context, leaseID uuid.UUID) (*domain.Lease, error)
	FindTenantByID(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error)
	FindTenantByStripeCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error)
	SetTenantStripeCustomerID(ctx context.Context, tenantID uuid.UUID, customerID string) error
	SetTenantSubscriptionStatus(ctx context.Context, tenantID uuid.UUID, status string) error
	CreatePayment(ctx context.Context, p *domain.Payment) (*domain.Payment, error)
	InsertInvoicePayment(ctx context.Context, p *domain.Payment) (bool, error)
	SettleInvoicePayment(ctx context.Context, p *domain.Payment) (bool, error)
	ListPayments(ctx context.Context, opts domain.PaymentListOptions) ([]domain.Payment, error)
	MarkPaymentsPaid(ctx context.Context, paymentIntentID string, processedAt time.Time) ([]domain.Payment, error)
	MarkPaymentsFailed(ctx context.Context, paymentIntentID string, message string) ([]domain.Payment, error)
	MarkPaymentsCancelled(ctx context.Context, paymentIntentID string) (int64, error)
	SetLeaseLastPaymentStatus(ctx context.Context, leaseID uuid.UUID, status string) error
	SeenWebhookEvent(ctx context.Context, eventID string) (bool, error)
	RecordWebhookEvent(ctx context.Context, eventID string, eventType string) (bool, error)
	ComputeAnalytics(ctx context.Context, q domain.AnalyticsQuery, from, to time.Time) (*domain.AnalyticsReport, error)
}

// BillingProvider abstracts the payment provider. The production
// implementation lives in pkg/stripeclient.
type BillingProvider interface {
	CreateCustomer(ctx context.Context, name, email string, metadata map[string]string) (string, error)
	CreatePaymentIntent(ctx context.Context, amount int64, currency, customerID, description string, metadata map[string]string) (*domain.ProviderIntent, error)
}

// RateLimiter limits how often a subject may perform an action within a
// fixed window. A nil limiter disables limiting.
type RateLimiter interface {
	Consume(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the business logic for billing.
type Service struct {
	repo     Repository
	provider BillingProvider
	cache    *AnalyticsCache
	currency string

	limiter        RateLimiter
	paymentsPerMin int
}

// NewService creates a new billing service.
func NewService(repo Repository, provider BillingProvider, cache *AnalyticsCache, currency string) *Service {
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		repo:     repo,
		provider: provider,
		cache:    cache,
		currency: currency,
	}
}

// SetRateLimiter enables rate limiting of payment-intent creation.
func (s *Service) SetRateLimiter(limiter RateLimiter, perMinute int) {
	s.limiter = limiter
	s.paymentsPerMin = perMinute
}

// CreatePaymentIntent resolves the lease's tenant, lazily provisions the
// provider customer, creates a payment intent tagged with billing metadata,
// and persists a PENDING payment row carrying the intent id.
func (s *Service) CreatePaymentIntent(ctx context.Context, req domain.CreatePaymentIntentRequest) (*domain.CreatePaymentIntentResult, error) {
	if req.PaymentAmount <= 0 {
		return nil, ErrInvalidPaymentAmount
	}
	if !domain.ValidPaymentType(req.PaymentType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentType, req.PaymentType)
	}

	lease, err := s.repo.FindLeaseByID(ctx, req.LeaseID)
	if err != nil {
		return nil, err
	}
	tenant, err := s.repo.FindTenantByID(ctx, lease.TenantID)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil && s.paymentsPerMin > 0 {
		count, retryAfter, limitErr := s.limiter.Consume(ctx, "payment_intent", tenant.ID.String(), s.paymentsPerMin, time.Minute)
		if limitErr != nil {
			// Limiter outages must not block payments.
			log.Printf("level=warn component=app msg=\"rate limiter unavailable; allowing request\" err=%v", limitErr)
		} else if count > s.paymentsPerMin {
			return nil, &RateLimitError{RetryAfter: retryAfter}
		}
	}

	customerID, err := s.ensureProviderCustomer(ctx, tenant)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"lease_id":     lease.ID.String(),
		"property_id":  lease.PropertyID.String(),
		"tenant_id":    tenant.ID.String(),
		"payment_type": req.PaymentType,
	}
	intent, err := s.provider.CreatePaymentIntent(ctx, req.PaymentAmount, s.currency, customerID, req.Description, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	propertyID := lease.PropertyID
	leaseID := lease.ID
	payment := &domain.Payment{
		TenantID:        tenant.ID,
		LeaseID:         &leaseID,
		PropertyID:      &propertyID,
		Amount:          req.PaymentAmount,
		Status:          domain.PaymentStatusPending,
		PaymentType:     req.PaymentType,
		PaymentIntentID: &intent.ID,
		Description:     req.Description,
	}
	created, err := s.repo.CreatePayment(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("failed to persist pending payment: %w", err)
	}

	log.Printf("level=info component=app msg=\"payment intent created\" payment_id=%s intent_id=%s lease_id=%s amount=%d type=%s",
		created.ID, intent.ID, lease.ID, req.PaymentAmount, req.PaymentType)

	return &domain.CreatePaymentIntentResult{
		PaymentID:    created.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// ensureProviderCustomer returns the tenant's provider customer id, creating
// and persisting one when absent.
func (s *Service) ensureProviderCustomer(ctx context.Context, tenant *domain.Tenant) (string, error) {
	if tenant.StripeCustomerID != nil && *tenant.StripeCustomerID != "" {
		return *tenant.StripeCustomerID, nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, tenant.FullName, tenant.Email, map[string]string{
		"tenant_id": tenant.ID.String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create provider customer: %w", err)
	}
	if err := s.repo.SetTenantStripeCustomerID(ctx, tenant.ID, customerID); err != nil {
		return "", fmt.Errorf("failed to persist provider customer id: %w", err)
	}

	log.Printf("level=info component=app msg=\"provider customer created\" tenant_id=%s customer_id=%s", tenant.ID, customerID)
	return customerID, nil
}

// PaymentHistory returns the lease's payments, newest first. The lease must
// exist; unknown leases surface store.ErrLeaseNotFound.
func (s *Service) PaymentHistory(ctx context.Context, opts domain.PaymentListOptions) ([]domain.Payment, error) {
	if _, err := s.repo.FindLeaseByID(ctx, opts.LeaseID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, opts)
}
