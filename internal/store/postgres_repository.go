/**
 * @description
 * This file provides the PostgreSQL implementation of the repository used by
 * the billing service. It contains all the SQL queries to interact with the
 * tenants, leases, payments and webhook_events tables.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - Reconciliation updates match on payment_intent_id and treat zero affected
 *   rows as a valid outcome: the provider may deliver webhooks for intents
 *   this application never created.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proptly/billing-service/internal/domain"
)

var (
	ErrLeaseNotFound  = errors.New("lease not found")
	ErrTenantNotFound = errors.New("tenant not found")
)

// PostgresRepository is the pgx-backed data access layer for the billing service.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindLeaseByID retrieves a lease by its primary key.
func (r *PostgresRepository) FindLeaseByID(ctx context.Context, leaseID uuid.UUID) (*domain.Lease, error) {
	var lease domain.Lease
	query := `
		SELECT id, property_id, tenant_id, status, last_payment_status, rent_amount,
		       start_date, end_date, created_at, updated_at
		FROM leases
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, leaseID).Scan(
		&lease.ID,
		&lease.PropertyID,
		&lease.TenantID,
		&lease.Status,
		&lease.LastPaymentStatus,
		&lease.RentAmount,
		&lease.StartDate,
		&lease.EndDate,
		&lease.CreatedAt,
		&lease.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLeaseNotFound
		}
		return nil, err
	}
	return &lease, nil
}

// FindTenantByID retrieves a tenant by its primary key.
func (r *PostgresRepository) FindTenantByID(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	return r.findTenant(ctx, "id = $1", tenantID)
}

// FindTenantByStripeCustomerID retrieves the tenant owning a provider customer id.
func (r *PostgresRepository) FindTenantByStripeCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error) {
	return r.findTenant(ctx, "stripe_customer_id = $1", customerID)
}

func (r *PostgresRepository) findTenant(ctx context.Context, where string, arg any) (*domain.Tenant, error) {
	var tenant domain.Tenant
	query := fmt.Sprintf(`
		SELECT id, full_name, email, stripe_customer_id, subscription_status, created_at, updated_at
		FROM tenants
		WHERE %s
	`, where)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&tenant.ID,
		&tenant.FullName,
		&tenant.Email,
		&tenant.StripeCustomerID,
		&tenant.SubscriptionStatus,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// SetTenantStripeCustomerID persists a newly created provider customer id on a tenant.
func (r *PostgresRepository) SetTenantStripeCustomerID(ctx context.Context, tenantID uuid.UUID, customerID string) error {
	query := `UPDATE tenants SET stripe_customer_id = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, customerID, tenantID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// SetTenantSubscriptionStatus updates the tenant's subscription standing.
func (r *PostgresRepository) SetTenantSubscriptionStatus(ctx context.Context, tenantID uuid.UUID, status string) error {
	query := `UPDATE tenants SET subscription_status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, status, tenantID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// CreatePayment inserts a new payment row and returns it with generated fields.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	var created domain.Payment
	query := `
		INSERT INTO payments (tenant_id, lease_id, property_id, amount, status, payment_type,
		                      payment_intent_id, invoice_id, description, error_message,
		                      period_start, period_end, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, tenant_id, lease_id, property_id, amount, status, payment_type,
		          payment_intent_id, invoice_id, description, error_message,
		          period_start, period_end, created_at, processed_at
	`
	err := r.db.QueryRow(ctx, query,
		p.TenantID, p.LeaseID, p.PropertyID, p.Amount, p.Status, p.PaymentType,
		p.PaymentIntentID, p.InvoiceID, p.Description, p.ErrorMessage,
		p.PeriodStart, p.PeriodEnd, p.ProcessedAt,
	).Scan(
		&created.ID, &created.TenantID, &created.LeaseID, &created.PropertyID,
		&created.Amount, &created.Status, &created.PaymentType,
		&created.PaymentIntentID, &created.InvoiceID, &created.Description,
		&created.ErrorMessage, &created.PeriodStart, &created.PeriodEnd,
		&created.CreatedAt, &created.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// InsertInvoicePayment inserts a payment row for a provider invoice. The
// invoice id carries a unique index, so a redelivered invoice webhook becomes
// a no-op insert. Returns false when the row already existed.
func (r *PostgresRepository) InsertInvoicePayment(ctx context.Context, p *domain.Payment) (bool, error) {
	query := `
		INSERT INTO payments (tenant_id, lease_id, property_id, amount, status, payment_type,
		                      payment_intent_id, invoice_id, description, error_message,
		                      period_start, period_end, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (invoice_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query,
		p.TenantID, p.LeaseID, p.PropertyID, p.Amount, p.Status, p.PaymentType,
		p.PaymentIntentID, p.InvoiceID, p.Description, p.ErrorMessage,
		p.PeriodStart, p.PeriodEnd, p.ProcessedAt,
	)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// SettleInvoicePayment records a settled provider invoice. Unlike
// InsertInvoicePayment, an existing FAILED row for the same invoice is
// upgraded in place: the provider retries a failed subscription charge under
// the same invoice id, and the eventual success must not be swallowed by the
// unique index. An already-PAID row is left untouched. Returns false only for
// that pure-redelivery case.
func (r *PostgresRepository) SettleInvoicePayment(ctx context.Context, p *domain.Payment) (bool, error) {
	query := `
		INSERT INTO payments (tenant_id, lease_id, property_id, amount, status, payment_type,
		                      payment_intent_id, invoice_id, description, error_message,
		                      period_start, period_end, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (invoice_id) DO UPDATE
		SET status = EXCLUDED.status,
		    amount = EXCLUDED.amount,
		    error_message = NULL,
		    processed_at = EXCLUDED.processed_at
		WHERE payments.status = $14
	`
	result, err := r.db.Exec(ctx, query,
		p.TenantID, p.LeaseID, p.PropertyID, p.Amount, p.Status, p.PaymentType,
		p.PaymentIntentID, p.InvoiceID, p.Description, p.ErrorMessage,
		p.PeriodStart, p.PeriodEnd, p.ProcessedAt,
		domain.PaymentStatusFailed,
	)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ListPayments returns the payment history for a lease, newest first.
func (r *PostgresRepository) ListPayments(ctx context.Context, opts domain.PaymentListOptions) ([]domain.Payment, error) {
	query := `
		SELECT id, tenant_id, lease_id, property_id, amount, status, payment_type,
		       payment_intent_id, invoice_id, description, error_message,
		       period_start, period_end, created_at, processed_at
		FROM payments
		WHERE lease_id = $1
	`
	args := []any{opts.LeaseID}
	if opts.Status != "" {
		args = append(args, opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if opts.From != nil {
		args = append(args, *opts.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.To != nil {
		args = append(args, *opts.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.LeaseID, &p.PropertyID,
			&p.Amount, &p.Status, &p.PaymentType,
			&p.PaymentIntentID, &p.InvoiceID, &p.Description,
			&p.ErrorMessage, &p.PeriodStart, &p.PeriodEnd,
			&p.CreatedAt, &p.ProcessedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// MarkPaymentsPaid flips all payments carrying the intent id to PAID and
// returns the updated rows so the caller can apply lease side effects.
func (r *PostgresRepository) MarkPaymentsPaid(ctx context.Context, paymentIntentID string, processedAt time.Time) ([]domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = $1, processed_at = $2, error_message = NULL
		WHERE payment_intent_id = $3
		RETURNING id, tenant_id, lease_id, property_id, amount, status, payment_type,
		          payment_intent_id, invoice_id, description, error_message,
		          period_start, period_end, created_at, processed_at
	`
	rows, err := r.db.Query(ctx, query, domain.PaymentStatusPaid, processedAt, paymentIntentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updated []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.LeaseID, &p.PropertyID,
			&p.Amount, &p.Status, &p.PaymentType,
			&p.PaymentIntentID, &p.InvoiceID, &p.Description,
			&p.ErrorMessage, &p.PeriodStart, &p.PeriodEnd,
			&p.CreatedAt, &p.ProcessedAt,
		); err != nil {
			return nil, err
		}
		updated = append(updated, p)
	}
	return updated, rows.Err()
}

// MarkPaymentsFailed flips matching payments to FAILED, stores the provider's
// failure message, and returns the updated rows so the caller can apply lease
// side effects.
func (r *PostgresRepository) MarkPaymentsFailed(ctx context.Context, paymentIntentID string, message string) ([]domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = $1, error_message = NULLIF($2, ''), processed_at = NOW()
		WHERE payment_intent_id = $3
		RETURNING id, tenant_id, lease_id, property_id, amount, status, payment_type,
		          payment_intent_id, invoice_id, description, error_message,
		          period_start, period_end, created_at, processed_at
	`
	rows, err := r.db.Query(ctx, query, domain.PaymentStatusFailed, message, paymentIntentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updated []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.LeaseID, &p.PropertyID,
			&p.Amount, &p.Status, &p.PaymentType,
			&p.PaymentIntentID, &p.InvoiceID, &p.Description,
			&p.ErrorMessage, &p.PeriodStart, &p.PeriodEnd,
			&p.CreatedAt, &p.ProcessedAt,
		); err != nil {
			return nil, err
		}
		updated = append(updated, p)
	}
	return updated, rows.Err()
}

// MarkPaymentsCancelled flips matching payments to CANCELLED.
func (r *PostgresRepository) MarkPaymentsCancelled(ctx context.Context, paymentIntentID string) (int64, error) {
	query := `
		UPDATE payments
		SET status = $1, processed_at = NOW()
		WHERE payment_intent_id = $2
	`
	result, err := r.db.Exec(ctx, query, domain.PaymentStatusCancelled, paymentIntentID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// SetLeaseLastPaymentStatus records the outcome of the most recent rent
// payment on the lease. Zero affected rows is not an error; the lease may
// have been removed since the payment was created.
func (r *PostgresRepository) SetLeaseLastPaymentStatus(ctx context.Context, leaseID uuid.UUID, status string) error {
	query := `UPDATE leases SET last_payment_status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, status, leaseID)
	return err
}

// SeenWebhookEvent reports whether the provider event id has already been
// fully processed.
func (r *PostgresRepository) SeenWebhookEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// RecordWebhookEvent marks a provider event id as processed. Returns false
// when a concurrent delivery recorded it first.
func (r *PostgresRepository) RecordWebhookEvent(ctx context.Context, eventID string, eventType string) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, event_type, received_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, eventID, eventType)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ComputeAnalytics runs the aggregate dashboard query over the payments table
// for the resolved window. All supported metrics are computed in one pass.
func (r *PostgresRepository) ComputeAnalytics(ctx context.Context, q domain.AnalyticsQuery, from, to time.Time) (*domain.AnalyticsReport, error) {
	var keyExpr string
	switch q.GroupBy {
	case domain.GroupByProperty:
		keyExpr = `COALESCE(property_id::text, 'unassigned')`
	case domain.GroupByPaymentType:
		keyExpr = `payment_type`
	default:
		keyExpr = `to_char(date_trunc('month', created_at), 'YYYY-MM')`
	}

	query := fmt.Sprintf(`
		SELECT %s AS grp,
		       COALESCE(SUM(amount) FILTER (WHERE status = 'PAID'), 0),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'FAILED'),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'PENDING'), 0)
		FROM payments
		WHERE created_at >= $1 AND created_at < $2
	`, keyExpr)
	args := []any{from, to}
	if q.PropertyID != "" {
		args = append(args, q.PropertyID)
		query += fmt.Sprintf(" AND property_id = $%d", len(args))
	}
	query += " GROUP BY grp ORDER BY grp"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := &domain.AnalyticsReport{
		From:       from,
		To:         to,
		GroupBy:    q.GroupBy,
		Groups:     []domain.AnalyticsGroup{},
		ComputedAt: time.Now().UTC(),
	}
	for rows.Next() {
		var g domain.AnalyticsGroup
		if err := rows.Scan(&g.Key, &g.TotalCollected, &g.PaymentCount, &g.FailedCount, &g.PendingAmount); err != nil {
			return nil, err
		}
		report.Groups = append(report.Groups, g)
	}
	return report, rows.Err()
}
