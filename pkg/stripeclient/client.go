/**
 * @description
 * This package provides a client for interacting with the Stripe API. It
 * encapsulates customer provisioning and payment-intent creation behind the
 * narrow surface the billing service needs, keeping the stripe-go types out
 * of the application layer.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v82: Official Stripe SDK.
 * - internal/domain: For the provider-intent result struct.
 *
 * @notes
 * - The SDK's client handles request signing, retries and timeouts; this
 *   wrapper only translates between domain values and Stripe params.
 */
package stripeclient

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"

	"github.com/proptly/billing-service/internal/domain"
)

// Client is a client for the Stripe API.
type Client struct {
	api *stripe.Client
}

// NewClient creates a new Stripe API client.
func NewClient(secretKey string) *Client {
	return &Client{api: stripe.NewClient(secretKey)}
}

// CreateCustomer creates a Stripe customer for a tenant and returns its id.
func (c *Client) CreateCustomer(ctx context.Context, name, email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerCreateParams{
		Name:     stripe.String(name),
		Email:    stripe.String(email),
		Metadata: metadata,
	}
	customer, err := c.api.V1Customers.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return customer.ID, nil
}

// CreatePaymentIntent creates a payment intent for the given customer and
// returns its id and client secret.
func (c *Client) CreatePaymentIntent(ctx context.Context, amount int64, currency, customerID, description string, metadata map[string]string) (*domain.ProviderIntent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		Customer: stripe.String(customerID),
		Metadata: metadata,
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if description != "" {
		params.Description = stripe.String(description)
	}

	intent, err := c.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe payment intent: %w", err)
	}
	return &domain.ProviderIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}
