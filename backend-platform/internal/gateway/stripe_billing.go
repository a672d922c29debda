package gateway

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
)

// StripeBilling creates platform billing customers in Stripe
type StripeBilling struct {
	sc *stripe.Client
}

// NewStripeBilling creates a provider. opts are passed to stripe.NewClient.
func NewStripeBilling(secretKey string, opts ...stripe.ClientOption) *StripeBilling {
	return &StripeBilling{sc: stripe.NewClient(secretKey, opts...)}
}

// CreateCustomer creates the customer. The tenant id is the idempotency key
// so a retried provisioning run reuses the same customer.
func (g *StripeBilling) CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*CustomerResponse, error) {
	params := &stripe.CustomerCreateParams{
		Email: stripe.String(req.Email),
		Name:  stripe.String(req.Name),
	}
	params.AddMetadata("tenant_id", req.TenantID)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey("tenant-customer-" + req.TenantID)

	c, err := g.sc.V1Customers.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("stripe create customer: %w", err)
	}
	return &CustomerResponse{CustomerID: c.ID, Email: c.Email, Name: c.Name}, nil
}

func (g *StripeBilling) Name() string { return "stripe" }
