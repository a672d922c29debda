// Package gateway holds the upstream payment integrations: the tenant's own
// payment gateway (credential verification) and the platform's billing
// provider.
package gateway

import (
	"context"
	"errors"
)

var (
	// ErrCredentialsRejected means the gateway refused the key pair
	ErrCredentialsRejected = errors.New("payment gateway rejected credentials")
	// ErrBillingDisabled is returned when no billing provider is configured
	ErrBillingDisabled = errors.New("billing provider not configured")
)

// CredentialVerifier confirms a key pair against the live gateway
type CredentialVerifier interface {
	// Verify returns nil only when the gateway accepted the pair
	Verify(ctx context.Context, keyID, keySecret string) error
	// Name returns the gateway name
	Name() string
}

// BillingProvider manages the platform's own billing customers
type BillingProvider interface {
	// CreateCustomer creates a billing customer for a newly provisioned tenant
	CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*CustomerResponse, error)
	// Name returns the provider name
	Name() string
}

// CreateCustomerRequest represents a request to create a billing customer
type CreateCustomerRequest struct {
	TenantID string
	Email    string
	Name     string
	Metadata map[string]string
}

// CustomerResponse represents a created billing customer
type CustomerResponse struct {
	CustomerID string
	Email      string
	Name       string
}

// DisabledBilling is the provider used when billing is not configured
type DisabledBilling struct{}

func (DisabledBilling) CreateCustomer(context.Context, *CreateCustomerRequest) (*CustomerResponse, error) {
	return nil, ErrBillingDisabled
}

func (DisabledBilling) Name() string { return "disabled" }
