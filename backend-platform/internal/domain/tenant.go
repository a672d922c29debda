package domain

import (
	"regexp"
	"time"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidSlug reports whether s is lowercase alphanumerics and hyphens
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// Tenant is one gym business on the platform
type Tenant struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	ContactEmail string     `json:"contact_email,omitempty"`
	ContactPhone string     `json:"contact_phone,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"` // Soft delete support
}

// Tenant member roles
const (
	MemberRoleAdmin       = "admin"
	MemberRoleTenantAdmin = "tenant_admin"
)

// TenantMember binds a user identity to a tenant. One identity belongs to
// at most one tenant.
type TenantMember struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	IsOwner   bool      `json:"is_owner"`
	CreatedAt time.Time `json:"created_at"`
}

// TenantBilling is the platform billing placeholder created with a tenant
type TenantBilling struct {
	TenantID         string    `json:"tenant_id"`
	Plan             string    `json:"plan"`
	Status           string    `json:"status"`
	BillingEmail     string    `json:"billing_email,omitempty"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

const (
	DefaultPlan          = "starter"
	BillingStatusPending = "pending"
	BillingStatusActive  = "active"
)

// TenantBundle is every row written when a tenant is provisioned
type TenantBundle struct {
	Tenant         *Tenant
	Limits         *TenantLimits
	Owner          *TenantMember
	Branch         *Branch
	BranchSettings *BranchSettings
	Billing        *TenantBilling
}
