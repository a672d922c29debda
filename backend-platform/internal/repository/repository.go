package repository

import (
	"context"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
)

// Lookups return nil, nil when the row does not exist. Mutations that carry
// an *audit.Entry write it in the same transaction as the change; a nil
// entry skips the audit row.

// TenantFilter narrows tenant listings
type TenantFilter struct {
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

// TenantRepository defines tenant data access
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, filter *TenantFilter) ([]*domain.Tenant, int, error)
	// SetActive flips is_active and reports whether the tenant exists
	SetActive(ctx context.Context, id string, active bool, entry *audit.Entry) (bool, error)
}

// ProvisioningRepository writes and removes whole tenant bundles
type ProvisioningRepository interface {
	// CreateTenantBundle inserts every row of the bundle plus the owner's
	// admin role grant atomically. granted is false when the owner already
	// held the role.
	CreateTenantBundle(ctx context.Context, bundle *domain.TenantBundle, entry *audit.Entry) (granted bool, err error)
	// PurgeTenant hard-deletes a tenant and every row it owns. The owner's
	// admin role is revoked only when revokeAdmin is set.
	PurgeTenant(ctx context.Context, tenantID string, revokeAdmin bool) error
	SetBillingCustomer(ctx context.Context, tenantID, customerID string) error
}

// AccessRepository serves role resolution
type AccessRepository interface {
	// ListAdminRoles returns the caller's grants restricted to domain.AdminRoles
	ListAdminRoles(ctx context.Context, userID string) ([]string, error)
	// ListActiveStaff orders rows by created_at ASC, id ASC. The first row
	// is the canonical capability source.
	ListActiveStaff(ctx context.Context, userID string) ([]*domain.Staff, error)
	GetStaffPermissions(ctx context.Context, staffID string) (domain.CapabilitySet, error)
	// ListStaffBranches returns the distinct union of assignments to active,
	// undeleted branches
	ListStaffBranches(ctx context.Context, staffIDs []string) ([]string, error)
	// FindLatestMembership orders memberships by created_at DESC, id DESC
	FindLatestMembership(ctx context.Context, userID string) (*domain.TenantMember, error)
}

// BranchFilter selects branches by tenant or id set. An Unrestricted filter
// with no tenant returns every branch.
type BranchFilter struct {
	TenantID        string
	IDs             []string
	Unrestricted    bool
	IncludeInactive bool
}

// BranchRepository defines branch data access
type BranchRepository interface {
	// Create inserts the branch with its default settings row
	Create(ctx context.Context, branch *domain.Branch, entry *audit.Entry) error
	GetByID(ctx context.Context, id string) (*domain.Branch, error)
	Update(ctx context.Context, branch *domain.Branch, entry *audit.Entry) error
	SoftDelete(ctx context.Context, id string, entry *audit.Entry) error
	HardDelete(ctx context.Context, id string, entry *audit.Entry) error
	Move(ctx context.Context, id, tenantID string, entry *audit.Entry) error
	ListActiveIDsByTenant(ctx context.Context, tenantID string) ([]string, error)
	List(ctx context.Context, filter *BranchFilter) ([]*domain.Branch, error)
}

// QuotaRepository serves limits and usage counts
type QuotaRepository interface {
	GetLimits(ctx context.Context, tenantID string) (*domain.TenantLimits, error)
	UpdateLimits(ctx context.Context, limits *domain.TenantLimits, entry *audit.Entry) error
	CountBranches(ctx context.Context, tenantID string) (int, error)
	// CountStaff counts active staff assigned to one branch of the tenant
	CountStaff(ctx context.Context, tenantID, branchID string) (int, error)
	CountMembers(ctx context.Context, tenantID string) (int, error)
	CountTrainers(ctx context.Context, tenantID string) (int, error)
	GetUsageCounter(ctx context.Context, tenantID, period string, resource domain.Resource) (int64, error)
	// IncrementUsage adds n in one atomic statement and returns the new total
	IncrementUsage(ctx context.Context, tenantID, period string, resource domain.Resource, n int) (int64, error)
}

// CredentialRepository stores one payment credential per tenant
type CredentialRepository interface {
	Get(ctx context.Context, tenantID string) (*domain.PaymentCredential, error)
	Upsert(ctx context.Context, cred *domain.PaymentCredential, entry *audit.Entry) error
	Delete(ctx context.Context, tenantID string, entry *audit.Entry) (bool, error)
}

// MemberFilter selects members inside a branch scope
type MemberFilter struct {
	BranchIDs    []string
	Unrestricted bool
	Limit        int
	Offset       int
}

// MemberRepository reads member rows
type MemberRepository interface {
	List(ctx context.Context, filter *MemberFilter) ([]*domain.Member, int, error)
}
