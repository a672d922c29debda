package access

import (
	"context"
	"fmt"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
)

const branchAccessDenied = "Access denied to this branch"

// ScopeResolver computes the branch set a principal may see
type ScopeResolver struct {
	access   repository.AccessRepository
	branches repository.BranchRepository
}

// NewScopeResolver creates a ScopeResolver
func NewScopeResolver(access repository.AccessRepository, branches repository.BranchRepository) *ScopeResolver {
	return &ScopeResolver{access: access, branches: branches}
}

// Resolve returns the allowed scope. A requested branch narrows the scope to
// exactly that branch, after CheckBranchAccess has passed. Without one the
// operator is unrestricted while staff and tenant admins stay bounded, and a
// tenant admin without a membership gets an empty scope.
func (s *ScopeResolver) Resolve(ctx context.Context, p *domain.Principal, requestedBranch string) (domain.Scope, error) {
	if requestedBranch != "" {
		if err := s.CheckBranchAccess(ctx, p, requestedBranch); err != nil {
			return domain.Scope{}, err
		}
		return domain.Scope{BranchIDs: []string{requestedBranch}}, nil
	}

	switch p.Class() {
	case domain.RoleClassOperator:
		return domain.Scope{Unrestricted: true}, nil
	case domain.RoleClassTenantAdmin:
		tenantID, err := s.membershipTenant(ctx, p.UserID)
		if err != nil {
			return domain.Scope{}, err
		}
		if tenantID == "" {
			return domain.Scope{BranchIDs: []string{}}, nil
		}
		ids, err := s.branches.ListActiveIDsByTenant(ctx, tenantID)
		if err != nil {
			return domain.Scope{}, fmt.Errorf("list tenant branches: %w", err)
		}
		if ids == nil {
			ids = []string{}
		}
		return domain.Scope{BranchIDs: ids}, nil
	case domain.RoleClassStaff:
		ids := append([]string{}, p.StaffBranchIDs...)
		return domain.Scope{BranchIDs: ids}, nil
	}
	return domain.Scope{BranchIDs: []string{}}, nil
}

// CheckBranchAccess rejects a branch outside the principal's boundary before
// any branch data is read. The operator always passes. A tenant admin passes
// only for active branches of their own tenant.
func (s *ScopeResolver) CheckBranchAccess(ctx context.Context, p *domain.Principal, branchID string) error {
	switch p.Class() {
	case domain.RoleClassOperator:
		return nil
	case domain.RoleClassStaff:
		for _, id := range p.StaffBranchIDs {
			if id == branchID {
				return nil
			}
		}
	case domain.RoleClassTenantAdmin:
		tenantID, err := s.membershipTenant(ctx, p.UserID)
		if err != nil {
			return err
		}
		if tenantID == "" {
			break
		}
		ids, err := s.branches.ListActiveIDsByTenant(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("list tenant branches: %w", err)
		}
		for _, id := range ids {
			if id == branchID {
				return nil
			}
		}
	}
	return apperror.ScopeViolation(branchAccessDenied)
}

// TenantFor resolves the tenant an action operates on. The operator must
// name one (directly or through a branch); a tenant admin is pinned to their
// membership tenant; staff act on the tenant of an accessible branch.
func (s *ScopeResolver) TenantFor(ctx context.Context, p *domain.Principal, requestedTenant, branchID string) (string, error) {
	switch p.Class() {
	case domain.RoleClassOperator:
		if requestedTenant != "" {
			return requestedTenant, nil
		}
		if branchID != "" {
			return s.branchTenant(ctx, branchID)
		}
		return "", apperror.Validation("tenantId is required")

	case domain.RoleClassTenantAdmin:
		tenantID, err := s.membershipTenant(ctx, p.UserID)
		if err != nil {
			return "", err
		}
		if tenantID == "" {
			return "", apperror.ScopeViolation("No tenant membership found")
		}
		if requestedTenant != "" && requestedTenant != tenantID {
			return "", apperror.ScopeViolation("Access denied to this tenant")
		}
		if branchID != "" {
			if err := s.CheckBranchAccess(ctx, p, branchID); err != nil {
				return "", err
			}
		}
		return tenantID, nil

	case domain.RoleClassStaff:
		if branchID == "" {
			return "", apperror.Validation("branchId is required")
		}
		if err := s.CheckBranchAccess(ctx, p, branchID); err != nil {
			return "", err
		}
		tenantID, err := s.branchTenant(ctx, branchID)
		if err != nil {
			return "", err
		}
		if requestedTenant != "" && requestedTenant != tenantID {
			return "", apperror.ScopeViolation("Access denied to this tenant")
		}
		return tenantID, nil
	}
	return "", apperror.Authorization("No application role")
}

func (s *ScopeResolver) membershipTenant(ctx context.Context, userID string) (string, error) {
	m, err := s.access.FindLatestMembership(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("find membership: %w", err)
	}
	if m == nil {
		return "", nil
	}
	return m.TenantID, nil
}

func (s *ScopeResolver) branchTenant(ctx context.Context, branchID string) (string, error) {
	b, err := s.branches.GetByID(ctx, branchID)
	if err != nil {
		return "", fmt.Errorf("get branch: %w", err)
	}
	if b == nil || b.DeletedAt != nil {
		return "", apperror.NotFound("Branch not found")
	}
	return b.TenantID, nil
}
