// Package access resolves who a caller is, which branches bound their
// visibility and which capabilities they hold.
package access

import (
	"context"
	"fmt"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
)

// RoleResolver turns an authenticated subject into a Principal
type RoleResolver struct {
	repo repository.AccessRepository
}

// NewRoleResolver creates a RoleResolver
func NewRoleResolver(repo repository.AccessRepository) *RoleResolver {
	return &RoleResolver{repo: repo}
}

// Resolve loads the caller's role. Admin-class grants win and skip the staff
// lookup. Capabilities come from the canonical (first) staff row while the
// branch set is the union over every active staff row.
func (r *RoleResolver) Resolve(ctx context.Context, userID string) (*domain.Principal, error) {
	p := &domain.Principal{UserID: userID}
	if userID == "" {
		return p, nil
	}

	roles, err := r.repo.ListAdminRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list admin roles: %w", err)
	}
	if len(roles) > 0 {
		p.AdminRoles = roles
		p.IsAdmin = true
		for _, role := range roles {
			if role == domain.RoleSuperAdmin {
				p.IsSuperAdmin = true
			}
		}
		return p, nil
	}

	staff, err := r.repo.ListActiveStaff(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	if len(staff) == 0 {
		return p, nil
	}

	p.StaffID = staff[0].ID
	p.StaffIDs = make([]string, 0, len(staff))
	for _, s := range staff {
		p.StaffIDs = append(p.StaffIDs, s.ID)
	}

	caps, err := r.repo.GetStaffPermissions(ctx, p.StaffID)
	if err != nil {
		return nil, fmt.Errorf("load staff permissions: %w", err)
	}
	p.Capabilities = caps

	branches, err := r.repo.ListStaffBranches(ctx, p.StaffIDs)
	if err != nil {
		return nil, fmt.Errorf("list staff branches: %w", err)
	}
	p.StaffBranchIDs = branches
	return p, nil
}
