package domain

import "time"

// Admin-class role grants
const (
	RoleSuperAdmin  = "super_admin"
	RoleTenantAdmin = "tenant_admin"
	RoleAdmin       = "admin"
)

// AdminRoles is the set of grants that make a caller admin-class
var AdminRoles = []string{RoleSuperAdmin, RoleTenantAdmin, RoleAdmin}

// RoleClass is the coarse caller category used by the action policy
type RoleClass string

const (
	RoleClassNone        RoleClass = "none"
	RoleClassStaff       RoleClass = "staff"
	RoleClassTenantAdmin RoleClass = "tenant_admin"
	RoleClassOperator    RoleClass = "operator"
)

// Staff is one branch engagement of a human
type Staff struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is the resolved caller of a request
type Principal struct {
	UserID       string
	AdminRoles   []string
	IsAdmin      bool
	IsSuperAdmin bool

	// StaffID is the canonical staff row the capabilities came from
	StaffID        string
	StaffIDs       []string
	Capabilities   CapabilitySet
	StaffBranchIDs []string
}

// Class derives the role class. Operator wins over tenant admin.
func (p *Principal) Class() RoleClass {
	switch {
	case p == nil:
		return RoleClassNone
	case p.IsSuperAdmin:
		return RoleClassOperator
	case p.IsAdmin:
		return RoleClassTenantAdmin
	case p.StaffID != "":
		return RoleClassStaff
	}
	return RoleClassNone
}

// IsStaff reports whether the caller resolved through staff rows
func (p *Principal) IsStaff() bool {
	return p.Class() == RoleClassStaff
}

// Scope is the set of branches a caller may see
type Scope struct {
	Unrestricted bool     `json:"unrestricted"`
	BranchIDs    []string `json:"branch_ids"`
}

// Contains reports whether branchID is visible in the scope
func (s Scope) Contains(branchID string) bool {
	if s.Unrestricted {
		return true
	}
	for _, id := range s.BranchIDs {
		if id == branchID {
			return true
		}
	}
	return false
}

// Empty reports whether the scope admits no branch at all
func (s Scope) Empty() bool {
	return !s.Unrestricted && len(s.BranchIDs) == 0
}
