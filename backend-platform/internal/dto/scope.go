package dto

import (
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/response"
)

// ContextResponse describes the caller as the core resolved it
type ContextResponse struct {
	UserID       string          `json:"userId"`
	Role         string          `json:"role"`
	IsSuperAdmin bool            `json:"isSuperAdmin"`
	StaffID      string          `json:"staffId,omitempty"`
	Capabilities map[string]bool `json:"permissions"`
	Scope        domain.Scope    `json:"scope"`
}

// NewContextResponse builds the context payload for p
func NewContextResponse(p *domain.Principal, scope domain.Scope, caps map[string]bool) *ContextResponse {
	return &ContextResponse{
		UserID:       p.UserID,
		Role:         string(p.Class()),
		IsSuperAdmin: p.IsSuperAdmin,
		StaffID:      p.StaffID,
		Capabilities: caps,
		Scope:        scope,
	}
}

// MembersResponse is one page of branch-scoped members
type MembersResponse struct {
	Members []*domain.Member `json:"members"`
	Meta    *response.Meta   `json:"meta"`
}

// ScopeQuery carries the optional tenant and branch of a read
type ScopeQuery struct {
	TenantID string `form:"tenantId"`
	BranchID string `form:"branchId"`
}

// MembersQuery is the members read query
type MembersQuery struct {
	BranchID string `form:"branchId"`
	Page     int    `form:"page"`
	PerPage  int    `form:"perPage"`
}
