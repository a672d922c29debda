package dto

import (
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/service"
	"github.com/prohmpiriya/gym-platform/pkg/response"
)

// CreateTenantRequest is the create-tenant body
type CreateTenantRequest struct {
	Name          string                 `json:"name"`
	Slug          string                 `json:"slug"`
	ContactEmail  string                 `json:"contactEmail"`
	ContactPhone  string                 `json:"contactPhone"`
	OwnerEmail    string                 `json:"ownerEmail"`
	OwnerPassword string                 `json:"ownerPassword"`
	Limits        *domain.LimitsOverride `json:"limits"`
}

// ToInput converts the request into the provisioning input
func (r *CreateTenantRequest) ToInput() *service.CreateTenantInput {
	return &service.CreateTenantInput{
		Name:          r.Name,
		Slug:          r.Slug,
		ContactEmail:  r.ContactEmail,
		ContactPhone:  r.ContactPhone,
		OwnerEmail:    r.OwnerEmail,
		OwnerPassword: r.OwnerPassword,
		Limits:        r.Limits,
	}
}

// TenantRef names the tenant a mutating action targets
type TenantRef struct {
	TenantID string `json:"tenantId"`
}

// UpdateLimitsRequest is the update-limits body
type UpdateLimitsRequest struct {
	TenantID string                 `json:"tenantId"`
	Limits   *domain.LimitsOverride `json:"limits"`
}

// TenantStateResponse is returned by suspend-tenant and reactivate-tenant
type TenantStateResponse struct {
	TenantID string `json:"tenantId"`
	IsActive bool   `json:"isActive"`
}

// ListTenantsQuery represents query parameters for listing tenants
type ListTenantsQuery struct {
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
	IsActive *bool  `form:"isActive"`
	Search   string `form:"search"`
}

// Filter normalizes paging and returns the repository filter
func (q *ListTenantsQuery) Filter() (*repository.TenantFilter, response.PaginationParams) {
	p := response.PaginationParams{Page: q.Page, PerPage: q.Limit}.Normalize()
	return &repository.TenantFilter{
		IsActive: q.IsActive,
		Search:   q.Search,
		Limit:    p.PerPage,
		Offset:   p.Offset(),
	}, p
}

// ListTenantsResponse represents paginated list of tenants
type ListTenantsResponse struct {
	Tenants []*domain.Tenant `json:"tenants"`
	Meta    *response.Meta   `json:"meta"`
}
