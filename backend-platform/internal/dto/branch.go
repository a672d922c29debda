package dto

import (
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/service"
)

// CreateBranchRequest is the create-branch body. Bypass is only honored on
// the platform-admin endpoint.
type CreateBranchRequest struct {
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Bypass   bool   `json:"bypassQuota"`
}

// ToInput converts the request for tenantID
func (r *CreateBranchRequest) ToInput(tenantID string, bypass bool) *service.CreateBranchInput {
	return &service.CreateBranchInput{
		TenantID: tenantID,
		Name:     r.Name,
		Address:  r.Address,
		Phone:    r.Phone,
		Email:    r.Email,
		Bypass:   bypass,
	}
}

// UpdateBranchRequest is the update-branch body
type UpdateBranchRequest struct {
	BranchID string `json:"branchId"`
	domain.BranchPatch
}

// DeleteBranchRequest is the delete-branch body
type DeleteBranchRequest struct {
	BranchID string `json:"branchId"`
	Hard     bool   `json:"hardDelete"`
}

// DeleteBranchResponse confirms a deletion
type DeleteBranchResponse struct {
	BranchID string `json:"branchId"`
	Deleted  bool   `json:"deleted"`
	Hard     bool   `json:"hardDelete"`
}

// MoveBranchRequest is the move-branch body
type MoveBranchRequest struct {
	BranchID       string `json:"branchId"`
	TargetTenantID string `json:"targetTenantId"`
}

// BranchesResponse lists branches
type BranchesResponse struct {
	Branches []*domain.Branch `json:"branches"`
}
