package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/dto"
)

func (h *FunctionsHandler) tenantAdminActions() map[string]actionSpec {
	return map[string]actionSpec{
		"create-branch": {run: h.ownerCreateBranch, envelope: true},
		"branches":      {run: h.tenantBranches},
		"usage":         {run: h.ownUsage},
	}
}

// ownerCreateBranch never bypasses quota, whoever calls it
func (h *FunctionsHandler) ownerCreateBranch(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var req dto.CreateBranchRequest
	if err := bindBody(c, &req); err != nil {
		return 0, nil, err
	}
	if err := optionalUUID("tenantId", req.TenantID); err != nil {
		return 0, nil, err
	}
	ctx := c.Request.Context()
	tenantID, err := h.scopes.TenantFor(ctx, p, req.TenantID, "")
	if err != nil {
		return 0, nil, err
	}
	b, err := h.branches.OwnerCreateBranch(ctx, p.UserID, req.ToInput(tenantID, false))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, b, nil
}

func (h *FunctionsHandler) tenantBranches(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	tenantID, err := h.queryTenant(c, p)
	if err != nil {
		return 0, nil, err
	}
	branches, err := h.branches.ListBranches(c.Request.Context(), tenantID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, &dto.BranchesResponse{Branches: branches}, nil
}

func (h *FunctionsHandler) ownUsage(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	tenantID, err := h.queryTenant(c, p)
	if err != nil {
		return 0, nil, err
	}
	usage, err := h.provisioning.GetTenantUsage(c.Request.Context(), tenantID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, usage, nil
}

// queryTenant resolves the tenant of a read from tenantId/branchId
func (h *FunctionsHandler) queryTenant(c *gin.Context, p *domain.Principal) (string, error) {
	var q dto.ScopeQuery
	if err := bindQuery(c, &q); err != nil {
		return "", err
	}
	if err := optionalUUID("tenantId", q.TenantID); err != nil {
		return "", err
	}
	if err := optionalUUID("branchId", q.BranchID); err != nil {
		return "", err
	}
	return h.scopes.TenantFor(c.Request.Context(), p, q.TenantID, q.BranchID)
}
