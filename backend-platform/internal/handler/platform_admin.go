package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/dto"
	"github.com/prohmpiriya/gym-platform/pkg/response"
)

func (h *FunctionsHandler) platformAdminActions() map[string]actionSpec {
	return map[string]actionSpec{
		"create-tenant":     {run: h.createTenant, envelope: true, operatorOnly: true},
		"update-limits":     {run: h.updateLimits, envelope: true, operatorOnly: true},
		"suspend-tenant":    {run: h.setTenantActive(false), envelope: true, operatorOnly: true},
		"reactivate-tenant": {run: h.setTenantActive(true), envelope: true, operatorOnly: true},
		"list-tenants":      {run: h.listTenants, operatorOnly: true},
		"tenant-usage":      {run: h.tenantUsage, operatorOnly: true},
		"create-branch":     {run: h.operatorCreateBranch, envelope: true, operatorOnly: true},
		"update-branch":     {run: h.operatorUpdateBranch, envelope: true, operatorOnly: true},
		"delete-branch":     {run: h.operatorDeleteBranch, envelope: true, operatorOnly: true},
		"move-branch":       {run: h.operatorMoveBranch, envelope: true, operatorOnly: true},
	}
}

// createTenant handles POST platform-admin?action=create-tenant
func (h *FunctionsHandler) createTenant(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var req dto.CreateTenantRequest
	if err := bindBody(c, &req); err != nil {
		return 0, nil, err
	}
	res, err := h.provisioning.CreateTenant(c.Request.Context(), p.UserID, req.ToInput())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, res, nil
}

func (h *FunctionsHandler) updateLimits(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var req dto.UpdateLimitsRequest
	if err := bindBody(c, &req); err != nil {
		return 0, nil, err
	}
	if err := requireUUID("tenantId", req.TenantID); err != nil {
		return 0, nil, err
	}
	limits, err := h.provisioning.UpdateLimits(c.Request.Context(), p.UserID, req.TenantID, req.Limits)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, limits, nil
}

func (h *FunctionsHandler) setTenantActive(active bool) actionFunc {
	return func(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
		var req dto.TenantRef
		if err := bindBody(c, &req); err != nil {
			return 0, nil, err
		}
		if err := requireUUID("tenantId", req.TenantID); err != nil {
			return 0, nil, err
		}

		ctx := c.Request.Context()
		var err error
		if active {
			err = h.provisioning.ReactivateTenant(ctx, p.UserID, req.TenantID)
		} else {
			err = h.provisioning.SuspendTenant(ctx, p.UserID, req.TenantID)
		}
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, &dto.TenantStateResponse{TenantID: req.TenantID, IsActive: active}, nil
	}
}

func (h *FunctionsHandler) listTenants(c *gin.Context, _ *domain.Principal) (int, interface{}, error) {
	var q dto.ListTenantsQuery
	if err := bindQuery(c, &q); err != nil {
		return 0, nil, err
	}
	filter, page := q.Filter()
	tenants, total, err := h.provisioning.ListTenants(c.Request.Context(), filter)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, &dto.ListTenantsResponse{
		Tenants: tenants,
		Meta:    response.NewMeta(page.Page, page.PerPage, int64(total)),
	}, nil
}

func (h *FunctionsHandler) tenantUsage(c *gin.Context, _ *domain.Principal) (int, interface{}, error) {
	tenantID := c.Query("tenantId")
	if err := requireUUID("tenantId", tenantID); err != nil {
		return 0, nil, err
	}
	usage, err := h.provisioning.GetTenantUsage(c.Request.Context(), tenantID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, usage, nil
}

func (h *FunctionsHandler) operatorCreateBranch(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var req dto.CreateBranchRequest
	if err := bindBody(c, &req); err != nil {
		return 0, nil, err
	}
	if err := requireUUID("tenantId", req.TenantID); err != nil {
		return 0, nil, err
	}
	b, err := h.branches.OperatorCreateBranch(c.Request.Context(), p.UserID, req.ToInput(req.TenantID, req.Bypass))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, b, nil
}

func (h *FunctionsHandler) operatorUpdateBranch(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var req dto.UpdateBranchRequest
	if err := bindBody(c, &req); err != nil {
		return 0, nil, err
	}
	if err := requireUUID("branchId", req.BranchID); err != nil {
		return 0, nil, err
	}
	b, err := h.branches.OperatorUpdateBranch(c.Request.Context(), p.UserID, req.BranchID, &req.BranchPatch)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, b, nil
}

func (h *FunctionsHandler) operatorDeleteBranch(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var req dto.DeleteBranchRequest
	if err := bindBody(c, &req); err != nil {
		return 0, nil, err
	}
	if err := requireUUID("branchId", req.BranchID); err != nil {
		return 0, nil, err
	}
	if err := h.branches.OperatorDeleteBranch(c.Request.Context(), p.UserID, req.BranchID, req.Hard); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, &dto.DeleteBranchResponse{BranchID: req.BranchID, Deleted: true, Hard: req.Hard}, nil
}

func (h *FunctionsHandler) operatorMoveBranch(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var req dto.MoveBranchRequest
	if err := bindBody(c, &req); err != nil {
		return 0, nil, err
	}
	if err := requireUUID("branchId", req.BranchID); err != nil {
		return 0, nil, err
	}
	if err := requireUUID("targetTenantId", req.TargetTenantID); err != nil {
		return 0, nil, err
	}
	b, err := h.branches.OperatorMoveBranch(c.Request.Context(), p.UserID, req.BranchID, req.TargetTenantID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, b, nil
}
