package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/dto"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/service"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
)

func (h *FunctionsHandler) quotaActions() map[string]actionSpec {
	return map[string]actionSpec{
		"check":     {run: h.quotaCheck},
		"increment": {run: h.quotaIncrement, envelope: true, caps: []domain.Capability{domain.CapSendMessages}},
	}
}

func (h *FunctionsHandler) quotaCheck(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var q dto.QuotaQuery
	if err := bindQuery(c, &q); err != nil {
		return 0, nil, err
	}
	resource, err := domain.ParseResource(q.Resource)
	if err != nil {
		return 0, nil, apperror.Validation("Invalid resource type")
	}
	if err := optionalUUID("tenantId", q.TenantID); err != nil {
		return 0, nil, err
	}
	if err := optionalUUID("branchId", q.BranchID); err != nil {
		return 0, nil, err
	}
	if q.Bypass && !p.IsSuperAdmin {
		return 0, nil, apperror.Authorization("Quota bypass requires super admin")
	}

	ctx := c.Request.Context()
	tenantID, err := h.scopes.TenantFor(ctx, p, q.TenantID, q.BranchID)
	if err != nil {
		return 0, nil, err
	}
	d, err := h.quota.CanAdd(ctx, &service.QuotaCheck{
		TenantID: tenantID,
		Resource: resource,
		BranchID: q.BranchID,
		Bypass:   q.Bypass,
		ActorID:  p.UserID,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, d, nil
}

func (h *FunctionsHandler) quotaIncrement(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var req dto.IncrementRequest
	if err := bindBody(c, &req); err != nil {
		return 0, nil, err
	}
	resource, err := domain.ParseResource(req.Resource)
	if err != nil {
		return 0, nil, apperror.Validation("Invalid resource type")
	}
	if err := optionalUUID("tenantId", req.TenantID); err != nil {
		return 0, nil, err
	}
	if err := optionalUUID("branchId", req.BranchID); err != nil {
		return 0, nil, err
	}
	if req.Count == 0 {
		req.Count = 1
	}

	ctx := c.Request.Context()
	tenantID, err := h.scopes.TenantFor(ctx, p, req.TenantID, req.BranchID)
	if err != nil {
		return 0, nil, err
	}
	total, err := h.quota.IncrementUsage(ctx, tenantID, resource, req.Count)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, &dto.IncrementResponse{
		TenantID: tenantID,
		Resource: string(resource),
		Period:   domain.UsagePeriod(time.Now()),
		Total:    total,
	}, nil
}
