package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/dto"
)

func (h *FunctionsHandler) credentialActions() map[string]actionSpec {
	return map[string]actionSpec{
		"save":   {run: h.saveCredentials, envelope: true},
		"status": {run: h.credentialStatus, envelope: true, caps: []domain.Capability{domain.CapAccessPayments}},
		"remove": {run: h.removeCredentials, envelope: true},
	}
}

func (h *FunctionsHandler) saveCredentials(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var req dto.SaveCredentialsRequest
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
	st, err := h.credentials.Save(ctx, p.UserID, tenantID, req.KeyID, req.KeySecret)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, st, nil
}

func (h *FunctionsHandler) credentialStatus(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	tenantID, err := h.queryTenant(c, p)
	if err != nil {
		return 0, nil, err
	}
	st, err := h.credentials.Status(c.Request.Context(), tenantID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, st, nil
}

func (h *FunctionsHandler) removeCredentials(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var req dto.TenantRef
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
	if err := h.credentials.Remove(ctx, p.UserID, tenantID); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, &dto.RemoveCredentialsResponse{Removed: true}, nil
}
