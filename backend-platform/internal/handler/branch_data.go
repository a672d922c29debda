package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/dto"
	"github.com/prohmpiriya/gym-platform/pkg/response"
)

func (h *FunctionsHandler) branchDataActions() map[string]actionSpec {
	return map[string]actionSpec{
		"context":  {run: h.callerContext},
		"branches": {run: h.scopedBranches},
		"members":  {run: h.scopedMembers, caps: []domain.Capability{domain.CapViewMembers}},
	}
}

// scope resolves the caller's scope, checking branchId access before any read
func (h *FunctionsHandler) scope(c *gin.Context, p *domain.Principal, branchID string) (domain.Scope, error) {
	if err := optionalUUID("branchId", branchID); err != nil {
		return domain.Scope{}, err
	}
	return h.scopes.Resolve(c.Request.Context(), p, branchID)
}

func (h *FunctionsHandler) callerContext(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	scope, err := h.scope(c, p, c.Query("branchId"))
	if err != nil {
		return 0, nil, err
	}
	caps := make(map[string]bool, len(domain.AllCapabilities()))
	for _, capability := range domain.AllCapabilities() {
		caps[capability.String()] = h.gate.Has(p, capability)
	}
	return http.StatusOK, dto.NewContextResponse(p, scope, caps), nil
}

func (h *FunctionsHandler) scopedBranches(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	scope, err := h.scope(c, p, c.Query("branchId"))
	if err != nil {
		return 0, nil, err
	}
	branches, err := h.reads.Branches(c.Request.Context(), scope)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, &dto.BranchesResponse{Branches: branches}, nil
}

func (h *FunctionsHandler) scopedMembers(c *gin.Context, p *domain.Principal) (int, interface{}, error) {
	var q dto.MembersQuery
	if err := bindQuery(c, &q); err != nil {
		return 0, nil, err
	}
	scope, err := h.scope(c, p, q.BranchID)
	if err != nil {
		return 0, nil, err
	}
	page := response.PaginationParams{Page: q.Page, PerPage: q.PerPage}.Normalize()
	members, total, err := h.reads.Members(c.Request.Context(), scope, page.PerPage, page.Offset())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, &dto.MembersResponse{
		Members: members,
		Meta:    response.NewMeta(page.Page, page.PerPage, int64(total)),
	}, nil
}
