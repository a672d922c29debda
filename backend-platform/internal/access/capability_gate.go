package access

import (
	"context"
	"fmt"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
	"github.com/prohmpiriya/gym-platform/pkg/telemetry"
)

// CapabilityGate answers capability questions for a principal
type CapabilityGate struct {
	metrics *telemetry.Metrics
}

// NewCapabilityGate creates a gate. metrics may be nil.
func NewCapabilityGate(metrics *telemetry.Metrics) *CapabilityGate {
	return &CapabilityGate{metrics: metrics}
}

// Has reports whether p holds c. Admin-class callers hold every capability;
// staff hold what their canonical bundle grants; everyone else holds nothing.
func (g *CapabilityGate) Has(p *domain.Principal, c domain.Capability) bool {
	switch p.Class() {
	case domain.RoleClassOperator, domain.RoleClassTenantAdmin:
		return true
	case domain.RoleClassStaff:
		return p.Capabilities.Has(c)
	}
	return false
}

// Require fails with an authorization error naming the first missing capability
func (g *CapabilityGate) Require(ctx context.Context, p *domain.Principal, caps ...domain.Capability) error {
	for _, c := range caps {
		if !g.Has(p, c) {
			g.metrics.RecordAuthz(ctx, c.String(), false)
			return apperror.Authorization(fmt.Sprintf("Missing permission: %s", c))
		}
	}
	if p.Class() == domain.RoleClassNone {
		g.metrics.RecordAuthz(ctx, "role", false)
		return apperror.Authorization("No application role")
	}
	g.metrics.RecordAuthz(ctx, "capability", true)
	return nil
}

// RequireOperator admits only super_admin callers
func (g *CapabilityGate) RequireOperator(ctx context.Context, p *domain.Principal) error {
	if p.Class() != domain.RoleClassOperator {
		g.metrics.RecordAuthz(ctx, "operator", false)
		return apperror.Authorization("Super admin access required")
	}
	g.metrics.RecordAuthz(ctx, "operator", true)
	return nil
}
