package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"github.com/prohmpiriya/gym-platform/pkg/telemetry"
	"go.uber.org/zap"
)

// Quota rejection reasons
const (
	ReasonTenantSuspended = "tenant_suspended"
	ReasonNoLimits        = "limits_missing"
	ReasonCeilingReached  = "ceiling_reached"
)

// QuotaCheck asks whether one more unit of Resource fits
type QuotaCheck struct {
	TenantID string
	Resource domain.Resource
	// BranchID is required for staff, whose ceiling is per branch
	BranchID string
	// Bypass skips the ceiling comparison but never the is_active check.
	// It is only honored for operator callers and is always audited.
	Bypass  bool
	ActorID string
}

// QuotaDecision is the outcome of a check. A denied decision is not an error.
type QuotaDecision struct {
	Allowed  bool            `json:"allowed"`
	Resource domain.Resource `json:"resource"`
	Current  int             `json:"current"`
	Limit    int             `json:"limit"`
	Reason   string          `json:"reason,omitempty"`
	Bypassed bool            `json:"bypassed,omitempty"`
}

// Err converts a denial into the caller-facing quota error
func (d *QuotaDecision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonTenantSuspended:
		return classify(apperror.KindQuotaExceeded, "Tenant is suspended", ErrTenantSuspended)
	case ReasonNoLimits:
		return classify(apperror.KindQuotaExceeded, "Tenant limits are not configured", ErrLimitsMissing)
	}
	return apperror.QuotaExceeded(fmt.Sprintf("%s limit reached (%d/%d)", d.Resource, d.Current, d.Limit))
}

// QuotaService enforces plan ceilings
type QuotaService interface {
	// CanAdd compares live usage with the tenant's ceiling
	CanAdd(ctx context.Context, check *QuotaCheck) (*QuotaDecision, error)
	// Require is CanAdd returning a quota error on denial
	Require(ctx context.Context, check *QuotaCheck) error
	// IncrementUsage atomically adds count to a metered counter of the
	// current period and returns the new total
	IncrementUsage(ctx context.Context, tenantID string, resource domain.Resource, count int) (int64, error)
	// Usage returns the current consumption snapshot
	Usage(ctx context.Context, tenantID string) (*domain.Usage, error)
}

type quotaService struct {
	tenants  repository.TenantRepository
	quota    repository.QuotaRepository
	branches repository.BranchRepository
	audit    audit.Appender
	metrics  *telemetry.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// NewQuotaService creates a QuotaService
func NewQuotaService(
	tenants repository.TenantRepository,
	quota repository.QuotaRepository,
	branches repository.BranchRepository,
	appender audit.Appender,
	metrics *telemetry.Metrics,
	log *logger.Logger,
) QuotaService {
	if log == nil {
		log = logger.Nop()
	}
	return &quotaService{
		tenants:  tenants,
		quota:    quota,
		branches: branches,
		audit:    appender,
		metrics:  metrics,
		log:      log.Named("quota"),
		now:      time.Now,
	}
}

func (s *quotaService) CanAdd(ctx context.Context, check *QuotaCheck) (*QuotaDecision, error) {
	if check.Resource == domain.ResourceStaff && check.BranchID == "" {
		return nil, apperror.Validation("branchId is required for staff quota")
	}

	tenant, err := s.tenants.GetByID(ctx, check.TenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if tenant == nil || tenant.DeletedAt != nil {
		return nil, notFoundTenant()
	}

	d := &QuotaDecision{Resource: check.Resource}
	if !tenant.IsActive {
		d.Reason = ReasonTenantSuspended
		s.metrics.RecordQuotaCheck(ctx, string(check.Resource), false)
		return d, nil
	}

	d.Current, err = s.current(ctx, check)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	limits, err := s.quota.GetLimits(ctx, check.TenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if limits != nil {
		d.Limit = limits.Ceiling(check.Resource)
	}

	switch {
	case check.Bypass:
		d.Allowed, d.Bypassed = true, true
		s.audit.Append(ctx, &audit.Entry{
			ActorID:        check.ActorID,
			Action:         audit.ActionQuotaBypass,
			TargetTenantID: audit.StringPtr(check.TenantID),
			Description:    fmt.Sprintf("Quota check for %s bypassed (%d/%d)", check.Resource, d.Current, d.Limit),
			Metadata: map[string]interface{}{
				"resource":  string(check.Resource),
				"branch_id": check.BranchID,
				"current":   d.Current,
				"limit":     d.Limit,
			},
		})
	case limits == nil:
		d.Reason = ReasonNoLimits
	case d.Current >= d.Limit:
		d.Reason = ReasonCeilingReached
	default:
		d.Allowed = true
	}

	s.metrics.RecordQuotaCheck(ctx, string(check.Resource), d.Allowed)
	if !d.Allowed {
		s.log.InfoContext(ctx, "quota check denied",
			zap.String("tenant_id", check.TenantID),
			zap.String("resource", string(check.Resource)),
			zap.String("reason", d.Reason),
			zap.Int("current", d.Current),
			zap.Int("limit", d.Limit))
	}
	return d, nil
}

func (s *quotaService) Require(ctx context.Context, check *QuotaCheck) error {
	d, err := s.CanAdd(ctx, check)
	if err != nil {
		return err
	}
	return d.Err()
}

func (s *quotaService) current(ctx context.Context, check *QuotaCheck) (int, error) {
	switch check.Resource {
	case domain.ResourceBranch:
		return s.quota.CountBranches(ctx, check.TenantID)
	case domain.ResourceStaff:
		return s.quota.CountStaff(ctx, check.TenantID, check.BranchID)
	case domain.ResourceMember:
		return s.quota.CountMembers(ctx, check.TenantID)
	case domain.ResourceTrainer:
		return s.quota.CountTrainers(ctx, check.TenantID)
	case domain.ResourceWhatsApp:
		n, err := s.quota.GetUsageCounter(ctx, check.TenantID, domain.UsagePeriod(s.now()), check.Resource)
		return int(n), err
	}
	return 0, fmt.Errorf("unknown resource %q", check.Resource)
}

func (s *quotaService) IncrementUsage(ctx context.Context, tenantID string, resource domain.Resource, count int) (int64, error) {
	if !resource.Metered() {
		return 0, classify(apperror.KindValidation, fmt.Sprintf("%s is not a metered resource", resource), ErrNotMetered)
	}
	if count < 1 {
		return 0, apperror.Validation("count must be at least 1")
	}
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return 0, apperror.Internal(err)
	}
	if tenant == nil || tenant.DeletedAt != nil {
		return 0, notFoundTenant()
	}
	total, err := s.quota.IncrementUsage(ctx, tenantID, domain.UsagePeriod(s.now()), resource, count)
	if err != nil {
		return 0, apperror.Internal(err)
	}
	return total, nil
}

func (s *quotaService) Usage(ctx context.Context, tenantID string) (*domain.Usage, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if tenant == nil {
		return nil, notFoundTenant()
	}

	u := &domain.Usage{
		TenantID:       tenantID,
		Period:         domain.UsagePeriod(s.now()),
		Counts:         make(map[domain.Resource]int, len(domain.Resources)),
		StaffPerBranch: map[string]int{},
	}
	for _, r := range domain.Resources {
		if r == domain.ResourceStaff {
			continue
		}
		n, err := s.current(ctx, &QuotaCheck{TenantID: tenantID, Resource: r})
		if err != nil {
			return nil, apperror.Internal(err)
		}
		u.Counts[r] = n
	}

	branchIDs, err := s.branches.ListActiveIDsByTenant(ctx, tenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	total := 0
	for _, id := range branchIDs {
		n, err := s.quota.CountStaff(ctx, tenantID, id)
		if err != nil {
			return nil, apperror.Internal(err)
		}
		u.StaffPerBranch[id] = n
		total += n
	}
	u.Counts[domain.ResourceStaff] = total
	return u, nil
}
