package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/gateway"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/identity"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/kafka"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"github.com/prohmpiriya/gym-platform/pkg/saga"
	"github.com/prohmpiriya/gym-platform/pkg/telemetry"
	"go.uber.org/zap"
)

const createTenantSaga = "create-tenant"

// Saga step names
const (
	StepResolveOwner  = "resolve-owner"
	StepPersistTenant = "persist-tenant"
	StepAttachBilling = "attach-billing"
	StepPublishEvent  = "publish-event"
)

// Billing failure policies
const (
	BillingFailureContinue = "continue"
	BillingFailureAbort    = "abort"
)

// IdentityProvider is the slice of the identity service provisioning needs
type IdentityProvider interface {
	FindUserByEmail(ctx context.Context, email string) (*identity.User, error)
	CreateUser(ctx context.Context, email, password string) (*identity.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// LimitsInvalidator evicts cached limits after a change
type LimitsInvalidator interface {
	Invalidate(ctx context.Context, tenantID string)
}

// CreateTenantInput is the create-tenant request
type CreateTenantInput struct {
	Name          string
	Slug          string
	ContactEmail  string
	ContactPhone  string
	OwnerEmail    string
	OwnerPassword string
	Limits        *domain.LimitsOverride
}

// Validate checks the fields required before any side effect
func (in *CreateTenantInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
	in.OwnerEmail = strings.ToLower(strings.TrimSpace(in.OwnerEmail))
	switch {
	case in.Name == "" || in.Slug == "":
		return apperror.Validation("name and slug are required")
	case !domain.ValidSlug(in.Slug):
		return apperror.Validation("Slug must contain only lowercase letters, numbers, and hyphens")
	case len(in.Slug) < 2 || len(in.Slug) > 100:
		return apperror.Validation("Slug must be between 2 and 100 characters")
	case in.OwnerEmail == "" || in.OwnerPassword == "":
		return apperror.Validation("ownerEmail and ownerPassword are required")
	case !strings.Contains(in.OwnerEmail, "@"):
		return apperror.Validation("ownerEmail is not a valid email address")
	}
	if name := in.Limits.Negative(); name != "" {
		return apperror.Validation(name + " cannot be negative")
	}
	return nil
}

// CreateTenantResult is what a completed provisioning run produced
type CreateTenantResult struct {
	Tenant       *domain.Tenant        `json:"tenant"`
	Limits       *domain.TenantLimits  `json:"limits"`
	Branch       *domain.Branch        `json:"branch"`
	Billing      *domain.TenantBilling `json:"billing"`
	OwnerUserID  string                `json:"ownerUserId"`
	OwnerCreated bool                  `json:"ownerCreated"`
	SagaID       string                `json:"sagaId"`
}

// TenantUsage is the operator view of a tenant's consumption
type TenantUsage struct {
	Tenant *domain.Tenant       `json:"tenant"`
	Limits *domain.TenantLimits `json:"limits"`
	Usage  *domain.Usage        `json:"usage"`
}

// ProvisioningConfig configures provisioning
type ProvisioningConfig struct {
	BillingFailurePolicy string
	StepTimeout          time.Duration
	EventsTopic          string
}

// ProvisioningService creates and administers tenants. Every mutation is
// operator-only; callers gate it before calling.
type ProvisioningService interface {
	CreateTenant(ctx context.Context, actorID string, in *CreateTenantInput) (*CreateTenantResult, error)
	UpdateLimits(ctx context.Context, actorID, tenantID string, override *domain.LimitsOverride) (*domain.TenantLimits, error)
	SuspendTenant(ctx context.Context, actorID, tenantID string) error
	ReactivateTenant(ctx context.Context, actorID, tenantID string) error
	ListTenants(ctx context.Context, filter *repository.TenantFilter) ([]*domain.Tenant, int, error)
	GetTenantUsage(ctx context.Context, tenantID string) (*TenantUsage, error)
}

// provisioningRun holds what a saga run needs but must not persist
type provisioningRun struct {
	actorID  string
	password string
	bundle   *domain.TenantBundle
}

type provisioningService struct {
	tenants      repository.TenantRepository
	provisioning repository.ProvisioningRepository
	access       repository.AccessRepository
	quota        repository.QuotaRepository
	usage        QuotaService
	identity     IdentityProvider
	billing      gateway.BillingProvider
	invalidator  LimitsInvalidator
	events       *eventPublisher
	audit        audit.Appender
	orchestrator *saga.Orchestrator
	metrics      *telemetry.Metrics
	config       ProvisioningConfig
	log          *logger.Logger
	runs         sync.Map // run id -> *provisioningRun
}

// ProvisioningDeps groups the collaborators of the provisioning service
type ProvisioningDeps struct {
	Tenants      repository.TenantRepository
	Provisioning repository.ProvisioningRepository
	Access       repository.AccessRepository
	Quota        repository.QuotaRepository
	Usage        QuotaService
	Identity     IdentityProvider
	Billing      gateway.BillingProvider
	// Invalidator may be nil when limits are not cached
	Invalidator  LimitsInvalidator
	Publisher    kafka.Publisher
	Audit        audit.Appender
	Orchestrator *saga.Orchestrator
	Metrics      *telemetry.Metrics
	Logger       *logger.Logger
}

// NewProvisioningService registers the create-tenant saga and returns the service
func NewProvisioningService(deps ProvisioningDeps, cfg ProvisioningConfig) (ProvisioningService, error) {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	if cfg.BillingFailurePolicy == "" {
		cfg.BillingFailurePolicy = BillingFailureContinue
	}
	if cfg.BillingFailurePolicy != BillingFailureContinue && cfg.BillingFailurePolicy != BillingFailureAbort {
		return nil, fmt.Errorf("invalid billing failure policy %q", cfg.BillingFailurePolicy)
	}
	billing := deps.Billing
	if billing == nil {
		billing = gateway.DisabledBilling{}
	}
	orch := deps.Orchestrator
	if orch == nil {
		orch = saga.NewOrchestrator(&saga.OrchestratorConfig{Logger: log})
	}

	s := &provisioningService{
		tenants:      deps.Tenants,
		provisioning: deps.Provisioning,
		access:       deps.Access,
		quota:        deps.Quota,
		usage:        deps.Usage,
		identity:     deps.Identity,
		billing:      billing,
		invalidator:  deps.Invalidator,
		events:       &eventPublisher{pub: deps.Publisher, topic: cfg.EventsTopic, log: log.Named("events")},
		audit:        deps.Audit,
		orchestrator: orch,
		metrics:      deps.Metrics,
		config:       cfg,
		log:          log.Named("provisioning"),
	}
	if err := orch.RegisterDefinition(s.definition()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *provisioningService) definition() *saga.Definition {
	return saga.NewDefinition(createTenantSaga, "Provision a tenant with its owner, default branch, limits and billing").
		AddStep(&saga.Step{
			Name:        StepResolveOwner,
			Description: "Reuse or create the owner identity",
			Execute:     s.resolveOwner,
			Compensate:  s.releaseOwner,
			Timeout:     s.config.StepTimeout,
		}).
		AddStep(&saga.Step{
			Name:        StepPersistTenant,
			Description: "Insert every tenant row in one transaction",
			Execute:     s.persistTenant,
			Compensate:  s.purgeTenant,
			Timeout:     s.config.StepTimeout,
		}).
		AddStep(&saga.Step{
			Name:        StepAttachBilling,
			Description: "Create the platform billing customer",
			Execute:     s.attachBilling,
			Timeout:     s.config.StepTimeout,
			Retries:     1,
			Optional:    s.config.BillingFailurePolicy == BillingFailureContinue,
		}).
		AddStep(&saga.Step{
			Name:        StepPublishEvent,
			Description: "Announce the new tenant",
			Execute:     s.publishProvisioned,
			Timeout:     s.config.StepTimeout,
			Optional:    true,
		})
}

func (s *provisioningService) run(data map[string]interface{}) (*provisioningRun, error) {
	id, _ := data["run_id"].(string)
	v, ok := s.runs.Load(id)
	if !ok {
		return nil, saga.Permanent(fmt.Errorf("provisioning run %q not found", id))
	}
	return v.(*provisioningRun), nil
}

func (s *provisioningService) resolveOwner(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	run, err := s.run(data)
	if err != nil {
		return nil, err
	}
	email := run.bundle.Billing.BillingEmail

	existing, err := s.identity.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find owner: %w", err)
	}
	if existing != nil {
		m, err := s.access.FindLatestMembership(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("check owner membership: %w", err)
		}
		if m != nil {
			return nil, saga.Permanent(classify(apperror.KindConflict,
				"Owner email is already associated with another tenant", ErrOwnerAlreadyBound))
		}
		return map[string]interface{}{"owner_user_id": existing.ID, "owner_created": false}, nil
	}

	created, err := s.identity.CreateUser(ctx, email, run.password)
	if err != nil {
		return nil, saga.Permanent(fmt.Errorf("create owner: %w", err))
	}
	return map[string]interface{}{"owner_user_id": created.ID, "owner_created": true}, nil
}

// releaseOwner deletes the owner identity only if this run created it
func (s *provisioningService) releaseOwner(ctx context.Context, data map[string]interface{}) error {
	if created, _ := data["owner_created"].(bool); !created {
		return nil
	}
	userID, _ := data["owner_user_id"].(string)
	if userID == "" {
		return nil
	}
	return s.identity.DeleteUser(ctx, userID)
}

func (s *provisioningService) persistTenant(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	run, err := s.run(data)
	if err != nil {
		return nil, err
	}
	ownerID, _ := data["owner_user_id"].(string)
	b := run.bundle
	b.Owner.UserID = ownerID

	entry := &audit.Entry{
		ActorID:        run.actorID,
		Action:         audit.ActionTenantCreated,
		TargetTenantID: audit.StringPtr(b.Tenant.ID),
		TargetUserID:   audit.StringPtr(ownerID),
		Description:    fmt.Sprintf("Tenant %q (%s) created", b.Tenant.Name, b.Tenant.Slug),
		NewValue: map[string]interface{}{
			"tenant_id":      b.Tenant.ID,
			"slug":           b.Tenant.Slug,
			"owner_user_id":  ownerID,
			"owner_created":  data["owner_created"],
			"default_branch": b.Branch.ID,
			"limits":         b.Limits.Snapshot(),
			"plan":           b.Billing.Plan,
		},
	}
	granted, err := s.provisioning.CreateTenantBundle(ctx, b, entry)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateSlug) {
			return nil, saga.Permanent(classify(apperror.KindConflict, "Tenant with this slug already exists", ErrTenantExists))
		}
		return nil, saga.Permanent(fmt.Errorf("persist tenant: %w", err))
	}
	return map[string]interface{}{"tenant_id": b.Tenant.ID, "admin_role_granted": granted}, nil
}

// purgeTenant keeps an admin role the owner held before this run
func (s *provisioningService) purgeTenant(ctx context.Context, data map[string]interface{}) error {
	tenantID, _ := data["tenant_id"].(string)
	if tenantID == "" {
		return nil
	}
	granted, _ := data["admin_role_granted"].(bool)
	if err := s.provisioning.PurgeTenant(ctx, tenantID, granted); err != nil {
		return err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, tenantID)
	}
	return nil
}

func (s *provisioningService) attachBilling(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	run, err := s.run(data)
	if err != nil {
		return nil, err
	}
	if _, disabled := s.billing.(gateway.DisabledBilling); disabled {
		return nil, nil
	}
	t := run.bundle.Tenant
	cust, err := s.billing.CreateCustomer(ctx, &gateway.CreateCustomerRequest{
		TenantID: t.ID,
		Email:    run.bundle.Billing.BillingEmail,
		Name:     t.Name,
		Metadata: map[string]string{"slug": t.Slug},
	})
	if err != nil {
		return nil, err
	}
	if err := s.provisioning.SetBillingCustomer(ctx, t.ID, cust.CustomerID); err != nil {
		return nil, fmt.Errorf("store billing customer: %w", err)
	}
	run.bundle.Billing.StripeCustomerID = cust.CustomerID
	run.bundle.Billing.Status = domain.BillingStatusActive
	return map[string]interface{}{"billing_customer_id": cust.CustomerID}, nil
}

func (s *provisioningService) publishProvisioned(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	run, err := s.run(data)
	if err != nil {
		return nil, err
	}
	t := run.bundle.Tenant
	return nil, s.events.publish(ctx, &TenantEvent{
		Type:     EventTenantProvisioned,
		TenantID: t.ID,
		ActorID:  run.actorID,
		Data: map[string]interface{}{
			"slug":          t.Slug,
			"name":          t.Name,
			"owner_user_id": data["owner_user_id"],
			"branch_id":     run.bundle.Branch.ID,
		},
	})
}

func (s *provisioningService) CreateTenant(ctx context.Context, actorID string, in *CreateTenantInput) (*CreateTenantResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	exists, err := s.tenants.ExistsBySlug(ctx, in.Slug)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if exists {
		return nil, classify(apperror.KindConflict, "Tenant with this slug already exists", ErrTenantExists)
	}

	bundle := newTenantBundle(in, time.Now().UTC())
	runID := uuid.New().String()
	s.runs.Store(runID, &provisioningRun{actorID: actorID, password: in.OwnerPassword, bundle: bundle})
	defer s.runs.Delete(runID)

	log := s.log.WithContext(ctx).WithFields(zap.String("tenant_id", bundle.Tenant.ID), zap.String("slug", in.Slug))
	log.Info("provisioning tenant")

	inst, err := s.orchestrator.Execute(ctx, createTenantSaga, map[string]interface{}{
		"run_id":      runID,
		"tenant_slug": in.Slug,
	})
	if inst != nil {
		for _, r := range inst.StepResults {
			s.metrics.RecordSagaStep(ctx, r.StepName, string(r.Status))
		}
	}
	if err != nil {
		s.metrics.RecordProvisioning(ctx, "failed")
		return nil, s.provisioningFailed(ctx, actorID, in, bundle, inst, err)
	}
	s.metrics.RecordProvisioning(ctx, "created")

	ownerID, _ := inst.Data["owner_user_id"].(string)
	ownerCreated, _ := inst.Data["owner_created"].(bool)
	log.Info("tenant provisioned", zap.String("owner_user_id", ownerID), zap.Bool("owner_created", ownerCreated))

	return &CreateTenantResult{
		Tenant:       bundle.Tenant,
		Limits:       bundle.Limits,
		Branch:       bundle.Branch,
		Billing:      bundle.Billing,
		OwnerUserID:  ownerID,
		OwnerCreated: ownerCreated,
		SagaID:       inst.ID,
	}, nil
}

func (s *provisioningService) provisioningFailed(ctx context.Context, actorID string, in *CreateTenantInput, b *domain.TenantBundle, inst *saga.Instance, err error) error {
	meta := map[string]interface{}{"slug": in.Slug, "owner_email": in.OwnerEmail}
	var execErr *saga.ExecutionError
	if errors.As(err, &execErr) {
		meta["failed_step"] = execErr.Step
		if len(execErr.CompensationErrs) > 0 {
			failed := make(map[string]interface{}, len(execErr.CompensationErrs))
			for step, cerr := range execErr.CompensationErrs {
				failed[step] = cerr.Error()
			}
			meta["compensation_errors"] = failed
		}
	}
	if inst != nil {
		meta["saga_id"] = inst.ID
		meta["saga_status"] = string(inst.Status)
	}

	s.log.ErrorContext(ctx, "tenant provisioning failed", zap.String("slug", in.Slug), zap.Error(err))
	s.audit.Append(ctx, &audit.Entry{
		ActorID:        actorID,
		Action:         audit.ActionTenantCreateFailed,
		TargetTenantID: audit.StringPtr(b.Tenant.ID),
		Description:    fmt.Sprintf("Tenant %q creation failed", in.Slug),
		Metadata:       meta,
	})

	var ae *apperror.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperror.Internal(err)
}

func newTenantBundle(in *CreateTenantInput, now time.Time) *domain.TenantBundle {
	tenantID := uuid.New().String()
	branchID := uuid.New().String()
	return &domain.TenantBundle{
		Tenant: &domain.Tenant{
			ID:           tenantID,
			Name:         in.Name,
			Slug:         in.Slug,
			ContactEmail: strings.TrimSpace(in.ContactEmail),
			ContactPhone: strings.TrimSpace(in.ContactPhone),
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		Limits: domain.DefaultLimits(tenantID).Apply(in.Limits),
		Owner: &domain.TenantMember{
			ID:        uuid.New().String(),
			TenantID:  tenantID,
			Role:      domain.MemberRoleAdmin,
			IsOwner:   true,
			CreatedAt: now,
		},
		Branch: &domain.Branch{
			ID:        branchID,
			TenantID:  tenantID,
			Name:      in.Name + " - Main",
			Email:     strings.TrimSpace(in.ContactEmail),
			Phone:     strings.TrimSpace(in.ContactPhone),
			IsDefault: true,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		BranchSettings: domain.DefaultBranchSettings(branchID),
		Billing: &domain.TenantBilling{
			TenantID:     tenantID,
			Plan:         domain.DefaultPlan,
			Status:       domain.BillingStatusPending,
			BillingEmail: in.OwnerEmail,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}

func (s *provisioningService) UpdateLimits(ctx context.Context, actorID, tenantID string, override *domain.LimitsOverride) (*domain.TenantLimits, error) {
	if override.IsEmpty() {
		return nil, apperror.Validation("At least one limit must be provided")
	}
	if name := override.Negative(); name != "" {
		return nil, apperror.Validation(name + " cannot be negative")
	}

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if tenant == nil {
		return nil, notFoundTenant()
	}
	current, err := s.quota.GetLimits(ctx, tenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if current == nil {
		return nil, classify(apperror.KindNotFound, "Tenant limits not found", ErrLimitsMissing)
	}

	next := current.Apply(override)
	entry := &audit.Entry{
		ActorID:        actorID,
		Action:         audit.ActionLimitsUpdated,
		TargetTenantID: audit.StringPtr(tenantID),
		Description:    fmt.Sprintf("Limits updated for tenant %s", tenant.Slug),
		OldValue:       current.Snapshot(),
		NewValue:       next.Snapshot(),
		Metadata:       map[string]interface{}{"changes": audit.Changes(current.Snapshot(), next.Snapshot())},
	}
	if err := s.quota.UpdateLimits(ctx, next, entry); err != nil {
		if errors.Is(err, repository.ErrLimitsNotFound) {
			return nil, classify(apperror.KindNotFound, "Tenant limits not found", ErrLimitsMissing)
		}
		return nil, apperror.Internal(err)
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, tenantID)
	}

	_ = s.events.publish(ctx, &TenantEvent{
		Type:     EventTenantLimitsUpdate,
		TenantID: tenantID,
		ActorID:  actorID,
		Data:     next.Snapshot(),
	})
	return next, nil
}

func (s *provisioningService) SuspendTenant(ctx context.Context, actorID, tenantID string) error {
	return s.setActive(ctx, actorID, tenantID, false)
}

func (s *provisioningService) ReactivateTenant(ctx context.Context, actorID, tenantID string) error {
	return s.setActive(ctx, actorID, tenantID, true)
}

func (s *provisioningService) setActive(ctx context.Context, actorID, tenantID string, active bool) error {
	action, event, verb := audit.ActionTenantSuspended, EventTenantSuspended, "suspended"
	if active {
		action, event, verb = audit.ActionTenantReactivated, EventTenantReactivated, "reactivated"
	}
	entry := &audit.Entry{
		ActorID:        actorID,
		Action:         action,
		TargetTenantID: audit.StringPtr(tenantID),
		Description:    fmt.Sprintf("Tenant %s %s", tenantID, verb),
		OldValue:       map[string]interface{}{"is_active": !active},
		NewValue:       map[string]interface{}{"is_active": active},
	}
	found, err := s.tenants.SetActive(ctx, tenantID, active, entry)
	if err != nil {
		return apperror.Internal(err)
	}
	if !found {
		return notFoundTenant()
	}
	s.log.InfoContext(ctx, "tenant "+verb, zap.String("tenant_id", tenantID))
	_ = s.events.publish(ctx, &TenantEvent{Type: event, TenantID: tenantID, ActorID: actorID})
	return nil
}

func (s *provisioningService) ListTenants(ctx context.Context, filter *repository.TenantFilter) ([]*domain.Tenant, int, error) {
	if filter == nil {
		filter = &repository.TenantFilter{}
	}
	out, total, err := s.tenants.List(ctx, filter)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return out, total, nil
}

func (s *provisioningService) GetTenantUsage(ctx context.Context, tenantID string) (*TenantUsage, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if tenant == nil {
		return nil, notFoundTenant()
	}
	limits, err := s.quota.GetLimits(ctx, tenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	usage, err := s.usage.Usage(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &TenantUsage{Tenant: tenant, Limits: limits, Usage: usage}, nil
}
