package di

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/access"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/gateway"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/handler"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/service"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/vault"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/kafka"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"github.com/prohmpiriya/gym-platform/pkg/saga"
	"github.com/prohmpiriya/gym-platform/pkg/telemetry"
)

// Repositories groups every storage port of the platform core
type Repositories struct {
	Tenants      repository.TenantRepository
	Provisioning repository.ProvisioningRepository
	Access       repository.AccessRepository
	Branches     repository.BranchRepository
	Quota        repository.QuotaRepository
	Credentials  repository.CredentialRepository
	Members      repository.MemberRepository
}

// PostgresRepositories builds the pgx-backed repositories
func PostgresRepositories(pool *pgxpool.Pool) *Repositories {
	tenants := repository.NewPostgresTenantRepository(pool)
	return &Repositories{
		Tenants:      tenants,
		Provisioning: tenants,
		Access:       repository.NewPostgresAccessRepository(pool),
		Branches:     repository.NewPostgresBranchRepository(pool),
		Quota:        repository.NewPostgresQuotaRepository(pool),
		Credentials:  repository.NewPostgresCredentialRepository(pool),
		Members:      repository.NewPostgresMemberRepository(pool),
	}
}

// MemoryRepositories exposes a MemoryStore through the same ports
func MemoryRepositories(store *repository.MemoryStore) *Repositories {
	return &Repositories{
		Tenants:      store.Tenants(),
		Provisioning: store.Provisioning(),
		Access:       store.Access(),
		Branches:     store.Branches(),
		Quota:        store.Quota(),
		Credentials:  store.Credentials(),
		Members:      store.GymMembers(),
	}
}

// Container holds all dependencies for the platform service
type Container struct {
	// Access
	Roles  *access.RoleResolver
	Scopes *access.ScopeResolver
	Gate   *access.CapabilityGate
	Policy *access.ActionPolicy

	// Services
	QuotaService        service.QuotaService
	ProvisioningService service.ProvisioningService
	BranchService       service.BranchService
	CredentialService   service.CredentialService
	ScopedReadService   service.ScopedReadService

	// Handlers
	HealthHandler    *handler.HealthHandler
	FunctionsHandler *handler.FunctionsHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Repos *Repositories
	// Invalidator drops cached limits after a limits change or a purge.
	// May be nil when limits are not cached.
	Invalidator service.LimitsInvalidator
	Identity    service.IdentityProvider
	Verifier    gateway.CredentialVerifier
	Billing     gateway.BillingProvider
	// Cipher may be nil; credential saves then fail with an internal error
	Cipher       *vault.Cipher
	Publisher    kafka.Publisher
	Audit        audit.Appender
	Orchestrator *saga.Orchestrator
	Metrics      *telemetry.Metrics
	Logger       *logger.Logger
	AuthzMode    access.Mode
	Provisioning service.ProvisioningConfig
	HealthChecks map[string]handler.HealthChecker
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	appender := cfg.Audit
	if appender == nil {
		appender = audit.NewRecorder()
	}
	r := cfg.Repos

	policy, err := access.NewDefaultActionPolicy(cfg.AuthzMode, log)
	if err != nil {
		return nil, err
	}
	c := &Container{
		Roles:  access.NewRoleResolver(r.Access),
		Scopes: access.NewScopeResolver(r.Access, r.Branches),
		Gate:   access.NewCapabilityGate(cfg.Metrics),
		Policy: policy,
	}

	// Initialize services
	c.QuotaService = service.NewQuotaService(r.Tenants, r.Quota, r.Branches, appender, cfg.Metrics, log)
	c.BranchService = service.NewBranchService(r.Tenants, r.Branches, c.QuotaService, log)
	c.CredentialService = service.NewCredentialService(
		r.Tenants,
		r.Credentials,
		cfg.Verifier,
		cfg.Cipher,
		appender,
		cfg.Metrics,
		log,
	)
	c.ScopedReadService = service.NewScopedReadService(r.Branches, r.Members)
	c.ProvisioningService, err = service.NewProvisioningService(service.ProvisioningDeps{
		Tenants:      r.Tenants,
		Provisioning: r.Provisioning,
		Access:       r.Access,
		Quota:        r.Quota,
		Usage:        c.QuotaService,
		Identity:     cfg.Identity,
		Billing:      cfg.Billing,
		Invalidator:  cfg.Invalidator,
		Publisher:    cfg.Publisher,
		Audit:        appender,
		Orchestrator: cfg.Orchestrator,
		Metrics:      cfg.Metrics,
		Logger:       log,
	}, cfg.Provisioning)
	if err != nil {
		return nil, err
	}

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(cfg.HealthChecks)
	c.FunctionsHandler = handler.NewFunctionsHandler(handler.FunctionsDeps{
		Policy:       c.Policy,
		Gate:         c.Gate,
		Scopes:       c.Scopes,
		Provisioning: c.ProvisioningService,
		Branches:     c.BranchService,
		Quota:        c.QuotaService,
		Credentials:  c.CredentialService,
		Reads:        c.ScopedReadService,
		Audit:        appender,
		Metrics:      cfg.Metrics,
		Logger:       log,
	})

	return c, nil
}
