package repository

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/database"
)

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run.")
	}
}

// setupTestDB expects the schema from migrations/ to be applied
func setupTestDB(t *testing.T) *database.PostgresDB {
	cfg := database.DefaultPostgresConfig()
	cfg.Host = getEnv("POSTGRES_HOST", "localhost")
	cfg.Port, _ = strconv.Atoi(getEnv("POSTGRES_PORT", "5432"))
	cfg.User = getEnv("POSTGRES_USER", "postgres")
	cfg.Password = getEnv("POSTGRES_PASSWORD", "postgres")
	cfg.Database = getEnv("POSTGRES_DB", "gym_platform_test")
	cfg.MaxConns = 20
	cfg.MinConns = 1
	cfg.RetryInterval = time.Second

	db, err := database.NewPostgres(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func testBundle() *domain.TenantBundle {
	now := time.Now().UTC()
	tenantID := uuid.NewString()
	branchID := uuid.NewString()
	return &domain.TenantBundle{
		Tenant: &domain.Tenant{ID: tenantID, Name: "Integration Gym", Slug: "it-" + tenantID[:8],
			IsActive: true, CreatedAt: now, UpdatedAt: now},
		Limits: domain.DefaultLimits(tenantID),
		Owner: &domain.TenantMember{ID: uuid.NewString(), TenantID: tenantID, UserID: uuid.NewString(),
			Role: domain.MemberRoleAdmin, IsOwner: true, CreatedAt: now},
		Branch: &domain.Branch{ID: branchID, TenantID: tenantID, Name: "Main Branch",
			IsDefault: true, IsActive: true, CreatedAt: now, UpdatedAt: now},
		BranchSettings: domain.DefaultBranchSettings(branchID),
		Billing: &domain.TenantBilling{TenantID: tenantID, Plan: domain.DefaultPlan,
			Status: domain.BillingStatusPending, CreatedAt: now, UpdatedAt: now},
	}
}

func TestPostgresTenantRepository_BundleRoundTrip(t *testing.T) {
	skipIfNoIntegration(t)

	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	tenants := NewPostgresTenantRepository(db.Pool())
	quota := NewPostgresQuotaRepository(db.Pool())
	access := NewPostgresAccessRepository(db.Pool())

	b := testBundle()
	entry := &audit.Entry{ActorID: b.Owner.UserID, Action: audit.ActionTenantCreated, TargetTenantID: &b.Tenant.ID}
	if _, err := tenants.CreateTenantBundle(ctx, b, entry); err != nil {
		t.Fatalf("CreateTenantBundle() error = %v", err)
	}
	defer func() { _ = tenants.PurgeTenant(ctx, b.Tenant.ID, true) }()

	if _, err := tenants.CreateTenantBundle(ctx, b, nil); err != ErrDuplicateSlug {
		t.Errorf("second CreateTenantBundle() error = %v, want ErrDuplicateSlug", err)
	}

	got, err := tenants.GetByID(ctx, b.Tenant.ID)
	if err != nil || got == nil || got.Slug != b.Tenant.Slug {
		t.Fatalf("GetByID() = %+v, %v", got, err)
	}

	limits, err := quota.GetLimits(ctx, b.Tenant.ID)
	if err != nil || limits == nil || limits.MaxMembers != 500 || !limits.Features[domain.FeatureWhatsApp] {
		t.Errorf("GetLimits() = %+v, %v", limits, err)
	}

	roles, err := access.ListAdminRoles(ctx, b.Owner.UserID)
	if err != nil || len(roles) != 1 || roles[0] != domain.RoleAdmin {
		t.Errorf("ListAdminRoles() = %v, %v", roles, err)
	}

	m, err := access.FindLatestMembership(ctx, b.Owner.UserID)
	if err != nil || m == nil || m.TenantID != b.Tenant.ID || !m.IsOwner {
		t.Errorf("FindLatestMembership() = %+v, %v", m, err)
	}

	n, err := quota.CountBranches(ctx, b.Tenant.ID)
	if err != nil || n != 1 {
		t.Errorf("CountBranches() = %d, %v", n, err)
	}
}

func TestPostgresQuotaRepository_ConcurrentIncrement(t *testing.T) {
	skipIfNoIntegration(t)

	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	tenants := NewPostgresTenantRepository(db.Pool())
	quota := NewPostgresQuotaRepository(db.Pool())

	b := testBundle()
	if _, err := tenants.CreateTenantBundle(ctx, b, nil); err != nil {
		t.Fatalf("CreateTenantBundle() error = %v", err)
	}
	defer func() { _ = tenants.PurgeTenant(ctx, b.Tenant.ID, true) }()

	period := domain.UsagePeriod(time.Now())
	start, err := quota.GetUsageCounter(ctx, b.Tenant.ID, period, domain.ResourceWhatsApp)
	if err != nil {
		t.Fatalf("GetUsageCounter() error = %v", err)
	}

	const n = 100
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := quota.IncrementUsage(ctx, b.Tenant.ID, period, domain.ResourceWhatsApp, 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("IncrementUsage() error = %v", err)
	}

	end, err := quota.GetUsageCounter(ctx, b.Tenant.ID, period, domain.ResourceWhatsApp)
	if err != nil {
		t.Fatalf("GetUsageCounter() error = %v", err)
	}
	if end-start != n {
		t.Errorf("counter grew by %d, want %d", end-start, n)
	}
}

func TestPostgresCredentialRepository_UpsertAndDelete(t *testing.T) {
	skipIfNoIntegration(t)

	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	tenants := NewPostgresTenantRepository(db.Pool())
	creds := NewPostgresCredentialRepository(db.Pool())

	b := testBundle()
	if _, err := tenants.CreateTenantBundle(ctx, b, nil); err != nil {
		t.Fatalf("CreateTenantBundle() error = %v", err)
	}
	defer func() { _ = tenants.PurgeTenant(ctx, b.Tenant.ID, true) }()

	now := time.Now().UTC()
	c := &domain.PaymentCredential{TenantID: b.Tenant.ID, KeyID: "rzp_test_aaaaaaaaaaaaaa",
		EncryptedSecret: []byte{1, 2, 3}, IV: []byte{4, 5, 6}, IsVerified: true, VerifiedAt: &now,
		CreatedBy: b.Owner.UserID, CreatedAt: now, UpdatedAt: now}
	if err := creds.Upsert(ctx, c, nil); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	c.KeyID = "rzp_test_bbbbbbbbbbbbbb"
	if err := creds.Upsert(ctx, c, nil); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	got, err := creds.Get(ctx, b.Tenant.ID)
	if err != nil || got == nil || got.KeyID != "rzp_test_bbbbbbbbbbbbbb" {
		t.Fatalf("Get() = %+v, %v", got, err)
	}

	ok, err := creds.Delete(ctx, b.Tenant.ID, nil)
	if err != nil || !ok {
		t.Errorf("Delete() = %v, %v", ok, err)
	}
	ok, _ = creds.Delete(ctx, b.Tenant.ID, nil)
	if ok {
		t.Error("second Delete() should report missing row")
	}
}
