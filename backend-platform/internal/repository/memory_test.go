package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bundle(tenantID, slug, ownerID string) *domain.TenantBundle {
	now := time.Now().UTC()
	return &domain.TenantBundle{
		Tenant:  &domain.Tenant{ID: tenantID, Name: slug, Slug: slug, IsActive: true, CreatedAt: now, UpdatedAt: now},
		Limits:  domain.DefaultLimits(tenantID),
		Owner:   &domain.TenantMember{ID: "m-" + tenantID, TenantID: tenantID, UserID: ownerID, Role: domain.MemberRoleAdmin, IsOwner: true, CreatedAt: now},
		Branch:  &domain.Branch{ID: "b-" + tenantID, TenantID: tenantID, Name: "Main", IsDefault: true, IsActive: true, CreatedAt: now},
		Billing: &domain.TenantBilling{TenantID: tenantID, Plan: domain.DefaultPlan, Status: domain.BillingStatusPending},
	}
}

func TestMemoryStore_CreateAndPurgeBundle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	granted, err := s.Provisioning().CreateTenantBundle(ctx, bundle("t1", "acme", "u1"), &audit.Entry{Action: audit.ActionTenantCreated})
	require.NoError(t, err)
	assert.True(t, granted)
	assert.True(t, s.HasRole("u1", domain.RoleAdmin))
	assert.NotNil(t, s.BranchSettings("b-t1"))
	require.Len(t, s.AuditEntries(), 1)

	_, err = s.Provisioning().CreateTenantBundle(ctx, bundle("t2", "acme", "u2"), nil)
	assert.ErrorIs(t, err, ErrDuplicateSlug)

	require.NoError(t, s.Provisioning().PurgeTenant(ctx, "t1", granted))
	assert.Equal(t, 0, s.TenantCount())
	assert.False(t, s.HasRole("u1", domain.RoleAdmin))
	assert.Nil(t, s.Limits("t1"))
}

func TestMemoryStore_PurgeKeepsPriorAdminRole(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.GrantRole("u1", domain.RoleAdmin)

	granted, err := s.Provisioning().CreateTenantBundle(ctx, bundle("t1", "acme", "u1"), nil)
	require.NoError(t, err)
	assert.False(t, granted)

	require.NoError(t, s.Provisioning().PurgeTenant(ctx, "t1", granted))
	assert.Equal(t, 0, s.TenantCount())
	assert.True(t, s.HasRole("u1", domain.RoleAdmin))
}

func TestMemoryStore_FailOn(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("boom")
	s.FailOn("provisioning.CreateTenantBundle", boom)

	_, err := s.Provisioning().CreateTenantBundle(context.Background(), bundle("t1", "acme", "u1"), nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.TenantCount())

	s.FailOn("provisioning.CreateTenantBundle", nil)
	_, err = s.Provisioning().CreateTenantBundle(context.Background(), bundle("t1", "acme", "u1"), nil)
	assert.NoError(t, err)
}

func TestMemoryStore_StaffOrdering(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.PutStaff(&domain.Staff{ID: "s-b", UserID: "u", IsActive: true, CreatedAt: base}, 0)
	s.PutStaff(&domain.Staff{ID: "s-a", UserID: "u", IsActive: true, CreatedAt: base}, 0)
	s.PutStaff(&domain.Staff{ID: "s-0", UserID: "u", IsActive: true, CreatedAt: base.Add(-time.Hour)}, 0)
	s.PutStaff(&domain.Staff{ID: "s-off", UserID: "u", IsActive: false, CreatedAt: base.Add(-2 * time.Hour)}, 0)

	staff, err := s.Access().ListActiveStaff(context.Background(), "u")
	require.NoError(t, err)
	require.Len(t, staff, 3)
	assert.Equal(t, []string{"s-0", "s-a", "s-b"}, []string{staff[0].ID, staff[1].ID, staff[2].ID})
}

func TestMemoryStore_LatestMembership(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.PutMembership(&domain.TenantMember{ID: "m1", TenantID: "old", UserID: "u", CreatedAt: base})
	s.PutMembership(&domain.TenantMember{ID: "m2", TenantID: "new", UserID: "u", CreatedAt: base.Add(time.Hour)})

	m, err := s.Access().FindLatestMembership(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "new", m.TenantID)

	none, err := s.Access().FindLatestMembership(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryStore_ConcurrentIncrement(t *testing.T) {
	s := NewMemoryStore()
	q := s.Quota()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.IncrementUsage(ctx, "t1", "2026-10", domain.ResourceWhatsApp, 1)
		}()
	}
	wg.Wait()

	n, err := q.GetUsageCounter(ctx, "t1", "2026-10", domain.ResourceWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}

func TestMemoryStore_MemberListEmptyScope(t *testing.T) {
	s := NewMemoryStore()
	s.PutMember(&domain.Member{ID: "x", TenantID: "t1", BranchID: "b1"})

	members, total, err := s.GymMembers().List(context.Background(), &MemberFilter{})
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Zero(t, total)
	assert.Zero(t, s.MemberReads.Load())

	members, total, err = s.GymMembers().List(context.Background(), &MemberFilter{BranchIDs: []string{"b1"}, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, int64(1), s.MemberReads.Load())
}

func TestMemoryStore_BranchLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	repo := s.Branches()

	b := &domain.Branch{ID: "b1", TenantID: "t1", Name: "Main", IsActive: true}
	require.NoError(t, repo.Create(ctx, b, nil))

	require.NoError(t, repo.Move(ctx, "b1", "t2", nil))
	got, _ := repo.GetByID(ctx, "b1")
	assert.Equal(t, "t2", got.TenantID)

	require.NoError(t, repo.SoftDelete(ctx, "b1", nil))
	assert.ErrorIs(t, repo.SoftDelete(ctx, "b1", nil), ErrBranchNotFound)
	ids, _ := repo.ListActiveIDsByTenant(ctx, "t2")
	assert.Empty(t, ids)

	require.NoError(t, repo.HardDelete(ctx, "b1", nil))
	assert.ErrorIs(t, repo.HardDelete(ctx, "b1", nil), ErrBranchNotFound)
}
