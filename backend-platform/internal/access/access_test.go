package access

import (
	"context"
	"testing"
	"time"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *repository.MemoryStore
	roles  *RoleResolver
	scopes *ScopeResolver
}

// Two tenants with two branches each. u-op is the operator, u-admin owns
// tenant A, u-staff works B1 through two staff rows.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := repository.NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, tid := range []string{"tA", "tB"} {
		s.PutTenant(&domain.Tenant{ID: tid, Slug: tid, IsActive: true}, domain.DefaultLimits(tid))
	}
	s.PutBranch(&domain.Branch{ID: "A1", TenantID: "tA", IsActive: true, IsDefault: true})
	s.PutBranch(&domain.Branch{ID: "A2", TenantID: "tA", IsActive: true})
	s.PutBranch(&domain.Branch{ID: "B1", TenantID: "tB", IsActive: true})
	s.PutBranch(&domain.Branch{ID: "B2", TenantID: "tB", IsActive: true})

	s.GrantRole("u-op", domain.RoleSuperAdmin)
	s.GrantRole("u-admin", domain.RoleAdmin)
	s.PutMembership(&domain.TenantMember{ID: "m1", TenantID: "tA", UserID: "u-admin", Role: domain.MemberRoleAdmin, IsOwner: true, CreatedAt: base})
	s.GrantRole("u-orphan", domain.RoleTenantAdmin)

	s.PutStaff(&domain.Staff{ID: "s1", UserID: "u-staff", IsActive: true, CreatedAt: base},
		domain.NewCapabilitySet(domain.CapViewMembers), "B1")
	s.PutStaff(&domain.Staff{ID: "s2", UserID: "u-staff", IsActive: true, CreatedAt: base.Add(time.Hour)},
		domain.NewCapabilitySet(domain.CapAccessLedger), "A1")
	s.PutStaff(&domain.Staff{ID: "s3", UserID: "u-lonely", IsActive: true, CreatedAt: base}, 0)

	return &fixture{
		store:  s,
		roles:  NewRoleResolver(s.Access()),
		scopes: NewScopeResolver(s.Access(), s.Branches()),
	}
}

func (f *fixture) principal(t *testing.T, userID string) *domain.Principal {
	t.Helper()
	p, err := f.roles.Resolve(context.Background(), userID)
	require.NoError(t, err)
	return p
}

func TestRoleResolver_Resolve(t *testing.T) {
	f := newFixture(t)

	op := f.principal(t, "u-op")
	assert.True(t, op.IsSuperAdmin)
	assert.Equal(t, domain.RoleClassOperator, op.Class())
	assert.Empty(t, op.StaffID)

	admin := f.principal(t, "u-admin")
	assert.True(t, admin.IsAdmin)
	assert.False(t, admin.IsSuperAdmin)
	assert.Equal(t, domain.RoleClassTenantAdmin, admin.Class())

	staff := f.principal(t, "u-staff")
	assert.Equal(t, "s1", staff.StaffID, "earliest staff row is canonical")
	assert.Equal(t, []string{"s1", "s2"}, staff.StaffIDs)
	assert.True(t, staff.Capabilities.Has(domain.CapViewMembers))
	assert.False(t, staff.Capabilities.Has(domain.CapAccessLedger), "permissions are not merged")
	assert.ElementsMatch(t, []string{"A1", "B1"}, staff.StaffBranchIDs, "branches are the union")

	nobody := f.principal(t, "u-none")
	assert.Equal(t, domain.RoleClassNone, nobody.Class())
}

func TestScopeResolver_Resolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		user         string
		unrestricted bool
		branches     []string
	}{
		{"operator unrestricted", "u-op", true, nil},
		{"tenant admin bounded to own tenant", "u-admin", false, []string{"A1", "A2"}},
		{"tenant admin without membership is empty", "u-orphan", false, []string{}},
		{"staff union", "u-staff", false, []string{"A1", "B1"}},
		{"staff without assignments is empty", "u-lonely", false, []string{}},
		{"no role is empty", "u-none", false, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, err := f.scopes.Resolve(ctx, f.principal(t, tt.user), "")
			require.NoError(t, err)
			assert.Equal(t, tt.unrestricted, scope.Unrestricted)
			if !tt.unrestricted {
				assert.ElementsMatch(t, tt.branches, scope.BranchIDs)
				assert.NotNil(t, scope.BranchIDs)
			}
		})
	}
}

func TestScopeResolver_RequestedBranch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		user   string
		branch string
		ok     bool
	}{
		{"staff assigned", "u-staff", "B1", true},
		{"staff not assigned", "u-staff", "B2", false},
		{"admin own tenant", "u-admin", "A2", true},
		{"admin other tenant", "u-admin", "B1", false},
		{"orphan admin", "u-orphan", "A1", false},
		{"operator any branch", "u-op", "B2", true},
		{"no role", "u-none", "A1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, err := f.scopes.Resolve(ctx, f.principal(t, tt.user), tt.branch)
			if !tt.ok {
				assert.True(t, apperror.Is(err, apperror.KindScopeViolation), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.branch}, scope.BranchIDs)
			assert.False(t, scope.Unrestricted)
		})
	}
}

func TestScopeResolver_DeletedBranchLeavesAdminScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Branches().SoftDelete(ctx, "A2", nil))

	scope, err := f.scopes.Resolve(ctx, f.principal(t, "u-admin"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, scope.BranchIDs)

	err = f.scopes.CheckBranchAccess(ctx, f.principal(t, "u-admin"), "A2")
	assert.True(t, apperror.Is(err, apperror.KindScopeViolation))
}

func TestScopeResolver_InactiveBranchLeavesEveryBoundedScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutBranch(&domain.Branch{ID: "A1", TenantID: "tA", IsActive: false, IsDefault: true})

	for _, user := range []string{"u-admin", "u-staff"} {
		t.Run(user, func(t *testing.T) {
			p := f.principal(t, user)
			scope, err := f.scopes.Resolve(ctx, p, "")
			require.NoError(t, err)
			assert.NotContains(t, scope.BranchIDs, "A1")

			err = f.scopes.CheckBranchAccess(ctx, p, "A1")
			assert.True(t, apperror.Is(err, apperror.KindScopeViolation))
		})
	}
}

func TestScopeResolver_TenantFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		user    string
		tenant  string
		branch  string
		want    string
		errKind apperror.Kind
	}{
		{"operator named tenant", "u-op", "tB", "", "tB", ""},
		{"operator via branch", "u-op", "", "A2", "tA", ""},
		{"operator needs a tenant", "u-op", "", "", "", apperror.KindValidation},
		{"admin defaults to membership", "u-admin", "", "", "tA", ""},
		{"admin foreign tenant", "u-admin", "tB", "", "", apperror.KindScopeViolation},
		{"admin foreign branch", "u-admin", "", "B1", "", apperror.KindScopeViolation},
		{"orphan admin", "u-orphan", "", "", "", apperror.KindScopeViolation},
		{"staff via branch", "u-staff", "", "B1", "tB", ""},
		{"staff needs branch", "u-staff", "", "", "", apperror.KindValidation},
		{"staff foreign branch", "u-staff", "", "B2", "", apperror.KindScopeViolation},
		{"no role", "u-none", "tA", "", "", apperror.KindAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.scopes.TenantFor(ctx, f.principal(t, tt.user), tt.tenant, tt.branch)
			if tt.errKind != "" {
				assert.Equal(t, tt.errKind, apperror.KindOf(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCapabilityGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := NewCapabilityGate(nil)

	admin := f.principal(t, "u-admin")
	staff := f.principal(t, "u-staff")
	nobody := f.principal(t, "u-none")

	for _, c := range domain.AllCapabilities() {
		assert.True(t, gate.Has(admin, c), c.String())
		assert.False(t, gate.Has(nobody, c), c.String())
	}
	assert.True(t, gate.Has(staff, domain.CapViewMembers))
	assert.False(t, gate.Has(staff, domain.CapAccessPayments))

	assert.NoError(t, gate.Require(ctx, staff, domain.CapViewMembers))
	err := gate.Require(ctx, staff, domain.CapViewMembers, domain.CapAccessPayments)
	require.Error(t, err)
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "access_payments")

	assert.Error(t, gate.Require(ctx, nobody))
	assert.NoError(t, gate.RequireOperator(ctx, f.principal(t, "u-op")))
	assert.Error(t, gate.RequireOperator(ctx, admin))
}

func TestActionPolicy(t *testing.T) {
	p, err := NewDefaultActionPolicy(ModeEnforce, nil)
	require.NoError(t, err)

	tests := []struct {
		class    domain.RoleClass
		endpoint string
		action   string
		want     bool
	}{
		{domain.RoleClassOperator, "platform-admin", "create-tenant", true},
		{domain.RoleClassTenantAdmin, "platform-admin", "create-tenant", false},
		{domain.RoleClassStaff, "platform-admin", "list-tenants", false},
		{domain.RoleClassTenantAdmin, "tenant-admin", "create-branch", true},
		{domain.RoleClassStaff, "tenant-admin", "create-branch", false},
		{domain.RoleClassStaff, "payment-credentials", "status", true},
		{domain.RoleClassStaff, "payment-credentials", "save", false},
		{domain.RoleClassTenantAdmin, "payment-credentials", "remove", true},
		{domain.RoleClassStaff, "branch-data", "members", true},
		{domain.RoleClassStaff, "quota", "increment", true},
		{domain.RoleClassNone, "branch-data", "context", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.class)+"/"+tt.endpoint+"/"+tt.action, func(t *testing.T) {
			got, err := p.Allowed(tt.class, tt.endpoint, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = p.Allowed(domain.RoleClassOperator, "platform-admin", "drop-everything")
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.False(t, p.Known("quota", "reset"))
}

func TestActionPolicy_Shadow(t *testing.T) {
	p, err := NewDefaultActionPolicy(ModeShadow, nil)
	require.NoError(t, err)

	got, err := p.Allowed(domain.RoleClassStaff, "platform-admin", "create-tenant")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestNewActionPolicy_Invalid(t *testing.T) {
	tests := map[string]string{
		"no endpoints":        "grants: {}\n",
		"undeclared action":   "endpoints:\n  quota: [check]\ngrants:\n  staff:\n    quota: [reset]\n",
		"undeclared endpoint": "endpoints:\n  quota: [check]\ngrants:\n  staff:\n    ledger: ['*']\n",
		"unknown class":       "endpoints:\n  quota: [check]\ngrants:\n  janitor:\n    quota: ['*']\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewActionPolicy([]byte(doc), ModeEnforce, nil)
			assert.Error(t, err)
		})
	}

	_, err := NewActionPolicy(defaultPolicy, Mode("disabled"), nil)
	assert.Error(t, err)
}
