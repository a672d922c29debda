package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
)

// MemoryStore is an in-process implementation of every repository, used by
// tests and local runs without Postgres. Each mutation is all-or-nothing
// under one lock, matching the transactional Postgres behavior.
type MemoryStore struct {
	mu sync.Mutex

	tenants     map[string]*domain.Tenant
	limits      map[string]*domain.TenantLimits
	members     map[string]*domain.TenantMember // by member id
	roles       map[string]map[string]time.Time // user -> role -> granted at
	branches    map[string]*domain.Branch
	settings    map[string]*domain.BranchSettings
	billing     map[string]*domain.TenantBilling
	staff       map[string]*domain.Staff
	perms       map[string]domain.CapabilitySet
	assignments map[string]map[string]bool // staff -> branch set
	gymMembers  map[string]*domain.Member
	trainers    map[string]string // trainer id -> tenant id
	counters    map[string]int64
	creds       map[string]*domain.PaymentCredential
	auditLog    []*audit.Entry

	failures map[string]error

	// MemberReads counts member list queries that touched rows
	MemberReads atomic.Int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     map[string]*domain.Tenant{},
		limits:      map[string]*domain.TenantLimits{},
		members:     map[string]*domain.TenantMember{},
		roles:       map[string]map[string]time.Time{},
		branches:    map[string]*domain.Branch{},
		settings:    map[string]*domain.BranchSettings{},
		billing:     map[string]*domain.TenantBilling{},
		staff:       map[string]*domain.Staff{},
		perms:       map[string]domain.CapabilitySet{},
		assignments: map[string]map[string]bool{},
		gymMembers:  map[string]*domain.Member{},
		trainers:    map[string]string{},
		counters:    map[string]int64{},
		creds:       map[string]*domain.PaymentCredential{},
		failures:    map[string]error{},
	}
}

// Views over the shared store
func (s *MemoryStore) Tenants() TenantRepository            { return memTenants{s} }
func (s *MemoryStore) Provisioning() ProvisioningRepository { return memTenants{s} }
func (s *MemoryStore) Access() AccessRepository             { return memAccess{s} }
func (s *MemoryStore) Branches() BranchRepository           { return memBranches{s} }
func (s *MemoryStore) Quota() QuotaRepository               { return memQuota{s} }
func (s *MemoryStore) Credentials() CredentialRepository    { return memCreds{s} }
func (s *MemoryStore) GymMembers() MemberRepository         { return memMembers{s} }

// FailOn makes the named operation return err until cleared with a nil err.
// Names are "<view>.<method>", e.g. "provisioning.CreateTenantBundle".
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *MemoryStore) fail(op string) error {
	return s.failures[op]
}

func (s *MemoryStore) appendAudit(ctx context.Context, entry *audit.Entry) {
	if entry == nil {
		return
	}
	audit.Prepare(ctx, entry, audit.DefaultSensitiveFields())
	s.auditLog = append(s.auditLog, entry)
}

// AuditEntries returns entries written together with a mutation
func (s *MemoryStore) AuditEntries() []*audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*audit.Entry(nil), s.auditLog...)
}

// --- seeding ---

func (s *MemoryStore) PutTenant(t *domain.Tenant, limits *domain.TenantLimits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tenants[t.ID] = &cp
	if limits != nil {
		s.limits[t.ID] = limits.Apply(nil)
	}
}

func (s *MemoryStore) PutBranch(b *domain.Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.branches[b.ID] = &cp
}

func (s *MemoryStore) PutMembership(m *domain.TenantMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.members[m.ID] = &cp
}

func (s *MemoryStore) GrantRole(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[userID] == nil {
		s.roles[userID] = map[string]time.Time{}
	}
	s.roles[userID][role] = time.Now()
}

// PutStaff seeds a staff row with its permission bundle and assignments
func (s *MemoryStore) PutStaff(st *domain.Staff, caps domain.CapabilitySet, branchIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.staff[st.ID] = &cp
	s.perms[st.ID] = caps
	set := map[string]bool{}
	for _, id := range branchIDs {
		set[id] = true
	}
	s.assignments[st.ID] = set
}

func (s *MemoryStore) PutMember(m *domain.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.gymMembers[m.ID] = &cp
}

func (s *MemoryStore) PutTrainer(id, tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trainers[id] = tenantID
}

// --- inspection ---

func (s *MemoryStore) Limits(tenantID string) *domain.TenantLimits {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limits[tenantID]; ok {
		return l.Apply(nil)
	}
	return nil
}

func (s *MemoryStore) Billing(tenantID string) *domain.TenantBilling {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.billing[tenantID]; ok {
		cp := *b
		return &cp
	}
	return nil
}

func (s *MemoryStore) TenantMembers(tenantID string) []*domain.TenantMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TenantMember
	for _, m := range s.members {
		if m.TenantID == tenantID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out
}

func (s *MemoryStore) HasRole(userID, role string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.roles[userID][role]
	return ok
}

func (s *MemoryStore) BranchSettings(branchID string) *domain.BranchSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[branchID]
}

func (s *MemoryStore) TenantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tenants)
}

// --- tenants / provisioning ---

type memTenants struct{ s *MemoryStore }

func (r memTenants) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("tenants.GetByID"); err != nil {
		return nil, err
	}
	t, ok := r.s.tenants[id]
	if !ok || t.DeletedAt != nil {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r memTenants) ExistsBySlug(_ context.Context, slug string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tenants {
		if t.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r memTenants) List(_ context.Context, f *TenantFilter) ([]*domain.Tenant, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*domain.Tenant
	for _, t := range r.s.tenants {
		if t.DeletedAt != nil {
			continue
		}
		if f.IsActive != nil && t.IsActive != *f.IsActive {
			continue
		}
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(t.Name), q) && !strings.Contains(t.Slug, q) {
				continue
			}
		}
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return page(all, f.Offset, f.Limit), len(all), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func (r memTenants) SetActive(ctx context.Context, id string, active bool, entry *audit.Entry) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok || t.DeletedAt != nil {
		return false, nil
	}
	t.IsActive = active
	t.UpdatedAt = time.Now().UTC()
	r.s.appendAudit(ctx, entry)
	return true, nil
}

func (r memTenants) CreateTenantBundle(ctx context.Context, b *domain.TenantBundle, entry *audit.Entry) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("provisioning.CreateTenantBundle"); err != nil {
		return false, err
	}
	for _, t := range r.s.tenants {
		if t.Slug == b.Tenant.Slug {
			return false, ErrDuplicateSlug
		}
	}

	t := *b.Tenant
	r.s.tenants[t.ID] = &t
	r.s.limits[t.ID] = b.Limits.Apply(nil)
	m := *b.Owner
	r.s.members[m.ID] = &m
	if r.s.roles[m.UserID] == nil {
		r.s.roles[m.UserID] = map[string]time.Time{}
	}
	_, held := r.s.roles[m.UserID][domain.RoleAdmin]
	if !held {
		r.s.roles[m.UserID][domain.RoleAdmin] = m.CreatedAt
	}
	br := *b.Branch
	r.s.branches[br.ID] = &br
	settings := b.BranchSettings
	if settings == nil {
		settings = domain.DefaultBranchSettings(br.ID)
	}
	r.s.settings[br.ID] = settings
	bill := *b.Billing
	r.s.billing[t.ID] = &bill
	r.s.appendAudit(ctx, entry)
	return !held, nil
}

func (r memTenants) PurgeTenant(_ context.Context, tenantID string, revokeAdmin bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("provisioning.PurgeTenant"); err != nil {
		return err
	}
	for id, m := range r.s.members {
		if m.TenantID == tenantID {
			if m.IsOwner && revokeAdmin {
				delete(r.s.roles[m.UserID], domain.RoleAdmin)
			}
			delete(r.s.members, id)
		}
	}
	for id, b := range r.s.branches {
		if b.TenantID == tenantID {
			delete(r.s.branches, id)
			delete(r.s.settings, id)
		}
	}
	for id, m := range r.s.gymMembers {
		if m.TenantID == tenantID {
			delete(r.s.gymMembers, id)
		}
	}
	delete(r.s.billing, tenantID)
	delete(r.s.limits, tenantID)
	delete(r.s.creds, tenantID)
	delete(r.s.tenants, tenantID)
	return nil
}

func (r memTenants) SetBillingCustomer(_ context.Context, tenantID, customerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("provisioning.SetBillingCustomer"); err != nil {
		return err
	}
	if b, ok := r.s.billing[tenantID]; ok {
		b.StripeCustomerID = customerID
		b.Status = domain.BillingStatusActive
		b.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// --- access ---

type memAccess struct{ s *MemoryStore }

func (r memAccess) ListAdminRoles(_ context.Context, userID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("access.ListAdminRoles"); err != nil {
		return nil, err
	}
	out := []string{}
	for _, role := range domain.AdminRoles {
		if _, ok := r.s.roles[userID][role]; ok {
			out = append(out, role)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r memAccess) ListActiveStaff(_ context.Context, userID string) ([]*domain.Staff, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Staff{}
	for _, st := range r.s.staff {
		if st.UserID == userID && st.IsActive {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memAccess) GetStaffPermissions(_ context.Context, staffID string) (domain.CapabilitySet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.perms[staffID], nil
}

func (r memAccess) ListStaffBranches(_ context.Context, staffIDs []string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	set := map[string]bool{}
	for _, sid := range staffIDs {
		for bid := range r.s.assignments[sid] {
			if b, ok := r.s.branches[bid]; ok && b.DeletedAt == nil && b.IsActive {
				set[bid] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r memAccess) FindLatestMembership(_ context.Context, userID string) (*domain.TenantMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("access.FindLatestMembership"); err != nil {
		return nil, err
	}
	var latest *domain.TenantMember
	for _, m := range r.s.members {
		if m.UserID != userID {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) ||
			(m.CreatedAt.Equal(latest.CreatedAt) && m.ID > latest.ID) {
			latest = m
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// --- branches ---

type memBranches struct{ s *MemoryStore }

func (r memBranches) Create(ctx context.Context, b *domain.Branch, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("branches.Create"); err != nil {
		return err
	}
	cp := *b
	r.s.branches[b.ID] = &cp
	r.s.settings[b.ID] = domain.DefaultBranchSettings(b.ID)
	r.s.appendAudit(ctx, entry)
	return nil
}

func (r memBranches) GetByID(_ context.Context, id string) (*domain.Branch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.branches[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r memBranches) mutate(ctx context.Context, id string, entry *audit.Entry, fn func(b *domain.Branch)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.branches[id]
	if !ok {
		return ErrBranchNotFound
	}
	fn(b)
	b.UpdatedAt = time.Now().UTC()
	r.s.appendAudit(ctx, entry)
	return nil
}

func (r memBranches) Update(ctx context.Context, b *domain.Branch, entry *audit.Entry) error {
	return r.mutate(ctx, b.ID, entry, func(cur *domain.Branch) {
		cur.Name, cur.Address, cur.Phone, cur.Email, cur.IsActive = b.Name, b.Address, b.Phone, b.Email, b.IsActive
	})
}

func (r memBranches) SoftDelete(ctx context.Context, id string, entry *audit.Entry) error {
	r.s.mu.Lock()
	b, ok := r.s.branches[id]
	deleted := ok && b.DeletedAt != nil
	r.s.mu.Unlock()
	if deleted {
		return ErrBranchNotFound
	}
	return r.mutate(ctx, id, entry, func(cur *domain.Branch) {
		now := time.Now().UTC()
		cur.DeletedAt = &now
		cur.IsActive = false
	})
}

func (r memBranches) HardDelete(ctx context.Context, id string, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.branches[id]; !ok {
		return ErrBranchNotFound
	}
	delete(r.s.branches, id)
	delete(r.s.settings, id)
	for _, set := range r.s.assignments {
		delete(set, id)
	}
	r.s.appendAudit(ctx, entry)
	return nil
}

func (r memBranches) Move(ctx context.Context, id, tenantID string, entry *audit.Entry) error {
	return r.mutate(ctx, id, entry, func(cur *domain.Branch) {
		cur.TenantID = tenantID
		cur.IsDefault = false
	})
}

func (r memBranches) ListActiveIDsByTenant(ctx context.Context, tenantID string) ([]string, error) {
	branches, err := r.List(ctx, &BranchFilter{TenantID: tenantID, Unrestricted: true})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(branches))
	for _, b := range branches {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (r memBranches) List(_ context.Context, f *BranchFilter) ([]*domain.Branch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := map[string]bool{}
	for _, id := range f.IDs {
		ids[id] = true
	}
	out := []*domain.Branch{}
	for _, b := range r.s.branches {
		if b.DeletedAt != nil || (!f.IncludeInactive && !b.IsActive) {
			continue
		}
		if f.TenantID != "" && b.TenantID != f.TenantID {
			continue
		}
		if !f.Unrestricted && !ids[b.ID] {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- quota ---

type memQuota struct{ s *MemoryStore }

func (r memQuota) GetLimits(_ context.Context, tenantID string) (*domain.TenantLimits, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("quota.GetLimits"); err != nil {
		return nil, err
	}
	l, ok := r.s.limits[tenantID]
	if !ok {
		return nil, nil
	}
	return l.Apply(nil), nil
}

func (r memQuota) UpdateLimits(ctx context.Context, l *domain.TenantLimits, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.limits[l.TenantID]; !ok {
		return ErrLimitsNotFound
	}
	l.UpdatedAt = time.Now().UTC()
	r.s.limits[l.TenantID] = l.Apply(nil)
	r.s.appendAudit(ctx, entry)
	return nil
}

func (r memQuota) CountBranches(_ context.Context, tenantID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, b := range r.s.branches {
		if b.TenantID == tenantID && b.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (r memQuota) CountStaff(_ context.Context, tenantID, branchID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.branches[branchID]
	if !ok || b.TenantID != tenantID {
		return 0, nil
	}
	n := 0
	for sid, set := range r.s.assignments {
		if set[branchID] && r.s.staff[sid] != nil && r.s.staff[sid].IsActive {
			n++
		}
	}
	return n, nil
}

func (r memQuota) CountMembers(_ context.Context, tenantID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, m := range r.s.gymMembers {
		if m.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (r memQuota) CountTrainers(_ context.Context, tenantID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, tid := range r.s.trainers {
		if tid == tenantID {
			n++
		}
	}
	return n, nil
}

func counterKey(tenantID, period string, resource domain.Resource) string {
	return tenantID + "|" + period + "|" + string(resource)
}

func (r memQuota) GetUsageCounter(_ context.Context, tenantID, period string, resource domain.Resource) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.counters[counterKey(tenantID, period, resource)], nil
}

func (r memQuota) IncrementUsage(_ context.Context, tenantID, period string, resource domain.Resource, n int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("quota.IncrementUsage"); err != nil {
		return 0, err
	}
	k := counterKey(tenantID, period, resource)
	r.s.counters[k] += int64(n)
	return r.s.counters[k], nil
}

// --- credentials ---

type memCreds struct{ s *MemoryStore }

func (r memCreds) Get(_ context.Context, tenantID string) (*domain.PaymentCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.creds[tenantID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r memCreds) Upsert(ctx context.Context, c *domain.PaymentCredential, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("credentials.Upsert"); err != nil {
		return err
	}
	cp := *c
	if prev, ok := r.s.creds[c.TenantID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	r.s.creds[c.TenantID] = &cp
	r.s.appendAudit(ctx, entry)
	return nil
}

func (r memCreds) Delete(ctx context.Context, tenantID string, entry *audit.Entry) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.creds[tenantID]; !ok {
		return false, nil
	}
	delete(r.s.creds, tenantID)
	r.s.appendAudit(ctx, entry)
	return true, nil
}

// --- members ---

type memMembers struct{ s *MemoryStore }

func (r memMembers) List(_ context.Context, f *MemberFilter) ([]*domain.Member, int, error) {
	if !f.Unrestricted && len(f.BranchIDs) == 0 {
		return []*domain.Member{}, 0, nil
	}
	r.s.MemberReads.Add(1)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	allowed := map[string]bool{}
	for _, id := range f.BranchIDs {
		allowed[id] = true
	}
	out := []*domain.Member{}
	for _, m := range r.s.gymMembers {
		if f.Unrestricted || allowed[m.BranchID] {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, f.Offset, f.Limit), len(out), nil
}
