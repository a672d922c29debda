package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/gateway"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/identity"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/saga"
	"github.com/stretchr/testify/require"
)

type fakeIdentity struct {
	mu        sync.Mutex
	users     map[string]*identity.User // by email
	passwords map[string]string
	deleted   []string
	createErr error
	deleteErr error
	seq       int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{users: map[string]*identity.User{}, passwords: map[string]string{}}
}

func (f *fakeIdentity) add(id, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email] = &identity.User{ID: id, Email: email}
}

func (f *fakeIdentity) FindUserByEmail(_ context.Context, email string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[email], nil
}

func (f *fakeIdentity) CreateUser(_ context.Context, email, password string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	u := &identity.User{ID: fmt.Sprintf("user-%d", f.seq), Email: email, EmailVerified: true}
	f.users[email] = u
	f.passwords[u.ID] = password
	return u, nil
}

func (f *fakeIdentity) DeleteUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, userID)
	for email, u := range f.users {
		if u.ID == userID {
			delete(f.users, email)
		}
	}
	return nil
}

type fakeBilling struct {
	mu    sync.Mutex
	calls []*gateway.CreateCustomerRequest
	err   error
}

func (f *fakeBilling) CreateCustomer(_ context.Context, req *gateway.CreateCustomerRequest) (*gateway.CustomerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.CustomerResponse{CustomerID: "cus_" + req.TenantID[:8], Email: req.Email, Name: req.Name}, nil
}

func (f *fakeBilling) Name() string { return "fake" }

type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) Verify(context.Context, string, string) error {
	f.calls++
	return f.err
}

func (f *fakeVerifier) Name() string { return "fake" }

type publishedEvent struct {
	topic string
	key   string
	value []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{topic: topic, key: key, value: value})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

var errBoom = errors.New("boom")

type harness struct {
	store    *repository.MemoryStore
	recorder *audit.Recorder
	identity *fakeIdentity
	billing  *fakeBilling
	events   *fakePublisher
	sagas    *saga.MemoryStore
	quota    QuotaService
	svc      ProvisioningService
}

func newHarness(t *testing.T, policy string) *harness {
	t.Helper()
	h := &harness{
		store:    repository.NewMemoryStore(),
		recorder: audit.NewRecorder(),
		identity: newFakeIdentity(),
		billing:  &fakeBilling{},
		events:   &fakePublisher{},
		sagas:    saga.NewMemoryStore(),
	}
	h.quota = NewQuotaService(h.store.Tenants(), h.store.Quota(), h.store.Branches(), h.recorder, nil, nil)
	svc, err := NewProvisioningService(ProvisioningDeps{
		Tenants:      h.store.Tenants(),
		Provisioning: h.store.Provisioning(),
		Access:       h.store.Access(),
		Quota:        h.store.Quota(),
		Usage:        h.quota,
		Identity:     h.identity,
		Billing:      h.billing,
		Publisher:    h.events,
		Audit:        h.recorder,
		Orchestrator: saga.NewOrchestrator(&saga.OrchestratorConfig{Store: h.sagas, RetryBackoff: time.Millisecond}),
	}, ProvisioningConfig{BillingFailurePolicy: policy, EventsTopic: "tenant-events"})
	require.NoError(t, err)
	h.svc = svc
	return h
}

// seedTenant stores an active tenant with default limits
func seedTenant(s *repository.MemoryStore, id, slug string) {
	now := time.Now().UTC()
	s.PutTenant(&domain.Tenant{ID: id, Name: slug, Slug: slug, IsActive: true, CreatedAt: now, UpdatedAt: now}, domain.DefaultLimits(id))
}

func seedBranch(s *repository.MemoryStore, id, tenantID string) {
	s.PutBranch(&domain.Branch{ID: id, TenantID: tenantID, Name: id, IsActive: true, CreatedAt: time.Now().UTC()})
}

func intPtr(v int) *int { return &v }
