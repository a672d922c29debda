package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/access"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/di"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/handler"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/identity"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/service"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/vault"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/middleware"
	"github.com/prohmpiriya/gym-platform/pkg/saga"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-functions"

// Fixture ids
const (
	tenantA  = "11111111-1111-4111-8111-111111111111"
	tenantB  = "22222222-2222-4222-8222-222222222222"
	branchA1 = "aaaaaaaa-0000-4000-8000-000000000001"
	branchA2 = "aaaaaaaa-0000-4000-8000-000000000002"
	branchB1 = "bbbbbbbb-0000-4000-8000-000000000001"

	operatorID = "op-1"
	ownerID    = "owner-a"
	staffID    = "staff-user-1"
	clerkID    = "clerk-user-1"
	nobodyID   = "nobody-1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubIdentity struct {
	mu    sync.Mutex
	users map[string]*identity.User
	seq   int
}

func (s *stubIdentity) FindUserByEmail(_ context.Context, email string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[email], nil
}

func (s *stubIdentity) CreateUser(_ context.Context, email, _ string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	u := &identity.User{ID: fmt.Sprintf("new-user-%d", s.seq), Email: email}
	s.users[email] = u
	return u, nil
}

func (s *stubIdentity) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, u := range s.users {
		if u.ID == userID {
			delete(s.users, email)
		}
	}
	return nil
}

type stubVerifier struct{ err error }

func (v stubVerifier) Verify(context.Context, string, string) error { return v.err }
func (v stubVerifier) Name() string                                 { return "stub" }

type server struct {
	store    *repository.MemoryStore
	recorder *audit.Recorder
	router   *gin.Engine
}

// newServer wires the real container over a seeded MemoryStore:
// tenant A (branches A1, A2) owned by ownerID, tenant B (branch B1), an
// operator, a staff user assigned to A1 with view_members, a clerk assigned
// to A1 without capabilities, and an authenticated user with no role.
func newServer(t *testing.T) *server {
	t.Helper()
	store := repository.NewMemoryStore()
	recorder := audit.NewRecorder()
	seed(store)

	cipher, err := vault.NewCipher("vault-test-key")
	require.NoError(t, err)

	c, err := di.NewContainer(&di.ContainerConfig{
		Repos:        di.MemoryRepositories(store),
		Identity:     &stubIdentity{users: map[string]*identity.User{}},
		Verifier:     stubVerifier{},
		Cipher:       cipher,
		Audit:        recorder,
		Orchestrator: saga.NewOrchestrator(&saga.OrchestratorConfig{RetryBackoff: time.Millisecond}),
		AuthzMode:    access.ModeEnforce,
		Provisioning: service.ProvisioningConfig{BillingFailurePolicy: service.BillingFailureContinue},
	})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/health", c.HealthHandler.Health)
	jwtCfg := &middleware.JWTConfig{Secret: testSecret}
	functions := router.Group("/functions/v1",
		middleware.BearerAuth(middleware.NewTokenAuthenticator(jwtCfg, nil, nil), jwtCfg),
		handler.Principal(c.Roles))
	c.FunctionsHandler.Register(functions)

	return &server{store: store, recorder: recorder, router: router}
}

func seed(s *repository.MemoryStore) {
	now := time.Now().UTC()
	for _, t := range []struct{ id, slug string }{{tenantA, "alpha"}, {tenantB, "bravo"}} {
		limits := domain.DefaultLimits(t.id)
		limits.MaxBranches = 5
		s.PutTenant(&domain.Tenant{ID: t.id, Name: t.slug, Slug: t.slug, IsActive: true, CreatedAt: now, UpdatedAt: now}, limits)
	}
	for _, b := range []struct{ id, tenant string }{{branchA1, tenantA}, {branchA2, tenantA}, {branchB1, tenantB}} {
		s.PutBranch(&domain.Branch{ID: b.id, TenantID: b.tenant, Name: b.id[:8], IsActive: true, CreatedAt: now})
		s.PutMember(&domain.Member{ID: "gm-" + b.id, TenantID: b.tenant, BranchID: b.id, FullName: "Member " + b.id[:8], CreatedAt: now})
	}

	s.GrantRole(operatorID, domain.RoleSuperAdmin)
	s.GrantRole(ownerID, domain.RoleTenantAdmin)
	s.PutMembership(&domain.TenantMember{ID: "tm-1", TenantID: tenantA, UserID: ownerID, Role: domain.MemberRoleAdmin, IsOwner: true, CreatedAt: now})

	s.PutStaff(&domain.Staff{ID: "st-1", UserID: staffID, IsActive: true, CreatedAt: now},
		domain.NewCapabilitySet(domain.CapViewMembers, domain.CapSendMessages), branchA1)
	s.PutStaff(&domain.Staff{ID: "st-2", UserID: clerkID, IsActive: true, CreatedAt: now},
		domain.NewCapabilitySet(), branchA1)
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// call performs a request as userID. An empty userID sends no token.
func (s *server) call(t *testing.T, method, target, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
