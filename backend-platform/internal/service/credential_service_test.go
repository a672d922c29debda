package service

import (
	"context"
	"testing"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/gateway"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/vault"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyID     = "rzp_test_AbCdEf1234567890"
	testKeySecret = "sk-very-secret-value-9876"
)

func newCredentialFixture(t *testing.T, verifier *fakeVerifier, withCipher bool) (*repository.MemoryStore, *audit.Recorder, *vault.Cipher, CredentialService) {
	t.Helper()
	store := repository.NewMemoryStore()
	seedTenant(store, "t-1", "north")
	rec := audit.NewRecorder()

	var cipher *vault.Cipher
	if withCipher {
		var err error
		cipher, err = vault.NewCipher("test-encryption-key")
		require.NoError(t, err)
	}
	return store, rec, cipher, NewCredentialService(store.Tenants(), store.Credentials(), verifier, cipher, rec, nil, nil)
}

func TestCredentials_SaveAndStatus(t *testing.T) {
	store, _, cipher, svc := newCredentialFixture(t, &fakeVerifier{}, true)
	ctx := context.Background()

	st, err := svc.Save(ctx, "u-admin", "t-1", testKeyID, testKeySecret)
	require.NoError(t, err)
	assert.True(t, st.IsConnected)
	assert.True(t, st.IsVerified)
	assert.Equal(t, "rzp_test****7890", st.KeyID)
	assert.NotNil(t, st.VerifiedAt)

	stored, err := store.Credentials().Get(ctx, "t-1")
	require.NoError(t, err)
	assert.NotContains(t, string(stored.EncryptedSecret), testKeySecret)
	plain, err := cipher.Decrypt(stored.EncryptedSecret, stored.IV, []byte("t-1"))
	require.NoError(t, err)
	assert.Equal(t, testKeySecret, string(plain))

	// the ciphertext is bound to its tenant
	_, err = cipher.Decrypt(stored.EncryptedSecret, stored.IV, []byte("t-2"))
	assert.Error(t, err)

	got, err := svc.Status(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, st.KeyID, got.KeyID)

	var saved *audit.Entry
	for _, e := range store.AuditEntries() {
		if e.Action == audit.ActionPaymentCredentialsSaved {
			saved = e
		}
	}
	require.NotNil(t, saved)
	assert.NotContains(t, saved.NewValue["key_secret"], testKeySecret)
	assert.Equal(t, "rzp_test****7890", saved.NewValue["key_id"])
}

func TestCredentials_VerificationFailurePersistsNothing(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"rejected", gateway.ErrCredentialsRejected, "Invalid payment gateway credentials"},
		{"unreachable", errBoom, "Payment gateway could not verify the credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, rec, _, svc := newCredentialFixture(t, &fakeVerifier{err: tt.err}, true)
			ctx := context.Background()

			_, err := svc.Save(ctx, "u-admin", "t-1", testKeyID, testKeySecret)
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.KindUpstreamVerification))
			assert.ErrorIs(t, err, ErrVerificationFailed)
			assert.Equal(t, tt.wantMsg, apperror.PublicMessage(err))

			st, err := svc.Status(ctx, "t-1")
			require.NoError(t, err)
			assert.False(t, st.IsConnected)
			assert.Empty(t, store.AuditEntries())
			assert.Len(t, rec.ByAction(audit.ActionPaymentCredentialsRejected), 1)
		})
	}
}

func TestCredentials_SaveValidation(t *testing.T) {
	verifier := &fakeVerifier{}
	_, _, _, svc := newCredentialFixture(t, verifier, true)
	ctx := context.Background()

	tests := []struct {
		name     string
		tenantID string
		keyID    string
		secret   string
		kind     apperror.Kind
	}{
		{"missing key id", "t-1", "", testKeySecret, apperror.KindValidation},
		{"missing secret", "t-1", testKeyID, "", apperror.KindValidation},
		{"bad key format", "t-1", "pk_live_123", testKeySecret, apperror.KindValidation},
		{"unknown tenant", "t-missing", testKeyID, testKeySecret, apperror.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(ctx, "u-admin", tt.tenantID, tt.keyID, tt.secret)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
		})
	}
	assert.Equal(t, 0, verifier.calls)
}

func TestCredentials_NoCipher(t *testing.T) {
	verifier := &fakeVerifier{}
	_, _, _, svc := newCredentialFixture(t, verifier, false)

	_, err := svc.Save(context.Background(), "u-admin", "t-1", testKeyID, testKeySecret)
	assert.True(t, apperror.Is(err, apperror.KindInternal))
	assert.ErrorIs(t, err, ErrVaultUnavailable)
	assert.Equal(t, 0, verifier.calls)
}

func TestCredentials_Remove(t *testing.T) {
	store, _, _, svc := newCredentialFixture(t, &fakeVerifier{}, true)
	ctx := context.Background()

	err := svc.Remove(ctx, "u-admin", "t-1")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = svc.Save(ctx, "u-admin", "t-1", testKeyID, testKeySecret)
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, "u-admin", "t-1"))

	st, err := svc.Status(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, st.IsConnected)

	actions := []audit.Action{}
	for _, e := range store.AuditEntries() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.Action{audit.ActionPaymentCredentialsSaved, audit.ActionPaymentCredentialsRemoved}, actions)
}
