package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/gateway"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/vault"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"github.com/prohmpiriya/gym-platform/pkg/telemetry"
	"go.uber.org/zap"
)

// CredentialStatus is the only view of a stored credential
type CredentialStatus struct {
	IsConnected bool       `json:"isConnected"`
	KeyID       string     `json:"keyId,omitempty"`
	IsVerified  bool       `json:"isVerified"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// CredentialService is the tenant payment credential vault
type CredentialService interface {
	// Save verifies the pair upstream before anything is stored
	Save(ctx context.Context, actorID, tenantID, keyID, keySecret string) (*CredentialStatus, error)
	Status(ctx context.Context, tenantID string) (*CredentialStatus, error)
	Remove(ctx context.Context, actorID, tenantID string) error
}

type credentialService struct {
	tenants  repository.TenantRepository
	creds    repository.CredentialRepository
	verifier gateway.CredentialVerifier
	cipher   *vault.Cipher
	audit    audit.Appender
	metrics  *telemetry.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// NewCredentialService creates a CredentialService. A nil cipher makes every
// save fail with an internal error.
func NewCredentialService(
	tenants repository.TenantRepository,
	creds repository.CredentialRepository,
	verifier gateway.CredentialVerifier,
	cipher *vault.Cipher,
	appender audit.Appender,
	metrics *telemetry.Metrics,
	log *logger.Logger,
) CredentialService {
	if log == nil {
		log = logger.Nop()
	}
	return &credentialService{
		tenants:  tenants,
		creds:    creds,
		verifier: verifier,
		cipher:   cipher,
		audit:    appender,
		metrics:  metrics,
		log:      log.Named("vault"),
		now:      time.Now,
	}
}

func (s *credentialService) Save(ctx context.Context, actorID, tenantID, keyID, keySecret string) (*CredentialStatus, error) {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" || keySecret == "" {
		return nil, apperror.Validation("keyId and keySecret are required")
	}
	if !vault.ValidKeyID(keyID) {
		return nil, apperror.Validation("Invalid key id format")
	}
	if s.cipher == nil {
		return nil, apperror.Internal(ErrVaultUnavailable)
	}

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if tenant == nil {
		return nil, notFoundTenant()
	}

	if err := s.verifier.Verify(ctx, keyID, keySecret); err != nil {
		s.metrics.RecordVerification(ctx, false)
		s.log.WarnContext(ctx, "payment credential verification failed",
			zap.String("tenant_id", tenantID),
			zap.String("key_id", vault.MaskKeyID(keyID)),
			zap.String("gateway", s.verifier.Name()),
			zap.Error(err))
		s.audit.Append(ctx, &audit.Entry{
			ActorID:        actorID,
			Action:         audit.ActionPaymentCredentialsRejected,
			TargetTenantID: audit.StringPtr(tenantID),
			Description:    "Payment credentials rejected by gateway",
			Metadata:       map[string]interface{}{"key_id": vault.MaskKeyID(keyID)},
		})
		msg := "Payment gateway could not verify the credentials"
		if errors.Is(err, gateway.ErrCredentialsRejected) {
			msg = "Invalid payment gateway credentials"
		}
		return nil, apperror.UpstreamVerification(msg, errors.Join(ErrVerificationFailed, err))
	}
	s.metrics.RecordVerification(ctx, true)

	ciphertext, iv, err := s.cipher.Encrypt([]byte(keySecret), []byte(tenantID))
	if err != nil {
		return nil, apperror.Internal(err)
	}

	now := s.now().UTC()
	cred := &domain.PaymentCredential{
		TenantID:        tenantID,
		KeyID:           keyID,
		EncryptedSecret: ciphertext,
		IV:              iv,
		IsVerified:      true,
		VerifiedAt:      &now,
		CreatedBy:       actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	entry := &audit.Entry{
		ActorID:        actorID,
		Action:         audit.ActionPaymentCredentialsSaved,
		TargetTenantID: audit.StringPtr(tenantID),
		Description:    "Payment credentials saved and verified",
		NewValue: map[string]interface{}{
			"key_id":     vault.MaskKeyID(keyID),
			"key_secret": vault.MaskSecret(keySecret),
		},
	}
	if err := s.creds.Upsert(ctx, cred, entry); err != nil {
		return nil, apperror.Internal(err)
	}

	s.log.InfoContext(ctx, "payment credentials saved",
		zap.String("tenant_id", tenantID),
		zap.String("key_id", vault.MaskKeyID(keyID)))
	return statusOf(cred), nil
}

func (s *credentialService) Status(ctx context.Context, tenantID string) (*CredentialStatus, error) {
	cred, err := s.creds.Get(ctx, tenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return statusOf(cred), nil
}

func (s *credentialService) Remove(ctx context.Context, actorID, tenantID string) error {
	entry := &audit.Entry{
		ActorID:        actorID,
		Action:         audit.ActionPaymentCredentialsRemoved,
		TargetTenantID: audit.StringPtr(tenantID),
		Description:    "Payment credentials removed",
	}
	removed, err := s.creds.Delete(ctx, tenantID, entry)
	if err != nil {
		return apperror.Internal(err)
	}
	if !removed {
		return apperror.NotFound("No payment credentials configured")
	}
	s.log.InfoContext(ctx, "payment credentials removed", zap.String("tenant_id", tenantID))
	return nil
}

func statusOf(c *domain.PaymentCredential) *CredentialStatus {
	if c == nil {
		return &CredentialStatus{}
	}
	updated := c.UpdatedAt
	return &CredentialStatus{
		IsConnected: true,
		KeyID:       vault.MaskKeyID(c.KeyID),
		IsVerified:  c.IsVerified,
		VerifiedAt:  c.VerifiedAt,
		UpdatedAt:   &updated,
	}
}
