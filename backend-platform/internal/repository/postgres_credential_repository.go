package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
)

// PostgresCredentialRepository implements CredentialRepository using PostgreSQL
type PostgresCredentialRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCredentialRepository creates a new PostgresCredentialRepository
func NewPostgresCredentialRepository(pool *pgxpool.Pool) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{pool: pool}
}

func (r *PostgresCredentialRepository) Get(ctx context.Context, tenantID string) (*domain.PaymentCredential, error) {
	c := &domain.PaymentCredential{}
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id, key_id, encrypted_secret, iv, is_verified, verified_at,
		       COALESCE(created_by::text, ''), created_at, updated_at
		FROM payment_credentials WHERE tenant_id = $1`, tenantID).Scan(
		&c.TenantID, &c.KeyID, &c.EncryptedSecret, &c.IV, &c.IsVerified, &c.VerifiedAt,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// Upsert replaces the tenant's credential set wholesale
func (r *PostgresCredentialRepository) Upsert(ctx context.Context, c *domain.PaymentCredential, entry *audit.Entry) error {
	return withAudit(ctx, r.pool, entry, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_credentials (tenant_id, key_id, encrypted_secret, iv, is_verified, verified_at,
			                                 created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (tenant_id) DO UPDATE SET
				key_id = EXCLUDED.key_id,
				encrypted_secret = EXCLUDED.encrypted_secret,
				iv = EXCLUDED.iv,
				is_verified = EXCLUDED.is_verified,
				verified_at = EXCLUDED.verified_at,
				created_by = EXCLUDED.created_by,
				updated_at = EXCLUDED.updated_at`,
			c.TenantID, c.KeyID, c.EncryptedSecret, c.IV, c.IsVerified, c.VerifiedAt,
			nullStringOrValue(c.CreatedBy), c.CreatedAt, c.UpdatedAt)
		return err
	})
}

func (r *PostgresCredentialRepository) Delete(ctx context.Context, tenantID string, entry *audit.Entry) (bool, error) {
	err := withAudit(ctx, r.pool, entry, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM payment_credentials WHERE tenant_id = $1`, tenantID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errNoRowsAffected
		}
		return nil
	})
	if errors.Is(err, errNoRowsAffected) {
		return false, nil
	}
	return err == nil, err
}
