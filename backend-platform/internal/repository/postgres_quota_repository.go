package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
)

// ErrLimitsNotFound is returned when updating limits of a tenant without a row
var ErrLimitsNotFound = errors.New("tenant limits not found")

// PostgresQuotaRepository implements QuotaRepository using PostgreSQL
type PostgresQuotaRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresQuotaRepository creates a new PostgresQuotaRepository
func NewPostgresQuotaRepository(pool *pgxpool.Pool) *PostgresQuotaRepository {
	return &PostgresQuotaRepository{pool: pool}
}

func (r *PostgresQuotaRepository) GetLimits(ctx context.Context, tenantID string) (*domain.TenantLimits, error) {
	l := &domain.TenantLimits{TenantID: tenantID}
	var features []byte
	err := r.pool.QueryRow(ctx, `
		SELECT max_branches, max_staff_per_branch, max_members, max_trainers, max_monthly_messages,
		       COALESCE(features, '{}'::jsonb), updated_at
		FROM tenant_limits WHERE tenant_id = $1`, tenantID).Scan(
		&l.MaxBranches, &l.MaxStaffPerBranch, &l.MaxMembers, &l.MaxTrainers, &l.MaxMonthlyMessages,
		&features, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(features, &l.Features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal features: %w", err)
	}
	return l, nil
}

func (r *PostgresQuotaRepository) UpdateLimits(ctx context.Context, l *domain.TenantLimits, entry *audit.Entry) error {
	features, err := json.Marshal(l.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	l.UpdatedAt = time.Now().UTC()

	err = withAudit(ctx, r.pool, entry, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tenant_limits
			SET max_branches = $2, max_staff_per_branch = $3, max_members = $4, max_trainers = $5,
			    max_monthly_messages = $6, features = $7, updated_at = $8
			WHERE tenant_id = $1`,
			l.TenantID, l.MaxBranches, l.MaxStaffPerBranch, l.MaxMembers, l.MaxTrainers,
			l.MaxMonthlyMessages, features, l.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errNoRowsAffected
		}
		return nil
	})
	if errors.Is(err, errNoRowsAffected) {
		return ErrLimitsNotFound
	}
	return err
}

func (r *PostgresQuotaRepository) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *PostgresQuotaRepository) CountBranches(ctx context.Context, tenantID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM branches WHERE tenant_id = $1 AND deleted_at IS NULL`, tenantID)
}

func (r *PostgresQuotaRepository) CountStaff(ctx context.Context, tenantID, branchID string) (int, error) {
	return r.count(ctx, `
		SELECT COUNT(DISTINCT s.id)
		FROM staff s
		JOIN staff_branch_assignments a ON a.staff_id = s.id
		JOIN branches b ON b.id = a.branch_id
		WHERE b.tenant_id = $1 AND b.id = $2 AND s.is_active`, tenantID, branchID)
}

func (r *PostgresQuotaRepository) CountMembers(ctx context.Context, tenantID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM members WHERE tenant_id = $1 AND deleted_at IS NULL`, tenantID)
}

func (r *PostgresQuotaRepository) CountTrainers(ctx context.Context, tenantID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM trainers WHERE tenant_id = $1 AND deleted_at IS NULL`, tenantID)
}

func (r *PostgresQuotaRepository) GetUsageCounter(ctx context.Context, tenantID, period string, resource domain.Resource) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count FROM tenant_usage_counters
		WHERE tenant_id = $1 AND period = $2 AND resource = $3`,
		tenantID, period, string(resource)).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// IncrementUsage is a single upsert so concurrent callers never lose an update
func (r *PostgresQuotaRepository) IncrementUsage(ctx context.Context, tenantID, period string, resource domain.Resource, n int) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tenant_usage_counters (tenant_id, period, resource, count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, period, resource)
		DO UPDATE SET count = tenant_usage_counters.count + EXCLUDED.count, updated_at = NOW()
		RETURNING count`,
		tenantID, period, string(resource), n).Scan(&total)
	return total, err
}
