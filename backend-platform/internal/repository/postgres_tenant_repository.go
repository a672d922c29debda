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
	"github.com/prohmpiriya/gym-platform/pkg/database"
)

// ErrDuplicateSlug is returned when a tenant slug is already taken
var ErrDuplicateSlug = errors.New("tenant slug already exists")

const tenantColumns = `id, name, slug, COALESCE(contact_email, ''), COALESCE(contact_phone, ''),
	is_active, created_at, updated_at, deleted_at`

// PostgresTenantRepository implements TenantRepository and
// ProvisioningRepository using PostgreSQL
type PostgresTenantRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTenantRepository creates a new PostgresTenantRepository
func NewPostgresTenantRepository(pool *pgxpool.Pool) *PostgresTenantRepository {
	return &PostgresTenantRepository{pool: pool}
}

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.ContactEmail, &t.ContactPhone,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID retrieves a live tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1 AND deleted_at IS NULL`
	t, err := scanTenant(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// ExistsBySlug checks if a tenant exists with the given slug
func (r *PostgresTenantRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tenants WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

// List retrieves tenants with pagination and filters
func (r *PostgresTenantRepository) List(ctx context.Context, filter *TenantFilter) ([]*domain.Tenant, int, error) {
	whereClause := "WHERE deleted_at IS NULL"
	args := []interface{}{}
	argIndex := 1

	if filter.IsActive != nil {
		whereClause += fmt.Sprintf(" AND is_active = $%d", argIndex)
		args = append(args, *filter.IsActive)
		argIndex++
	}
	if filter.Search != "" {
		whereClause += fmt.Sprintf(" AND (name ILIKE $%d OR slug ILIKE $%d)", argIndex, argIndex)
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tenants "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM tenants %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		tenantColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tenants := make([]*domain.Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, t)
	}
	return tenants, total, rows.Err()
}

// SetActive suspends or reactivates a tenant
func (r *PostgresTenantRepository) SetActive(ctx context.Context, id string, active bool, entry *audit.Entry) (bool, error) {
	err := withAudit(ctx, r.pool, entry, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE tenants SET is_active = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
			id, active, time.Now().UTC())
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

// CreateTenantBundle inserts tenant, limits, owner membership, admin role,
// default branch, branch settings, billing placeholder and the audit entry
// in one transaction
func (r *PostgresTenantRepository) CreateTenantBundle(ctx context.Context, b *domain.TenantBundle, entry *audit.Entry) (bool, error) {
	features, err := json.Marshal(b.Limits.Features)
	if err != nil {
		return false, fmt.Errorf("failed to marshal features: %w", err)
	}

	var granted bool
	err = withAudit(ctx, r.pool, entry, func(tx pgx.Tx) error {
		t := b.Tenant
		if _, err := tx.Exec(ctx, `
			INSERT INTO tenants (id, name, slug, contact_email, contact_phone, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, t.Name, t.Slug, nullStringOrValue(t.ContactEmail), nullStringOrValue(t.ContactPhone),
			t.IsActive, t.CreatedAt, t.UpdatedAt,
		); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateSlug
			}
			return fmt.Errorf("insert tenant: %w", err)
		}

		l := b.Limits
		if _, err := tx.Exec(ctx, `
			INSERT INTO tenant_limits (tenant_id, max_branches, max_staff_per_branch, max_members,
			                           max_trainers, max_monthly_messages, features, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, l.MaxBranches, l.MaxStaffPerBranch, l.MaxMembers, l.MaxTrainers, l.MaxMonthlyMessages,
			features, t.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert tenant limits: %w", err)
		}

		m := b.Owner
		if _, err := tx.Exec(ctx, `
			INSERT INTO tenant_members (id, tenant_id, user_id, role, is_owner, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, t.ID, m.UserID, m.Role, m.IsOwner, m.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert tenant member: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, role) DO NOTHING`,
			m.UserID, domain.RoleAdmin, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("grant admin role: %w", err)
		}
		granted = tag.RowsAffected() == 1

		if err := insertBranch(ctx, tx, b.Branch, b.BranchSettings); err != nil {
			return err
		}

		bill := b.Billing
		if _, err := tx.Exec(ctx, `
			INSERT INTO tenant_billing (tenant_id, plan, status, billing_email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, bill.Plan, bill.Status, nullStringOrValue(bill.BillingEmail), bill.CreatedAt, bill.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert billing placeholder: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

// PurgeTenant removes a tenant and everything it owns. Audit rows are kept.
func (r *PostgresTenantRepository) PurgeTenant(ctx context.Context, tenantID string, revokeAdmin bool) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var stmts []string
		if revokeAdmin {
			stmts = append(stmts, `DELETE FROM user_roles ur USING tenant_members tm
			  WHERE tm.tenant_id = $1 AND tm.is_owner AND ur.user_id = tm.user_id AND ur.role = 'admin'`)
		}
		stmts = append(stmts,
			`DELETE FROM tenant_members WHERE tenant_id = $1`,
			`DELETE FROM tenant_billing WHERE tenant_id = $1`,
			`DELETE FROM tenant_limits WHERE tenant_id = $1`,
			`DELETE FROM tenant_usage_counters WHERE tenant_id = $1`,
			`DELETE FROM payment_credentials WHERE tenant_id = $1`,
			`DELETE FROM members WHERE tenant_id = $1`,
			`DELETE FROM trainers WHERE tenant_id = $1`,
			`DELETE FROM branches WHERE tenant_id = $1`,
			`DELETE FROM tenants WHERE id = $1`,
		)
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt, tenantID); err != nil {
				return fmt.Errorf("purge tenant: %w", err)
			}
		}
		return nil
	})
}

// SetBillingCustomer records the platform billing customer of a tenant
func (r *PostgresTenantRepository) SetBillingCustomer(ctx context.Context, tenantID, customerID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tenant_billing SET stripe_customer_id = $2, status = $3, updated_at = $4
		WHERE tenant_id = $1`,
		tenantID, customerID, domain.BillingStatusActive, time.Now().UTC())
	return err
}
