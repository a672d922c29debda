package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
)

// ErrBranchNotFound is returned by branch mutations on a missing row
var ErrBranchNotFound = errors.New("branch not found")

const branchColumns = `id, tenant_id, name, COALESCE(address, ''), COALESCE(phone, ''), COALESCE(email, ''),
	is_default, is_active, created_at, updated_at, deleted_at`

// PostgresBranchRepository implements BranchRepository using PostgreSQL
type PostgresBranchRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBranchRepository creates a new PostgresBranchRepository
func NewPostgresBranchRepository(pool *pgxpool.Pool) *PostgresBranchRepository {
	return &PostgresBranchRepository{pool: pool}
}

func insertBranch(ctx context.Context, tx pgx.Tx, b *domain.Branch, settings *domain.BranchSettings) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO branches (id, tenant_id, name, address, phone, email, is_default, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.TenantID, b.Name, nullStringOrValue(b.Address), nullStringOrValue(b.Phone),
		nullStringOrValue(b.Email), b.IsDefault, b.IsActive, b.CreatedAt, b.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert branch: %w", err)
	}
	if settings == nil {
		settings = domain.DefaultBranchSettings(b.ID)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO branch_settings (branch_id, timezone, currency) VALUES ($1, $2, $3)`,
		b.ID, settings.Timezone, settings.Currency,
	); err != nil {
		return fmt.Errorf("insert branch settings: %w", err)
	}
	return nil
}

func scanBranch(row pgx.Row) (*domain.Branch, error) {
	b := &domain.Branch{}
	err := row.Scan(&b.ID, &b.TenantID, &b.Name, &b.Address, &b.Phone, &b.Email,
		&b.IsDefault, &b.IsActive, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Create inserts a branch and its settings row
func (r *PostgresBranchRepository) Create(ctx context.Context, branch *domain.Branch, entry *audit.Entry) error {
	return withAudit(ctx, r.pool, entry, func(tx pgx.Tx) error {
		return insertBranch(ctx, tx, branch, nil)
	})
}

// GetByID retrieves a branch, soft-deleted rows included
func (r *PostgresBranchRepository) GetByID(ctx context.Context, id string) (*domain.Branch, error) {
	b, err := scanBranch(r.pool.QueryRow(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (r *PostgresBranchRepository) execOne(ctx context.Context, entry *audit.Entry, query string, args ...interface{}) error {
	err := withAudit(ctx, r.pool, entry, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errNoRowsAffected
		}
		return nil
	})
	if errors.Is(err, errNoRowsAffected) {
		return ErrBranchNotFound
	}
	return err
}

// Update writes the mutable branch fields
func (r *PostgresBranchRepository) Update(ctx context.Context, b *domain.Branch, entry *audit.Entry) error {
	b.UpdatedAt = time.Now().UTC()
	return r.execOne(ctx, entry, `
		UPDATE branches SET name = $2, address = $3, phone = $4, email = $5, is_active = $6, updated_at = $7
		WHERE id = $1`,
		b.ID, b.Name, nullStringOrValue(b.Address), nullStringOrValue(b.Phone), nullStringOrValue(b.Email),
		b.IsActive, b.UpdatedAt)
}

// SoftDelete marks a branch deleted and inactive
func (r *PostgresBranchRepository) SoftDelete(ctx context.Context, id string, entry *audit.Entry) error {
	now := time.Now().UTC()
	return r.execOne(ctx, entry, `
		UPDATE branches SET deleted_at = $2, is_active = false, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`, id, now)
}

// HardDelete removes the branch row. Settings and assignments cascade.
func (r *PostgresBranchRepository) HardDelete(ctx context.Context, id string, entry *audit.Entry) error {
	return r.execOne(ctx, entry, `DELETE FROM branches WHERE id = $1`, id)
}

// Move reassigns a branch to another tenant. The moved branch is never the
// target tenant's default.
func (r *PostgresBranchRepository) Move(ctx context.Context, id, tenantID string, entry *audit.Entry) error {
	return r.execOne(ctx, entry, `
		UPDATE branches SET tenant_id = $2, is_default = false, updated_at = $3
		WHERE id = $1`, id, tenantID, time.Now().UTC())
}

// ListActiveIDsByTenant returns ids of active, live branches of a tenant
func (r *PostgresBranchRepository) ListActiveIDsByTenant(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM branches
		WHERE tenant_id = $1 AND is_active AND deleted_at IS NULL
		ORDER BY is_default DESC, created_at ASC, id ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// List returns branches matching the filter, live rows only
func (r *PostgresBranchRepository) List(ctx context.Context, filter *BranchFilter) ([]*domain.Branch, error) {
	whereClause := "WHERE deleted_at IS NULL"
	args := []interface{}{}
	argIndex := 1

	if !filter.IncludeInactive {
		whereClause += " AND is_active"
	}
	if filter.TenantID != "" {
		whereClause += fmt.Sprintf(" AND tenant_id = $%d", argIndex)
		args = append(args, filter.TenantID)
		argIndex++
	}
	if !filter.Unrestricted {
		if len(filter.IDs) == 0 {
			return []*domain.Branch{}, nil
		}
		whereClause += fmt.Sprintf(" AND id = ANY($%d)", argIndex)
		args = append(args, filter.IDs)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+branchColumns+` FROM branches `+whereClause+` ORDER BY is_default DESC, created_at ASC, id ASC`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]*domain.Branch, 0)
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}
