package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
)

// PostgresMemberRepository implements MemberRepository using PostgreSQL
type PostgresMemberRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresMemberRepository creates a new PostgresMemberRepository
func NewPostgresMemberRepository(pool *pgxpool.Pool) *PostgresMemberRepository {
	return &PostgresMemberRepository{pool: pool}
}

// List never queries when the filter is bounded to zero branches
func (r *PostgresMemberRepository) List(ctx context.Context, filter *MemberFilter) ([]*domain.Member, int, error) {
	if !filter.Unrestricted && len(filter.BranchIDs) == 0 {
		return []*domain.Member{}, 0, nil
	}

	whereClause := "WHERE deleted_at IS NULL"
	args := []interface{}{}
	if !filter.Unrestricted {
		whereClause += " AND branch_id = ANY($1)"
		args = append(args, filter.BranchIDs)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM members "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, COALESCE(branch_id::text, ''), full_name, COALESCE(email, ''), COALESCE(phone, ''),
		       status, created_at
		FROM members %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, whereClause, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	members := make([]*domain.Member, 0)
	for rows.Next() {
		m := &domain.Member{}
		if err := rows.Scan(&m.ID, &m.TenantID, &m.BranchID, &m.FullName, &m.Email, &m.Phone,
			&m.Status, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		members = append(members, m)
	}
	return members, total, rows.Err()
}
