package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
)

// PostgresAccessRepository implements AccessRepository using PostgreSQL
type PostgresAccessRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAccessRepository creates a new PostgresAccessRepository
func NewPostgresAccessRepository(pool *pgxpool.Pool) *PostgresAccessRepository {
	return &PostgresAccessRepository{pool: pool}
}

func (r *PostgresAccessRepository) ListAdminRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT role FROM user_roles
		WHERE user_id = $1 AND role = ANY($2)
		ORDER BY role`, userID, domain.AdminRoles)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PostgresAccessRepository) ListActiveStaff(ctx context.Context, userID string) ([]*domain.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, is_active, created_at
		FROM staff
		WHERE user_id = $1 AND is_active
		ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := make([]*domain.Staff, 0)
	for rows.Next() {
		s := &domain.Staff{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}

// GetStaffPermissions maps the boolean columns of staff_permissions onto a
// CapabilitySet. A missing row grants nothing.
func (r *PostgresAccessRepository) GetStaffPermissions(ctx context.Context, staffID string) (domain.CapabilitySet, error) {
	var flags [9]bool
	err := r.pool.QueryRow(ctx, `
		SELECT view_members, manage_members, access_payments, access_ledger, change_settings,
		       view_analytics, manage_attendance, manage_staff, send_messages
		FROM staff_permissions WHERE staff_id = $1`, staffID).Scan(
		&flags[0], &flags[1], &flags[2], &flags[3], &flags[4],
		&flags[5], &flags[6], &flags[7], &flags[8],
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}

	order := []domain.Capability{
		domain.CapViewMembers, domain.CapManageMembers, domain.CapAccessPayments, domain.CapAccessLedger,
		domain.CapChangeSettings, domain.CapViewAnalytics, domain.CapManageAttendance, domain.CapManageStaff,
		domain.CapSendMessages,
	}
	var set domain.CapabilitySet
	for i, granted := range flags {
		if granted {
			set = set.With(order[i])
		}
	}
	return set, nil
}

func (r *PostgresAccessRepository) ListStaffBranches(ctx context.Context, staffIDs []string) ([]string, error) {
	if len(staffIDs) == 0 {
		return []string{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT a.branch_id
		FROM staff_branch_assignments a
		JOIN branches b ON b.id = a.branch_id
		WHERE a.staff_id = ANY($1) AND b.deleted_at IS NULL AND b.is_active
		ORDER BY a.branch_id`, staffIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PostgresAccessRepository) FindLatestMembership(ctx context.Context, userID string) (*domain.TenantMember, error) {
	m := &domain.TenantMember{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, role, is_owner, created_at
		FROM tenant_members
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, userID).Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.IsOwner, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}
