package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"go.uber.org/zap"
)

// CreateBranchInput describes a new branch
type CreateBranchInput struct {
	TenantID string
	Name     string
	Address  string
	Phone    string
	Email    string
	// Bypass skips the branch ceiling; honored for the operator only
	Bypass bool
}

// BranchService manages branches. Tenant-admin creation is quota-checked;
// every operator mutation is unconditional and audited.
type BranchService interface {
	OwnerCreateBranch(ctx context.Context, actorID string, in *CreateBranchInput) (*domain.Branch, error)
	OperatorCreateBranch(ctx context.Context, actorID string, in *CreateBranchInput) (*domain.Branch, error)
	OperatorUpdateBranch(ctx context.Context, actorID, branchID string, patch *domain.BranchPatch) (*domain.Branch, error)
	// OperatorDeleteBranch soft-deletes unless hard is set
	OperatorDeleteBranch(ctx context.Context, actorID, branchID string, hard bool) error
	OperatorMoveBranch(ctx context.Context, actorID, branchID, targetTenantID string) (*domain.Branch, error)
	// ListBranches returns the live branches of a tenant, inactive included
	ListBranches(ctx context.Context, tenantID string) ([]*domain.Branch, error)
}

type branchService struct {
	tenants  repository.TenantRepository
	branches repository.BranchRepository
	quota    QuotaService
	log      *logger.Logger
}

// NewBranchService creates a BranchService
func NewBranchService(
	tenants repository.TenantRepository,
	branches repository.BranchRepository,
	quota QuotaService,
	log *logger.Logger,
) BranchService {
	if log == nil {
		log = logger.Nop()
	}
	return &branchService{tenants: tenants, branches: branches, quota: quota, log: log.Named("branch")}
}

func (s *branchService) OwnerCreateBranch(ctx context.Context, actorID string, in *CreateBranchInput) (*domain.Branch, error) {
	return s.create(ctx, actorID, in, false)
}

func (s *branchService) OperatorCreateBranch(ctx context.Context, actorID string, in *CreateBranchInput) (*domain.Branch, error) {
	return s.create(ctx, actorID, in, in.Bypass)
}

func (s *branchService) create(ctx context.Context, actorID string, in *CreateBranchInput, bypass bool) (*domain.Branch, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.Validation("Branch name is required")
	}

	if err := s.quota.Require(ctx, &QuotaCheck{
		TenantID: in.TenantID,
		Resource: domain.ResourceBranch,
		Bypass:   bypass,
		ActorID:  actorID,
	}); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	b := &domain.Branch{
		ID:        uuid.New().String(),
		TenantID:  in.TenantID,
		Name:      name,
		Address:   strings.TrimSpace(in.Address),
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry := &audit.Entry{
		ActorID:        actorID,
		Action:         audit.ActionBranchCreated,
		TargetTenantID: audit.StringPtr(in.TenantID),
		Description:    fmt.Sprintf("Branch %q created", name),
		NewValue:       map[string]interface{}{"branch_id": b.ID, "name": name},
		Metadata:       map[string]interface{}{"bypass": bypass},
	}
	if err := s.branches.Create(ctx, b, entry); err != nil {
		return nil, apperror.Internal(err)
	}

	s.log.InfoContext(ctx, "branch created",
		zap.String("tenant_id", in.TenantID),
		zap.String("branch_id", b.ID),
		zap.Bool("bypass", bypass))
	return b, nil
}

func (s *branchService) live(ctx context.Context, branchID string) (*domain.Branch, error) {
	b, err := s.branches.GetByID(ctx, branchID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if b == nil || b.DeletedAt != nil {
		return nil, notFoundBranch()
	}
	return b, nil
}

func (s *branchService) OperatorUpdateBranch(ctx context.Context, actorID, branchID string, patch *domain.BranchPatch) (*domain.Branch, error) {
	if patch.IsEmpty() {
		return nil, apperror.Validation("At least one field must be provided for update")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, apperror.Validation("Branch name cannot be empty")
	}

	b, err := s.live(ctx, branchID)
	if err != nil {
		return nil, err
	}
	old, changed := patch.ApplyTo(b)
	b.UpdatedAt = time.Now().UTC()

	entry := &audit.Entry{
		ActorID:        actorID,
		Action:         audit.ActionBranchUpdated,
		TargetTenantID: audit.StringPtr(b.TenantID),
		Description:    fmt.Sprintf("Branch %s updated", b.ID),
		OldValue:       old,
		NewValue:       changed,
	}
	if err := s.branches.Update(ctx, b, entry); err != nil {
		return nil, s.mutationError(err)
	}
	return b, nil
}

func (s *branchService) OperatorDeleteBranch(ctx context.Context, actorID, branchID string, hard bool) error {
	b, err := s.branches.GetByID(ctx, branchID)
	if err != nil {
		return apperror.Internal(err)
	}
	if b == nil || (b.DeletedAt != nil && !hard) {
		return notFoundBranch()
	}

	mode := "soft"
	if hard {
		mode = "hard"
	}
	entry := &audit.Entry{
		ActorID:        actorID,
		Action:         audit.ActionBranchDeleted,
		TargetTenantID: audit.StringPtr(b.TenantID),
		Description:    fmt.Sprintf("Branch %s %s-deleted", b.ID, mode),
		OldValue:       map[string]interface{}{"branch_id": b.ID, "name": b.Name, "is_active": b.IsActive},
		Metadata:       map[string]interface{}{"mode": mode},
	}
	if hard {
		err = s.branches.HardDelete(ctx, branchID, entry)
	} else {
		err = s.branches.SoftDelete(ctx, branchID, entry)
	}
	if err != nil {
		return s.mutationError(err)
	}
	s.log.InfoContext(ctx, "branch deleted", zap.String("branch_id", branchID), zap.String("mode", mode))
	return nil
}

func (s *branchService) OperatorMoveBranch(ctx context.Context, actorID, branchID, targetTenantID string) (*domain.Branch, error) {
	b, err := s.live(ctx, branchID)
	if err != nil {
		return nil, err
	}
	target, err := s.tenants.GetByID(ctx, targetTenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if target == nil || target.DeletedAt != nil {
		return nil, notFoundTenant()
	}
	if b.TenantID == targetTenantID {
		return nil, apperror.Validation("Branch already belongs to this tenant")
	}

	entry := &audit.Entry{
		ActorID:        actorID,
		Action:         audit.ActionBranchMoved,
		TargetTenantID: audit.StringPtr(targetTenantID),
		Description:    fmt.Sprintf("Branch %s moved to tenant %s", b.ID, targetTenantID),
		OldValue:       map[string]interface{}{"tenant_id": b.TenantID, "is_default": b.IsDefault},
		NewValue:       map[string]interface{}{"tenant_id": targetTenantID, "is_default": false},
	}
	if err := s.branches.Move(ctx, branchID, targetTenantID, entry); err != nil {
		return nil, s.mutationError(err)
	}
	b.TenantID, b.IsDefault = targetTenantID, false
	return b, nil
}

func (s *branchService) ListBranches(ctx context.Context, tenantID string) ([]*domain.Branch, error) {
	out, err := s.branches.List(ctx, &repository.BranchFilter{TenantID: tenantID, Unrestricted: true, IncludeInactive: true})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return out, nil
}

func (s *branchService) mutationError(err error) error {
	if errors.Is(err, repository.ErrBranchNotFound) {
		return notFoundBranch()
	}
	return apperror.Internal(err)
}
