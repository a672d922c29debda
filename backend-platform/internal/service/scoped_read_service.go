package service

import (
	"context"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
)

// ScopedReadService reads branch-scoped rows. An empty scope returns no rows
// without touching the store.
type ScopedReadService interface {
	Branches(ctx context.Context, scope domain.Scope) ([]*domain.Branch, error)
	Members(ctx context.Context, scope domain.Scope, limit, offset int) ([]*domain.Member, int, error)
}

type scopedReadService struct {
	branches repository.BranchRepository
	members  repository.MemberRepository
}

// NewScopedReadService creates a ScopedReadService
func NewScopedReadService(branches repository.BranchRepository, members repository.MemberRepository) ScopedReadService {
	return &scopedReadService{branches: branches, members: members}
}

func (s *scopedReadService) Branches(ctx context.Context, scope domain.Scope) ([]*domain.Branch, error) {
	if scope.Empty() {
		return []*domain.Branch{}, nil
	}
	out, err := s.branches.List(ctx, &repository.BranchFilter{IDs: scope.BranchIDs, Unrestricted: scope.Unrestricted})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return out, nil
}

func (s *scopedReadService) Members(ctx context.Context, scope domain.Scope, limit, offset int) ([]*domain.Member, int, error) {
	if scope.Empty() {
		return []*domain.Member{}, 0, nil
	}
	out, total, err := s.members.List(ctx, &repository.MemberFilter{
		BranchIDs:    scope.BranchIDs,
		Unrestricted: scope.Unrestricted,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return out, total, nil
}
