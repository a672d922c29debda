package service

import (
	"errors"

	"github.com/prohmpiriya/gym-platform/pkg/apperror"
)

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantExists       = errors.New("tenant with this slug already exists")
	ErrTenantSuspended    = errors.New("tenant is suspended")
	ErrOwnerAlreadyBound  = errors.New("owner already belongs to a tenant")
	ErrLimitsMissing      = errors.New("tenant limits not configured")
	ErrBranchNotFound     = errors.New("branch not found")
	ErrNotMetered         = errors.New("resource is not metered")
	ErrVaultUnavailable   = errors.New("credential vault not configured")
	ErrVerificationFailed = errors.New("payment gateway verification failed")
)

// classify wraps a sentinel into a typed error so errors.Is keeps working
// through the transport mapping
func classify(kind apperror.Kind, msg string, sentinel error) error {
	return apperror.Wrap(kind, msg, sentinel)
}

func notFoundTenant() error {
	return classify(apperror.KindNotFound, "Tenant not found", ErrTenantNotFound)
}

func notFoundBranch() error {
	return classify(apperror.KindNotFound, "Branch not found", ErrBranchNotFound)
}
