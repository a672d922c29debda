package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	pkgredis "github.com/prohmpiriya/gym-platform/pkg/redis"
	"go.uber.org/zap"
)

const limitsKeyPrefix = "tenant_limits:"

// CachedQuotaRepository serves GetLimits through Redis. Every other call goes
// straight to the wrapped repository. Cache errors fall back to the store.
type CachedQuotaRepository struct {
	QuotaRepository
	client *pkgredis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewCachedQuotaRepository wraps next with a read-through limits cache
func NewCachedQuotaRepository(next QuotaRepository, client *pkgredis.Client, ttl time.Duration, log *logger.Logger) *CachedQuotaRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedQuotaRepository{QuotaRepository: next, client: client, ttl: ttl, log: log.Named("limits-cache")}
}

func limitsKey(tenantID string) string {
	return limitsKeyPrefix + tenantID
}

// GetLimits reads the cache first. Absent rows are not cached so a newly
// provisioned tenant is visible immediately.
func (r *CachedQuotaRepository) GetLimits(ctx context.Context, tenantID string) (*domain.TenantLimits, error) {
	raw, err := r.client.Get(ctx, limitsKey(tenantID)).Bytes()
	if err == nil {
		var l domain.TenantLimits
		if jsonErr := json.Unmarshal(raw, &l); jsonErr == nil {
			return &l, nil
		}
		r.log.Warn("discarding corrupt cached limits", zap.String("tenant_id", tenantID))
	} else if !errors.Is(err, pkgredis.Nil) {
		r.log.Warn("limits cache read failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	l, err := r.QuotaRepository.GetLimits(ctx, tenantID)
	if err != nil || l == nil {
		return l, err
	}
	if body, err := json.Marshal(l); err == nil {
		if err := r.client.Set(ctx, limitsKey(tenantID), body, r.ttl).Err(); err != nil {
			r.log.Warn("limits cache write failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
	return l, nil
}

// UpdateLimits writes through and evicts the cached copy
func (r *CachedQuotaRepository) UpdateLimits(ctx context.Context, l *domain.TenantLimits, entry *audit.Entry) error {
	if err := r.QuotaRepository.UpdateLimits(ctx, l, entry); err != nil {
		return err
	}
	r.Invalidate(ctx, l.TenantID)
	return nil
}

// Invalidate drops the cached limits of a tenant
func (r *CachedQuotaRepository) Invalidate(ctx context.Context, tenantID string) {
	if err := r.client.Del(ctx, limitsKey(tenantID)).Err(); err != nil {
		r.log.Warn("limits cache evict failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}
