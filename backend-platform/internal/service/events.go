package service

import (
	"context"
	"time"

	"github.com/prohmpiriya/gym-platform/pkg/kafka"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"go.uber.org/zap"
)

// Tenant lifecycle event types
const (
	EventTenantProvisioned  = "tenant.provisioned"
	EventTenantSuspended    = "tenant.suspended"
	EventTenantReactivated  = "tenant.reactivated"
	EventTenantLimitsUpdate = "tenant.limits_updated"
)

// TenantEvent is published on the tenant events topic, keyed by tenant id
type TenantEvent struct {
	Type       string                 `json:"type"`
	TenantID   string                 `json:"tenant_id"`
	ActorID    string                 `json:"actor_id,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

type eventPublisher struct {
	pub   kafka.Publisher
	topic string
	log   *logger.Logger
}

// publish returns the publish error for callers that track it; lifecycle
// operations only log it
func (p *eventPublisher) publish(ctx context.Context, ev *TenantEvent) error {
	if p == nil || p.pub == nil || p.topic == "" {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	err := kafka.PublishJSON(ctx, p.pub, p.topic, ev.TenantID, ev)
	if err != nil {
		p.log.WarnContext(ctx, "tenant event not published",
			zap.String("type", ev.Type),
			zap.String("tenant_id", ev.TenantID),
			zap.Error(err))
	}
	return err
}
