package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by platform instruments
const (
	AttrTenantID = "tenant.id"
	AttrAction   = "platform.action"
	AttrResource = "quota.resource"
	AttrOutcome  = "outcome"
	AttrStep     = "saga.step"
	AttrStatus   = "http.status_code"
)

func TenantIDAttr(id string) attribute.KeyValue   { return attribute.String(AttrTenantID, id) }
func ActionAttr(action string) attribute.KeyValue { return attribute.String(AttrAction, action) }
func ResourceAttr(r string) attribute.KeyValue    { return attribute.String(AttrResource, r) }
func OutcomeAttr(o string) attribute.KeyValue     { return attribute.String(AttrOutcome, o) }
func StepAttr(step string) attribute.KeyValue     { return attribute.String(AttrStep, step) }
func StatusAttr(code int) attribute.KeyValue      { return attribute.Int(AttrStatus, code) }

// Metrics groups the instruments recorded by the platform services.
// All methods are safe on a nil receiver.
type Metrics struct {
	requests       metric.Int64Counter
	latency        metric.Float64Histogram
	authzDecisions metric.Int64Counter
	quotaChecks    metric.Int64Counter
	provisioning   metric.Int64Counter
	sagaSteps      metric.Int64Counter
	verifications  metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
	metricsErr  error
)

// PlatformMetrics returns the lazily created instrument set on the global meter
func PlatformMetrics() (*Metrics, error) {
	metricsOnce.Do(func() {
		metricsInst, metricsErr = NewMetrics(GetMeter())
	})
	return metricsInst, metricsErr
}

// NewMetrics creates the instrument set on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.requests, err = meter.Int64Counter("platform_requests_total",
		metric.WithDescription("Function endpoint requests by action and status")); err != nil {
		return nil, err
	}
	if m.latency, err = meter.Float64Histogram("platform_request_duration_ms",
		metric.WithDescription("Function endpoint latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500)); err != nil {
		return nil, err
	}
	if m.authzDecisions, err = meter.Int64Counter("platform_authz_decisions_total",
		metric.WithDescription("Authorization decisions by action and outcome")); err != nil {
		return nil, err
	}
	if m.quotaChecks, err = meter.Int64Counter("platform_quota_checks_total",
		metric.WithDescription("Quota checks by resource and outcome")); err != nil {
		return nil, err
	}
	if m.provisioning, err = meter.Int64Counter("platform_tenant_provisioning_total",
		metric.WithDescription("Tenant provisioning runs by outcome")); err != nil {
		return nil, err
	}
	if m.sagaSteps, err = meter.Int64Counter("platform_saga_steps_total",
		metric.WithDescription("Saga step executions by step and outcome")); err != nil {
		return nil, err
	}
	if m.verifications, err = meter.Int64Counter("platform_credential_verifications_total",
		metric.WithDescription("Payment credential verification attempts by outcome")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordRequest(ctx context.Context, action string, status int, ms float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(ActionAttr(action), StatusAttr(status))
	m.requests.Add(ctx, 1, attrs)
	m.latency.Record(ctx, ms, attrs)
}

func (m *Metrics) RecordAuthz(ctx context.Context, action string, allowed bool) {
	if m == nil {
		return
	}
	m.authzDecisions.Add(ctx, 1, metric.WithAttributes(ActionAttr(action), OutcomeAttr(outcome(allowed))))
}

func (m *Metrics) RecordQuotaCheck(ctx context.Context, resource string, allowed bool) {
	if m == nil {
		return
	}
	m.quotaChecks.Add(ctx, 1, metric.WithAttributes(ResourceAttr(resource), OutcomeAttr(outcome(allowed))))
}

func (m *Metrics) RecordProvisioning(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.provisioning.Add(ctx, 1, metric.WithAttributes(OutcomeAttr(result)))
}

func (m *Metrics) RecordSagaStep(ctx context.Context, step, result string) {
	if m == nil {
		return
	}
	m.sagaSteps.Add(ctx, 1, metric.WithAttributes(StepAttr(step), OutcomeAttr(result)))
}

func (m *Metrics) RecordVerification(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.verifications.Add(ctx, 1, metric.WithAttributes(OutcomeAttr(outcome(ok))))
}

func outcome(ok bool) string {
	if ok {
		return "allowed"
	}
	return "denied"
}
