package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/access"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/service"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"github.com/prohmpiriya/gym-platform/pkg/response"
	"github.com/prohmpiriya/gym-platform/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Endpoint names under /functions/v1
const (
	EndpointPlatformAdmin      = "platform-admin"
	EndpointTenantAdmin        = "tenant-admin"
	EndpointPaymentCredentials = "payment-credentials"
	EndpointBranchData         = "branch-data"
	EndpointQuota              = "quota"
)

// actionFunc runs one action and returns the success status and payload
type actionFunc func(c *gin.Context, p *domain.Principal) (int, interface{}, error)

type actionSpec struct {
	run actionFunc
	// envelope wraps the payload under "data"
	envelope bool
	// caps are required of staff callers; admin-class callers hold all of them
	caps         []domain.Capability
	operatorOnly bool
}

// FunctionsHandler dispatches /functions/v1/:endpoint?action= calls
type FunctionsHandler struct {
	policy       *access.ActionPolicy
	gate         *access.CapabilityGate
	scopes       *access.ScopeResolver
	provisioning service.ProvisioningService
	branches     service.BranchService
	quota        service.QuotaService
	credentials  service.CredentialService
	reads        service.ScopedReadService
	audit        audit.Appender
	metrics      *telemetry.Metrics
	log          *logger.Logger
	actions      map[string]map[string]actionSpec
}

// FunctionsDeps groups the handler's collaborators
type FunctionsDeps struct {
	Policy       *access.ActionPolicy
	Gate         *access.CapabilityGate
	Scopes       *access.ScopeResolver
	Provisioning service.ProvisioningService
	Branches     service.BranchService
	Quota        service.QuotaService
	Credentials  service.CredentialService
	Reads        service.ScopedReadService
	Audit        audit.Appender
	Metrics      *telemetry.Metrics
	Logger       *logger.Logger
}

// NewFunctionsHandler creates the dispatcher
func NewFunctionsHandler(deps FunctionsDeps) *FunctionsHandler {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	h := &FunctionsHandler{
		policy:       deps.Policy,
		gate:         deps.Gate,
		scopes:       deps.Scopes,
		provisioning: deps.Provisioning,
		branches:     deps.Branches,
		quota:        deps.Quota,
		credentials:  deps.Credentials,
		reads:        deps.Reads,
		audit:        deps.Audit,
		metrics:      deps.Metrics,
		log:          log.Named("functions"),
	}
	h.actions = map[string]map[string]actionSpec{
		EndpointPlatformAdmin:      h.platformAdminActions(),
		EndpointTenantAdmin:        h.tenantAdminActions(),
		EndpointPaymentCredentials: h.credentialActions(),
		EndpointBranchData:         h.branchDataActions(),
		EndpointQuota:              h.quotaActions(),
	}
	return h
}

// Register mounts the dispatcher. Reads take query parameters, mutations a
// JSON body; both verbs reach the same dispatcher.
func (h *FunctionsHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/:endpoint", h.Dispatch)
	rg.POST("/:endpoint", h.Dispatch)
}

// Dispatch handles /functions/v1/:endpoint?action=
func (h *FunctionsHandler) Dispatch(c *gin.Context) {
	start := time.Now()
	endpoint, action := c.Param("endpoint"), c.Query("action")
	name := endpoint + "." + action

	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.functions."+endpoint)
	defer span.End()
	c.Request = c.Request.WithContext(ctx)
	span.SetAttributes(telemetry.ActionAttr(name))

	status, err := h.dispatch(c, endpoint, action)
	if err != nil {
		telemetry.RecordError(span, err)
		status = apperror.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.ErrorContext(ctx, "action failed", zap.String("action", name), zap.Error(err))
		}
		response.Fail(c, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	h.metrics.RecordRequest(ctx, name, status, float64(time.Since(start).Microseconds())/1000)
}

func (h *FunctionsHandler) dispatch(c *gin.Context, endpoint, action string) (int, error) {
	actions, ok := h.actions[endpoint]
	if !ok {
		return 0, apperror.NotFound("Unknown endpoint")
	}
	if action == "" {
		return 0, apperror.Validation("action is required")
	}
	spec, ok := actions[action]
	if !ok || !h.policy.Known(endpoint, action) {
		return 0, apperror.Validation(fmt.Sprintf("Unknown action: %s", action))
	}

	p, ok := GetPrincipal(c)
	if !ok {
		return 0, apperror.Authentication("Authentication required")
	}
	ctx := c.Request.Context()

	if err := h.authorize(ctx, p, endpoint, action, spec); err != nil {
		h.reject(ctx, p, endpoint, action, err)
		return 0, err
	}

	status, payload, err := spec.run(c, p)
	if err != nil {
		if rejection(err) {
			h.reject(ctx, p, endpoint, action, err)
		}
		return 0, err
	}
	if spec.envelope {
		response.Data(c, status, payload)
	} else {
		response.Raw(c, status, payload)
	}
	return status, nil
}

func (h *FunctionsHandler) authorize(ctx context.Context, p *domain.Principal, endpoint, action string, spec actionSpec) error {
	if p.Class() == domain.RoleClassNone {
		return apperror.Authorization("No application role")
	}
	allowed, err := h.policy.Allowed(p.Class(), endpoint, action)
	if err != nil {
		return apperror.Internal(err)
	}
	if !allowed {
		return apperror.Authorization("Action not permitted for your role")
	}
	if spec.operatorOnly {
		if err := h.gate.RequireOperator(ctx, p); err != nil {
			return err
		}
	}
	if len(spec.caps) > 0 {
		return h.gate.Require(ctx, p, spec.caps...)
	}
	return nil
}

func rejection(err error) bool {
	switch apperror.KindOf(err) {
	case apperror.KindAuthorization, apperror.KindScopeViolation, apperror.KindQuotaExceeded:
		return true
	}
	return false
}

func (h *FunctionsHandler) reject(ctx context.Context, p *domain.Principal, endpoint, action string, err error) {
	h.log.InfoContext(ctx, "action rejected",
		zap.String("endpoint", endpoint),
		zap.String("action", action),
		zap.String("role_class", string(p.Class())),
		zap.String("reason", apperror.PublicMessage(err)))
	h.audit.Append(ctx, &audit.Entry{
		ActorID:     p.UserID,
		Action:      audit.ActionRejected,
		Description: fmt.Sprintf("%s %s rejected: %s", endpoint, action, apperror.PublicMessage(err)),
		Metadata: map[string]interface{}{
			"endpoint":   endpoint,
			"action":     action,
			"role_class": string(p.Class()),
			"kind":       string(apperror.KindOf(err)),
		},
	})
}

// --- request helpers ---

// bindBody decodes the JSON body. An empty body leaves v at its zero value.
func bindBody(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return apperror.Validation("Invalid request body")
	}
	return nil
}

func bindQuery(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindQuery(v); err != nil {
		return apperror.Validation("Invalid query parameters")
	}
	return nil
}

// isUUID accepts only the canonical 36-character form
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func requireUUID(name, v string) error {
	if v == "" {
		return apperror.Validation(name + " is required")
	}
	return optionalUUID(name, v)
}

func optionalUUID(name, v string) error {
	if v != "" && !isUUID(v) {
		return apperror.Validation("Invalid " + name)
	}
	return nil
}
