package access

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicy []byte

const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && (p.act == "*" || r.act == p.act)
`

// Mode controls whether policy denials are enforced
type Mode string

const (
	ModeEnforce Mode = "enforce"
	ModeShadow  Mode = "shadow"
)

// ErrUnknownAction is returned for actions no endpoint declares
var ErrUnknownAction = errors.New("unknown action")

type policyDocument struct {
	Endpoints map[string][]string                      `yaml:"endpoints"`
	Grants    map[domain.RoleClass]map[string][]string `yaml:"grants"`
}

// ActionPolicy decides which role classes may call which endpoint actions
type ActionPolicy struct {
	enforcer *casbin.Enforcer
	actions  map[string]map[string]bool
	mode     Mode
	log      *logger.Logger
}

// NewDefaultActionPolicy loads the embedded policy document
func NewDefaultActionPolicy(mode Mode, log *logger.Logger) (*ActionPolicy, error) {
	return NewActionPolicy(defaultPolicy, mode, log)
}

// NewActionPolicy builds a casbin enforcer from a YAML policy document
func NewActionPolicy(doc []byte, mode Mode, log *logger.Logger) (*ActionPolicy, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch mode {
	case "":
		mode = ModeEnforce
	case ModeEnforce, ModeShadow:
	default:
		return nil, fmt.Errorf("authz: invalid mode %q (expected enforce|shadow)", mode)
	}

	var pd policyDocument
	if err := yaml.Unmarshal(doc, &pd); err != nil {
		return nil, fmt.Errorf("authz: parse policy: %w", err)
	}
	if len(pd.Endpoints) == 0 {
		return nil, errors.New("authz: policy declares no endpoints")
	}

	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("authz: model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: enforcer: %w", err)
	}

	actions := make(map[string]map[string]bool, len(pd.Endpoints))
	for endpoint, list := range pd.Endpoints {
		actions[endpoint] = make(map[string]bool, len(list))
		for _, a := range list {
			actions[endpoint][a] = true
		}
	}

	var rules [][]string
	for class, endpoints := range pd.Grants {
		switch class {
		case domain.RoleClassOperator, domain.RoleClassTenantAdmin, domain.RoleClassStaff:
		default:
			return nil, fmt.Errorf("authz: grant for unknown role class %q", class)
		}
		for endpoint, list := range endpoints {
			if _, ok := actions[endpoint]; !ok {
				return nil, fmt.Errorf("authz: grant for undeclared endpoint %q", endpoint)
			}
			for _, a := range list {
				if a != "*" && !actions[endpoint][a] {
					return nil, fmt.Errorf("authz: grant for undeclared action %s/%s", endpoint, a)
				}
				rules = append(rules, []string{string(class), endpoint, a})
			}
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		return fmt.Sprint(rules[i]) < fmt.Sprint(rules[j])
	})
	if _, err := enforcer.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("authz: load rules: %w", err)
	}

	return &ActionPolicy{enforcer: enforcer, actions: actions, mode: mode, log: log.Named("authz")}, nil
}

// Known reports whether endpoint declares action
func (p *ActionPolicy) Known(endpoint, action string) bool {
	return p.actions[endpoint][action]
}

// Allowed evaluates the policy. In shadow mode a denial is logged and allowed.
func (p *ActionPolicy) Allowed(class domain.RoleClass, endpoint, action string) (bool, error) {
	if !p.Known(endpoint, action) {
		return false, ErrUnknownAction
	}
	if class == domain.RoleClassNone {
		return false, nil
	}
	ok, err := p.enforcer.Enforce(string(class), endpoint, action)
	if err != nil {
		return false, fmt.Errorf("authz: enforce: %w", err)
	}
	if !ok && p.mode == ModeShadow {
		p.log.Warn("shadow mode: policy denial not enforced",
			zap.String("role_class", string(class)),
			zap.String("endpoint", endpoint),
			zap.String("action", action))
		return true, nil
	}
	return ok, nil
}
