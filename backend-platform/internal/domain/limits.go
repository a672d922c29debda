package domain

import "time"

// Feature flag keys carried in TenantLimits.Features
const (
	FeatureAnalytics = "analytics"
	FeatureWhatsApp  = "whatsapp"
	FeatureDailyPass = "daily_pass"
)

// TenantLimits holds the plan ceilings of one tenant
type TenantLimits struct {
	TenantID           string          `json:"tenant_id"`
	MaxBranches        int             `json:"max_branches"`
	MaxStaffPerBranch  int             `json:"max_staff_per_branch"`
	MaxMembers         int             `json:"max_members"`
	MaxTrainers        int             `json:"max_trainers"`
	MaxMonthlyMessages int             `json:"max_monthly_messages"`
	Features           map[string]bool `json:"features"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// DefaultLimits returns the starter plan ceilings
func DefaultLimits(tenantID string) *TenantLimits {
	return &TenantLimits{
		TenantID:           tenantID,
		MaxBranches:        1,
		MaxStaffPerBranch:  5,
		MaxMembers:         500,
		MaxTrainers:        10,
		MaxMonthlyMessages: 100,
		Features: map[string]bool{
			FeatureAnalytics: true,
			FeatureWhatsApp:  true,
			FeatureDailyPass: true,
		},
	}
}

// LimitsOverride carries optional ceiling changes. Nil fields keep the
// current value.
type LimitsOverride struct {
	MaxBranches        *int            `json:"maxBranches,omitempty"`
	MaxStaffPerBranch  *int            `json:"maxStaffPerBranch,omitempty"`
	MaxMembers         *int            `json:"maxMembers,omitempty"`
	MaxTrainers        *int            `json:"maxTrainers,omitempty"`
	MaxMonthlyMessages *int            `json:"maxMonthlyMessages,omitempty"`
	Features           map[string]bool `json:"features,omitempty"`
}

// IsEmpty reports whether the override changes nothing
func (o *LimitsOverride) IsEmpty() bool {
	return o == nil || (o.MaxBranches == nil && o.MaxStaffPerBranch == nil && o.MaxMembers == nil &&
		o.MaxTrainers == nil && o.MaxMonthlyMessages == nil && len(o.Features) == 0)
}

// Negative reports the first ceiling set below zero, or ""
func (o *LimitsOverride) Negative() string {
	if o == nil {
		return ""
	}
	for name, v := range map[string]*int{
		"maxBranches":        o.MaxBranches,
		"maxStaffPerBranch":  o.MaxStaffPerBranch,
		"maxMembers":         o.MaxMembers,
		"maxTrainers":        o.MaxTrainers,
		"maxMonthlyMessages": o.MaxMonthlyMessages,
	} {
		if v != nil && *v < 0 {
			return name
		}
	}
	return ""
}

// Apply returns a copy of l with the override applied
func (l *TenantLimits) Apply(o *LimitsOverride) *TenantLimits {
	out := *l
	out.Features = make(map[string]bool, len(l.Features))
	for k, v := range l.Features {
		out.Features[k] = v
	}
	if o == nil {
		return &out
	}
	if o.MaxBranches != nil {
		out.MaxBranches = *o.MaxBranches
	}
	if o.MaxStaffPerBranch != nil {
		out.MaxStaffPerBranch = *o.MaxStaffPerBranch
	}
	if o.MaxMembers != nil {
		out.MaxMembers = *o.MaxMembers
	}
	if o.MaxTrainers != nil {
		out.MaxTrainers = *o.MaxTrainers
	}
	if o.MaxMonthlyMessages != nil {
		out.MaxMonthlyMessages = *o.MaxMonthlyMessages
	}
	for k, v := range o.Features {
		out.Features[k] = v
	}
	return &out
}

// Ceiling returns the configured maximum for r
func (l *TenantLimits) Ceiling(r Resource) int {
	switch r {
	case ResourceBranch:
		return l.MaxBranches
	case ResourceStaff:
		return l.MaxStaffPerBranch
	case ResourceMember:
		return l.MaxMembers
	case ResourceTrainer:
		return l.MaxTrainers
	case ResourceWhatsApp:
		return l.MaxMonthlyMessages
	}
	return 0
}

// Snapshot returns the limits as a flat map for audit values
func (l *TenantLimits) Snapshot() map[string]interface{} {
	features := make(map[string]interface{}, len(l.Features))
	for k, v := range l.Features {
		features[k] = v
	}
	return map[string]interface{}{
		"max_branches":         l.MaxBranches,
		"max_staff_per_branch": l.MaxStaffPerBranch,
		"max_members":          l.MaxMembers,
		"max_trainers":         l.MaxTrainers,
		"max_monthly_messages": l.MaxMonthlyMessages,
		"features":             features,
	}
}

// Usage is the current consumption of each resource for a tenant
type Usage struct {
	TenantID string           `json:"tenant_id"`
	Period   string           `json:"period"`
	Counts   map[Resource]int `json:"counts"`
	// StaffPerBranch holds the staff count of each active branch
	StaffPerBranch map[string]int `json:"staff_per_branch"`
}
