package domain

import (
	"testing"
	"time"
)

func TestValidSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"my-gym-2", true},
		{"acme-gym", true},
		{"abc", true},
		{"My Gym!", false},
		{"UPPER", false},
		{"under_score", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			if got := ValidSlug(tt.slug); got != tt.want {
				t.Errorf("ValidSlug(%q) = %v, want %v", tt.slug, got, tt.want)
			}
		})
	}
}

func TestParseCapability(t *testing.T) {
	for _, c := range AllCapabilities() {
		got, err := ParseCapability(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCapability(%q) = %v, %v", c.String(), got, err)
		}
	}
	if _, err := ParseCapability("view_memberz"); err == nil {
		t.Error("expected error for misspelled capability")
	}
}

func TestCapabilitySet(t *testing.T) {
	s := NewCapabilitySet(CapViewMembers, CapAccessLedger)
	if !s.Has(CapViewMembers) || !s.Has(CapAccessLedger) {
		t.Error("expected granted capabilities")
	}
	if s.Has(CapManageMembers) {
		t.Error("unexpected capability")
	}
	if s.Has(capabilityCount) {
		t.Error("out of range capability must be false")
	}
	if got := s.With(capabilityCount); got != s {
		t.Error("With out of range must be a no-op")
	}

	names := s.Names()
	if len(names) != 2 || names[0] != "view_members" || names[1] != "access_ledger" {
		t.Errorf("Names() = %v", names)
	}
	m := s.Map()
	if len(m) != int(capabilityCount) || !m["access_ledger"] || m["send_messages"] {
		t.Errorf("Map() = %v", m)
	}

	var zero CapabilitySet
	for _, c := range AllCapabilities() {
		if zero.Has(c) {
			t.Errorf("zero set grants %s", c)
		}
	}
}

func TestTenantLimits_Apply(t *testing.T) {
	two := 2
	base := DefaultLimits("t1")
	got := base.Apply(&LimitsOverride{MaxBranches: &two, Features: map[string]bool{FeatureWhatsApp: false}})

	if got.MaxBranches != 2 {
		t.Errorf("MaxBranches = %d, want 2", got.MaxBranches)
	}
	if got.MaxStaffPerBranch != 5 || got.MaxMembers != 500 || got.MaxTrainers != 10 || got.MaxMonthlyMessages != 100 {
		t.Errorf("defaults not preserved: %+v", got)
	}
	if got.Features[FeatureWhatsApp] || !got.Features[FeatureAnalytics] || !got.Features[FeatureDailyPass] {
		t.Errorf("features = %v", got.Features)
	}
	if !base.Features[FeatureWhatsApp] || base.MaxBranches != 1 {
		t.Error("Apply must not mutate the receiver")
	}
}

func TestLimitsOverride(t *testing.T) {
	neg := -1
	var nilOverride *LimitsOverride
	if !nilOverride.IsEmpty() || !(&LimitsOverride{}).IsEmpty() {
		t.Error("expected empty override")
	}
	o := &LimitsOverride{MaxMembers: &neg}
	if o.IsEmpty() {
		t.Error("expected non-empty override")
	}
	if o.Negative() != "maxMembers" {
		t.Errorf("Negative() = %q", o.Negative())
	}
}

func TestTenantLimits_Ceiling(t *testing.T) {
	l := DefaultLimits("t1")
	want := map[Resource]int{
		ResourceBranch: 1, ResourceStaff: 5, ResourceMember: 500, ResourceTrainer: 10, ResourceWhatsApp: 100,
	}
	for r, n := range want {
		if got := l.Ceiling(r); got != n {
			t.Errorf("Ceiling(%s) = %d, want %d", r, got, n)
		}
	}
	if l.Ceiling("unknown") != 0 {
		t.Error("unknown resource must have zero ceiling")
	}
}

func TestParseResource(t *testing.T) {
	if r, err := ParseResource("message"); err != nil || r != ResourceWhatsApp {
		t.Errorf("ParseResource(message) = %v, %v", r, err)
	}
	if _, err := ParseResource("lockers"); err == nil {
		t.Error("expected error")
	}
	if !ResourceWhatsApp.Metered() || ResourceMember.Metered() {
		t.Error("only whatsapp is metered")
	}
}

func TestUsagePeriod(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2026, 3, 1, 2, 0, 0, 0, ist)
	if got := UsagePeriod(ts); got != "2026-02" {
		t.Errorf("UsagePeriod() = %s, want 2026-02", got)
	}
}

func TestPrincipal_Class(t *testing.T) {
	tests := []struct {
		name string
		p    *Principal
		want RoleClass
	}{
		{"nil", nil, RoleClassNone},
		{"no role", &Principal{UserID: "u"}, RoleClassNone},
		{"staff", &Principal{UserID: "u", StaffID: "s1"}, RoleClassStaff},
		{"tenant admin", &Principal{UserID: "u", IsAdmin: true}, RoleClassTenantAdmin},
		{"operator", &Principal{UserID: "u", IsAdmin: true, IsSuperAdmin: true, StaffID: "s1"}, RoleClassOperator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Class(); got != tt.want {
				t.Errorf("Class() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestScope(t *testing.T) {
	s := Scope{BranchIDs: []string{"b1"}}
	if !s.Contains("b1") || s.Contains("b2") || s.Empty() {
		t.Error("bounded scope misbehaves")
	}
	if !(Scope{}).Empty() || (Scope{}).Contains("b1") {
		t.Error("empty scope must admit nothing")
	}
	if !(Scope{Unrestricted: true}).Contains("anything") {
		t.Error("unrestricted scope must admit everything")
	}
}

func TestBranchPatch_ApplyTo(t *testing.T) {
	name := "Downtown"
	inactive := false
	b := &Branch{Name: "Main", IsActive: true}
	p := &BranchPatch{Name: &name, IsActive: &inactive}

	old, changed := p.ApplyTo(b)
	if b.Name != "Downtown" || b.IsActive {
		t.Errorf("patch not applied: %+v", b)
	}
	if old["name"] != "Main" || changed["name"] != "Downtown" || len(changed) != 2 {
		t.Errorf("old=%v changed=%v", old, changed)
	}
	if !(&BranchPatch{}).IsEmpty() {
		t.Error("expected empty patch")
	}
}
