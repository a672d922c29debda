package domain

import (
	"fmt"
	"strings"
)

// Capability is one staff permission flag
type Capability uint8

const (
	CapViewMembers Capability = iota
	CapManageMembers
	CapAccessPayments
	CapAccessLedger
	CapChangeSettings
	CapViewAnalytics
	CapManageAttendance
	CapManageStaff
	CapSendMessages

	capabilityCount
)

var capabilityNames = [capabilityCount]string{
	CapViewMembers:      "view_members",
	CapManageMembers:    "manage_members",
	CapAccessPayments:   "access_payments",
	CapAccessLedger:     "access_ledger",
	CapChangeSettings:   "change_settings",
	CapViewAnalytics:    "view_analytics",
	CapManageAttendance: "manage_attendance",
	CapManageStaff:      "manage_staff",
	CapSendMessages:     "send_messages",
}

func (c Capability) String() string {
	if c >= capabilityCount {
		return fmt.Sprintf("capability(%d)", uint8(c))
	}
	return capabilityNames[c]
}

// AllCapabilities returns every capability in declaration order
func AllCapabilities() []Capability {
	out := make([]Capability, 0, capabilityCount)
	for c := Capability(0); c < capabilityCount; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCapability resolves a flag name. Unknown names are an error, never false.
func ParseCapability(name string) (Capability, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	for c, n := range capabilityNames {
		if n == name {
			return Capability(c), nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// CapabilitySet is a bitset of capabilities. The zero value grants nothing.
type CapabilitySet uint16

// NewCapabilitySet builds a set from caps
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s = s.With(c)
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool {
	return c < capabilityCount && s&(1<<c) != 0
}

func (s CapabilitySet) With(c Capability) CapabilitySet {
	if c >= capabilityCount {
		return s
	}
	return s | 1<<c
}

// Names lists the granted capabilities
func (s CapabilitySet) Names() []string {
	out := []string{}
	for _, c := range AllCapabilities() {
		if s.Has(c) {
			out = append(out, c.String())
		}
	}
	return out
}

// Map renders the set as flag name -> granted for API responses
func (s CapabilitySet) Map() map[string]bool {
	out := make(map[string]bool, capabilityCount)
	for _, c := range AllCapabilities() {
		out[c.String()] = s.Has(c)
	}
	return out
}
