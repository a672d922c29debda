package domain

import (
	"fmt"
	"time"
)

// Resource is a quota-governed resource type
type Resource string

const (
	ResourceBranch   Resource = "branch"
	ResourceStaff    Resource = "staff"
	ResourceMember   Resource = "member"
	ResourceTrainer  Resource = "trainer"
	ResourceWhatsApp Resource = "whatsapp"
)

// Resources lists every resource in display order
var Resources = []Resource{ResourceBranch, ResourceStaff, ResourceMember, ResourceTrainer, ResourceWhatsApp}

// ParseResource accepts the resource names plus "message" as an alias of whatsapp
func ParseResource(s string) (Resource, error) {
	switch Resource(s) {
	case ResourceBranch, ResourceStaff, ResourceMember, ResourceTrainer, ResourceWhatsApp:
		return Resource(s), nil
	case "message", "messages":
		return ResourceWhatsApp, nil
	}
	return "", fmt.Errorf("unknown resource type %q", s)
}

// Metered resources accumulate per billing period instead of being counted
// from live rows.
func (r Resource) Metered() bool {
	return r == ResourceWhatsApp
}

// UsagePeriod returns the monthly billing period key for t in UTC
func UsagePeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}
