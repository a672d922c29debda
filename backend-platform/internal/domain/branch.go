package domain

import "time"

// Branch is a physical gym location owned by exactly one tenant
type Branch struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Email     string     `json:"email,omitempty"`
	IsDefault bool       `json:"is_default"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// BranchSettings is created alongside every branch
type BranchSettings struct {
	BranchID string `json:"branch_id"`
	Timezone string `json:"timezone"`
	Currency string `json:"currency"`
}

// DefaultBranchSettings returns the settings row for a new branch
func DefaultBranchSettings(branchID string) *BranchSettings {
	return &BranchSettings{BranchID: branchID, Timezone: "Asia/Kolkata", Currency: "INR"}
}

// BranchPatch holds optional branch field changes
type BranchPatch struct {
	Name     *string `json:"name,omitempty"`
	Address  *string `json:"address,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Email    *string `json:"email,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p *BranchPatch) IsEmpty() bool {
	return p == nil || (p.Name == nil && p.Address == nil && p.Phone == nil && p.Email == nil && p.IsActive == nil)
}

// ApplyTo writes the set fields into b and returns the changed values
func (p *BranchPatch) ApplyTo(b *Branch) (old, changed map[string]interface{}) {
	old, changed = map[string]interface{}{}, map[string]interface{}{}
	if p.Name != nil {
		old["name"], changed["name"] = b.Name, *p.Name
		b.Name = *p.Name
	}
	if p.Address != nil {
		old["address"], changed["address"] = b.Address, *p.Address
		b.Address = *p.Address
	}
	if p.Phone != nil {
		old["phone"], changed["phone"] = b.Phone, *p.Phone
		b.Phone = *p.Phone
	}
	if p.Email != nil {
		old["email"], changed["email"] = b.Email, *p.Email
		b.Email = *p.Email
	}
	if p.IsActive != nil {
		old["is_active"], changed["is_active"] = b.IsActive, *p.IsActive
		b.IsActive = *p.IsActive
	}
	return old, changed
}

// Member is a gym member row, read through branch scope only
type Member struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	BranchID  string    `json:"branch_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
