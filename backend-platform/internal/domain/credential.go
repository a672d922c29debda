package domain

import "time"

// PaymentCredential is the gateway key pair of one tenant. The secret is
// held only as ciphertext.
type PaymentCredential struct {
	TenantID        string     `json:"tenant_id"`
	KeyID           string     `json:"key_id"`
	EncryptedSecret []byte     `json:"-"`
	IV              []byte     `json:"-"`
	IsVerified      bool       `json:"is_verified"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
