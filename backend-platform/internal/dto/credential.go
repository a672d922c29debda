package dto

// SaveCredentialsRequest is the payment-credentials save body. KeySecret is
// never echoed back.
type SaveCredentialsRequest struct {
	TenantID  string `json:"tenantId"`
	KeyID     string `json:"keyId"`
	KeySecret string `json:"keySecret"`
}

// RemoveCredentialsResponse confirms a removal
type RemoveCredentialsResponse struct {
	Removed bool `json:"removed"`
}
