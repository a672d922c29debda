package dto

// QuotaQuery is the quota check query
type QuotaQuery struct {
	TenantID string `form:"tenantId"`
	BranchID string `form:"branchId"`
	Resource string `form:"resource"`
	Bypass   bool   `form:"bypass"`
}

// IncrementRequest is the quota increment body
type IncrementRequest struct {
	TenantID string `json:"tenantId"`
	BranchID string `json:"branchId"`
	Resource string `json:"resource"`
	Count    int    `json:"count"`
}

// IncrementResponse carries the new period total
type IncrementResponse struct {
	TenantID string `json:"tenantId"`
	Resource string `json:"resource"`
	Period   string `json:"period"`
	Total    int64  `json:"total"`
}
