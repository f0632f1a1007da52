package cache

import "time"

// Store is the storage contract the report runner caches results in.
// Callers pass the logical time explicitly so expiry can be tested without sleeping.
type Store interface {
	Get(key string, now time.Time) (any, bool)
	Set(key string, value any, ttl time.Duration, now time.Time)
}

// Filters is the fixed set of request filters that participate in a cache key.
// An empty string means the filter was not supplied.
type Filters struct {
	CompanyID string `json:"companyId" yaml:"companyId"`
	BranchID  string `json:"branchId" yaml:"branchId"`
	StationID string `json:"stationId" yaml:"stationId"`
	ProductID string `json:"productId" yaml:"productId"`
	DateFrom  string `json:"dateFrom" yaml:"dateFrom"`
	DateTo    string `json:"dateTo" yaml:"dateTo"`
}

// Scope describes who is asking. Two callers with different scopes never share a cache entry.
type Scope struct {
	UserID      string   `json:"userId,omitempty" yaml:"userId"`
	Permissions []string `json:"permissions,omitempty" yaml:"permissions"`
	CompanyID   string   `json:"companyId,omitempty" yaml:"companyId"`
	BranchID    string   `json:"branchId,omitempty" yaml:"branchId"`
}
