package httpapi

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-report-cache/cache"
)

// Scope headers read by HeaderScope.
const (
	UserHeader        = "X-User-ID"
	PermissionsHeader = "X-User-Permissions"
	CompanyHeader     = "X-Company-ID"
	BranchHeader      = "X-Branch-ID"
)

// FiltersFromRequest reads report filters from the query string. Missing
// parameters stay empty.
func FiltersFromRequest(r *http.Request) cache.Filters {
	q := r.URL.Query()
	return cache.Filters{
		CompanyID: strings.TrimSpace(q.Get("companyId")),
		BranchID:  strings.TrimSpace(q.Get("branchId")),
		StationID: strings.TrimSpace(q.Get("stationId")),
		ProductID: strings.TrimSpace(q.Get("productId")),
		DateFrom:  strings.TrimSpace(q.Get("dateFrom")),
		DateTo:    strings.TrimSpace(q.Get("dateTo")),
	}
}

// HeaderScope reads the caller scope from headers set by an authenticating proxy.
// Permissions are comma separated.
func HeaderScope(r *http.Request) cache.Scope {
	scope := cache.Scope{
		UserID:    r.Header.Get(UserHeader),
		CompanyID: r.Header.Get(CompanyHeader),
		BranchID:  r.Header.Get(BranchHeader),
	}
	for _, p := range strings.Split(r.Header.Get(PermissionsHeader), ",") {
		if p = strings.TrimSpace(p); p != "" {
			scope.Permissions = append(scope.Permissions, p)
		}
	}
	return scope
}
