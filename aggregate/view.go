package aggregate

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-report-cache/cache"
)

// DefaultDateColumn is the report date column of aggregate views.
const DefaultDateColumn = "report_date"

// ScopeColumns maps scope filters to column names. An empty name skips that filter.
type ScopeColumns struct {
	Company string
	Branch  string
	Station string
	Product string
}

// DefaultScopeColumns is the column layout shared by aggregate views and operational tables.
var DefaultScopeColumns = ScopeColumns{
	Company: "company_id",
	Branch:  "branch_id",
	Station: "station_id",
	Product: "product_id",
}

// View describes a precomputed aggregate relation rows of type T are read from.
type View[T any] struct {
	// Name of the view or table.
	Name string
	// DateColumn holds the report date. Defaults to DefaultDateColumn.
	DateColumn string
	// Columns maps scope filters to columns. The zero value uses DefaultScopeColumns.
	Columns ScopeColumns
	// Criteria are applied after the scope and date filters, e.g. ordering.
	Criteria []repository.SelectCriteria
}

func (v View[T]) dateColumn() string {
	if v.DateColumn == "" {
		return DefaultDateColumn
	}
	return v.DateColumn
}

func (v View[T]) columns() ScopeColumns {
	if v.Columns == (ScopeColumns{}) {
		return DefaultScopeColumns
	}
	return v.Columns
}

// Eligible reports whether filters can be answered from aggregates. Aggregates are
// partitioned by date so both ends of the range must be set.
func Eligible(filters cache.Filters) bool {
	return filters.DateFrom != "" && filters.DateTo != ""
}

// ScopeCriteria filters a query by the company, branch, station and product in
// filters. Raw queries use the same criteria so both paths see the same rows.
func ScopeCriteria(filters cache.Filters, columns ScopeColumns) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		q = whereEqual(q, columns.Company, filters.CompanyID)
		q = whereEqual(q, columns.Branch, filters.BranchID)
		q = whereEqual(q, columns.Station, filters.StationID)
		q = whereEqual(q, columns.Product, filters.ProductID)
		return q
	}
}

// DateRangeCriteria bounds column to the inclusive range [from, to]. Either end may be empty.
func DateRangeCriteria(column, from, to string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if from != "" {
			q = q.Where("? >= ?", bun.Ident(column), from)
		}
		if to != "" {
			q = q.Where("? <= ?", bun.Ident(column), to)
		}
		return q
	}
}

func whereEqual(q *bun.SelectQuery, column, value string) *bun.SelectQuery {
	if column == "" || value == "" {
		return q
	}
	return q.Where("? = ?", bun.Ident(column), value)
}
