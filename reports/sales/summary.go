// Package sales implements the daily sales summary report.
//
// Daily rows come from the mv_daily_sales aggregate view when the request is date
// bounded and the view has data, otherwise from sales_transactions. Both paths
// apply the same scope filters and produce the same rows.
package sales

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-report-cache/aggregate"
	"github.com/goliatone/go-report-cache/cache"
	"github.com/goliatone/go-report-cache/reporting"
)

const (
	// ReportName identifies the report in cache keys, perf records and routes.
	ReportName = "sales-summary"
	// ViewName is the aggregate view backing the daily section.
	ViewName = "mv_daily_sales"
	// TransactionsTable holds the raw sales.
	TransactionsTable = "sales_transactions"

	sectionDaily = "daily"
)

// DailyRow is one day of sales for a company, branch and station.
type DailyRow struct {
	ReportDate   time.Time       `bun:"report_date" json:"reportDate"`
	CompanyID    string          `bun:"company_id" json:"companyId"`
	BranchID     string          `bun:"branch_id" json:"branchId"`
	StationID    string          `bun:"station_id" json:"stationId"`
	Transactions int64           `bun:"transactions" json:"transactions"`
	Gross        decimal.Decimal `bun:"gross" json:"gross"`
}

// Summary is the sales summary response.
type Summary struct {
	Days         []DailyRow                 `json:"days"`
	Transactions int64                      `json:"transactions"`
	Gross        decimal.Decimal            `json:"gross"`
	ByBranch     map[string]decimal.Decimal `json:"byBranch"`
}

// View is the aggregate view definition for daily sales.
var View = aggregate.View[DailyRow]{
	Name: ViewName,
	Criteria: []repository.SelectCriteria{
		orderDays,
	},
}

// Service computes the sales summary through a reporting.Runner.
type Service struct {
	db         bun.IDB
	aggregates *aggregate.Source
	runner     *reporting.Runner
}

// NewService creates a sales report service. A nil aggregate source always uses raw queries.
func NewService(db bun.IDB, aggregates *aggregate.Source, runner *reporting.Runner) *Service {
	return &Service{db: db, aggregates: aggregates, runner: runner}
}

// Name returns the report name.
func (s *Service) Name() string {
	return ReportName
}

// Summary returns the sales summary for filters as seen by caller.
func (s *Service) Summary(ctx context.Context, filters cache.Filters, caller reporting.Caller) (Summary, error) {
	return reporting.Run(ctx, s.runner, ReportName, filters, caller, s.compute(filters))
}

func (s *Service) compute(filters cache.Filters) reporting.ComputeFunc[Summary] {
	return func(ctx context.Context, p *reporting.Probe) (Summary, error) {
		days, err := reporting.Section(ctx, p, sectionDaily,
			func(ctx context.Context) ([]DailyRow, bool) {
				return aggregate.Try(ctx, s.aggregates, View, filters)
			},
			func(ctx context.Context) ([]DailyRow, error) {
				return s.rawDaily(ctx, filters)
			},
		)
		if err != nil {
			return Summary{}, err
		}
		return Summarize(days), nil
	}
}

func (s *Service) rawDaily(ctx context.Context, filters cache.Filters) ([]DailyRow, error) {
	rows := make([]DailyRow, 0)
	err := s.db.NewSelect().
		TableExpr("?", bun.Ident(TransactionsTable)).
		ColumnExpr("business_date AS report_date").
		ColumnExpr("company_id").
		ColumnExpr("branch_id").
		ColumnExpr("station_id").
		ColumnExpr("COUNT(*) AS transactions").
		ColumnExpr("SUM(amount) AS gross").
		Apply(aggregate.ScopeCriteria(filters, aggregate.DefaultScopeColumns)).
		Apply(aggregate.DateRangeCriteria("business_date", filters.DateFrom, filters.DateTo)).
		GroupExpr("business_date, company_id, branch_id, station_id").
		Apply(orderDays).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func orderDays(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("report_date, branch_id, station_id")
}

// Summarize totals daily rows.
func Summarize(days []DailyRow) Summary {
	summary := Summary{
		Days:     days,
		Gross:    decimal.Zero,
		ByBranch: make(map[string]decimal.Decimal),
	}
	if summary.Days == nil {
		summary.Days = []DailyRow{}
	}

	for _, day := range days {
		summary.Transactions += day.Transactions
		summary.Gross = summary.Gross.Add(day.Gross)
		summary.ByBranch[day.BranchID] = summary.ByBranch[day.BranchID].Add(day.Gross)
	}
	return summary
}
