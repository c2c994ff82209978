/*
spend.go - The spend aggregator

PURPOSE:
  Computes counted spend for a company+category+fiscal period: total,
  expense count, last expense date, and a month-keyed breakdown.

COUNTED STATUSES:
  Only approved and paid expenses consume budget. This filter lives here
  and nowhere else - stores return raw rows.

AS-OF QUERIES:
  An asOf date before the period's natural end clamps the effective end,
  answering "spend as of a point in time" without touching stored data.

SEE ALSO:
  - analysis.go: runs the aggregator for current and previous periods
  - gate.go:     runs it with self-exclusion before a submission
*/
package budget

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/fiscal"
)

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator computes counted spend over resolved fiscal periods.
type Aggregator struct {
	Expenses ExpenseSource
}

func NewAggregator(src ExpenseSource) *Aggregator {
	return &Aggregator{Expenses: src}
}

// SpendQuery scopes one aggregation.
type SpendQuery struct {
	CompanyID  engine.CompanyID
	CategoryID engine.CategoryID
	Fiscal     fiscal.Key

	// AsOf clamps the period end when it falls before the natural end.
	AsOf *time.Time

	// ExcludeExpenseID removes one expense from the sum. The gate uses
	// this so an edited expense never double-counts against itself.
	ExcludeExpenseID engine.ExpenseID
}

// Aggregate resolves the fiscal period and sums counted expenses in it.
// Totals are exact decimal sums.
func (a *Aggregator) Aggregate(ctx context.Context, q SpendQuery) (*SpendSummary, error) {
	period, err := fiscal.Resolve(q.Fiscal)
	if err != nil {
		return nil, err
	}

	end := period.End
	if q.AsOf != nil && q.AsOf.Before(end) {
		end = *q.AsOf
	}

	rows, err := a.Expenses.ExpensesInRange(ctx, q.CompanyID, q.CategoryID, period.Start, end)
	if err != nil {
		return nil, err
	}

	summary := &SpendSummary{
		TotalSpent:       decimal.Zero,
		MonthlyBreakdown: map[string]decimal.Decimal{},
	}

	for _, row := range rows {
		if !row.Status.Counted() {
			continue
		}
		if q.ExcludeExpenseID != "" && row.ID == q.ExcludeExpenseID {
			continue
		}

		summary.TotalSpent = summary.TotalSpent.Add(row.Amount)
		summary.ExpenseCount++

		if summary.LastExpenseDate == nil || row.Date.After(*summary.LastExpenseDate) {
			d := row.Date
			summary.LastExpenseDate = &d
		}

		month := fiscal.MonthKey(row.Date)
		summary.MonthlyBreakdown[month] = summary.MonthlyBreakdown[month].Add(row.Amount)
	}

	return summary, nil
}
