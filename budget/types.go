/*
Package budget implements fiscal budget control: spend aggregation, budget
analysis with alerts, the submission gate, and period-to-period rollover.

PURPOSE:
  A Budget declares how much a company intends to spend in a category for a
  fiscal period. This package answers three questions about it:

    1. How much of it is consumed?   (spend.go - the aggregator)
    2. How healthy is it?            (analysis.go, alerts.go)
    3. May this expense proceed?     (gate.go - the submission gate)

  and handles copying a whole period's budgets forward (rollover.go).

KEY CONCEPTS:
  - Counted spend: only approved and paid expenses consume budget. The
    aggregator enforces this; nothing else in the system sums expenses.
  - Most specific budget wins: the gate resolves monthly, then quarterly,
    then yearly budgets, taking the first active match.
  - Budgets are living documents: amounts may be edited at any time, even
    with spend recorded against them.

PRECISION:
  All money is decimal.Decimal. Spend totals are exact decimal sums, never
  floats - rounding drift across many small expenses is not acceptable in
  utilization math.

SEE ALSO:
  - fiscal/: period key resolution
  - expense/: the lifecycle that produces counted statuses
*/
package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/fiscal"
)

// =============================================================================
// BUDGET - Declared spend limit for company + category + fiscal period
// =============================================================================

// Budget is unique per (CompanyID, CategoryID, Fiscal). Amount is
// non-negative; edits are allowed at any time, including after spend exists.
type Budget struct {
	ID         engine.BudgetID
	CompanyID  engine.CompanyID
	CategoryID engine.CategoryID
	Fiscal     fiscal.Key
	Amount     decimal.Decimal
	Currency   string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// =============================================================================
// SPEND SUMMARY - Aggregated counted spend for one budget scope
// =============================================================================

// SpendSummary is the aggregator's output for a company+category+period.
type SpendSummary struct {
	TotalSpent       decimal.Decimal
	ExpenseCount     int
	LastExpenseDate  *time.Time
	MonthlyBreakdown map[string]decimal.Decimal // "YYYY-MM" -> amount
}

// =============================================================================
// HEALTH STATUS - Utilization classification
// =============================================================================

// HealthStatus classifies a budget by utilization. Bands are inclusive at
// their lower bound and evaluated highest first.
type HealthStatus string

const (
	HealthExceeded      HealthStatus = "exceeded"       // >= 100%
	HealthCritical      HealthStatus = "critical"       // >= 90%
	HealthWarning       HealthStatus = "warning"        // >= 75%
	HealthOnTrack       HealthStatus = "on_track"       // >= 50%
	HealthUnderUtilized HealthStatus = "under_utilized" // below 50%
)

// =============================================================================
// ALERTS - Derived, never persisted
// =============================================================================

type AlertType string

const (
	AlertBudgetExceeded   AlertType = "budget_exceeded"
	AlertBudgetWarning    AlertType = "budget_warning"
	AlertSpendingIncrease AlertType = "spending_increase"
)

type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
)

// Alert flags a budget that needs attention. Alerts are independent; a
// single budget may emit more than one.
type Alert struct {
	Type       AlertType
	Severity   AlertSeverity
	CategoryID engine.CategoryID
	Message    string
	Amount     decimal.Decimal
}
