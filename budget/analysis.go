/*
analysis.go - Budget analysis engine

PURPOSE:
  Combines budgets with aggregated spend (current and previous period) to
  produce utilization, remaining amount, a health classification, a trend
  against the preceding period of the same granularity, and an overall
  summary across every matched budget.

ZERO-AMOUNT BUDGETS:
  Validation only requires amount >= 0, so a zero budget can exist. Policy:
  with no spend it reports 0% utilization (under_utilized); with any spend
  it reports exactly 100% and classifies as exceeded. Division by zero
  never happens.

SEE ALSO:
  - alerts.go: alert generation from analysis rows
  - spend.go:  the aggregator this engine drives
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
// REPORT TYPES
// =============================================================================

// TrendDirection is the sign of period-over-period spend change.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// Trend compares current spend to the immediately preceding fiscal period
// of the same granularity.
type Trend struct {
	Percentage          decimal.Decimal
	Direction           TrendDirection
	PreviousPeriodSpent decimal.Decimal
}

// Analysis is the per-budget analysis row.
type Analysis struct {
	Budget         *Budget
	Spending       *SpendSummary
	AverageExpense decimal.Decimal

	Utilization         decimal.Decimal // percentage
	RemainingAmount     decimal.Decimal // may be negative
	RemainingPercentage decimal.Decimal
	Status              HealthStatus
	Trend               Trend
}

// Summary aggregates across every matched budget.
type Summary struct {
	TotalBudget        decimal.Decimal
	TotalSpent         decimal.Decimal
	TotalRemaining     decimal.Decimal
	OverallUtilization decimal.Decimal
	TotalExpenses      int
	CategoriesCount    int
}

// Report is the full analysis output.
type Report struct {
	Fiscal     fiscal.Key
	AsOf       time.Time
	Summary    Summary
	Categories []Analysis
	Alerts     []Alert
}

// AnalysisRequest filters which budgets to analyze.
type AnalysisRequest struct {
	CompanyID  engine.CompanyID
	CategoryID engine.CategoryID // optional
	Fiscal     fiscal.Key
	AsOf       *time.Time
}

// =============================================================================
// ANALYZER
// =============================================================================

// Analyzer combines the budget store with the spend aggregator.
type Analyzer struct {
	Budgets Store
	Spend   *Aggregator

	// Now supplies the report timestamp when no asOf is given.
	Now func() time.Time
}

func NewAnalyzer(budgets Store, spend *Aggregator) *Analyzer {
	return &Analyzer{Budgets: budgets, Spend: spend, Now: time.Now}
}

// Analyze produces a report for every active budget matching the request.
// Returns engine.ErrNotFound when no budgets match the fiscal period.
func (a *Analyzer) Analyze(ctx context.Context, req AnalysisRequest) (*Report, error) {
	if _, err := fiscal.Resolve(req.Fiscal); err != nil {
		return nil, err
	}

	budgets, err := a.Budgets.Budgets(ctx, Filter{
		CompanyID:  req.CompanyID,
		CategoryID: req.CategoryID,
		Fiscal:     req.Fiscal,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	if len(budgets) == 0 {
		return nil, engine.ErrNotFound
	}

	previousFiscal, err := fiscal.Previous(req.Fiscal)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Fiscal:     req.Fiscal,
		Categories: make([]Analysis, 0, len(budgets)),
	}
	if req.AsOf != nil {
		report.AsOf = *req.AsOf
	} else {
		report.AsOf = a.Now()
	}

	summary := Summary{
		TotalBudget:    decimal.Zero,
		TotalSpent:     decimal.Zero,
		TotalRemaining: decimal.Zero,
	}

	for _, b := range budgets {
		row, err := a.analyzeOne(ctx, b, previousFiscal, req.AsOf)
		if err != nil {
			return nil, err
		}
		report.Categories = append(report.Categories, *row)

		summary.TotalBudget = summary.TotalBudget.Add(b.Amount)
		summary.TotalSpent = summary.TotalSpent.Add(row.Spending.TotalSpent)
		summary.TotalExpenses += row.Spending.ExpenseCount
	}

	summary.TotalRemaining = summary.TotalBudget.Sub(summary.TotalSpent)
	summary.OverallUtilization = utilization(summary.TotalSpent, summary.TotalBudget)
	summary.CategoriesCount = len(budgets)
	report.Summary = summary

	report.Alerts = GenerateAlerts(report.Categories)
	return report, nil
}

func (a *Analyzer) analyzeOne(ctx context.Context, b *Budget, previousFiscal fiscal.Key, asOf *time.Time) (*Analysis, error) {
	current, err := a.Spend.Aggregate(ctx, SpendQuery{
		CompanyID:  b.CompanyID,
		CategoryID: b.CategoryID,
		Fiscal:     b.Fiscal,
		AsOf:       asOf,
	})
	if err != nil {
		return nil, err
	}

	previous, err := a.Spend.Aggregate(ctx, SpendQuery{
		CompanyID:  b.CompanyID,
		CategoryID: b.CategoryID,
		Fiscal:     previousFiscal,
		AsOf:       asOf,
	})
	if err != nil {
		return nil, err
	}

	util := utilization(current.TotalSpent, b.Amount)
	remaining := b.Amount.Sub(current.TotalSpent)

	row := &Analysis{
		Budget:          b,
		Spending:        current,
		Utilization:     util,
		RemainingAmount: remaining,
		Status:          Classify(util),
		Trend:           trend(current.TotalSpent, previous.TotalSpent),
	}

	if current.ExpenseCount > 0 {
		row.AverageExpense = current.TotalSpent.Div(decimal.NewFromInt(int64(current.ExpenseCount)))
	}
	if !b.Amount.IsZero() {
		row.RemainingPercentage = remaining.Div(b.Amount).Mul(hundred)
	}

	return row, nil
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

var (
	hundred           = decimal.NewFromInt(100)
	thresholdExceeded = decimal.NewFromInt(100)
	thresholdCritical = decimal.NewFromInt(90)
	thresholdWarning  = decimal.NewFromInt(75)
	thresholdOnTrack  = decimal.NewFromInt(50)
	trendAlertCutoff  = decimal.NewFromInt(50)
)

// Classify maps a utilization percentage onto a health band. Bands are
// inclusive at the lower bound, checked highest first: exactly 90 is
// critical, exactly 100 is exceeded.
func Classify(util decimal.Decimal) HealthStatus {
	switch {
	case util.GreaterThanOrEqual(thresholdExceeded):
		return HealthExceeded
	case util.GreaterThanOrEqual(thresholdCritical):
		return HealthCritical
	case util.GreaterThanOrEqual(thresholdWarning):
		return HealthWarning
	case util.GreaterThanOrEqual(thresholdOnTrack):
		return HealthOnTrack
	default:
		return HealthUnderUtilized
	}
}

// utilization is spent/amount*100, with the zero-amount policy applied:
// a zero budget reports 0 with no spend and exactly 100 with any spend.
func utilization(spent, amount decimal.Decimal) decimal.Decimal {
	if amount.IsZero() {
		if spent.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}
	return spent.Div(amount).Mul(hundred)
}

func trend(current, previous decimal.Decimal) Trend {
	t := Trend{Percentage: decimal.Zero, Direction: TrendStable, PreviousPeriodSpent: previous}
	if previous.IsPositive() {
		t.Percentage = current.Sub(previous).Div(previous).Mul(hundred)
	}
	switch {
	case t.Percentage.IsPositive():
		t.Direction = TrendUp
	case t.Percentage.IsNegative():
		t.Direction = TrendDown
	}
	return t
}
