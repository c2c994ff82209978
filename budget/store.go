/*
store.go - Persistence interfaces the budget package depends on

PURPOSE:
  The engine is request-scoped and stateless; everything durable lives
  behind these interfaces. Implementations: store/sqlite (production),
  store/memory (tests and dev).

  ExpenseSource deliberately exposes raw rows, not filtered spend: the
  counted-status invariant belongs to the aggregator, in one place, not to
  each storage backend.
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
// BUDGET STORE
// =============================================================================

// Filter narrows budget queries. Zero-value fields match everything.
type Filter struct {
	CompanyID  engine.CompanyID
	CategoryID engine.CategoryID
	Fiscal     fiscal.Key
	ActiveOnly bool
}

// Store persists budgets.
type Store interface {
	// CreateBudget fails with engine.ErrConflict when a budget already
	// exists for the same (company, category, fiscal).
	CreateBudget(ctx context.Context, b *Budget) error

	// CreateBudgets inserts a batch atomically: all rows or none.
	// Used by rollover.
	CreateBudgets(ctx context.Context, bs []*Budget) error

	// Budget returns engine.ErrNotFound for unknown IDs.
	Budget(ctx context.Context, id engine.BudgetID) (*Budget, error)

	UpdateBudget(ctx context.Context, b *Budget) error
	DeleteBudget(ctx context.Context, id engine.BudgetID) error

	// Budgets returns all budgets matching the filter.
	Budgets(ctx context.Context, f Filter) ([]*Budget, error)
}

// =============================================================================
// EXPENSE SOURCE - Read-only view of expenses for aggregation
// =============================================================================

// ExpenseRow is the slice of an expense the aggregator needs.
type ExpenseRow struct {
	ID     engine.ExpenseID
	Amount decimal.Decimal
	Date   time.Time
	Status engine.ExpenseStatus
}

// ExpenseSource supplies expense rows for a company+category+date range,
// all statuses included.
type ExpenseSource interface {
	ExpensesInRange(ctx context.Context, companyID engine.CompanyID, categoryID engine.CategoryID, from, to time.Time) ([]ExpenseRow, error)
}

// =============================================================================
// CATEGORY SOURCE - Existence checks for budget creation
// =============================================================================

// CategorySource answers whether a category is valid for budget creation.
// The full category model lives in the expense package; budget only needs
// this one question answered.
type CategorySource interface {
	ActiveCategoryExists(ctx context.Context, companyID engine.CompanyID, categoryID engine.CategoryID) (bool, error)
}
