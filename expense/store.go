/*
store.go - Persistence interfaces the expense package depends on

PURPOSE:
  Store is the expense + approval-ledger surface; WithTx is how the one
  hard atomicity requirement is met: a decision's status update and its
  ledger append commit together or not at all.

LEDGER RULES:
  AppendApproval is the only write on approvals. No update, no delete.
  Corrections happen at the expense level (resubmission), never by editing
  history.
*/
package expense

import (
	"context"
	"time"

	"github.com/crane/fiscal-engine/engine"
)

// =============================================================================
// EXPENSE + APPROVAL STORE
// =============================================================================

// ExpenseFilter narrows expense queries. Zero-value fields match everything.
type ExpenseFilter struct {
	CompanyID  engine.CompanyID
	UserID     engine.UserID
	CategoryID engine.CategoryID
	Status     engine.ExpenseStatus
	From       *time.Time // expense date lower bound, inclusive
	To         *time.Time // expense date upper bound, inclusive
}

// Store persists expenses and the approval ledger.
type Store interface {
	CreateExpense(ctx context.Context, e *Expense) error

	// Expense returns engine.ErrNotFound for unknown IDs.
	Expense(ctx context.Context, id engine.ExpenseID) (*Expense, error)

	UpdateExpense(ctx context.Context, e *Expense) error
	DeleteExpense(ctx context.Context, id engine.ExpenseID) error
	Expenses(ctx context.Context, f ExpenseFilter) ([]*Expense, error)

	// AppendApproval adds a ledger row. The only write on approvals.
	AppendApproval(ctx context.Context, a Approval) error

	// Approvals returns the full ledger for an expense, newest first.
	Approvals(ctx context.Context, expenseID engine.ExpenseID) ([]Approval, error)

	// ApprovalsInRange returns every ledger row for a company's expenses
	// created within [from, to], for statistics.
	ApprovalsInRange(ctx context.Context, companyID engine.CompanyID, from, to time.Time) ([]Approval, error)

	// PendingForApprover returns submitted expenses the user may act on:
	// not their own, not yet decided by them, and not delegated to
	// somebody else.
	PendingForApprover(ctx context.Context, companyID engine.CompanyID, userID engine.UserID) ([]*Expense, error)

	// WithTx runs fn against a transactional view of the store. fn
	// returning an error rolls back every write made through the view.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// CATEGORY STORE
// =============================================================================

// CategoryFilter narrows category queries.
type CategoryFilter struct {
	CompanyID  engine.CompanyID
	ParentID   *engine.CategoryID // nil = any; pointer to "" = roots only
	ActiveOnly bool
}

// CategoryRefCounts reports what references a category, for delete guards.
type CategoryRefCounts struct {
	Children int
	Expenses int
	Budgets  int
}

// CategoryStore persists the category tree.
type CategoryStore interface {
	CreateCategory(ctx context.Context, c *Category) error
	Category(ctx context.Context, id engine.CategoryID) (*Category, error)

	// CategoryByCode returns engine.ErrNotFound when no category in the
	// company carries the code.
	CategoryByCode(ctx context.Context, companyID engine.CompanyID, code string) (*Category, error)

	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id engine.CategoryID) error
	Categories(ctx context.Context, f CategoryFilter) ([]*Category, error)

	CategoryRefCounts(ctx context.Context, id engine.CategoryID) (CategoryRefCounts, error)
}
