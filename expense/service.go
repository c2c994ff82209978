/*
service.go - Expense CRUD and summaries

PURPOSE:
  Create, edit, and summarize expenses. The budget gate runs whenever an
  expense is created directly into submitted, and whenever an amount or
  category change lands on a non-terminal expense - with the expense
  excluded from its own spend so it never double-counts.

EDIT RULES:
  paid      immutable
  approved  may only move to paid (via the approval service)
  rejected  not editable through Update; the owner starts a new submission
*/
package expense

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crane/fiscal-engine/budget"
	"github.com/crane/fiscal-engine/engine"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service owns expense CRUD.
type Service struct {
	Store      Store
	Categories CategoryStore
	Gate       *budget.Gate

	NewID func() engine.ExpenseID
	Now   func() time.Time
}

func NewService(store Store, categories CategoryStore, gate *budget.Gate) *Service {
	return &Service{
		Store:      store,
		Categories: categories,
		Gate:       gate,
		NewID:      func() engine.ExpenseID { return engine.ExpenseID(uuid.NewString()) },
		Now:        time.Now,
	}
}

// CreateInput carries the fields a caller may set on a new expense.
type CreateInput struct {
	CompanyID   engine.CompanyID
	UserID      engine.UserID
	CategoryID  engine.CategoryID
	Amount      decimal.Decimal
	Currency    string
	Description string
	ExpenseDate time.Time

	// Submit creates the expense directly into submitted, which runs the
	// budget gate.
	Submit bool
}

// Create validates and persists a new expense.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Expense, error) {
	if err := s.requireActiveCategory(ctx, in.CompanyID, in.CategoryID); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("expense amount must be positive")
	}

	status := engine.StatusDraft
	if in.Submit {
		if err := s.Gate.CheckSubmission(ctx, in.CompanyID, in.CategoryID, in.Amount, in.ExpenseDate, ""); err != nil {
			return nil, err
		}
		status = engine.StatusSubmitted
	}

	now := s.Now()
	e := &Expense{
		ID:          s.NewID(),
		CompanyID:   in.CompanyID,
		UserID:      in.UserID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Description: in.Description,
		ExpenseDate: in.ExpenseDate,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateExpense(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get returns one expense.
func (s *Service) Get(ctx context.Context, id engine.ExpenseID) (*Expense, error) {
	return s.Store.Expense(ctx, id)
}

// List returns expenses matching the filter.
func (s *Service) List(ctx context.Context, f ExpenseFilter) ([]*Expense, error) {
	return s.Store.Expenses(ctx, f)
}

// UpdateInput carries the editable fields. Nil means "leave unchanged".
type UpdateInput struct {
	CategoryID  *engine.CategoryID
	Amount      *decimal.Decimal
	Currency    *string
	Description *string
	ExpenseDate *time.Time
}

// Update edits a non-terminal expense. Amount or category changes re-run
// the budget gate with the expense excluded from its own spend.
func (s *Service) Update(ctx context.Context, id engine.ExpenseID, in UpdateInput) (*Expense, error) {
	e, err := s.Store.Expense(ctx, id)
	if err != nil {
		return nil, err
	}

	if e.Status == engine.StatusPaid {
		return nil, &engine.InvalidStateError{ExpenseID: id, Status: e.Status, Attempted: "update"}
	}
	if e.Status == engine.StatusApproved {
		return nil, &engine.InvalidStateError{ExpenseID: id, Status: e.Status, Attempted: "update"}
	}

	categoryID := e.CategoryID
	if in.CategoryID != nil && *in.CategoryID != e.CategoryID {
		if err := s.requireActiveCategory(ctx, e.CompanyID, *in.CategoryID); err != nil {
			return nil, err
		}
		categoryID = *in.CategoryID
	}

	amount := e.Amount
	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			return nil, fmt.Errorf("expense amount must be positive")
		}
		amount = *in.Amount
	}

	expenseDate := e.ExpenseDate
	if in.ExpenseDate != nil {
		expenseDate = *in.ExpenseDate
	}

	// Re-gate when the spend-relevant fields change.
	if !amount.Equal(e.Amount) || categoryID != e.CategoryID {
		if err := s.Gate.CheckSubmission(ctx, e.CompanyID, categoryID, amount, expenseDate, e.ID); err != nil {
			return nil, err
		}
	}

	e.CategoryID = categoryID
	e.Amount = amount
	e.ExpenseDate = expenseDate
	if in.Currency != nil {
		e.Currency = *in.Currency
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	e.UpdatedAt = s.Now()

	if err := s.Store.UpdateExpense(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Delete removes a draft, submitted, or rejected expense. Approved and
// paid expenses are part of the financial record and cannot be deleted.
func (s *Service) Delete(ctx context.Context, id engine.ExpenseID) error {
	e, err := s.Store.Expense(ctx, id)
	if err != nil {
		return err
	}
	if e.Status == engine.StatusApproved || e.Status == engine.StatusPaid {
		return &engine.InvalidStateError{ExpenseID: id, Status: e.Status, Attempted: "delete"}
	}
	return s.Store.DeleteExpense(ctx, id)
}

// =============================================================================
// SUMMARY
// =============================================================================

// StatusGroup is a count and amount total for one grouping key.
type StatusGroup struct {
	Count  int
	Amount decimal.Decimal
}

// ExpenseSummary groups a company's expenses by status and category.
type ExpenseSummary struct {
	TotalAmount decimal.Decimal
	TotalCount  int
	ByStatus    map[engine.ExpenseStatus]StatusGroup
	ByCategory  map[engine.CategoryID]StatusGroup

	Pending  int // submitted
	Approved int
	Rejected int
}

// Summary aggregates expenses for a company, optionally scoped to one
// user and a date range.
func (s *Service) Summary(ctx context.Context, companyID engine.CompanyID, userID engine.UserID, from, to *time.Time) (*ExpenseSummary, error) {
	expenses, err := s.Store.Expenses(ctx, ExpenseFilter{
		CompanyID: companyID,
		UserID:    userID,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, err
	}

	summary := &ExpenseSummary{
		ByStatus:   map[engine.ExpenseStatus]StatusGroup{},
		ByCategory: map[engine.CategoryID]StatusGroup{},
	}

	for _, e := range expenses {
		summary.TotalAmount = summary.TotalAmount.Add(e.Amount)
		summary.TotalCount++

		byStatus := summary.ByStatus[e.Status]
		byStatus.Count++
		byStatus.Amount = byStatus.Amount.Add(e.Amount)
		summary.ByStatus[e.Status] = byStatus

		byCategory := summary.ByCategory[e.CategoryID]
		byCategory.Count++
		byCategory.Amount = byCategory.Amount.Add(e.Amount)
		summary.ByCategory[e.CategoryID] = byCategory

		switch e.Status {
		case engine.StatusSubmitted:
			summary.Pending++
		case engine.StatusApproved:
			summary.Approved++
		case engine.StatusRejected:
			summary.Rejected++
		}
	}

	return summary, nil
}

func (s *Service) requireActiveCategory(ctx context.Context, companyID engine.CompanyID, categoryID engine.CategoryID) error {
	c, err := s.Categories.Category(ctx, categoryID)
	if err != nil {
		return err
	}
	if c.CompanyID != companyID || !c.IsActive {
		return fmt.Errorf("category %s not found or inactive: %w", categoryID, engine.ErrNotFound)
	}
	return nil
}
