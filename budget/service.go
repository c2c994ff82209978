/*
service.go - Budget CRUD with spending decoration

PURPOSE:
  Create, read, update, and delete budgets, enforcing the creation
  invariants (valid fiscal key, non-negative amount, active category in the
  same company, unique per company+category+fiscal) and decorating reads
  with current spending so callers see utilization without running a full
  analysis.

  Budgets are living documents: amounts may be edited at any time, even
  after spend is recorded. That is a design choice, not a gap.
*/
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/fiscal"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service owns budget CRUD.
type Service struct {
	Budgets    Store
	Categories CategorySource
	Spend      *Aggregator

	NewID func() engine.BudgetID
	Now   func() time.Time
}

func NewService(budgets Store, categories CategorySource, spend *Aggregator) *Service {
	return &Service{
		Budgets:    budgets,
		Categories: categories,
		Spend:      spend,
		NewID:      func() engine.BudgetID { return engine.BudgetID(uuid.NewString()) },
		Now:        time.Now,
	}
}

// CreateInput carries the fields a caller may set on a new budget.
type CreateInput struct {
	CompanyID  engine.CompanyID
	CategoryID engine.CategoryID
	Fiscal     fiscal.Key
	Amount     decimal.Decimal
	Currency   string
	IsActive   bool
}

// Create validates and persists a new budget.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Budget, error) {
	if _, err := fiscal.Resolve(in.Fiscal); err != nil {
		return nil, err
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("budget amount must be non-negative")
	}

	ok, err := s.Categories.ActiveCategoryExists(ctx, in.CompanyID, in.CategoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("category %s not found or inactive: %w", in.CategoryID, engine.ErrNotFound)
	}

	now := s.Now()
	b := &Budget{
		ID:         s.NewID(),
		CompanyID:  in.CompanyID,
		CategoryID: in.CategoryID,
		Fiscal:     in.Fiscal,
		Amount:     in.Amount,
		Currency:   in.Currency,
		IsActive:   in.IsActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// The store enforces (company, category, fiscal) uniqueness and
	// returns engine.ErrConflict on duplicates.
	if err := s.Budgets.CreateBudget(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WithSpending decorates a budget with its current consumption.
type WithSpending struct {
	*Budget
	CurrentSpending  decimal.Decimal
	RemainingBudget  decimal.Decimal
	Utilization      decimal.Decimal
	ExpenseCount     int
	LastExpenseDate  *time.Time
	MonthlyBreakdown map[string]decimal.Decimal
}

// List returns budgets matching the filter, each decorated with spending.
func (s *Service) List(ctx context.Context, f Filter) ([]*WithSpending, error) {
	budgets, err := s.Budgets.Budgets(ctx, f)
	if err != nil {
		return nil, err
	}

	out := make([]*WithSpending, 0, len(budgets))
	for _, b := range budgets {
		decorated, err := s.decorate(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, decorated)
	}
	return out, nil
}

// Get returns one budget with spending detail.
func (s *Service) Get(ctx context.Context, id engine.BudgetID) (*WithSpending, error) {
	b, err := s.Budgets.Budget(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, b)
}

// UpdateInput carries the editable fields. Nil means "leave unchanged".
type UpdateInput struct {
	Amount   *decimal.Decimal
	Currency *string
	IsActive *bool
}

// Update edits a budget in place. Amount edits are permitted regardless of
// recorded spend.
func (s *Service) Update(ctx context.Context, id engine.BudgetID, in UpdateInput) (*Budget, error) {
	b, err := s.Budgets.Budget(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Amount != nil {
		if in.Amount.IsNegative() {
			return nil, fmt.Errorf("budget amount must be non-negative")
		}
		b.Amount = *in.Amount
	}
	if in.Currency != nil {
		b.Currency = *in.Currency
	}
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
	b.UpdatedAt = s.Now()

	if err := s.Budgets.UpdateBudget(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Delete removes a budget.
func (s *Service) Delete(ctx context.Context, id engine.BudgetID) error {
	if _, err := s.Budgets.Budget(ctx, id); err != nil {
		return err
	}
	return s.Budgets.DeleteBudget(ctx, id)
}

func (s *Service) decorate(ctx context.Context, b *Budget) (*WithSpending, error) {
	summary, err := s.Spend.Aggregate(ctx, SpendQuery{
		CompanyID:  b.CompanyID,
		CategoryID: b.CategoryID,
		Fiscal:     b.Fiscal,
	})
	if err != nil {
		return nil, err
	}

	return &WithSpending{
		Budget:           b,
		CurrentSpending:  summary.TotalSpent,
		RemainingBudget:  b.Amount.Sub(summary.TotalSpent),
		Utilization:      utilization(summary.TotalSpent, b.Amount),
		ExpenseCount:     summary.ExpenseCount,
		LastExpenseDate:  summary.LastExpenseDate,
		MonthlyBreakdown: summary.MonthlyBreakdown,
	}, nil
}
