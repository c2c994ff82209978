/*
gate.go - The submission gate

PURPOSE:
  Decides whether an expense may move toward a counted status. Invoked
  before a draft enters submitted, and before an amount or category edit on
  a non-terminal expense. Never evaluated retroactively: a budget created
  after submission does not invalidate an already-submitted expense.

RESOLUTION ORDER:
  fiscal.CandidateKeys(expenseDate) - monthly, quarterly, yearly. The first
  active budget wins. No budget at any granularity means the gate passes
  unconditionally: absence of a budget is not a constraint.

KNOWN LIMITATION:
  Two concurrent submissions against the same near-exhausted budget can
  both pass the check before either commits (check-then-act window). The
  store's transaction isolation is the only protection. Closing this would
  need a reserve-then-commit counter per budget.
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
// GATE
// =============================================================================

// Gate checks projected spend against the most specific applicable budget.
type Gate struct {
	Budgets Store
	Spend   *Aggregator
}

func NewGate(budgets Store, spend *Aggregator) *Gate {
	return &Gate{Budgets: budgets, Spend: spend}
}

// CheckSubmission returns nil when the expense may proceed, or an
// *engine.ExceededError when the projected total would breach the budget.
// excludeExpenseID keeps an edited expense from double-counting itself.
func (g *Gate) CheckSubmission(
	ctx context.Context,
	companyID engine.CompanyID,
	categoryID engine.CategoryID,
	amount decimal.Decimal,
	expenseDate time.Time,
	excludeExpenseID engine.ExpenseID,
) error {
	b, err := g.applicableBudget(ctx, companyID, categoryID, expenseDate)
	if err != nil {
		return err
	}
	if b == nil {
		return nil
	}

	summary, err := g.Spend.Aggregate(ctx, SpendQuery{
		CompanyID:        companyID,
		CategoryID:       categoryID,
		Fiscal:           b.Fiscal,
		ExcludeExpenseID: excludeExpenseID,
	})
	if err != nil {
		return err
	}

	projected := summary.TotalSpent.Add(amount)
	if projected.GreaterThan(b.Amount) {
		return &engine.ExceededError{
			BudgetID:  b.ID,
			Fiscal:    string(b.Fiscal),
			Limit:     b.Amount,
			Spent:     summary.TotalSpent,
			Requested: amount,
			Remaining: b.Amount.Sub(summary.TotalSpent),
		}
	}
	return nil
}

// applicableBudget tries each candidate key in granularity order and
// returns the first active budget, or nil when none exists.
func (g *Gate) applicableBudget(
	ctx context.Context,
	companyID engine.CompanyID,
	categoryID engine.CategoryID,
	expenseDate time.Time,
) (*Budget, error) {
	for _, key := range fiscal.CandidateKeys(expenseDate) {
		matches, err := g.Budgets.Budgets(ctx, Filter{
			CompanyID:  companyID,
			CategoryID: categoryID,
			Fiscal:     key,
			ActiveOnly: true,
		})
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return nil, nil
}
