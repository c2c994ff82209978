/*
rollover.go - Period-to-period budget rollover

PURPOSE:
  Copies every active budget of a source fiscal period into a target period
  with a uniform multiplicative adjustment. All-or-nothing: the target
  period must be completely empty before any row is written, and the batch
  insert is atomic. Retrying after a crash is safe - a partial write rolls
  back, and a completed write trips the existence precondition.
*/
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/fiscal"
)

// =============================================================================
// ROLLOVER
// =============================================================================

var errNonPositiveFactor = errors.New("adjustment factor must be positive")

// RolloverResult reports what a rollover created.
type RolloverResult struct {
	SourceFiscal     fiscal.Key
	TargetFiscal     fiscal.Key
	AdjustmentFactor decimal.Decimal
	SourceCount      int
	CreatedCount     int
	Budgets          []*Budget
}

// Rollover duplicates one period's budgets into another.
type Rollover struct {
	Budgets Store

	// NewID generates budget IDs. Defaults to UUIDs.
	NewID func() engine.BudgetID
	Now   func() time.Time
}

func NewRollover(budgets Store) *Rollover {
	return &Rollover{
		Budgets: budgets,
		NewID:   func() engine.BudgetID { return engine.BudgetID(uuid.NewString()) },
		Now:     time.Now,
	}
}

// Run copies all active budgets from sourceFiscal to targetFiscal, scaling
// each amount by factor. A zero factor means "unset" and defaults to 1.0.
// Fails engine.ErrNotFound when the source period is empty and
// engine.ErrConflict when the target period has any budget at all.
func (r *Rollover) Run(
	ctx context.Context,
	companyID engine.CompanyID,
	sourceFiscal, targetFiscal fiscal.Key,
	factor decimal.Decimal,
) (*RolloverResult, error) {
	if _, err := fiscal.Resolve(sourceFiscal); err != nil {
		return nil, err
	}
	if _, err := fiscal.Resolve(targetFiscal); err != nil {
		return nil, err
	}

	if factor.IsZero() {
		factor = decimal.NewFromInt(1)
	}
	if factor.IsNegative() {
		return nil, errNonPositiveFactor
	}

	source, err := r.Budgets.Budgets(ctx, Filter{
		CompanyID:  companyID,
		Fiscal:     sourceFiscal,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	if len(source) == 0 {
		return nil, fmt.Errorf("no budgets in period %s: %w", sourceFiscal, engine.ErrNotFound)
	}

	// Precondition comes before any write: the target must be empty,
	// active or not.
	existing, err := r.Budgets.Budgets(ctx, Filter{
		CompanyID: companyID,
		Fiscal:    targetFiscal,
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("budgets already exist for period %s: %w", targetFiscal, engine.ErrConflict)
	}

	now := r.Now()
	created := make([]*Budget, 0, len(source))
	for _, src := range source {
		created = append(created, &Budget{
			ID:         r.NewID(),
			CompanyID:  src.CompanyID,
			CategoryID: src.CategoryID,
			Fiscal:     targetFiscal,
			Amount:     src.Amount.Mul(factor),
			Currency:   src.Currency,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := r.Budgets.CreateBudgets(ctx, created); err != nil {
		return nil, err
	}

	return &RolloverResult{
		SourceFiscal:     sourceFiscal,
		TargetFiscal:     targetFiscal,
		AdjustmentFactor: factor,
		SourceCount:      len(source),
		CreatedCount:     len(created),
		Budgets:          created,
	}, nil
}
