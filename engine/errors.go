/*
errors.go - Centralized error taxonomy for the engine

PURPOSE:
  All business-rule rejections in one place for consistency and
  discoverability. None of these are retried automatically — they represent
  rule violations, not transient failures. The only thing eligible for
  infrastructure retry is the underlying store call, which is outside this
  engine's responsibility.

ERROR CATEGORIES:
  1. Lookup errors      - ErrNotFound
  2. Uniqueness errors  - ErrConflict
  3. Budget errors      - ErrBudgetExceeded (carries the remaining amount)
  4. Transition errors  - ErrInvalidState, ErrForbidden, ErrAlreadyProcessed

USAGE:
  Callers match with errors.Is, or errors.As for the structured variants:

    var exceeded *engine.ExceededError
    if errors.As(err, &exceeded) {
        show(exceeded.Remaining)
    }

SEE ALSO:
  - fiscal/errors.go: ErrInvalidKey for malformed fiscal keys
  - api/handlers.go:  maps this taxonomy to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced budget, expense, or category
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on uniqueness violations: a duplicate budget
	// key, or a rollover whose target period is already populated.
	ErrConflict = errors.New("conflict")

	// ErrBudgetExceeded is returned when a submission or edit would breach
	// the applicable budget.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrInvalidState is returned when a transition is attempted from a
	// state that does not allow it.
	ErrInvalidState = errors.New("invalid state for transition")

	// ErrForbidden is returned when the acting user may not perform the
	// transition: self-approval, or a duplicate decision.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyProcessed is returned when an approver attempts a second
	// decision on the same submitted expense. Unwraps to ErrForbidden.
	ErrAlreadyProcessed = fmt.Errorf("%w: already processed", ErrForbidden)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ExceededError reports a budget breach with enough detail for the caller
// to display what remains.
type ExceededError struct {
	BudgetID  BudgetID
	Fiscal    string
	Limit     decimal.Decimal // declared budget amount
	Spent     decimal.Decimal // counted spend, excluding the candidate
	Requested decimal.Decimal // the candidate amount
	Remaining decimal.Decimal // Limit - Spent, before the candidate
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("expense would exceed budget %s (%s): limit %s, spent %s, requested %s, remaining %s",
		e.BudgetID, e.Fiscal, e.Limit, e.Spent, e.Requested, e.Remaining)
}

func (e *ExceededError) Unwrap() error { return ErrBudgetExceeded }

// InvalidStateError reports which status blocked a transition.
type InvalidStateError struct {
	ExpenseID ExpenseID
	Status    ExpenseStatus
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s expense %s in status %q", e.Attempted, e.ExpenseID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether the error indicates a uniqueness violation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsClientError reports whether the error is a business-rule rejection
// rather than an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrBudgetExceeded) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrForbidden)
}
