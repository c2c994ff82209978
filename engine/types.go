/*
Package engine holds the identifiers, statuses, and error taxonomy shared by
every part of the budget control and expense approval engine.

PURPOSE:
  The budget package (spend aggregation, analysis, gating, rollover) and the
  expense package (lifecycle, approvals) both speak in terms of companies,
  categories, users, and expense statuses. Those shared vocabulary types live
  here so the two packages never import each other's internals — data flows
  expense -> budget -> fiscal, one direction only.

DESIGN PRINCIPLES:
  1. Type Safety: Strong typing for IDs prevents mixing a user ID with a
     company ID at a call site.
  2. Single source of truth: expense status is the only thing that decides
     whether an expense counts against a budget. Approvals cause status
     transitions; they do not imply them.

SEE ALSO:
  - errors.go: the shared error taxonomy
  - budget/:   spend aggregation and budget gating
  - expense/:  the approval state machine
*/
package engine

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CompanyID string
type CategoryID string
type UserID string
type ExpenseID string
type BudgetID string
type ApprovalID string

// =============================================================================
// EXPENSE STATUS
// =============================================================================

// ExpenseStatus is the single source of truth for an expense's position in
// its lifecycle: draft -> submitted -> {approved, rejected, draft};
// approved -> paid.
type ExpenseStatus string

const (
	StatusDraft     ExpenseStatus = "draft"
	StatusSubmitted ExpenseStatus = "submitted"
	StatusApproved  ExpenseStatus = "approved"
	StatusRejected  ExpenseStatus = "rejected"
	StatusPaid      ExpenseStatus = "paid"
)

// CountedStatuses are the statuses that consume budget. Draft, submitted,
// and rejected expenses never contribute to spend, no matter the amount.
var CountedStatuses = []ExpenseStatus{StatusApproved, StatusPaid}

// Counted reports whether the status contributes to budget consumption.
func (s ExpenseStatus) Counted() bool {
	for _, c := range CountedStatuses {
		if s == c {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the approval path. A rejected
// expense can only re-enter the flow as a fresh submission; a paid expense
// is immutable.
func (s ExpenseStatus) Terminal() bool {
	return s == StatusPaid || s == StatusRejected
}
