/*
Package expense owns the expense lifecycle: the data model, the approval
state machine with its append-only decision ledger, the submit path that
runs the budget gate, and category management.

PURPOSE:
  An expense moves draft -> submitted -> {approved, rejected, draft}, then
  approved -> paid. Every decision an approver records lands in an
  immutable ledger row; the expense's status field is derived from those
  decisions transactionally, never inferred from them after the fact.

ACTOR INVARIANTS:
  1. No self-approval, unconditionally.
  2. One decision per approver per submitted expense.
  3. Only submitted expenses accept decisions.

DELEGATION:
  Modeled explicitly: Delegate sets AssignedApproverID and appends a
  `delegate` ledger row. The assignment narrows whose pending queue shows
  the expense; it does not restrict who may decide.

SEE ALSO:
  - approval.go: the state machine
  - service.go:  create/update/submit, with budget gating
  - budget/gate.go: the check run before submission
*/
package expense

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/crane/fiscal-engine/engine"
)

// =============================================================================
// EXPENSE
// =============================================================================

// Expense is owned by the submitting user until approved; the approval
// decision belongs to whichever approver acts on it.
type Expense struct {
	ID         engine.ExpenseID
	CompanyID  engine.CompanyID
	UserID     engine.UserID // submitter and owner
	CategoryID engine.CategoryID

	Amount      decimal.Decimal
	Currency    string
	Description string
	ExpenseDate time.Time

	Status engine.ExpenseStatus

	// AssignedApproverID is set by delegation. Empty means any eligible
	// approver.
	AssignedApproverID engine.UserID

	ApprovedBy engine.UserID
	ApprovedAt *time.Time
	PaidAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// APPROVAL LEDGER ROW
// =============================================================================

// Action is what an approver recorded.
type Action string

const (
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionRequestInfo Action = "request_info"

	// ActionDelegate annotates a reassignment; it is not a decision and
	// does not consume the approver's one decision per expense.
	ActionDelegate Action = "delegate"
)

// Decision reports whether the action counts as the approver's decision on
// the expense.
func (a Action) Decision() bool {
	return a == ActionApprove || a == ActionReject || a == ActionRequestInfo
}

// Approval is one immutable ledger row. Append-only: never updated, never
// deleted.
type Approval struct {
	ID        engine.ApprovalID
	ExpenseID engine.ExpenseID
	UserID    engine.UserID
	Action    Action
	Comment   string
	CreatedAt time.Time
}

// =============================================================================
// CATEGORY
// =============================================================================

// Category is a node in a company's expense category tree. Code is unique
// per company; the tree has no cycles.
type Category struct {
	ID        engine.CategoryID
	CompanyID engine.CompanyID
	Code      string
	Name      string
	ParentID  engine.CategoryID // empty for roots
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
