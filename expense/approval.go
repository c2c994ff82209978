/*
approval.go - The approval state machine

PURPOSE:
  Owns every lifecycle transition and the approval-history ledger.

TRANSITION TABLE:
  draft     --submit (owner)---------> submitted   gate re-run
  submitted --approve (non-owner)----> approved    ApprovedBy/At + ledger row
  submitted --reject (non-owner)-----> rejected    ledger row
  submitted --request_info (non-own)-> draft       ledger row, owner may edit
  approved  --mark paid--------------> paid        PaidAt

  paid and rejected are terminal for the approval path. A rejected expense
  re-enters only as a fresh submission.

ATOMICITY:
  Each decision commits its status update and ledger append in one store
  transaction. A crash can never leave one without the other.

BULK APPROVE:
  Applies the single-approve transition independently per expense ID.
  Best-effort: each ID reports its own outcome and one failure rolls
  nothing else back.
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
// APPROVAL SERVICE
// =============================================================================

// ApprovalService drives expense lifecycle transitions.
type ApprovalService struct {
	Store Store
	Gate  *budget.Gate

	NewID func() engine.ApprovalID
	Now   func() time.Time
}

func NewApprovalService(store Store, gate *budget.Gate) *ApprovalService {
	return &ApprovalService{
		Store: store,
		Gate:  gate,
		NewID: func() engine.ApprovalID { return engine.ApprovalID(uuid.NewString()) },
		Now:   time.Now,
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit moves a draft expense to submitted. Owner only. The budget gate
// runs here; a breach surfaces as *engine.ExceededError.
func (s *ApprovalService) Submit(ctx context.Context, id engine.ExpenseID, userID engine.UserID) (*Expense, error) {
	e, err := s.Store.Expense(ctx, id)
	if err != nil {
		return nil, err
	}

	if e.UserID != userID {
		return nil, fmt.Errorf("only the owner may submit an expense: %w", engine.ErrForbidden)
	}
	if e.Status != engine.StatusDraft {
		return nil, &engine.InvalidStateError{ExpenseID: id, Status: e.Status, Attempted: "submit"}
	}

	if err := s.Gate.CheckSubmission(ctx, e.CompanyID, e.CategoryID, e.Amount, e.ExpenseDate, e.ID); err != nil {
		return nil, err
	}

	e.Status = engine.StatusSubmitted
	e.UpdatedAt = s.Now()
	if err := s.Store.UpdateExpense(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// =============================================================================
// DECIDE
// =============================================================================

// Decide records one approver's decision on a submitted expense and
// applies the matching transition atomically with the ledger append.
func (s *ApprovalService) Decide(
	ctx context.Context,
	expenseID engine.ExpenseID,
	userID engine.UserID,
	action Action,
	comment string,
) (*Approval, error) {
	if !action.Decision() {
		return nil, fmt.Errorf("unknown approval action %q", action)
	}

	var rec Approval
	err := s.Store.WithTx(ctx, func(tx Store) error {
		e, err := tx.Expense(ctx, expenseID)
		if err != nil {
			return err
		}

		if e.Status != engine.StatusSubmitted {
			return &engine.InvalidStateError{ExpenseID: expenseID, Status: e.Status, Attempted: string(action)}
		}
		if e.UserID == userID {
			return fmt.Errorf("cannot decide on your own expense: %w", engine.ErrForbidden)
		}

		history, err := tx.Approvals(ctx, expenseID)
		if err != nil {
			return err
		}
		for _, prior := range history {
			if prior.UserID == userID && prior.Action.Decision() {
				return engine.ErrAlreadyProcessed
			}
		}

		now := s.Now()
		rec = Approval{
			ID:        s.NewID(),
			ExpenseID: expenseID,
			UserID:    userID,
			Action:    action,
			Comment:   comment,
			CreatedAt: now,
		}
		if err := tx.AppendApproval(ctx, rec); err != nil {
			return err
		}

		switch action {
		case ActionApprove:
			e.Status = engine.StatusApproved
			e.ApprovedBy = userID
			e.ApprovedAt = &now
		case ActionReject:
			e.Status = engine.StatusRejected
		case ActionRequestInfo:
			// Back to draft so the owner can revise and resubmit.
			e.Status = engine.StatusDraft
		}
		e.UpdatedAt = now
		return tx.UpdateExpense(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// =============================================================================
// MARK PAID
// =============================================================================

// MarkPaid closes the lifecycle of an approved expense.
func (s *ApprovalService) MarkPaid(ctx context.Context, id engine.ExpenseID) (*Expense, error) {
	e, err := s.Store.Expense(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != engine.StatusApproved {
		return nil, &engine.InvalidStateError{ExpenseID: id, Status: e.Status, Attempted: "mark paid"}
	}

	now := s.Now()
	e.Status = engine.StatusPaid
	e.PaidAt = &now
	e.UpdatedAt = now
	if err := s.Store.UpdateExpense(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// =============================================================================
// BULK APPROVE
// =============================================================================

// BulkOutcome is the per-expense result of a bulk approval.
type BulkOutcome struct {
	ExpenseID engine.ExpenseID
	Status    string // "approved" or "error"
	Approval  *Approval
	Err       error
}

// BulkApprove applies the approve transition to each ID independently.
// Failures are captured per item; successes commit regardless.
func (s *ApprovalService) BulkApprove(
	ctx context.Context,
	expenseIDs []engine.ExpenseID,
	userID engine.UserID,
	comment string,
) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(expenseIDs))
	for _, id := range expenseIDs {
		rec, err := s.Decide(ctx, id, userID, ActionApprove, comment)
		if err != nil {
			outcomes = append(outcomes, BulkOutcome{ExpenseID: id, Status: "error", Err: err})
			continue
		}
		outcomes = append(outcomes, BulkOutcome{ExpenseID: id, Status: "approved", Approval: rec})
	}
	return outcomes
}

// =============================================================================
// DELEGATION
// =============================================================================

// Delegate reassigns the pending approval task to another user. The
// reassignment is modeled explicitly: AssignedApproverID changes and a
// `delegate` ledger row records who passed it on. Delegating does not
// consume the delegator's decision, and does not stop other approvers from
// deciding - it only narrows whose pending queue lists the expense.
func (s *ApprovalService) Delegate(
	ctx context.Context,
	expenseID engine.ExpenseID,
	fromUserID, toUserID engine.UserID,
	comment string,
) (*Approval, error) {
	var rec Approval
	err := s.Store.WithTx(ctx, func(tx Store) error {
		e, err := tx.Expense(ctx, expenseID)
		if err != nil {
			return err
		}

		if e.Status != engine.StatusSubmitted {
			return &engine.InvalidStateError{ExpenseID: expenseID, Status: e.Status, Attempted: "delegate"}
		}
		if e.UserID == fromUserID || e.UserID == toUserID {
			return fmt.Errorf("owner cannot take part in delegation: %w", engine.ErrForbidden)
		}

		history, err := tx.Approvals(ctx, expenseID)
		if err != nil {
			return err
		}
		for _, prior := range history {
			if prior.UserID == fromUserID && prior.Action.Decision() {
				return fmt.Errorf("no pending approval to delegate: %w", engine.ErrAlreadyProcessed)
			}
		}

		now := s.Now()
		rec = Approval{
			ID:        s.NewID(),
			ExpenseID: expenseID,
			UserID:    fromUserID,
			Action:    ActionDelegate,
			Comment:   comment,
			CreatedAt: now,
		}
		if err := tx.AppendApproval(ctx, rec); err != nil {
			return err
		}

		e.AssignedApproverID = toUserID
		e.UpdatedAt = now
		return tx.UpdateExpense(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// PendingApprovals lists submitted expenses the user may act on.
func (s *ApprovalService) PendingApprovals(ctx context.Context, companyID engine.CompanyID, userID engine.UserID) ([]*Expense, error) {
	return s.Store.PendingForApprover(ctx, companyID, userID)
}

// History returns the full ledger for an expense, newest first.
func (s *ApprovalService) History(ctx context.Context, expenseID engine.ExpenseID) ([]Approval, error) {
	if _, err := s.Store.Expense(ctx, expenseID); err != nil {
		return nil, err
	}
	return s.Store.Approvals(ctx, expenseID)
}

// ActionStats is a count and decimal amount total for a grouping key.
type ActionStats struct {
	Count       int
	TotalAmount decimal.Decimal
}

// Statistics aggregates ledger activity for a company over a date range.
type Statistics struct {
	TotalApprovals int
	ByAction       map[Action]ActionStats
	ByApprover     map[engine.UserID]ActionStats
}

// Statistics groups ledger rows by action and by approver, with the
// underlying expense amounts summed exactly.
func (s *ApprovalService) Statistics(ctx context.Context, companyID engine.CompanyID, from, to time.Time) (*Statistics, error) {
	rows, err := s.Store.ApprovalsInRange(ctx, companyID, from, to)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		ByAction:   map[Action]ActionStats{},
		ByApprover: map[engine.UserID]ActionStats{},
	}

	for _, row := range rows {
		e, err := s.Store.Expense(ctx, row.ExpenseID)
		if err != nil {
			return nil, err
		}

		stats.TotalApprovals++

		byAction := stats.ByAction[row.Action]
		byAction.Count++
		byAction.TotalAmount = byAction.TotalAmount.Add(e.Amount)
		stats.ByAction[row.Action] = byAction

		byApprover := stats.ByApprover[row.UserID]
		byApprover.Count++
		byApprover.TotalAmount = byApprover.TotalAmount.Add(e.Amount)
		stats.ByApprover[row.UserID] = byApprover
	}

	return stats, nil
}
