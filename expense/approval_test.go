package expense_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crane/fiscal-engine/budget"
	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/expense"
	"github.com/crane/fiscal-engine/fiscal"
	"github.com/crane/fiscal-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================
// Note: shared by service_test.go and category_test.go

const (
	testCompany  = engine.CompanyID("company-1")
	testCategory = engine.CategoryID("cat-materials")

	owner     = engine.UserID("user-owner")
	approver  = engine.UserID("user-approver")
	approver2 = engine.UserID("user-approver-2")
)

var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func money(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store      *memory.Memory
	approvals  *expense.ApprovalService
	expenses   *expense.Service
	categories *expense.Categories
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	gate := budget.NewGate(store, budget.NewAggregator(store))

	approvals := expense.NewApprovalService(store, gate)
	n := 0
	approvals.NewID = func() engine.ApprovalID {
		n++
		return engine.ApprovalID(fmt.Sprintf("approval-%d", n))
	}
	approvals.Now = func() time.Time { return testNow }

	expenses := expense.NewService(store, store, gate)
	m := 0
	expenses.NewID = func() engine.ExpenseID {
		m++
		return engine.ExpenseID(fmt.Sprintf("expense-%d", m))
	}
	expenses.Now = func() time.Time { return testNow }

	categories := expense.NewCategories(store)
	categories.Now = func() time.Time { return testNow }

	f := &fixture{store: store, approvals: approvals, expenses: expenses, categories: categories}
	f.seedCategory(t, testCategory, "MAT", true)
	return f
}

func (f *fixture) seedCategory(t *testing.T, id engine.CategoryID, code string, active bool) {
	t.Helper()
	err := f.store.CreateCategory(context.Background(), &expense.Category{
		ID:        id,
		CompanyID: testCompany,
		Code:      code,
		Name:      "Category " + code,
		IsActive:  active,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	})
	if err != nil {
		t.Fatalf("seed category %s: %v", id, err)
	}
}

func (f *fixture) seedExpense(t *testing.T, id string, amount int64, status engine.ExpenseStatus) *expense.Expense {
	t.Helper()
	e := &expense.Expense{
		ID:          engine.ExpenseID(id),
		CompanyID:   testCompany,
		UserID:      owner,
		CategoryID:  testCategory,
		Amount:      money(amount),
		Currency:    "JPY",
		ExpenseDate: date(2024, time.March, 10),
		Status:      status,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	if err := f.store.CreateExpense(context.Background(), e); err != nil {
		t.Fatalf("seed expense %s: %v", id, err)
	}
	return e
}

func (f *fixture) seedBudget(t *testing.T, id string, key string, amount int64) {
	t.Helper()
	err := f.store.CreateBudget(context.Background(), &budget.Budget{
		ID:         engine.BudgetID(id),
		CompanyID:  testCompany,
		CategoryID: testCategory,
		Fiscal:     fiscal.Key(key),
		Amount:     money(amount),
		Currency:   "JPY",
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("seed budget %s: %v", id, err)
	}
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestSubmit_DraftBecomesSubmitted(t *testing.T) {
	// GIVEN: A draft expense owned by the caller
	// WHEN: Submitting
	// THEN: Status is submitted

	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusDraft)

	e, err := f.approvals.Submit(context.Background(), "e-1", owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != engine.StatusSubmitted {
		t.Errorf("expected submitted, got %s", e.Status)
	}
}

func TestSubmit_NonOwnerForbidden(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusDraft)

	_, err := f.approvals.Submit(context.Background(), "e-1", approver)
	if !errors.Is(err, engine.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestSubmit_NonDraftInvalidState(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)

	_, err := f.approvals.Submit(context.Background(), "e-1", owner)
	if !errors.Is(err, engine.ErrInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}

func TestSubmit_BudgetGateBlocks(t *testing.T) {
	// GIVEN: A 100 budget and a 500 draft
	// WHEN: Submitting
	// THEN: Blocked with a budget exceeded error, expense stays draft

	f := newFixture(t)
	f.seedBudget(t, "b-1", "2024M03", 100)
	f.seedExpense(t, "e-1", 500, engine.StatusDraft)

	_, err := f.approvals.Submit(context.Background(), "e-1", owner)
	if !errors.Is(err, engine.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}

	e, _ := f.store.Expense(context.Background(), "e-1")
	if e.Status != engine.StatusDraft {
		t.Errorf("expected expense to remain draft, got %s", e.Status)
	}
}

// =============================================================================
// DECISION TESTS
// =============================================================================

func TestDecide_ApproveRecordsDecisionAndTransition(t *testing.T) {
	// GIVEN: A submitted expense
	// WHEN: An approver approves with a comment
	// THEN: Status approved, approver and timestamp recorded, ledger row appended

	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)

	rec, err := f.approvals.Decide(context.Background(), "e-1", approver, expense.ActionApprove, "looks fine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Action != expense.ActionApprove || rec.UserID != approver {
		t.Errorf("unexpected ledger row: %+v", rec)
	}

	e, _ := f.store.Expense(context.Background(), "e-1")
	if e.Status != engine.StatusApproved {
		t.Errorf("expected approved, got %s", e.Status)
	}
	if e.ApprovedBy != approver || e.ApprovedAt == nil {
		t.Errorf("approval metadata not recorded: by=%s at=%v", e.ApprovedBy, e.ApprovedAt)
	}
}

func TestDecide_RejectAndRequestInfoTransitions(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-reject", 100, engine.StatusSubmitted)
	f.seedExpense(t, "e-info", 100, engine.StatusSubmitted)

	ctx := context.Background()
	if _, err := f.approvals.Decide(ctx, "e-reject", approver, expense.ActionReject, "no receipt"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.approvals.Decide(ctx, "e-info", approver, expense.ActionRequestInfo, "which project?"); err != nil {
		t.Fatalf("request info: %v", err)
	}

	rejected, _ := f.store.Expense(ctx, "e-reject")
	if rejected.Status != engine.StatusRejected {
		t.Errorf("expected rejected, got %s", rejected.Status)
	}

	// request_info sends the expense back to draft for revision.
	info, _ := f.store.Expense(ctx, "e-info")
	if info.Status != engine.StatusDraft {
		t.Errorf("expected draft after request_info, got %s", info.Status)
	}
}

func TestDecide_SelfApprovalForbidden(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)

	_, err := f.approvals.Decide(context.Background(), "e-1", owner, expense.ActionApprove, "")
	if !errors.Is(err, engine.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestDecide_SecondDecisionBySameUserRejected(t *testing.T) {
	// GIVEN: An approver who already requested info on an expense,
	//        which the owner then resubmitted
	// WHEN: The same approver decides again
	// THEN: Already processed (which is also forbidden)

	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)

	ctx := context.Background()
	if _, err := f.approvals.Decide(ctx, "e-1", approver, expense.ActionRequestInfo, "more detail"); err != nil {
		t.Fatalf("request info: %v", err)
	}
	if _, err := f.approvals.Submit(ctx, "e-1", owner); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	_, err := f.approvals.Decide(ctx, "e-1", approver, expense.ActionApprove, "")
	if !errors.Is(err, engine.ErrAlreadyProcessed) {
		t.Errorf("expected already processed, got %v", err)
	}
	if !errors.Is(err, engine.ErrForbidden) {
		t.Error("already processed should unwrap to forbidden")
	}

	// A different approver may still decide.
	if _, err := f.approvals.Decide(ctx, "e-1", approver2, expense.ActionApprove, ""); err != nil {
		t.Errorf("second approver should be allowed: %v", err)
	}
}

func TestDecide_NonSubmittedInvalidState(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusDraft)

	_, err := f.approvals.Decide(context.Background(), "e-1", approver, expense.ActionApprove, "")
	var invalid *engine.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if invalid.Status != engine.StatusDraft {
		t.Errorf("expected status draft in error, got %s", invalid.Status)
	}
}

func TestDecide_DelegateIsNotADecisionAction(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)

	_, err := f.approvals.Decide(context.Background(), "e-1", approver, expense.ActionDelegate, "")
	if err == nil {
		t.Error("expected delegate to be rejected as a decision action")
	}
}

// =============================================================================
// MARK PAID TESTS
// =============================================================================

func TestMarkPaid_ApprovedOnly(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-approved", 100, engine.StatusApproved)
	f.seedExpense(t, "e-draft", 100, engine.StatusDraft)

	ctx := context.Background()
	e, err := f.approvals.MarkPaid(ctx, "e-approved")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != engine.StatusPaid || e.PaidAt == nil {
		t.Errorf("expected paid with timestamp, got %s / %v", e.Status, e.PaidAt)
	}

	if _, err := f.approvals.MarkPaid(ctx, "e-draft"); !errors.Is(err, engine.ErrInvalidState) {
		t.Errorf("expected invalid state for draft, got %v", err)
	}
}

// =============================================================================
// BULK APPROVE TESTS
// =============================================================================

func TestBulkApprove_BestEffort(t *testing.T) {
	// GIVEN: Three submitted expenses, one already decided by the approver
	// WHEN: Bulk approving all three
	// THEN: Two approved, one error; successes are not rolled back

	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)
	f.seedExpense(t, "e-2", 200, engine.StatusSubmitted)
	f.seedExpense(t, "e-3", 300, engine.StatusSubmitted)

	ctx := context.Background()
	if _, err := f.approvals.Decide(ctx, "e-2", approver, expense.ActionReject, "dup"); err != nil {
		t.Fatalf("setup reject: %v", err)
	}

	outcomes := f.approvals.BulkApprove(ctx, []engine.ExpenseID{"e-1", "e-2", "e-3"}, approver, "batch")
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}

	if outcomes[0].Status != "approved" || outcomes[2].Status != "approved" {
		t.Errorf("expected e-1 and e-3 approved, got %+v", outcomes)
	}
	if outcomes[1].Status != "error" || outcomes[1].Err == nil {
		t.Errorf("expected e-2 to fail, got %+v", outcomes[1])
	}

	e1, _ := f.store.Expense(ctx, "e-1")
	e3, _ := f.store.Expense(ctx, "e-3")
	if e1.Status != engine.StatusApproved || e3.Status != engine.StatusApproved {
		t.Errorf("expected e-1 and e-3 approved in store, got %s / %s", e1.Status, e3.Status)
	}
}

// =============================================================================
// DELEGATION TESTS
// =============================================================================

func TestDelegate_ReassignsAndNarrowsQueue(t *testing.T) {
	// GIVEN: A submitted expense
	// WHEN: One approver delegates it to another
	// THEN: It leaves the first approver's queue, appears in the second's,
	//       and a delegate ledger row exists

	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)

	ctx := context.Background()
	rec, err := f.approvals.Delegate(ctx, "e-1", approver, approver2, "on vacation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Action != expense.ActionDelegate || rec.UserID != approver {
		t.Errorf("unexpected ledger row: %+v", rec)
	}

	fromQueue, _ := f.approvals.PendingApprovals(ctx, testCompany, approver)
	if len(fromQueue) != 0 {
		t.Errorf("expected delegator's queue empty, got %d", len(fromQueue))
	}
	toQueue, _ := f.approvals.PendingApprovals(ctx, testCompany, approver2)
	if len(toQueue) != 1 {
		t.Errorf("expected 1 in delegate's queue, got %d", len(toQueue))
	}

	// Delegation does not consume the delegator's decision.
	if _, err := f.approvals.Decide(ctx, "e-1", approver, expense.ActionApprove, ""); err != nil {
		t.Errorf("delegator should still be able to decide: %v", err)
	}
}

func TestDelegate_OwnerCannotParticipate(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)

	ctx := context.Background()
	if _, err := f.approvals.Delegate(ctx, "e-1", owner, approver, ""); !errors.Is(err, engine.ErrForbidden) {
		t.Errorf("expected forbidden delegating from owner, got %v", err)
	}
	if _, err := f.approvals.Delegate(ctx, "e-1", approver, owner, ""); !errors.Is(err, engine.ErrForbidden) {
		t.Errorf("expected forbidden delegating to owner, got %v", err)
	}
}

func TestDelegate_AfterDecisionRejected(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)
	f.seedExpense(t, "e-2", 100, engine.StatusSubmitted)

	ctx := context.Background()
	if _, err := f.approvals.Decide(ctx, "e-2", approver, expense.ActionRequestInfo, ""); err != nil {
		t.Fatalf("setup: %v", err)
	}
	// e-2 went back to draft; resubmit so status allows delegation.
	if _, err := f.approvals.Submit(ctx, "e-2", owner); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	_, err := f.approvals.Delegate(ctx, "e-2", approver, approver2, "")
	if !errors.Is(err, engine.ErrAlreadyProcessed) {
		t.Errorf("expected already processed, got %v", err)
	}
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestPendingApprovals_ExcludesOwnAndDecided(t *testing.T) {
	// GIVEN: Three submitted expenses, one owned by the approver,
	//        one already decided by them
	// WHEN: Listing the pending queue
	// THEN: Only the remaining one shows

	f := newFixture(t)
	f.seedExpense(t, "e-open", 100, engine.StatusSubmitted)
	f.seedExpense(t, "e-decided", 100, engine.StatusSubmitted)

	ctx := context.Background()
	own := &expense.Expense{
		ID: "e-own", CompanyID: testCompany, UserID: approver,
		CategoryID: testCategory, Amount: money(50), Currency: "JPY",
		ExpenseDate: date(2024, time.March, 10), Status: engine.StatusSubmitted,
	}
	if err := f.store.CreateExpense(ctx, own); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := f.approvals.Decide(ctx, "e-decided", approver, expense.ActionReject, ""); err != nil {
		t.Fatalf("setup: %v", err)
	}

	queue, err := f.approvals.PendingApprovals(ctx, testCompany, approver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != "e-open" {
		t.Errorf("expected only e-open pending, got %+v", queue)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)

	ctx := context.Background()
	if _, err := f.approvals.Delegate(ctx, "e-1", approver, approver2, "pass"); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if _, err := f.approvals.Decide(ctx, "e-1", approver2, expense.ActionApprove, "done"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	history, err := f.approvals.History(ctx, "e-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(history))
	}
	if history[0].Action != expense.ActionApprove || history[1].Action != expense.ActionDelegate {
		t.Errorf("expected newest first, got %+v", history)
	}
}

func TestHistory_UnknownExpense(t *testing.T) {
	f := newFixture(t)
	if _, err := f.approvals.History(context.Background(), "nope"); !engine.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestStatistics_GroupsByActionAndApprover(t *testing.T) {
	// GIVEN: Two approvals and one rejection by two approvers
	// WHEN: Aggregating statistics for the month
	// THEN: Counts and amount totals group correctly

	f := newFixture(t)
	f.seedExpense(t, "e-1", 100, engine.StatusSubmitted)
	f.seedExpense(t, "e-2", 200, engine.StatusSubmitted)
	f.seedExpense(t, "e-3", 400, engine.StatusSubmitted)

	ctx := context.Background()
	if _, err := f.approvals.Decide(ctx, "e-1", approver, expense.ActionApprove, ""); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := f.approvals.Decide(ctx, "e-2", approver, expense.ActionReject, ""); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := f.approvals.Decide(ctx, "e-3", approver2, expense.ActionApprove, ""); err != nil {
		t.Fatalf("setup: %v", err)
	}

	stats, err := f.approvals.Statistics(ctx, testCompany, date(2024, time.March, 1), date(2024, time.March, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.TotalApprovals != 3 {
		t.Errorf("expected 3 ledger rows, got %d", stats.TotalApprovals)
	}
	if got := stats.ByAction[expense.ActionApprove]; got.Count != 2 || !got.TotalAmount.Equal(money(500)) {
		t.Errorf("approve: expected 2/500, got %d/%v", got.Count, got.TotalAmount)
	}
	if got := stats.ByAction[expense.ActionReject]; got.Count != 1 || !got.TotalAmount.Equal(money(200)) {
		t.Errorf("reject: expected 1/200, got %d/%v", got.Count, got.TotalAmount)
	}
	if got := stats.ByApprover[approver]; got.Count != 2 || !got.TotalAmount.Equal(money(300)) {
		t.Errorf("approver: expected 2/300, got %d/%v", got.Count, got.TotalAmount)
	}
	if got := stats.ByApprover[approver2]; got.Count != 1 || !got.TotalAmount.Equal(money(400)) {
		t.Errorf("approver2: expected 1/400, got %d/%v", got.Count, got.TotalAmount)
	}
}
