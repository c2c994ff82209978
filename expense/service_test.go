package expense_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/expense"
)

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestCreate_DraftByDefault(t *testing.T) {
	// GIVEN: A valid expense input without the submit flag
	// WHEN: Creating
	// THEN: It lands in draft and the gate never runs

	f := newFixture(t)
	f.seedBudget(t, "b-tiny", "2024M03", 1) // would reject any submission

	e, err := f.expenses.Create(context.Background(), expense.CreateInput{
		CompanyID:   testCompany,
		UserID:      owner,
		CategoryID:  testCategory,
		Amount:      money(500),
		Currency:    "JPY",
		Description: "rebar",
		ExpenseDate: date(2024, time.March, 10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != engine.StatusDraft {
		t.Errorf("expected draft, got %s", e.Status)
	}
}

func TestCreate_SubmitRunsGate(t *testing.T) {
	// GIVEN: A 100 budget
	// WHEN: Creating a 500 expense with submit=true
	// THEN: Blocked before anything is persisted

	f := newFixture(t)
	f.seedBudget(t, "b-1", "2024M03", 100)

	ctx := context.Background()
	_, err := f.expenses.Create(ctx, expense.CreateInput{
		CompanyID:   testCompany,
		UserID:      owner,
		CategoryID:  testCategory,
		Amount:      money(500),
		Currency:    "JPY",
		ExpenseDate: date(2024, time.March, 10),
		Submit:      true,
	})
	if !errors.Is(err, engine.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}

	all, _ := f.expenses.List(ctx, expense.ExpenseFilter{CompanyID: testCompany})
	if len(all) != 0 {
		t.Errorf("expected nothing persisted, got %d", len(all))
	}
}

func TestCreate_InactiveCategoryRejected(t *testing.T) {
	f := newFixture(t)
	f.seedCategory(t, "cat-closed", "OLD", false)

	_, err := f.expenses.Create(context.Background(), expense.CreateInput{
		CompanyID:   testCompany,
		UserID:      owner,
		CategoryID:  "cat-closed",
		Amount:      money(100),
		Currency:    "JPY",
		ExpenseDate: date(2024, time.March, 10),
	})
	if err == nil {
		t.Error("expected an error for an inactive category")
	}
}

func TestCreate_NonPositiveAmountRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.expenses.Create(context.Background(), expense.CreateInput{
		CompanyID:   testCompany,
		UserID:      owner,
		CategoryID:  testCategory,
		Amount:      money(0),
		Currency:    "JPY",
		ExpenseDate: date(2024, time.March, 10),
	})
	if err == nil {
		t.Error("expected an error for a zero amount")
	}
}

// =============================================================================
// UPDATE TESTS
// =============================================================================

func TestUpdate_TerminalStatusesLocked(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-approved", 100, engine.StatusApproved)
	f.seedExpense(t, "e-paid", 100, engine.StatusPaid)

	ctx := context.Background()
	desc := "changed"
	for _, id := range []engine.ExpenseID{"e-approved", "e-paid"} {
		_, err := f.expenses.Update(ctx, id, expense.UpdateInput{Description: &desc})
		if !errors.Is(err, engine.ErrInvalidState) {
			t.Errorf("%s: expected invalid state, got %v", id, err)
		}
	}
}

func TestUpdate_AmountChangeReRunsGateWithSelfExcluded(t *testing.T) {
	// GIVEN: A 1000 budget and a submitted 800 expense
	// WHEN: Raising the amount to 1000, then to 1001
	// THEN: 1000 passes (self excluded from baseline), 1001 is blocked

	f := newFixture(t)
	f.seedBudget(t, "b-1", "2024M03", 1000)
	f.seedExpense(t, "e-1", 800, engine.StatusSubmitted)

	ctx := context.Background()
	ok := money(1000)
	if _, err := f.expenses.Update(ctx, "e-1", expense.UpdateInput{Amount: &ok}); err != nil {
		t.Fatalf("expected 1000 to pass, got %v", err)
	}

	over := money(1001)
	if _, err := f.expenses.Update(ctx, "e-1", expense.UpdateInput{Amount: &over}); !errors.Is(err, engine.ErrBudgetExceeded) {
		t.Errorf("expected 1001 to be blocked, got %v", err)
	}
}

func TestUpdate_DescriptionOnlySkipsGate(t *testing.T) {
	// GIVEN: A submitted expense already over a later-created budget
	// WHEN: Editing only the description
	// THEN: The edit passes - the gate only runs for amount or category changes

	f := newFixture(t)
	f.seedExpense(t, "e-1", 500, engine.StatusSubmitted)
	f.seedBudget(t, "b-late", "2024M03", 100)

	desc := "steel beams"
	e, err := f.expenses.Update(context.Background(), "e-1", expense.UpdateInput{Description: &desc})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Description != "steel beams" {
		t.Errorf("description not applied: %q", e.Description)
	}
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestDelete_CountedExpensesProtected(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-draft", 100, engine.StatusDraft)
	f.seedExpense(t, "e-approved", 100, engine.StatusApproved)

	ctx := context.Background()
	if err := f.expenses.Delete(ctx, "e-draft"); err != nil {
		t.Errorf("draft should be deletable: %v", err)
	}
	if err := f.expenses.Delete(ctx, "e-approved"); !errors.Is(err, engine.ErrInvalidState) {
		t.Errorf("expected invalid state deleting approved, got %v", err)
	}
}

// =============================================================================
// SUMMARY TESTS
// =============================================================================

func TestSummary_GroupsByStatusAndCategory(t *testing.T) {
	// GIVEN: Expenses across statuses and two categories
	// WHEN: Summarizing the company for March
	// THEN: Totals, status groups and category groups line up

	f := newFixture(t)
	f.seedCategory(t, "cat-labor", "LAB", true)
	f.seedExpense(t, "e-1", 100, engine.StatusApproved)
	f.seedExpense(t, "e-2", 200, engine.StatusSubmitted)
	f.seedExpense(t, "e-3", 400, engine.StatusRejected)

	ctx := context.Background()
	labor := f.seedExpense(t, "e-4", 800, engine.StatusApproved)
	labor.CategoryID = "cat-labor"
	if err := f.store.UpdateExpense(ctx, labor); err != nil {
		t.Fatalf("setup: %v", err)
	}

	from := date(2024, time.March, 1)
	to := date(2024, time.March, 31)
	summary, err := f.expenses.Summary(ctx, testCompany, "", &from, &to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.TotalCount != 4 || !summary.TotalAmount.Equal(money(1500)) {
		t.Errorf("expected 4/1500 total, got %d/%v", summary.TotalCount, summary.TotalAmount)
	}
	if got := summary.ByStatus[engine.StatusApproved]; got.Count != 2 || !got.Amount.Equal(money(900)) {
		t.Errorf("approved group: expected 2/900, got %d/%v", got.Count, got.Amount)
	}
	if got := summary.ByCategory["cat-labor"]; got.Count != 1 || !got.Amount.Equal(money(800)) {
		t.Errorf("labor group: expected 1/800, got %d/%v", got.Count, got.Amount)
	}
	if summary.Pending != 1 || summary.Approved != 2 || summary.Rejected != 1 {
		t.Errorf("expected pending/approved/rejected 1/2/1, got %d/%d/%d",
			summary.Pending, summary.Approved, summary.Rejected)
	}
}

func TestSummary_UserScoped(t *testing.T) {
	f := newFixture(t)
	f.seedExpense(t, "e-owner", 100, engine.StatusApproved)

	ctx := context.Background()
	other := &expense.Expense{
		ID: "e-other", CompanyID: testCompany, UserID: approver,
		CategoryID: testCategory, Amount: money(999), Currency: "JPY",
		ExpenseDate: date(2024, time.March, 10), Status: engine.StatusApproved,
	}
	if err := f.store.CreateExpense(ctx, other); err != nil {
		t.Fatalf("seed: %v", err)
	}

	summary, err := f.expenses.Summary(ctx, testCompany, owner, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalCount != 1 || !summary.TotalAmount.Equal(money(100)) {
		t.Errorf("expected only the owner's expense, got %d/%v", summary.TotalCount, summary.TotalAmount)
	}
}
