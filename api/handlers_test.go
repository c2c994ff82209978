/*
handlers_test.go - HTTP-level tests for API handlers

Tests for:
- Expense lifecycle over the REST surface (create, submit, approve, pay)
- Budget gate rejections mapped to 422 with spending detail
- Domain error to HTTP status mapping
- Rollover endpoint
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crane/fiscal-engine/budget"
	"github.com/crane/fiscal-engine/expense"
	"github.com/crane/fiscal-engine/store/memory"
)

// newTestRouter wires the full API against an in-memory store.
// Note: shared by every test in this file.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store := memory.New()
	aggregator := budget.NewAggregator(store)
	gate := budget.NewGate(store, aggregator)
	analyzer := budget.NewAnalyzer(store, aggregator)
	rollover := budget.NewRollover(store)
	budgets := budget.NewService(store, store, aggregator)
	expenses := expense.NewService(store, store, gate)
	approvals := expense.NewApprovalService(store, gate)
	categories := expense.NewCategories(store)

	h := NewHandler(budgets, analyzer, rollover, expenses, approvals, categories, zap.NewNop())
	h.Resetter = store
	return NewRouter(h)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out
}

// seedCategoryAndBudget creates an active category and a budget over HTTP.
func seedCategoryAndBudget(t *testing.T, router http.Handler, fiscalPeriod, amount string) (categoryID, budgetID string) {
	t.Helper()

	rec := do(t, router, http.MethodPost, "/api/categories", CreateCategoryRequest{
		CompanyID: "acme",
		Code:      "MAT",
		Name:      "Materials",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Failed to create category: status %d, body %s", rec.Code, rec.Body.String())
	}
	category := decode[CategoryDTO](t, rec)

	rec = do(t, router, http.MethodPost, "/api/budgets", CreateBudgetRequest{
		CompanyID:  "acme",
		CategoryID: category.ID,
		Fiscal:     fiscalPeriod,
		Amount:     amount,
		Currency:   "USD",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Failed to create budget: status %d, body %s", rec.Code, rec.Body.String())
	}
	b := decode[BudgetDTO](t, rec)
	return category.ID, b.ID
}

func TestExpenseLifecycle_OverHTTP(t *testing.T) {
	// GIVEN: An active category with a 1000 budget for 2024Q1
	router := newTestRouter(t)
	categoryID, budgetID := seedCategoryAndBudget(t, router, "2024Q1", "1000")

	// WHEN: Creating and submitting a 400 expense in one call
	rec := do(t, router, http.MethodPost, "/api/expenses", CreateExpenseRequest{
		CompanyID:   "acme",
		UserID:      "owner",
		CategoryID:  categoryID,
		Amount:      "400",
		Currency:    "USD",
		Description: "Lumber",
		ExpenseDate: "2024-02-10",
		Submit:      true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[ExpenseDTO](t, rec)
	if created.Status != "submitted" {
		t.Errorf("Expected submitted, got %s", created.Status)
	}

	// AND: A different user approves it
	rec = do(t, router, http.MethodPost, "/api/expenses/"+created.ID+"/approve", DecisionRequest{
		UserID:  "approver",
		Comment: "ok",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	approval := decode[ApprovalDTO](t, rec)
	if approval.Action != "approve" {
		t.Errorf("Expected approve action, got %s", approval.Action)
	}

	// THEN: The budget reflects the counted spend
	rec = do(t, router, http.MethodGet, "/api/budgets/"+budgetID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	b := decode[BudgetDTO](t, rec)
	if !b.CurrentSpending.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Expected spending 400, got %s", b.CurrentSpending)
	}
	if !b.RemainingBudget.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected remaining 600, got %s", b.RemainingBudget)
	}

	// AND: Marking paid closes the expense
	rec = do(t, router, http.MethodPost, "/api/expenses/"+created.ID+"/paid", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	paid := decode[ExpenseDTO](t, rec)
	if paid.Status != "paid" {
		t.Errorf("Expected paid, got %s", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Error("Expected paid_at to be set")
	}
}

func TestCreateExpense_BudgetExceededReturns422(t *testing.T) {
	// GIVEN: A 100 budget
	router := newTestRouter(t)
	categoryID, _ := seedCategoryAndBudget(t, router, "2024Q1", "100")

	// WHEN: Submitting a 150 expense
	rec := do(t, router, http.MethodPost, "/api/expenses", CreateExpenseRequest{
		CompanyID:   "acme",
		UserID:      "owner",
		CategoryID:  categoryID,
		Amount:      "150",
		Currency:    "USD",
		ExpenseDate: "2024-02-10",
		Submit:      true,
	})

	// THEN: 422 with the gate's spending detail
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[BudgetExceededResponse](t, rec)
	if !resp.Limit.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected limit 100, got %s", resp.Limit)
	}
	if !resp.Requested.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected requested 150, got %s", resp.Requested)
	}
	if !resp.Remaining.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected remaining 100, got %s", resp.Remaining)
	}

	// AND: Nothing was persisted
	rec = do(t, router, http.MethodGet, "/api/expenses?company_id=acme", nil)
	expenses := decode[[]ExpenseDTO](t, rec)
	if len(expenses) != 0 {
		t.Errorf("Expected no expenses, got %d", len(expenses))
	}
}

func TestCreateBudget_MalformedPeriodReturns400(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/categories", CreateCategoryRequest{
		CompanyID: "acme", Code: "MAT", Name: "Materials",
	})
	category := decode[CategoryDTO](t, rec)

	rec = do(t, router, http.MethodPost, "/api/budgets", CreateBudgetRequest{
		CompanyID:  "acme",
		CategoryID: category.ID,
		Fiscal:     "Q1-2024",
		Amount:     "1000",
		Currency:   "USD",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetExpense_UnknownReturns404(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/expenses/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestApproveExpense_SelfApprovalReturns403(t *testing.T) {
	// GIVEN: A submitted expense
	router := newTestRouter(t)
	categoryID, _ := seedCategoryAndBudget(t, router, "2024Q1", "1000")

	rec := do(t, router, http.MethodPost, "/api/expenses", CreateExpenseRequest{
		CompanyID:   "acme",
		UserID:      "owner",
		CategoryID:  categoryID,
		Amount:      "100",
		Currency:    "USD",
		ExpenseDate: "2024-02-10",
		Submit:      true,
	})
	created := decode[ExpenseDTO](t, rec)

	// WHEN: The owner tries to approve their own expense
	rec = do(t, router, http.MethodPost, "/api/expenses/"+created.ID+"/approve", DecisionRequest{
		UserID: "owner",
	})

	// THEN: Forbidden
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRollover_OverHTTP(t *testing.T) {
	// GIVEN: One active budget in 2024Q1
	router := newTestRouter(t)
	seedCategoryAndBudget(t, router, "2024Q1", "1000")

	// WHEN: Rolling it into 2024Q2 with a 1.5 factor
	rec := do(t, router, http.MethodPost, "/api/budgets/rollover", RolloverRequest{
		CompanyID:    "acme",
		SourceFiscal: "2024Q1",
		TargetFiscal: "2024Q2",
		Factor:       "1.5",
	})

	// THEN: One budget created with the adjusted amount
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[RolloverResponse](t, rec)
	if resp.CreatedCount != 1 {
		t.Errorf("Expected 1 created, got %d", resp.CreatedCount)
	}
	if len(resp.Budgets) != 1 {
		t.Fatalf("Expected 1 budget, got %d", len(resp.Budgets))
	}
	if !resp.Budgets[0].Amount.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Expected amount 1500, got %s", resp.Budgets[0].Amount)
	}
	if resp.Budgets[0].Fiscal != "2024Q2" {
		t.Errorf("Expected fiscal 2024Q2, got %s", resp.Budgets[0].Fiscal)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}
