/*
handlers.go - HTTP API handlers for the fiscal budget engine

PURPOSE:
  Exposes budget control and expense approval via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Categories:
    GET    /api/categories               List categories
    POST   /api/categories               Create category
    GET    /api/categories/{id}          Get category
    PUT    /api/categories/{id}          Update category
    DELETE /api/categories/{id}          Delete category

  Budgets:
    GET    /api/budgets                  List budgets with spending
    POST   /api/budgets                  Create budget
    GET    /api/budgets/analysis         Budget analysis report
    POST   /api/budgets/rollover         Roll budgets into a new period
    GET    /api/budgets/{id}             Get budget with spending
    PUT    /api/budgets/{id}             Update budget
    DELETE /api/budgets/{id}             Delete budget

  Expenses:
    GET    /api/expenses                 List expenses
    POST   /api/expenses                 Create expense (optionally submit)
    GET    /api/expenses/pending         Pending approval queue
    GET    /api/expenses/summary         Company/user expense summary
    GET    /api/expenses/statistics      Approval activity statistics
    POST   /api/expenses/bulk-approve    Approve a batch
    GET    /api/expenses/{id}            Get expense
    PUT    /api/expenses/{id}            Update expense
    DELETE /api/expenses/{id}            Delete expense
    POST   /api/expenses/{id}/submit     Submit for approval
    POST   /api/expenses/{id}/approve    Approve
    POST   /api/expenses/{id}/reject     Reject
    POST   /api/expenses/{id}/request-info  Send back for more detail
    POST   /api/expenses/{id}/delegate   Reassign the approval task
    POST   /api/expenses/{id}/paid       Mark paid
    GET    /api/expenses/{id}/history    Approval ledger

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, malformed fiscal keys, bad input
  - 403: Forbidden (self-approval, duplicate decision)
  - 404: Resource not found
  - 409: Conflict (duplicates, invalid lifecycle state)
  - 422: Budget exceeded (with limit/spent/remaining detail)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication. Acting user IDs arrive in request bodies
  and query parameters; an auth middleware would replace those.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crane/fiscal-engine/budget"
	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/expense"
	"github.com/crane/fiscal-engine/fiscal"
)

const dateLayout = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Budgets    *budget.Service
	Analyzer   *budget.Analyzer
	Rollover   *budget.Rollover
	Expenses   *expense.Service
	Approvals  *expense.ApprovalService
	Categories *expense.Categories

	// Resetter clears the store before a demo scenario loads.
	// Optional; scenario routes 404 the reset without one.
	Resetter Resetter

	Log *zap.Logger

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler wires a handler from the domain services.
func NewHandler(
	budgets *budget.Service,
	analyzer *budget.Analyzer,
	rollover *budget.Rollover,
	expenses *expense.Service,
	approvals *expense.ApprovalService,
	categories *expense.Categories,
	log *zap.Logger,
) *Handler {
	return &Handler{
		Budgets:    budgets,
		Analyzer:   analyzer,
		Rollover:   rollover,
		Expenses:   expenses,
		Approvals:  approvals,
		Categories: categories,
		Log:        log,
	}
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// ListCategories returns categories for a company.
// GET /api/categories?company_id=&parent_id=&active=true
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := expense.CategoryFilter{
		CompanyID:  engine.CompanyID(q.Get("company_id")),
		ActiveOnly: q.Get("active") == "true",
	}
	if q.Has("parent_id") {
		parent := engine.CategoryID(q.Get("parent_id"))
		f.ParentID = &parent
	}

	categories, err := h.Categories.List(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, "Failed to list categories", err)
		return
	}

	dtos := make([]CategoryDTO, len(categories))
	for i, c := range categories {
		dtos[i] = toCategoryDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCategory creates a category.
// POST /api/categories
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	c, err := h.Categories.Create(r.Context(), expense.CategoryInput{
		CompanyID: engine.CompanyID(req.CompanyID),
		Code:      req.Code,
		Name:      req.Name,
		ParentID:  engine.CategoryID(req.ParentID),
		IsActive:  active,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(c))
}

// GetCategory returns one category.
// GET /api/categories/{id}
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id := engine.CategoryID(chi.URLParam(r, "id"))
	c, err := h.Categories.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get category", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTO(c))
}

// UpdateCategory edits a category.
// PUT /api/categories/{id}
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id := engine.CategoryID(chi.URLParam(r, "id"))

	var req UpdateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := expense.CategoryUpdate{
		Code:     req.Code,
		Name:     req.Name,
		IsActive: req.IsActive,
	}
	if req.ParentID != nil {
		parent := engine.CategoryID(*req.ParentID)
		in.ParentID = &parent
	}

	c, err := h.Categories.Update(r.Context(), id, in)
	if err != nil {
		h.writeDomainError(w, "Failed to update category", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTO(c))
}

// DeleteCategory removes an unreferenced category.
// DELETE /api/categories/{id}
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := engine.CategoryID(chi.URLParam(r, "id"))
	if err := h.Categories.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

// ListBudgets returns budgets decorated with spending.
// GET /api/budgets?company_id=&category_id=&fiscal_period=&active=true
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	budgets, err := h.Budgets.List(r.Context(), budget.Filter{
		CompanyID:  engine.CompanyID(q.Get("company_id")),
		CategoryID: engine.CategoryID(q.Get("category_id")),
		Fiscal:     fiscal.Key(q.Get("fiscal_period")),
		ActiveOnly: q.Get("active") == "true",
	})
	if err != nil {
		h.writeDomainError(w, "Failed to list budgets", err)
		return
	}

	dtos := make([]BudgetDTO, len(budgets))
	for i, b := range budgets {
		dtos[i] = toBudgetDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBudget creates a budget.
// POST /api/budgets
func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req CreateBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	b, err := h.Budgets.Create(r.Context(), budget.CreateInput{
		CompanyID:  engine.CompanyID(req.CompanyID),
		CategoryID: engine.CategoryID(req.CategoryID),
		Fiscal:     fiscal.Key(req.Fiscal),
		Amount:     amount,
		Currency:   req.Currency,
		IsActive:   active,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create budget", err)
		return
	}

	created, err := h.Budgets.Get(r.Context(), b.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to load created budget", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetDTO(created))
}

// GetBudget returns one budget with spending detail.
// GET /api/budgets/{id}
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	id := engine.BudgetID(chi.URLParam(r, "id"))
	b, err := h.Budgets.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get budget", err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(b))
}

// UpdateBudget edits a budget.
// PUT /api/budgets/{id}
func (h *Handler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	id := engine.BudgetID(chi.URLParam(r, "id"))

	var req UpdateBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var in budget.UpdateInput
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		in.Amount = &amount
	}
	in.Currency = req.Currency
	in.IsActive = req.IsActive

	if _, err := h.Budgets.Update(r.Context(), id, in); err != nil {
		h.writeDomainError(w, "Failed to update budget", err)
		return
	}

	updated, err := h.Budgets.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to load updated budget", err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(updated))
}

// DeleteBudget removes a budget.
// DELETE /api/budgets/{id}
func (h *Handler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	id := engine.BudgetID(chi.URLParam(r, "id"))
	if err := h.Budgets.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete budget", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAnalysis produces the budget analysis report.
// GET /api/budgets/analysis?company_id=&fiscal_period=&category_id=&as_of=
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := budget.AnalysisRequest{
		CompanyID:  engine.CompanyID(q.Get("company_id")),
		CategoryID: engine.CategoryID(q.Get("category_id")),
		Fiscal:     fiscal.Key(q.Get("fiscal_period")),
	}
	if raw := q.Get("as_of"); raw != "" {
		asOf, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
			return
		}
		req.AsOf = &asOf
	}

	report, err := h.Analyzer.Analyze(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, "Failed to analyze budgets", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// TriggerRollover copies one period's budgets into another.
// POST /api/budgets/rollover
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	factor := decimal.Zero
	if req.Factor != "" {
		var err error
		factor, err = decimal.NewFromString(req.Factor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid adjustment factor", err)
			return
		}
	}

	result, err := h.Rollover.Run(r.Context(),
		engine.CompanyID(req.CompanyID),
		fiscal.Key(req.SourceFiscal),
		fiscal.Key(req.TargetFiscal),
		factor)
	if err != nil {
		h.writeDomainError(w, "Failed to roll budgets over", err)
		return
	}

	resp := RolloverResponse{
		SourceFiscal:     string(result.SourceFiscal),
		TargetFiscal:     string(result.TargetFiscal),
		AdjustmentFactor: result.AdjustmentFactor,
		SourceCount:      result.SourceCount,
		CreatedCount:     result.CreatedCount,
		Budgets:          make([]BudgetDTO, len(result.Budgets)),
	}
	for i, b := range result.Budgets {
		resp.Budgets[i] = toBareBudgetDTO(b)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// ListExpenses returns expenses matching the query.
// GET /api/expenses?company_id=&user_id=&category_id=&status=&from=&to=
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := expense.ExpenseFilter{
		CompanyID:  engine.CompanyID(q.Get("company_id")),
		UserID:     engine.UserID(q.Get("user_id")),
		CategoryID: engine.CategoryID(q.Get("category_id")),
		Status:     engine.ExpenseStatus(q.Get("status")),
	}

	var err error
	if f.From, err = optionalDate(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	if f.To, err = optionalDate(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}

	expenses, err := h.Expenses.List(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, "Failed to list expenses", err)
		return
	}

	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateExpense creates an expense, optionally submitting it directly.
// POST /api/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	expenseDate, err := time.Parse(dateLayout, req.ExpenseDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid expense date", err)
		return
	}

	e, err := h.Expenses.Create(r.Context(), expense.CreateInput{
		CompanyID:   engine.CompanyID(req.CompanyID),
		UserID:      engine.UserID(req.UserID),
		CategoryID:  engine.CategoryID(req.CategoryID),
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
		ExpenseDate: expenseDate,
		Submit:      req.Submit,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

// GetExpense returns one expense.
// GET /api/expenses/{id}
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))
	e, err := h.Expenses.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// UpdateExpense edits a non-terminal expense.
// PUT /api/expenses/{id}
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))

	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := expense.UpdateInput{
		Currency:    req.Currency,
		Description: req.Description,
	}
	if req.CategoryID != nil {
		category := engine.CategoryID(*req.CategoryID)
		in.CategoryID = &category
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		in.Amount = &amount
	}
	if req.ExpenseDate != nil {
		d, err := time.Parse(dateLayout, *req.ExpenseDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid expense date", err)
			return
		}
		in.ExpenseDate = &d
	}

	e, err := h.Expenses.Update(r.Context(), id, in)
	if err != nil {
		h.writeDomainError(w, "Failed to update expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// DeleteExpense removes a non-counted expense.
// DELETE /api/expenses/{id}
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))
	if err := h.Expenses.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// APPROVAL WORKFLOW HANDLERS
// =============================================================================

// SubmitExpense moves a draft into the approval flow.
// POST /api/expenses/{id}/submit
func (h *Handler) SubmitExpense(w http.ResponseWriter, r *http.Request) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	e, err := h.Approvals.Submit(r.Context(), id, engine.UserID(req.UserID))
	if err != nil {
		h.writeDomainError(w, "Failed to submit expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// ApproveExpense records an approve decision.
// POST /api/expenses/{id}/approve
func (h *Handler) ApproveExpense(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, expense.ActionApprove)
}

// RejectExpense records a reject decision.
// POST /api/expenses/{id}/reject
func (h *Handler) RejectExpense(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, expense.ActionReject)
}

// RequestInfo sends the expense back to its owner for more detail.
// POST /api/expenses/{id}/request-info
func (h *Handler) RequestInfo(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, expense.ActionRequestInfo)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, action expense.Action) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Approvals.Decide(r.Context(), id, engine.UserID(req.UserID), action, req.Comment)
	if err != nil {
		h.writeDomainError(w, "Failed to record decision", err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTO(*rec))
}

// BulkApprove approves a batch of expenses best-effort.
// POST /api/expenses/bulk-approve
func (h *Handler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req BulkApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.ExpenseIDs) == 0 {
		writeError(w, http.StatusBadRequest, "No expense IDs given", nil)
		return
	}

	ids := make([]engine.ExpenseID, len(req.ExpenseIDs))
	for i, raw := range req.ExpenseIDs {
		ids[i] = engine.ExpenseID(raw)
	}

	outcomes := h.Approvals.BulkApprove(r.Context(), ids, engine.UserID(req.UserID), req.Comment)
	dtos := make([]BulkOutcomeDTO, len(outcomes))
	for i, o := range outcomes {
		dto := BulkOutcomeDTO{ExpenseID: string(o.ExpenseID), Status: o.Status}
		if o.Approval != nil {
			rec := toApprovalDTO(*o.Approval)
			dto.Approval = &rec
		}
		if o.Err != nil {
			dto.Error = o.Err.Error()
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DelegateExpense reassigns the approval task.
// POST /api/expenses/{id}/delegate
func (h *Handler) DelegateExpense(w http.ResponseWriter, r *http.Request) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))

	var req DelegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Approvals.Delegate(r.Context(), id,
		engine.UserID(req.FromUserID), engine.UserID(req.ToUserID), req.Comment)
	if err != nil {
		h.writeDomainError(w, "Failed to delegate expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTO(*rec))
}

// MarkPaid closes an approved expense.
// POST /api/expenses/{id}/paid
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))
	e, err := h.Approvals.MarkPaid(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to mark expense paid", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// ListPending returns the approver's pending queue.
// GET /api/expenses/pending?company_id=&user_id=
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pending, err := h.Approvals.PendingApprovals(r.Context(),
		engine.CompanyID(q.Get("company_id")), engine.UserID(q.Get("user_id")))
	if err != nil {
		h.writeDomainError(w, "Failed to list pending approvals", err)
		return
	}

	dtos := make([]ExpenseDTO, len(pending))
	for i, e := range pending {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetHistory returns the approval ledger for an expense, newest first.
// GET /api/expenses/{id}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))
	history, err := h.Approvals.History(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get approval history", err)
		return
	}

	dtos := make([]ApprovalDTO, len(history))
	for i, a := range history {
		dtos[i] = toApprovalDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSummary aggregates expenses for a company or user.
// GET /api/expenses/summary?company_id=&user_id=&from=&to=
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := optionalDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := optionalDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}

	summary, err := h.Expenses.Summary(r.Context(),
		engine.CompanyID(q.Get("company_id")), engine.UserID(q.Get("user_id")), from, to)
	if err != nil {
		h.writeDomainError(w, "Failed to summarize expenses", err)
		return
	}

	dto := ExpenseSummaryDTO{
		TotalAmount: summary.TotalAmount,
		TotalCount:  summary.TotalCount,
		ByStatus:    map[string]StatusGroupDTO{},
		ByCategory:  map[string]StatusGroupDTO{},
		Pending:     summary.Pending,
		Approved:    summary.Approved,
		Rejected:    summary.Rejected,
	}
	for status, group := range summary.ByStatus {
		dto.ByStatus[string(status)] = StatusGroupDTO{Count: group.Count, Amount: group.Amount}
	}
	for category, group := range summary.ByCategory {
		dto.ByCategory[string(category)] = StatusGroupDTO{Count: group.Count, Amount: group.Amount}
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetStatistics aggregates approval activity over a date range.
// GET /api/expenses/statistics?company_id=&from=&to=
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := time.Parse(dateLayout, q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := time.Parse(dateLayout, q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	// The range is inclusive through the end of the to day.
	to = to.Add(24*time.Hour - time.Nanosecond)

	stats, err := h.Approvals.Statistics(r.Context(), engine.CompanyID(q.Get("company_id")), from, to)
	if err != nil {
		h.writeDomainError(w, "Failed to compute statistics", err)
		return
	}

	dto := StatisticsDTO{
		TotalApprovals: stats.TotalApprovals,
		ByAction:       map[string]ActionStatsDTO{},
		ByApprover:     map[string]ActionStatsDTO{},
	}
	for action, s := range stats.ByAction {
		dto.ByAction[string(action)] = ActionStatsDTO{Count: s.Count, TotalAmount: s.TotalAmount}
	}
	for user, s := range stats.ByApprover {
		dto.ByApprover[string(user)] = ActionStatsDTO{Count: s.Count, TotalAmount: s.TotalAmount}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// DTO MAPPING
// =============================================================================

func toCategoryDTO(c *expense.Category) CategoryDTO {
	return CategoryDTO{
		ID:        string(c.ID),
		CompanyID: string(c.CompanyID),
		Code:      c.Code,
		Name:      c.Name,
		ParentID:  string(c.ParentID),
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
}

func toBudgetDTO(b *budget.WithSpending) BudgetDTO {
	dto := toBareBudgetDTO(b.Budget)
	dto.CurrentSpending = b.CurrentSpending
	dto.RemainingBudget = b.RemainingBudget
	dto.Utilization = b.Utilization
	dto.ExpenseCount = b.ExpenseCount
	dto.MonthlyBreakdown = b.MonthlyBreakdown
	if b.LastExpenseDate != nil {
		last := b.LastExpenseDate.Format(dateLayout)
		dto.LastExpenseDate = &last
	}
	return dto
}

func toBareBudgetDTO(b *budget.Budget) BudgetDTO {
	return BudgetDTO{
		ID:         string(b.ID),
		CompanyID:  string(b.CompanyID),
		CategoryID: string(b.CategoryID),
		Fiscal:     string(b.Fiscal),
		Amount:     b.Amount,
		Currency:   b.Currency,
		IsActive:   b.IsActive,
		CreatedAt:  b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  b.UpdatedAt.Format(time.RFC3339),
	}
}

func toExpenseDTO(e *expense.Expense) ExpenseDTO {
	dto := ExpenseDTO{
		ID:                 string(e.ID),
		CompanyID:          string(e.CompanyID),
		UserID:             string(e.UserID),
		CategoryID:         string(e.CategoryID),
		Amount:             e.Amount,
		Currency:           e.Currency,
		Description:        e.Description,
		ExpenseDate:        e.ExpenseDate.Format(dateLayout),
		Status:             string(e.Status),
		AssignedApproverID: string(e.AssignedApproverID),
		ApprovedBy:         string(e.ApprovedBy),
		CreatedAt:          e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          e.UpdatedAt.Format(time.RFC3339),
	}
	if e.ApprovedAt != nil {
		at := e.ApprovedAt.Format(time.RFC3339)
		dto.ApprovedAt = &at
	}
	if e.PaidAt != nil {
		at := e.PaidAt.Format(time.RFC3339)
		dto.PaidAt = &at
	}
	return dto
}

func toApprovalDTO(a expense.Approval) ApprovalDTO {
	return ApprovalDTO{
		ID:        string(a.ID),
		ExpenseID: string(a.ExpenseID),
		UserID:    string(a.UserID),
		Action:    string(a.Action),
		Comment:   a.Comment,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

func toReportDTO(report *budget.Report) AnalysisReportDTO {
	dto := AnalysisReportDTO{
		Fiscal: string(report.Fiscal),
		AsOf:   report.AsOf,
		Summary: AnalysisSummaryDTO{
			TotalBudget:        report.Summary.TotalBudget,
			TotalSpent:         report.Summary.TotalSpent,
			TotalRemaining:     report.Summary.TotalRemaining,
			OverallUtilization: report.Summary.OverallUtilization,
			TotalExpenses:      report.Summary.TotalExpenses,
			CategoriesCount:    report.Summary.CategoriesCount,
		},
		Categories: make([]AnalysisRowDTO, len(report.Categories)),
		Alerts:     make([]AlertDTO, len(report.Alerts)),
	}

	for i, row := range report.Categories {
		dto.Categories[i] = AnalysisRowDTO{
			CategoryID:          string(row.Budget.CategoryID),
			BudgetID:            string(row.Budget.ID),
			BudgetAmount:        row.Budget.Amount,
			TotalSpent:          row.Spending.TotalSpent,
			ExpenseCount:        row.Spending.ExpenseCount,
			AverageExpense:      row.AverageExpense,
			Utilization:         row.Utilization,
			RemainingAmount:     row.RemainingAmount,
			RemainingPercentage: row.RemainingPercentage,
			Status:              string(row.Status),
			Trend: TrendDTO{
				Percentage:          row.Trend.Percentage,
				Direction:           string(row.Trend.Direction),
				PreviousPeriodSpent: row.Trend.PreviousPeriodSpent,
			},
			MonthlyBreakdown: row.Spending.MonthlyBreakdown,
		}
	}

	for i, alert := range report.Alerts {
		dto.Alerts[i] = AlertDTO{
			Type:       string(alert.Type),
			Severity:   string(alert.Severity),
			CategoryID: string(alert.CategoryID),
			Message:    alert.Message,
			Amount:     alert.Amount,
		}
	}
	return dto
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var exceeded *engine.ExceededError
	if errors.As(err, &exceeded) {
		writeJSON(w, http.StatusUnprocessableEntity, BudgetExceededResponse{
			Error:     exceeded.Error(),
			BudgetID:  string(exceeded.BudgetID),
			Fiscal:    exceeded.Fiscal,
			Limit:     exceeded.Limit,
			Spent:     exceeded.Spent,
			Requested: exceeded.Requested,
			Remaining: exceeded.Remaining,
		})
		return
	}

	switch {
	case fiscal.IsInvalidKey(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, engine.ErrInvalidState):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, engine.ErrForbidden):
		writeError(w, http.StatusForbidden, message, err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Log.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
