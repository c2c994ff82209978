/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for testing and demos. Each scenario creates categories, budgets
	and expenses that demonstrate specific features.

AVAILABLE SCENARIOS:

	construction-quarter: Categories with budgets and a mixed expense book
	over-budget:          A category near its limit, alerts firing
	approval-queue:       Submitted expenses awaiting decisions, one delegated

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create categories
 3. Create budgets for the current fiscal quarter
 4. Create expenses and walk them through the approval flow

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "over-budget"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context, error helpers
  - server.go: Scenario routes
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crane/fiscal-engine/budget"
	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/expense"
	"github.com/crane/fiscal-engine/fiscal"
)

// Resetter clears every table in the backing store.
type Resetter interface {
	Reset(ctx context.Context) error
}

const demoCompany = engine.CompanyID("demo-co")

// ScenarioDTO describes one loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "construction-quarter",
		Name:        "Construction Quarter",
		Description: "Three budgeted categories with approved, submitted and draft expenses",
	},
	{
		ID:          "over-budget",
		Name:        "Over Budget",
		Description: "A materials budget at 92% utilization with alerts firing",
	},
	{
		ID:          "approval-queue",
		Name:        "Approval Queue",
		Description: "Submitted expenses awaiting decisions, one delegated to a specific approver",
	},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, _ *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario resets the store and loads the named scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		writeError(w, http.StatusNotFound, "Scenarios are not enabled", nil)
		return
	}

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var loader func(context.Context, *Handler) error
	switch req.ScenarioID {
	case "construction-quarter":
		loader = loadConstructionQuarterScenario
	case "over-budget":
		loader = loadOverBudgetScenario
	case "approval-queue":
		loader = loadApprovalQueueScenario
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
		return
	}

	ctx := r.Context()
	if err := h.Resetter.Reset(ctx); err != nil {
		h.writeDomainError(w, "Failed to reset store", err)
		return
	}
	if err := loader(ctx, h); err != nil {
		h.writeDomainError(w, "Failed to load scenario", err)
		return
	}

	h.scenarioMu.Lock()
	h.currentScenario = req.ScenarioID
	h.scenarioMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": req.ScenarioID, "status": "loaded"})
}

// ResetDatabase clears all data without loading anything.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		writeError(w, http.StatusNotFound, "Reset is not enabled", nil)
		return
	}
	if err := h.Resetter.Reset(r.Context()); err != nil {
		h.writeDomainError(w, "Failed to reset store", err)
		return
	}

	h.scenarioMu.Lock()
	h.currentScenario = ""
	h.scenarioMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demoSeeder runs setup steps and remembers the first error; later steps
// become no-ops once one fails.
type demoSeeder struct {
	ctx context.Context
	h   *Handler
	err error
}

func (d *demoSeeder) category(code, name string) engine.CategoryID {
	if d.err != nil {
		return ""
	}
	c, err := d.h.Categories.Create(d.ctx, expense.CategoryInput{
		CompanyID: demoCompany,
		Code:      code,
		Name:      name,
		IsActive:  true,
	})
	if err != nil {
		d.err = fmt.Errorf("category %s: %w", code, err)
		return ""
	}
	return c.ID
}

func (d *demoSeeder) budget(categoryID engine.CategoryID, key fiscal.Key, amount int64) {
	if d.err != nil {
		return
	}
	_, err := d.h.Budgets.Create(d.ctx, budget.CreateInput{
		CompanyID:  demoCompany,
		CategoryID: categoryID,
		Fiscal:     key,
		Amount:     decimal.NewFromInt(amount),
		Currency:   "USD",
		IsActive:   true,
	})
	if err != nil {
		d.err = fmt.Errorf("budget %s/%s: %w", categoryID, key, err)
	}
}

func (d *demoSeeder) expense(userID engine.UserID, categoryID engine.CategoryID, amount int64, description string, submit bool) engine.ExpenseID {
	if d.err != nil {
		return ""
	}
	e, err := d.h.Expenses.Create(d.ctx, expense.CreateInput{
		CompanyID:   demoCompany,
		UserID:      userID,
		CategoryID:  categoryID,
		Amount:      decimal.NewFromInt(amount),
		Currency:    "USD",
		Description: description,
		ExpenseDate: time.Now().UTC(),
		Submit:      submit,
	})
	if err != nil {
		d.err = fmt.Errorf("expense %q: %w", description, err)
		return ""
	}
	return e.ID
}

func (d *demoSeeder) approve(id engine.ExpenseID, approver engine.UserID) {
	if d.err != nil {
		return
	}
	if _, err := d.h.Approvals.Decide(d.ctx, id, approver, expense.ActionApprove, "demo approval"); err != nil {
		d.err = fmt.Errorf("approve %s: %w", id, err)
	}
}

func (d *demoSeeder) pay(id engine.ExpenseID) {
	if d.err != nil {
		return
	}
	if _, err := d.h.Approvals.MarkPaid(d.ctx, id); err != nil {
		d.err = fmt.Errorf("pay %s: %w", id, err)
	}
}

func (d *demoSeeder) delegate(id engine.ExpenseID, from, to engine.UserID) {
	if d.err != nil {
		return
	}
	if _, err := d.h.Approvals.Delegate(d.ctx, id, from, to, "demo delegation"); err != nil {
		d.err = fmt.Errorf("delegate %s: %w", id, err)
	}
}

// loadConstructionQuarterScenario: three categories budgeted for the current
// quarter with expenses in every lifecycle state.
func loadConstructionQuarterScenario(ctx context.Context, h *Handler) error {
	quarter := fiscal.QuarterlyKey(time.Now().UTC())
	d := &demoSeeder{ctx: ctx, h: h}

	materials := d.category("MAT", "Materials")
	subcontract := d.category("SUB", "Subcontractors")
	equipment := d.category("EQP", "Equipment")

	d.budget(materials, quarter, 500000)
	d.budget(subcontract, quarter, 800000)
	d.budget(equipment, quarter, 120000)

	lumber := d.expense("alice", materials, 42000, "Lumber delivery", true)
	d.approve(lumber, "dave")
	d.pay(lumber)

	concrete := d.expense("alice", materials, 68000, "Concrete pour", true)
	d.approve(concrete, "dave")

	d.expense("bob", subcontract, 150000, "Electrical rough-in", true)
	d.expense("bob", equipment, 8500, "Scaffolding rental", true)
	d.expense("carol", equipment, 3200, "Power tools", false)

	return d.err
}

// loadOverBudgetScenario: a materials budget at 92% so the analysis report
// carries warning alerts, plus headroom small enough that large submissions
// get rejected by the gate.
func loadOverBudgetScenario(ctx context.Context, h *Handler) error {
	quarter := fiscal.QuarterlyKey(time.Now().UTC())
	d := &demoSeeder{ctx: ctx, h: h}

	materials := d.category("MAT", "Materials")
	d.budget(materials, quarter, 100000)

	steel := d.expense("alice", materials, 58000, "Structural steel", true)
	d.approve(steel, "dave")

	rebar := d.expense("bob", materials, 34000, "Rebar order", true)
	d.approve(rebar, "dave")

	// 92000 approved of 100000. Anything above 8000 now fails the gate.
	d.expense("carol", materials, 5000, "Fasteners", true)

	return d.err
}

// loadApprovalQueueScenario: a pending queue with one delegated item and
// one already decided, so the queue endpoints have something to show.
func loadApprovalQueueScenario(ctx context.Context, h *Handler) error {
	quarter := fiscal.QuarterlyKey(time.Now().UTC())
	d := &demoSeeder{ctx: ctx, h: h}

	travel := d.category("TRV", "Travel")
	d.budget(travel, quarter, 50000)

	flights := d.expense("alice", travel, 1800, "Site visit flights", true)
	hotel := d.expense("alice", travel, 950, "Hotel, three nights", true)
	d.expense("bob", travel, 240, "Mileage reimbursement", true)
	d.expense("carol", travel, 3100, "Conference registration", true)

	// dave hands the hotel bill to erin; the rest stay in the open queue.
	d.delegate(hotel, "dave", "erin")
	d.approve(flights, "dave")

	return d.err
}
