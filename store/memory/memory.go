/*
Package memory provides in-memory implementations of every store interface,
for tests and development.

PURPOSE:
  Implements budget.Store, budget.ExpenseSource, budget.CategorySource,
  expense.Store, and expense.CategoryStore over plain maps guarded by an
  RWMutex. WithTx simulates a transaction with a snapshot taken before the
  closure runs and restored if it fails - good enough to exercise the
  engine's atomicity contracts without a database.

SEE ALSO:
  - store/sqlite: the production implementation of the same interfaces
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/crane/fiscal-engine/budget"
	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/expense"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	budgets    map[engine.BudgetID]budget.Budget
	expenses   map[engine.ExpenseID]expense.Expense
	approvals  map[engine.ExpenseID][]expense.Approval // append order
	categories map[engine.CategoryID]expense.Category
}

func New() *Memory {
	return &Memory{
		budgets:    make(map[engine.BudgetID]budget.Budget),
		expenses:   make(map[engine.ExpenseID]expense.Expense),
		approvals:  make(map[engine.ExpenseID][]expense.Approval),
		categories: make(map[engine.CategoryID]expense.Category),
	}
}

// Reset clears all data. Development and demo use only.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.budgets = make(map[engine.BudgetID]budget.Budget)
	m.expenses = make(map[engine.ExpenseID]expense.Expense)
	m.approvals = make(map[engine.ExpenseID][]expense.Approval)
	m.categories = make(map[engine.CategoryID]expense.Category)
	return nil
}

// =============================================================================
// BUDGET STORE (budget.Store)
// =============================================================================

func (m *Memory) CreateBudget(_ context.Context, b *budget.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createBudgetLocked(b)
}

func (m *Memory) createBudgetLocked(b *budget.Budget) error {
	for _, existing := range m.budgets {
		if existing.CompanyID == b.CompanyID && existing.CategoryID == b.CategoryID && existing.Fiscal == b.Fiscal {
			return engine.ErrConflict
		}
	}
	m.budgets[b.ID] = *b
	return nil
}

func (m *Memory) CreateBudgets(_ context.Context, bs []*budget.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check the whole batch before writing anything.
	for _, b := range bs {
		for _, existing := range m.budgets {
			if existing.CompanyID == b.CompanyID && existing.CategoryID == b.CategoryID && existing.Fiscal == b.Fiscal {
				return engine.ErrConflict
			}
		}
	}
	for _, b := range bs {
		m.budgets[b.ID] = *b
	}
	return nil
}

func (m *Memory) Budget(_ context.Context, id engine.BudgetID) (*budget.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.budgets[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	out := b
	return &out, nil
}

func (m *Memory) UpdateBudget(_ context.Context, b *budget.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.budgets[b.ID]; !ok {
		return engine.ErrNotFound
	}
	m.budgets[b.ID] = *b
	return nil
}

func (m *Memory) DeleteBudget(_ context.Context, id engine.BudgetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.budgets[id]; !ok {
		return engine.ErrNotFound
	}
	delete(m.budgets, id)
	return nil
}

func (m *Memory) Budgets(_ context.Context, f budget.Filter) ([]*budget.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*budget.Budget
	for _, b := range m.budgets {
		if f.CompanyID != "" && b.CompanyID != f.CompanyID {
			continue
		}
		if f.CategoryID != "" && b.CategoryID != f.CategoryID {
			continue
		}
		if f.Fiscal != "" && b.Fiscal != f.Fiscal {
			continue
		}
		if f.ActiveOnly && !b.IsActive {
			continue
		}
		copy := b
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// EXPENSE SOURCE (budget.ExpenseSource)
// =============================================================================

func (m *Memory) ExpensesInRange(_ context.Context, companyID engine.CompanyID, categoryID engine.CategoryID, from, to time.Time) ([]budget.ExpenseRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expensesInRangeLocked(companyID, categoryID, from, to), nil
}

func (m *Memory) expensesInRangeLocked(companyID engine.CompanyID, categoryID engine.CategoryID, from, to time.Time) []budget.ExpenseRow {
	var rows []budget.ExpenseRow
	for _, e := range m.expenses {
		if e.CompanyID != companyID || e.CategoryID != categoryID {
			continue
		}
		if e.ExpenseDate.Before(from) || e.ExpenseDate.After(to) {
			continue
		}
		rows = append(rows, budget.ExpenseRow{
			ID:     e.ID,
			Amount: e.Amount,
			Date:   e.ExpenseDate,
			Status: e.Status,
		})
	}
	return rows
}

// =============================================================================
// CATEGORY SOURCE (budget.CategorySource)
// =============================================================================

func (m *Memory) ActiveCategoryExists(_ context.Context, companyID engine.CompanyID, categoryID engine.CategoryID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.categories[categoryID]
	return ok && c.CompanyID == companyID && c.IsActive, nil
}

// =============================================================================
// EXPENSE STORE (expense.Store)
// =============================================================================

func (m *Memory) CreateExpense(_ context.Context, e *expense.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses[e.ID] = *e
	return nil
}

func (m *Memory) Expense(_ context.Context, id engine.ExpenseID) (*expense.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expenseLocked(id)
}

func (m *Memory) expenseLocked(id engine.ExpenseID) (*expense.Expense, error) {
	e, ok := m.expenses[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	out := e
	return &out, nil
}

func (m *Memory) UpdateExpense(_ context.Context, e *expense.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateExpenseLocked(e)
}

func (m *Memory) updateExpenseLocked(e *expense.Expense) error {
	if _, ok := m.expenses[e.ID]; !ok {
		return engine.ErrNotFound
	}
	m.expenses[e.ID] = *e
	return nil
}

func (m *Memory) DeleteExpense(_ context.Context, id engine.ExpenseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.expenses[id]; !ok {
		return engine.ErrNotFound
	}
	delete(m.expenses, id)
	delete(m.approvals, id)
	return nil
}

func (m *Memory) Expenses(_ context.Context, f expense.ExpenseFilter) ([]*expense.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*expense.Expense
	for _, e := range m.expenses {
		if f.CompanyID != "" && e.CompanyID != f.CompanyID {
			continue
		}
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.CategoryID != "" && e.CategoryID != f.CategoryID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.From != nil && e.ExpenseDate.Before(*f.From) {
			continue
		}
		if f.To != nil && e.ExpenseDate.After(*f.To) {
			continue
		}
		copy := e
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) AppendApproval(_ context.Context, a expense.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendApprovalLocked(a)
}

func (m *Memory) appendApprovalLocked(a expense.Approval) error {
	m.approvals[a.ExpenseID] = append(m.approvals[a.ExpenseID], a)
	return nil
}

func (m *Memory) Approvals(_ context.Context, expenseID engine.ExpenseID) ([]expense.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.approvalsLocked(expenseID), nil
}

func (m *Memory) approvalsLocked(expenseID engine.ExpenseID) []expense.Approval {
	rows := m.approvals[expenseID]
	// Newest first.
	out := make([]expense.Approval, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row
	}
	return out
}

func (m *Memory) ApprovalsInRange(_ context.Context, companyID engine.CompanyID, from, to time.Time) ([]expense.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []expense.Approval
	for expenseID, rows := range m.approvals {
		e, ok := m.expenses[expenseID]
		if !ok || e.CompanyID != companyID {
			continue
		}
		for _, row := range rows {
			if row.CreatedAt.Before(from) || row.CreatedAt.After(to) {
				continue
			}
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PendingForApprover(_ context.Context, companyID engine.CompanyID, userID engine.UserID) ([]*expense.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*expense.Expense
	for _, e := range m.expenses {
		if e.CompanyID != companyID || e.Status != engine.StatusSubmitted {
			continue
		}
		if e.UserID == userID {
			continue
		}
		if e.AssignedApproverID != "" && e.AssignedApproverID != userID {
			continue
		}
		decided := false
		for _, row := range m.approvals[e.ID] {
			if row.UserID == userID && row.Action.Decision() {
				decided = true
				break
			}
		}
		if decided {
			continue
		}
		copy := e
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// WithTx simulates a transaction: snapshot, run, restore on error.
func (m *Memory) WithTx(_ context.Context, fn func(expense.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotLocked()
	view := &txView{parent: m}
	if err := fn(view); err != nil {
		m.restoreLocked(snapshot)
		return err
	}
	return nil
}

// =============================================================================
// CATEGORY STORE (expense.CategoryStore)
// =============================================================================

func (m *Memory) CreateCategory(_ context.Context, c *expense.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.categories {
		if existing.CompanyID == c.CompanyID && existing.Code == c.Code {
			return engine.ErrConflict
		}
	}
	m.categories[c.ID] = *c
	return nil
}

func (m *Memory) Category(_ context.Context, id engine.CategoryID) (*expense.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.categories[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	out := c
	return &out, nil
}

func (m *Memory) CategoryByCode(_ context.Context, companyID engine.CompanyID, code string) (*expense.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.categories {
		if c.CompanyID == companyID && c.Code == code {
			out := c
			return &out, nil
		}
	}
	return nil, engine.ErrNotFound
}

func (m *Memory) UpdateCategory(_ context.Context, c *expense.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[c.ID]; !ok {
		return engine.ErrNotFound
	}
	m.categories[c.ID] = *c
	return nil
}

func (m *Memory) DeleteCategory(_ context.Context, id engine.CategoryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[id]; !ok {
		return engine.ErrNotFound
	}
	delete(m.categories, id)
	return nil
}

func (m *Memory) Categories(_ context.Context, f expense.CategoryFilter) ([]*expense.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*expense.Category
	for _, c := range m.categories {
		if f.CompanyID != "" && c.CompanyID != f.CompanyID {
			continue
		}
		if f.ParentID != nil && c.ParentID != *f.ParentID {
			continue
		}
		if f.ActiveOnly && !c.IsActive {
			continue
		}
		copy := c
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) CategoryRefCounts(_ context.Context, id engine.CategoryID) (expense.CategoryRefCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var refs expense.CategoryRefCounts
	for _, c := range m.categories {
		if c.ParentID == id {
			refs.Children++
		}
	}
	for _, e := range m.expenses {
		if e.CategoryID == id {
			refs.Expenses++
		}
	}
	for _, b := range m.budgets {
		if b.CategoryID == id {
			refs.Budgets++
		}
	}
	return refs, nil
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

type memorySnapshot struct {
	expenses  map[engine.ExpenseID]expense.Expense
	approvals map[engine.ExpenseID][]expense.Approval
}

func (m *Memory) snapshotLocked() memorySnapshot {
	expCopy := make(map[engine.ExpenseID]expense.Expense, len(m.expenses))
	for k, v := range m.expenses {
		expCopy[k] = v
	}
	appCopy := make(map[engine.ExpenseID][]expense.Approval, len(m.approvals))
	for k, v := range m.approvals {
		appCopy[k] = append([]expense.Approval{}, v...)
	}
	return memorySnapshot{expenses: expCopy, approvals: appCopy}
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.expenses = s.expenses
	m.approvals = s.approvals
}

// txView delegates to the parent's locked internals; the parent holds the
// write lock for the whole transaction.
type txView struct {
	parent *Memory
}

func (tv *txView) CreateExpense(_ context.Context, e *expense.Expense) error {
	tv.parent.expenses[e.ID] = *e
	return nil
}

func (tv *txView) Expense(_ context.Context, id engine.ExpenseID) (*expense.Expense, error) {
	return tv.parent.expenseLocked(id)
}

func (tv *txView) UpdateExpense(_ context.Context, e *expense.Expense) error {
	return tv.parent.updateExpenseLocked(e)
}

func (tv *txView) DeleteExpense(_ context.Context, id engine.ExpenseID) error {
	if _, ok := tv.parent.expenses[id]; !ok {
		return engine.ErrNotFound
	}
	delete(tv.parent.expenses, id)
	delete(tv.parent.approvals, id)
	return nil
}

func (tv *txView) Expenses(ctx context.Context, f expense.ExpenseFilter) ([]*expense.Expense, error) {
	var out []*expense.Expense
	for _, e := range tv.parent.expenses {
		if f.CompanyID != "" && e.CompanyID != f.CompanyID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		copy := e
		out = append(out, &copy)
	}
	return out, nil
}

func (tv *txView) AppendApproval(_ context.Context, a expense.Approval) error {
	return tv.parent.appendApprovalLocked(a)
}

func (tv *txView) Approvals(_ context.Context, expenseID engine.ExpenseID) ([]expense.Approval, error) {
	return tv.parent.approvalsLocked(expenseID), nil
}

func (tv *txView) ApprovalsInRange(_ context.Context, companyID engine.CompanyID, from, to time.Time) ([]expense.Approval, error) {
	var out []expense.Approval
	for expenseID, rows := range tv.parent.approvals {
		e, ok := tv.parent.expenses[expenseID]
		if !ok || e.CompanyID != companyID {
			continue
		}
		for _, row := range rows {
			if !row.CreatedAt.Before(from) && !row.CreatedAt.After(to) {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (tv *txView) PendingForApprover(_ context.Context, companyID engine.CompanyID, userID engine.UserID) ([]*expense.Expense, error) {
	var out []*expense.Expense
	for _, e := range tv.parent.expenses {
		if e.CompanyID != companyID || e.Status != engine.StatusSubmitted || e.UserID == userID {
			continue
		}
		copy := e
		out = append(out, &copy)
	}
	return out, nil
}

// WithTx nested inside a transaction just runs in the same one.
func (tv *txView) WithTx(_ context.Context, fn func(expense.Store) error) error {
	return fn(tv)
}
