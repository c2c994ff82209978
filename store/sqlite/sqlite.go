/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements every persistence interface (budget.Store, budget.ExpenseSource,
  budget.CategorySource, expense.Store, expense.CategoryStore) on a single
  SQLite database. In production the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The approvals table is a ledger: no UPDATE statements exist for it, and
  rows are only deleted as a cascade when their expense is deleted.

KEY TABLES:
  categories: Expense category tree, code unique per company
  budgets:    Spend limits, unique per (company, category, fiscal)
  expenses:   Expense records with lifecycle status
  approvals:  Immutable approval ledger

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking. With
  PostgreSQL, database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time, better crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/fiscal.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - budget/store.go, expense/store.go: interface definitions
  - store/memory: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/crane/fiscal-engine/budget"
	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/expense"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset clears all data. Development and demo use only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Children before parents so foreign keys hold throughout.
	for _, table := range []string{"approvals", "expenses", "budgets", "categories"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	-- Expense categories (tree; code unique per company)
	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(company_id, code)
	);

	CREATE INDEX IF NOT EXISTS idx_categories_company
		ON categories(company_id);
	CREATE INDEX IF NOT EXISTS idx_categories_parent
		ON categories(parent_id) WHERE parent_id != '';

	-- Budgets (one per company + category + fiscal period)
	CREATE TABLE IF NOT EXISTS budgets (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		category_id TEXT NOT NULL,
		fiscal TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(company_id, category_id, fiscal)
	);

	CREATE INDEX IF NOT EXISTS idx_budgets_company_fiscal
		ON budgets(company_id, fiscal);

	-- Expenses
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		category_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		expense_date TEXT NOT NULL,
		status TEXT NOT NULL,
		assigned_approver_id TEXT NOT NULL DEFAULT '',
		approved_by TEXT NOT NULL DEFAULT '',
		approved_at TEXT,
		paid_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: spend aggregation over a category and date range
	CREATE INDEX IF NOT EXISTS idx_expenses_company_category_date
		ON expenses(company_id, category_id, expense_date);
	CREATE INDEX IF NOT EXISTS idx_expenses_company_status
		ON expenses(company_id, status);
	CREATE INDEX IF NOT EXISTS idx_expenses_user
		ON expenses(user_id);

	-- Approvals (append-only ledger)
	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		expense_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_expense
		ON approvals(expense_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_approvals_user
		ON approvals(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// BUDGET STORE (budget.Store interface)
// =============================================================================

func (s *Store) CreateBudget(ctx context.Context, b *budget.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertBudget(ctx, s.db, b)
}

func (s *Store) insertBudget(ctx context.Context, db executor, b *budget.Budget) error {
	query := `
		INSERT INTO budgets
		(id, company_id, category_id, fiscal, amount, currency, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		b.ID, b.CompanyID, b.CategoryID, b.Fiscal,
		b.Amount.String(), b.Currency, b.IsActive,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("budget for %s/%s already exists: %w", b.CategoryID, b.Fiscal, engine.ErrConflict)
		}
		return fmt.Errorf("failed to insert budget: %w", err)
	}
	return nil
}

// CreateBudgets inserts the whole batch in one database transaction.
func (s *Store) CreateBudgets(ctx context.Context, bs []*budget.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, b := range bs {
		if err := s.insertBudget(ctx, sqlTx, b); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func (s *Store) Budget(ctx context.Context, id engine.BudgetID) (*budget.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, category_id, fiscal, amount, currency, is_active, created_at, updated_at
		FROM budgets WHERE id = ?
	`, id)
	return scanBudget(row)
}

func (s *Store) UpdateBudget(ctx context.Context, b *budget.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE budgets
		SET amount = ?, currency = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, b.Amount.String(), b.Currency, b.IsActive, formatTime(b.UpdatedAt), b.ID)
	if err != nil {
		return fmt.Errorf("failed to update budget: %w", err)
	}
	return requireRowAffected(result)
}

func (s *Store) DeleteBudget(ctx context.Context, id engine.BudgetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	return requireRowAffected(result)
}

func (s *Store) Budgets(ctx context.Context, f budget.Filter) ([]*budget.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, company_id, category_id, fiscal, amount, currency, is_active, created_at, updated_at
		FROM budgets WHERE 1=1
	`
	var args []any
	if f.CompanyID != "" {
		query += " AND company_id = ?"
		args = append(args, f.CompanyID)
	}
	if f.CategoryID != "" {
		query += " AND category_id = ?"
		args = append(args, f.CategoryID)
	}
	if f.Fiscal != "" {
		query += " AND fiscal = ?"
		args = append(args, f.Fiscal)
	}
	if f.ActiveOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer rows.Close()

	var out []*budget.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBudget(row scanner) (*budget.Budget, error) {
	var (
		b                    budget.Budget
		amount               string
		createdAt, updatedAt string
	)
	err := row.Scan(&b.ID, &b.CompanyID, &b.CategoryID, &b.Fiscal,
		&amount, &b.Currency, &b.IsActive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan budget: %w", err)
	}

	b.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt budget amount %q: %w", amount, err)
	}
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

// =============================================================================
// EXPENSE SOURCE (budget.ExpenseSource interface)
// =============================================================================

// ExpensesInRange returns raw spend rows; the aggregator applies the
// counted-status filter.
func (s *Store) ExpensesInRange(ctx context.Context, companyID engine.CompanyID, categoryID engine.CategoryID, from, to time.Time) ([]budget.ExpenseRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, amount, expense_date, status
		FROM expenses
		WHERE company_id = ? AND category_id = ?
		  AND expense_date >= ? AND expense_date <= ?
		ORDER BY expense_date ASC
	`, companyID, categoryID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query expense rows: %w", err)
	}
	defer rows.Close()

	var out []budget.ExpenseRow
	for rows.Next() {
		var (
			row         budget.ExpenseRow
			amount      string
			expenseDate string
		)
		if err := rows.Scan(&row.ID, &amount, &expenseDate, &row.Status); err != nil {
			return nil, fmt.Errorf("failed to scan expense row: %w", err)
		}
		row.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt expense amount %q: %w", amount, err)
		}
		row.Date = parseTime(expenseDate)
		out = append(out, row)
	}
	return out, rows.Err()
}

// =============================================================================
// CATEGORY SOURCE (budget.CategorySource interface)
// =============================================================================

func (s *Store) ActiveCategoryExists(ctx context.Context, companyID engine.CompanyID, categoryID engine.CategoryID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM categories
		WHERE id = ? AND company_id = ? AND is_active = TRUE
	`, categoryID, companyID).Scan(&count)
	return count > 0, err
}

// =============================================================================
// EXPENSE STORE (expense.Store interface)
// =============================================================================

const expenseColumns = `
	id, company_id, user_id, category_id, amount, currency, description,
	expense_date, status, assigned_approver_id, approved_by, approved_at,
	paid_at, created_at, updated_at
`

func (s *Store) CreateExpense(ctx context.Context, e *expense.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertExpense(ctx, s.db, e)
}

func insertExpense(ctx context.Context, db executor, e *expense.Expense) error {
	query := `
		INSERT INTO expenses (` + expenseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		e.ID, e.CompanyID, e.UserID, e.CategoryID,
		e.Amount.String(), e.Currency, e.Description,
		formatTime(e.ExpenseDate), e.Status, e.AssignedApproverID,
		e.ApprovedBy, nullTime(e.ApprovedAt), nullTime(e.PaidAt),
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func (s *Store) Expense(ctx context.Context, id engine.ExpenseID) (*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getExpense(ctx, s.db, id)
}

func getExpense(ctx context.Context, db executor, id engine.ExpenseID) (*expense.Expense, error) {
	row := db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	return scanExpense(row)
}

func (s *Store) UpdateExpense(ctx context.Context, e *expense.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateExpense(ctx, s.db, e)
}

func updateExpense(ctx context.Context, db executor, e *expense.Expense) error {
	result, err := db.ExecContext(ctx, `
		UPDATE expenses
		SET category_id = ?, amount = ?, currency = ?, description = ?,
		    expense_date = ?, status = ?, assigned_approver_id = ?,
		    approved_by = ?, approved_at = ?, paid_at = ?, updated_at = ?
		WHERE id = ?
	`,
		e.CategoryID, e.Amount.String(), e.Currency, e.Description,
		formatTime(e.ExpenseDate), e.Status, e.AssignedApproverID,
		e.ApprovedBy, nullTime(e.ApprovedAt), nullTime(e.PaidAt),
		formatTime(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return requireRowAffected(result)
}

func (s *Store) DeleteExpense(ctx context.Context, id engine.ExpenseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteExpense(ctx, s.db, id)
}

func deleteExpense(ctx context.Context, db executor, id engine.ExpenseID) error {
	result, err := db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if err := requireRowAffected(result); err != nil {
		return err
	}
	// Ledger rows only go away with their expense.
	_, err = db.ExecContext(ctx, `DELETE FROM approvals WHERE expense_id = ?`, id)
	return err
}

func (s *Store) Expenses(ctx context.Context, f expense.ExpenseFilter) ([]*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listExpenses(ctx, s.db, f)
}

func listExpenses(ctx context.Context, db executor, f expense.ExpenseFilter) ([]*expense.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE 1=1`
	var args []any
	if f.CompanyID != "" {
		query += " AND company_id = ?"
		args = append(args, f.CompanyID)
	}
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.CategoryID != "" {
		query += " AND category_id = ?"
		args = append(args, f.CategoryID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.From != nil {
		query += " AND expense_date >= ?"
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += " AND expense_date <= ?"
		args = append(args, formatTime(*f.To))
	}
	query += " ORDER BY created_at ASC"

	return queryExpenses(ctx, db, query, args...)
}

func queryExpenses(ctx context.Context, db executor, query string, args ...any) ([]*expense.Expense, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var out []*expense.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExpense(row scanner) (*expense.Expense, error) {
	var (
		e                    expense.Expense
		amount               string
		expenseDate          string
		approvedAt, paidAt   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&e.ID, &e.CompanyID, &e.UserID, &e.CategoryID,
		&amount, &e.Currency, &e.Description, &expenseDate, &e.Status,
		&e.AssignedApproverID, &e.ApprovedBy, &approvedAt, &paidAt,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan expense: %w", err)
	}

	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt expense amount %q: %w", amount, err)
	}
	e.ExpenseDate = parseTime(expenseDate)
	e.ApprovedAt = parseNullTime(approvedAt)
	e.PaidAt = parseNullTime(paidAt)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// =============================================================================
// APPROVAL LEDGER
// =============================================================================

func (s *Store) AppendApproval(ctx context.Context, a expense.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendApproval(ctx, s.db, a)
}

func appendApproval(ctx context.Context, db executor, a expense.Approval) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO approvals (id, expense_id, user_id, action, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.ExpenseID, a.UserID, a.Action, a.Comment, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append approval: %w", err)
	}
	return nil
}

func (s *Store) Approvals(ctx context.Context, expenseID engine.ExpenseID) ([]expense.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listApprovals(ctx, s.db, `
		SELECT id, expense_id, user_id, action, comment, created_at
		FROM approvals WHERE expense_id = ?
		ORDER BY created_at DESC, id DESC
	`, expenseID)
}

func (s *Store) ApprovalsInRange(ctx context.Context, companyID engine.CompanyID, from, to time.Time) ([]expense.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listApprovals(ctx, s.db, `
		SELECT a.id, a.expense_id, a.user_id, a.action, a.comment, a.created_at
		FROM approvals a
		JOIN expenses e ON e.id = a.expense_id
		WHERE e.company_id = ? AND a.created_at >= ? AND a.created_at <= ?
		ORDER BY a.created_at ASC
	`, companyID, formatTime(from), formatTime(to))
}

func listApprovals(ctx context.Context, db executor, query string, args ...any) ([]expense.Approval, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var out []expense.Approval
	for rows.Next() {
		var (
			a         expense.Approval
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.ExpenseID, &a.UserID, &a.Action, &a.Comment, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// PendingForApprover lists submitted expenses the user can still act on:
// not their own, not already decided by them, and either unassigned or
// assigned to them.
func (s *Store) PendingForApprover(ctx context.Context, companyID engine.CompanyID, userID engine.UserID) ([]*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + expenseColumns + ` FROM expenses
		WHERE company_id = ? AND status = ? AND user_id != ?
		  AND (assigned_approver_id = '' OR assigned_approver_id = ?)
		  AND NOT EXISTS (
			SELECT 1 FROM approvals
			WHERE approvals.expense_id = expenses.id
			  AND approvals.user_id = ?
			  AND approvals.action IN (?, ?, ?)
		  )
		ORDER BY created_at ASC
	`
	return queryExpenses(ctx, s.db, query,
		companyID, engine.StatusSubmitted, userID, userID, userID,
		expense.ActionApprove, expense.ActionReject, expense.ActionRequestInfo)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The view passed to fn
// shares the outer lock.
func (s *Store) WithTx(ctx context.Context, fn func(expense.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateExpense(ctx context.Context, e *expense.Expense) error {
	return insertExpense(ctx, ts.tx, e)
}

func (ts *txStore) Expense(ctx context.Context, id engine.ExpenseID) (*expense.Expense, error) {
	return getExpense(ctx, ts.tx, id)
}

func (ts *txStore) UpdateExpense(ctx context.Context, e *expense.Expense) error {
	return updateExpense(ctx, ts.tx, e)
}

func (ts *txStore) DeleteExpense(ctx context.Context, id engine.ExpenseID) error {
	return deleteExpense(ctx, ts.tx, id)
}

func (ts *txStore) Expenses(ctx context.Context, f expense.ExpenseFilter) ([]*expense.Expense, error) {
	return listExpenses(ctx, ts.tx, f)
}

func (ts *txStore) AppendApproval(ctx context.Context, a expense.Approval) error {
	return appendApproval(ctx, ts.tx, a)
}

func (ts *txStore) Approvals(ctx context.Context, expenseID engine.ExpenseID) ([]expense.Approval, error) {
	return listApprovals(ctx, ts.tx, `
		SELECT id, expense_id, user_id, action, comment, created_at
		FROM approvals WHERE expense_id = ?
		ORDER BY created_at DESC, id DESC
	`, expenseID)
}

func (ts *txStore) ApprovalsInRange(ctx context.Context, companyID engine.CompanyID, from, to time.Time) ([]expense.Approval, error) {
	return listApprovals(ctx, ts.tx, `
		SELECT a.id, a.expense_id, a.user_id, a.action, a.comment, a.created_at
		FROM approvals a
		JOIN expenses e ON e.id = a.expense_id
		WHERE e.company_id = ? AND a.created_at >= ? AND a.created_at <= ?
		ORDER BY a.created_at ASC
	`, companyID, formatTime(from), formatTime(to))
}

func (ts *txStore) PendingForApprover(ctx context.Context, companyID engine.CompanyID, userID engine.UserID) ([]*expense.Expense, error) {
	query := `
		SELECT ` + expenseColumns + ` FROM expenses
		WHERE company_id = ? AND status = ? AND user_id != ?
		ORDER BY created_at ASC
	`
	return queryExpenses(ctx, ts.tx, query, companyID, engine.StatusSubmitted, userID)
}

// Nested transactions run in the enclosing one.
func (ts *txStore) WithTx(ctx context.Context, fn func(expense.Store) error) error {
	return fn(ts)
}

// =============================================================================
// CATEGORY STORE (expense.CategoryStore interface)
// =============================================================================

const categoryColumns = `id, company_id, code, name, parent_id, is_active, created_at, updated_at`

func (s *Store) CreateCategory(ctx context.Context, c *expense.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.CompanyID, c.Code, c.Name, c.ParentID, c.IsActive,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("category code %q already exists: %w", c.Code, engine.ErrConflict)
		}
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

func (s *Store) Category(ctx context.Context, id engine.CategoryID) (*expense.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	return scanCategory(row)
}

func (s *Store) CategoryByCode(ctx context.Context, companyID engine.CompanyID, code string) (*expense.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE company_id = ? AND code = ?`,
		companyID, code)
	return scanCategory(row)
}

func (s *Store) UpdateCategory(ctx context.Context, c *expense.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET code = ?, name = ?, parent_id = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, c.Code, c.Name, c.ParentID, c.IsActive, formatTime(c.UpdatedAt), c.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("category code %q already exists: %w", c.Code, engine.ErrConflict)
		}
		return fmt.Errorf("failed to update category: %w", err)
	}
	return requireRowAffected(result)
}

func (s *Store) DeleteCategory(ctx context.Context, id engine.CategoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return requireRowAffected(result)
}

func (s *Store) Categories(ctx context.Context, f expense.CategoryFilter) ([]*expense.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + categoryColumns + ` FROM categories WHERE 1=1`
	var args []any
	if f.CompanyID != "" {
		query += " AND company_id = ?"
		args = append(args, f.CompanyID)
	}
	if f.ParentID != nil {
		query += " AND parent_id = ?"
		args = append(args, *f.ParentID)
	}
	if f.ActiveOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var out []*expense.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CategoryRefCounts(ctx context.Context, id engine.CategoryID) (expense.CategoryRefCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs expense.CategoryRefCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM categories WHERE parent_id = ?),
			(SELECT COUNT(*) FROM expenses WHERE category_id = ?),
			(SELECT COUNT(*) FROM budgets WHERE category_id = ?)
	`, id, id, id).Scan(&refs.Children, &refs.Expenses, &refs.Budgets)
	if err != nil {
		return refs, fmt.Errorf("failed to count category references: %w", err)
	}
	return refs, nil
}

func scanCategory(row scanner) (*expense.Category, error) {
	var (
		c                    expense.Category
		createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.CompanyID, &c.Code, &c.Name, &c.ParentID,
		&c.IsActive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
