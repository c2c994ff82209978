/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing field
  renaming without breaking clients and API-specific shapes (flattened
  analysis rows, string fiscal keys).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts travel as decimal strings ("1234.50"), never floats. Parsing
  happens in handlers via decimal.NewFromString.

VALIDATION:
  Validation is done in handlers and services, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATEGORY TYPES
// =============================================================================

type CategoryDTO struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	ParentID  string `json:"parent_id,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type CreateCategoryRequest struct {
	CompanyID string `json:"company_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	ParentID  string `json:"parent_id"`
	IsActive  *bool  `json:"is_active"`
}

type UpdateCategoryRequest struct {
	Code     *string `json:"code"`
	Name     *string `json:"name"`
	ParentID *string `json:"parent_id"`
	IsActive *bool   `json:"is_active"`
}

// =============================================================================
// BUDGET TYPES
// =============================================================================

// BudgetDTO is a budget decorated with its current consumption.
type BudgetDTO struct {
	ID         string          `json:"id"`
	CompanyID  string          `json:"company_id"`
	CategoryID string          `json:"category_id"`
	Fiscal     string          `json:"fiscal_period"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  string          `json:"created_at,omitempty"`
	UpdatedAt  string          `json:"updated_at,omitempty"`

	CurrentSpending  decimal.Decimal            `json:"current_spending"`
	RemainingBudget  decimal.Decimal            `json:"remaining_budget"`
	Utilization      decimal.Decimal            `json:"utilization"`
	ExpenseCount     int                        `json:"expense_count"`
	LastExpenseDate  *string                    `json:"last_expense_date,omitempty"`
	MonthlyBreakdown map[string]decimal.Decimal `json:"monthly_breakdown,omitempty"`
}

type CreateBudgetRequest struct {
	CompanyID  string `json:"company_id"`
	CategoryID string `json:"category_id"`
	Fiscal     string `json:"fiscal_period"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	IsActive   *bool  `json:"is_active"`
}

type UpdateBudgetRequest struct {
	Amount   *string `json:"amount"`
	Currency *string `json:"currency"`
	IsActive *bool   `json:"is_active"`
}

type RolloverRequest struct {
	CompanyID    string `json:"company_id"`
	SourceFiscal string `json:"source_period"`
	TargetFiscal string `json:"target_period"`
	Factor       string `json:"adjustment_factor"`
}

type RolloverResponse struct {
	SourceFiscal     string          `json:"source_period"`
	TargetFiscal     string          `json:"target_period"`
	AdjustmentFactor decimal.Decimal `json:"adjustment_factor"`
	SourceCount      int             `json:"source_count"`
	CreatedCount     int             `json:"created_count"`
	Budgets          []BudgetDTO     `json:"budgets"`
}

// =============================================================================
// ANALYSIS TYPES
// =============================================================================

type TrendDTO struct {
	Percentage          decimal.Decimal `json:"percentage"`
	Direction           string          `json:"direction"`
	PreviousPeriodSpent decimal.Decimal `json:"previous_period_spent"`
}

// AnalysisRowDTO is the per-category analysis row.
type AnalysisRowDTO struct {
	CategoryID          string                     `json:"category_id"`
	BudgetID            string                     `json:"budget_id"`
	BudgetAmount        decimal.Decimal            `json:"budget_amount"`
	TotalSpent          decimal.Decimal            `json:"total_spent"`
	ExpenseCount        int                        `json:"expense_count"`
	AverageExpense      decimal.Decimal            `json:"average_expense"`
	Utilization         decimal.Decimal            `json:"utilization"`
	RemainingAmount     decimal.Decimal            `json:"remaining_amount"`
	RemainingPercentage decimal.Decimal            `json:"remaining_percentage"`
	Status              string                     `json:"status"`
	Trend               TrendDTO                   `json:"trend"`
	MonthlyBreakdown    map[string]decimal.Decimal `json:"monthly_breakdown,omitempty"`
}

type AnalysisSummaryDTO struct {
	TotalBudget        decimal.Decimal `json:"total_budget"`
	TotalSpent         decimal.Decimal `json:"total_spent"`
	TotalRemaining     decimal.Decimal `json:"total_remaining"`
	OverallUtilization decimal.Decimal `json:"overall_utilization"`
	TotalExpenses      int             `json:"total_expenses"`
	CategoriesCount    int             `json:"categories_count"`
}

type AlertDTO struct {
	Type       string          `json:"type"`
	Severity   string          `json:"severity"`
	CategoryID string          `json:"category_id"`
	Message    string          `json:"message"`
	Amount     decimal.Decimal `json:"amount"`
}

type AnalysisReportDTO struct {
	Fiscal     string             `json:"fiscal_period"`
	AsOf       time.Time          `json:"as_of"`
	Summary    AnalysisSummaryDTO `json:"summary"`
	Categories []AnalysisRowDTO   `json:"categories"`
	Alerts     []AlertDTO         `json:"alerts"`
}

// =============================================================================
// EXPENSE TYPES
// =============================================================================

type ExpenseDTO struct {
	ID                 string          `json:"id"`
	CompanyID          string          `json:"company_id"`
	UserID             string          `json:"user_id"`
	CategoryID         string          `json:"category_id"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Description        string          `json:"description,omitempty"`
	ExpenseDate        string          `json:"expense_date"`
	Status             string          `json:"status"`
	AssignedApproverID string          `json:"assigned_approver_id,omitempty"`
	ApprovedBy         string          `json:"approved_by,omitempty"`
	ApprovedAt         *string         `json:"approved_at,omitempty"`
	PaidAt             *string         `json:"paid_at,omitempty"`
	CreatedAt          string          `json:"created_at,omitempty"`
	UpdatedAt          string          `json:"updated_at,omitempty"`
}

type CreateExpenseRequest struct {
	CompanyID   string `json:"company_id"`
	UserID      string `json:"user_id"`
	CategoryID  string `json:"category_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	ExpenseDate string `json:"expense_date"`
	Submit      bool   `json:"submit"`
}

type UpdateExpenseRequest struct {
	CategoryID  *string `json:"category_id"`
	Amount      *string `json:"amount"`
	Currency    *string `json:"currency"`
	Description *string `json:"description"`
	ExpenseDate *string `json:"expense_date"`
}

type SubmitRequest struct {
	UserID string `json:"user_id"`
}

type DecisionRequest struct {
	UserID  string `json:"user_id"`
	Comment string `json:"comment"`
}

type BulkApproveRequest struct {
	ExpenseIDs []string `json:"expense_ids"`
	UserID     string   `json:"user_id"`
	Comment    string   `json:"comment"`
}

type BulkOutcomeDTO struct {
	ExpenseID string       `json:"expense_id"`
	Status    string       `json:"status"`
	Approval  *ApprovalDTO `json:"approval,omitempty"`
	Error     string       `json:"error,omitempty"`
}

type DelegateRequest struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Comment    string `json:"comment"`
}

type ApprovalDTO struct {
	ID        string `json:"id"`
	ExpenseID string `json:"expense_id"`
	UserID    string `json:"user_id"`
	Action    string `json:"action"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// SUMMARY AND STATISTICS TYPES
// =============================================================================

type StatusGroupDTO struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type ExpenseSummaryDTO struct {
	TotalAmount decimal.Decimal           `json:"total_amount"`
	TotalCount  int                       `json:"total_count"`
	ByStatus    map[string]StatusGroupDTO `json:"by_status"`
	ByCategory  map[string]StatusGroupDTO `json:"by_category"`
	Pending     int                       `json:"pending"`
	Approved    int                       `json:"approved"`
	Rejected    int                       `json:"rejected"`
}

type ActionStatsDTO struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type StatisticsDTO struct {
	TotalApprovals int                       `json:"total_approvals"`
	ByAction       map[string]ActionStatsDTO `json:"by_action"`
	ByApprover     map[string]ActionStatsDTO `json:"by_approver"`
}

// =============================================================================
// ERROR TYPES
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// BudgetExceededResponse carries the gate's rejection detail.
type BudgetExceededResponse struct {
	Error     string          `json:"error"`
	BudgetID  string          `json:"budget_id"`
	Fiscal    string          `json:"fiscal_period"`
	Limit     decimal.Decimal `json:"limit"`
	Spent     decimal.Decimal `json:"spent"`
	Requested decimal.Decimal `json:"requested"`
	Remaining decimal.Decimal `json:"remaining"`
}
