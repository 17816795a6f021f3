package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanStatusPending    LoanStatus = "pending"
	LoanStatusProcessing LoanStatus = "processing"
	LoanStatusApproved   LoanStatus = "approved"
	LoanStatusRejected   LoanStatus = "rejected"
	LoanStatusCompleted  LoanStatus = "completed"
	LoanStatusCancelled  LoanStatus = "cancelled"
	LoanStatusDefaulted  LoanStatus = "defaulted"
)

// Loan is the aggregate every mutating workflow serializes on
type Loan struct {
	ID             int64               `json:"id"`
	LoanNumber     string              `json:"loan_number"`
	BorrowerID     int64               `json:"borrower_id"`
	LoanTypeID     int64               `json:"loan_type_id"`
	Principal      decimal.Decimal     `json:"principal"`
	ApprovedAmount decimal.NullDecimal `json:"approved_amount"`
	TotalPayable   decimal.Decimal     `json:"total_payable"`
	Balance        decimal.Decimal     `json:"balance"`
	InterestRate   decimal.Decimal     `json:"interest_rate"`
	TenureMonths   int                 `json:"tenure_months"`
	Installment    decimal.Decimal     `json:"installment"`
	NextDueDate    *time.Time          `json:"next_due_date,omitempty"`
	Status         LoanStatus          `json:"status"`
	Remarks        string              `json:"remarks"`
	AppliedAt      time.Time           `json:"applied_at"`
	ApprovedAt     *time.Time          `json:"approved_at,omitempty"`
	ApprovedBy     *int64              `json:"approved_by,omitempty"`
	DisbursedAt    *time.Time          `json:"disbursed_at,omitempty"`
	Background     BackgroundCheck     `json:"background"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// IsUndecided reports whether the loan still awaits guarantors or an administrator
func (l *Loan) IsUndecided() bool {
	return l.Status == LoanStatusPending || l.Status == LoanStatusProcessing
}

// IsRepayable reports whether payments and deductions may be applied
func (l *Loan) IsRepayable() bool {
	return l.Status == LoanStatusApproved && l.Balance.IsPositive()
}

// ApplyPayment reduces the balance by amount, clamping at zero and completing the loan
// when nothing is left. It returns the amount actually taken off the balance.
func (l *Loan) ApplyPayment(amount decimal.Decimal) decimal.Decimal {
	applied := decimal.Min(amount, l.Balance)
	l.Balance = l.Balance.Sub(applied)
	if !l.Balance.IsPositive() {
		l.Balance = decimal.Zero
		l.Status = LoanStatusCompleted
	}
	return applied
}

// BackgroundCheck is the borrower snapshot taken at application time
type BackgroundCheck struct {
	CreditScore    int             `json:"credit_score"`
	YearsEmployed  int             `json:"years_employed"`
	MonthlySalary  decimal.Decimal `json:"monthly_salary"`
	RemainingLimit decimal.Decimal `json:"remaining_limit"`
	RepaidLoans    int             `json:"repaid_loans"`
	DefaultedLoans int             `json:"defaulted_loans"`
}

// Value stores the snapshot as JSONB
func (b BackgroundCheck) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan reads the snapshot from JSONB
func (b *BackgroundCheck) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = BackgroundCheck{}
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return fmt.Errorf("unsupported background check type %T", src)
	}
}
