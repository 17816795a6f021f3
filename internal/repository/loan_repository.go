package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/advance-service/internal/models"
	"github.com/shopspring/decimal"
)

const loanColumns = `
	id, loan_number, borrower_id, loan_type_id, principal, approved_amount, total_payable, balance,
	interest_rate, tenure_months, installment, next_due_date, status, remarks, applied_at,
	approved_at, approved_by, disbursed_at, background, updated_at`

// LoanRepository provides access to the loan aggregate
type LoanRepository struct {
	q queryable
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *sql.DB) *LoanRepository {
	return &LoanRepository{q: db}
}

func newLoanRepositoryWithTx(tx queryable) *LoanRepository {
	return &LoanRepository{q: tx}
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	loan := &models.Loan{}
	var (
		nextDue, approvedAt, disbursedAt sql.NullTime
		approvedBy                       sql.NullInt64
		status                           string
	)
	err := row.Scan(&loan.ID, &loan.LoanNumber, &loan.BorrowerID, &loan.LoanTypeID, &loan.Principal,
		&loan.ApprovedAmount, &loan.TotalPayable, &loan.Balance, &loan.InterestRate, &loan.TenureMonths,
		&loan.Installment, &nextDue, &status, &loan.Remarks, &loan.AppliedAt, &approvedAt, &approvedBy,
		&disbursedAt, &loan.Background, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	loan.Status = models.LoanStatus(status)
	loan.NextDueDate = timePtr(nextDue)
	loan.ApprovedAt = timePtr(approvedAt)
	loan.ApprovedBy = int64Ptr(approvedBy)
	loan.DisbursedAt = timePtr(disbursedAt)
	return loan, nil
}

func (r *LoanRepository) getOne(ctx context.Context, query string, args ...any) (*models.Loan, error) {
	loan, err := scanLoan(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return loan, err
}

// Create inserts a new loan
func (r *LoanRepository) Create(ctx context.Context, loan *models.Loan) error {
	query := `
		INSERT INTO loans (loan_number, borrower_id, loan_type_id, principal, total_payable, balance,
			interest_rate, tenure_months, installment, status, remarks, applied_at, background)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, updated_at`
	err := r.q.QueryRowContext(ctx, query, loan.LoanNumber, loan.BorrowerID, loan.LoanTypeID, loan.Principal,
		loan.TotalPayable, loan.Balance, loan.InterestRate, loan.TenureMonths, loan.Installment,
		string(loan.Status), loan.Remarks, loan.AppliedAt, loan.Background).
		Scan(&loan.ID, &loan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetByID retrieves a loan without locking it, returning nil when absent
func (r *LoanRepository) GetByID(ctx context.Context, id int64) (*models.Loan, error) {
	loan, err := r.getOne(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get loan %d: %w", id, err)
	}
	return loan, nil
}

// GetByNumber retrieves a loan by its public loan number, returning nil when absent
func (r *LoanRepository) GetByNumber(ctx context.Context, loanNumber string) (*models.Loan, error) {
	loan, err := r.getOne(ctx, `SELECT `+loanColumns+` FROM loans WHERE loan_number = $1`, loanNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get loan %s: %w", loanNumber, err)
	}
	return loan, nil
}

// GetForUpdate retrieves a loan and holds its row lock until the transaction ends
func (r *LoanRepository) GetForUpdate(ctx context.Context, id int64) (*models.Loan, error) {
	loan, err := r.getOne(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock loan %d: %w", id, err)
	}
	return loan, nil
}

// GetRepayableByBorrower returns the borrower's most recent approved loan with a positive balance
func (r *LoanRepository) GetRepayableByBorrower(ctx context.Context, borrowerID int64) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + `
		FROM loans
		WHERE borrower_id = $1 AND status = 'approved' AND balance > 0
		ORDER BY approved_at DESC
		LIMIT 1`
	loan, err := r.getOne(ctx, query, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get repayable loan for borrower %d: %w", borrowerID, err)
	}
	return loan, nil
}

// Update persists every mutable field of the loan
func (r *LoanRepository) Update(ctx context.Context, loan *models.Loan) error {
	query := `
		UPDATE loans
		SET principal = $1, approved_amount = $2, total_payable = $3, balance = $4, installment = $5,
			next_due_date = $6, status = $7, remarks = $8, approved_at = $9, approved_by = $10,
			disbursed_at = $11, updated_at = NOW()
		WHERE id = $12
		RETURNING updated_at`
	err := r.q.QueryRowContext(ctx, query, loan.Principal, loan.ApprovedAmount, loan.TotalPayable, loan.Balance,
		loan.Installment, nullTime(loan.NextDueDate), string(loan.Status), loan.Remarks,
		nullTime(loan.ApprovedAt), nullInt64(loan.ApprovedBy), nullTime(loan.DisbursedAt), loan.ID).
		Scan(&loan.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("loan %d not found", loan.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update loan %d: %w", loan.ID, err)
	}
	return nil
}

// CountAppliedSince counts the borrower's applications created at or after since
func (r *LoanRepository) CountAppliedSince(ctx context.Context, borrowerID int64, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM loans WHERE borrower_id = $1 AND applied_at >= $2`
	if err := r.q.QueryRowContext(ctx, query, borrowerID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count applications for borrower %d: %w", borrowerID, err)
	}
	return count, nil
}

// SumOutstanding totals balances of the borrower's loans that are neither settled nor refused
func (r *LoanRepository) SumOutstanding(ctx context.Context, borrowerID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `
		SELECT COALESCE(SUM(balance), 0)
		FROM loans
		WHERE borrower_id = $1 AND status IN ('pending', 'processing', 'approved', 'defaulted')`
	if err := r.q.QueryRowContext(ctx, query, borrowerID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum outstanding balance for borrower %d: %w", borrowerID, err)
	}
	return total, nil
}

// RepaymentHistory counts the borrower's repaid and defaulted loans
func (r *LoanRepository) RepaymentHistory(ctx context.Context, borrowerID int64) (repaid, defaulted int, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'defaulted')
		FROM loans
		WHERE borrower_id = $1`
	if err := r.q.QueryRowContext(ctx, query, borrowerID).Scan(&repaid, &defaulted); err != nil {
		return 0, 0, fmt.Errorf("failed to get repayment history for borrower %d: %w", borrowerID, err)
	}
	return repaid, defaulted, nil
}

// ListDueIDs returns approved loans with a balance whose next installment is due on or before day
func (r *LoanRepository) ListDueIDs(ctx context.Context, day time.Time) ([]int64, error) {
	query := `
		SELECT id
		FROM loans
		WHERE status = 'approved' AND balance > 0 AND next_due_date <= $1
		ORDER BY next_due_date, id`
	rows, err := r.q.QueryContext(ctx, query, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to list due loans: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan due loan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due loans: %w", err)
	}
	return ids, nil
}
