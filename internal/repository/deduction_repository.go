package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dan9191/advance-service/internal/models"
)

// DeductionRepository records installments and manual payments
type DeductionRepository struct {
	q queryable
}

// NewDeductionRepository creates a new deduction repository
func NewDeductionRepository(db *sql.DB) *DeductionRepository {
	return &DeductionRepository{q: db}
}

func newDeductionRepositoryWithTx(tx queryable) *DeductionRepository {
	return &DeductionRepository{q: tx}
}

// Create inserts a deduction record
func (r *DeductionRepository) Create(ctx context.Context, d *models.Deduction) error {
	query := `
		INSERT INTO deductions (loan_id, amount, type, balance_after)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, d.LoanID, d.Amount, string(d.Type), d.BalanceAfter).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create deduction for loan %d: %w", d.LoanID, err)
	}
	return nil
}

// GetByLoan returns a loan's deductions, oldest first
func (r *DeductionRepository) GetByLoan(ctx context.Context, loanID int64) ([]*models.Deduction, error) {
	query := `
		SELECT id, loan_id, amount, type, balance_after, created_at
		FROM deductions
		WHERE loan_id = $1
		ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deductions for loan %d: %w", loanID, err)
	}
	defer rows.Close()

	var deductions []*models.Deduction
	for rows.Next() {
		d := &models.Deduction{}
		var dtype string
		if err := rows.Scan(&d.ID, &d.LoanID, &d.Amount, &dtype, &d.BalanceAfter, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deduction: %w", err)
		}
		d.Type = models.DeductionType(dtype)
		deductions = append(deductions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deductions: %w", err)
	}
	return deductions, nil
}
