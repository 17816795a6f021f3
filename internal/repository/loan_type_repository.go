package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dan9191/advance-service/internal/models"
)

// LoanTypeRepository provides access to loan products
type LoanTypeRepository struct {
	q queryable
}

// NewLoanTypeRepository creates a new loan type repository
func NewLoanTypeRepository(db *sql.DB) *LoanTypeRepository {
	return &LoanTypeRepository{q: db}
}

func newLoanTypeRepositoryWithTx(tx queryable) *LoanTypeRepository {
	return &LoanTypeRepository{q: tx}
}

// Create inserts a loan type
func (r *LoanTypeRepository) Create(ctx context.Context, lt *models.LoanType) error {
	query := `
		INSERT INTO loan_types (name, interest_rate, max_tenure_months, min_credit_score, min_employment_years,
			requires_guarantors, required_guarantors, auto_approve, max_guarantees_per_guarantor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := r.q.QueryRowContext(ctx, query, lt.Name, lt.InterestRate, lt.MaxTenureMonths, lt.MinCreditScore,
		lt.MinEmploymentYears, lt.RequiresGuarantors, lt.RequiredGuarantors, lt.AutoApprove,
		lt.MaxGuaranteesPerGuarantor).Scan(&lt.ID)
	if err != nil {
		return fmt.Errorf("failed to create loan type: %w", err)
	}
	return nil
}

// GetByID retrieves a loan type, returning nil when absent
func (r *LoanTypeRepository) GetByID(ctx context.Context, id int64) (*models.LoanType, error) {
	query := `
		SELECT id, name, interest_rate, max_tenure_months, min_credit_score, min_employment_years,
			requires_guarantors, required_guarantors, auto_approve, max_guarantees_per_guarantor
		FROM loan_types
		WHERE id = $1`
	lt := &models.LoanType{}
	err := r.q.QueryRowContext(ctx, query, id).Scan(&lt.ID, &lt.Name, &lt.InterestRate, &lt.MaxTenureMonths,
		&lt.MinCreditScore, &lt.MinEmploymentYears, &lt.RequiresGuarantors, &lt.RequiredGuarantors,
		&lt.AutoApprove, &lt.MaxGuaranteesPerGuarantor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan type %d: %w", id, err)
	}
	return lt, nil
}
