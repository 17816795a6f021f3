package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dan9191/advance-service/internal/models"
)

const guarantorColumns = `id, loan_id, guarantor_id, liability, status, remarks, responded_at, created_at`

// GuarantorRepository provides access to guarantor assignments
type GuarantorRepository struct {
	q queryable
}

// NewGuarantorRepository creates a new guarantor repository
func NewGuarantorRepository(db *sql.DB) *GuarantorRepository {
	return &GuarantorRepository{q: db}
}

func newGuarantorRepositoryWithTx(tx queryable) *GuarantorRepository {
	return &GuarantorRepository{q: tx}
}

func scanAssignment(row rowScanner) (*models.GuarantorAssignment, error) {
	a := &models.GuarantorAssignment{}
	var (
		status      string
		respondedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.LoanID, &a.GuarantorID, &a.Liability, &status, &a.Remarks, &respondedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = models.GuarantorStatus(status)
	a.RespondedAt = timePtr(respondedAt)
	return a, nil
}

// Create inserts a new assignment
func (r *GuarantorRepository) Create(ctx context.Context, a *models.GuarantorAssignment) error {
	query := `
		INSERT INTO loan_guarantors (loan_id, guarantor_id, liability, status, remarks)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, a.LoanID, a.GuarantorID, a.Liability, string(a.Status), a.Remarks).
		Scan(&a.ID, &a.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("guarantor %d on loan %d: %w", a.GuarantorID, a.LoanID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create guarantor assignment: %w", err)
	}
	return nil
}

// GetByLoan returns every assignment of a loan in creation order
func (r *GuarantorRepository) GetByLoan(ctx context.Context, loanID int64) ([]*models.GuarantorAssignment, error) {
	query := `SELECT ` + guarantorColumns + ` FROM loan_guarantors WHERE loan_id = $1 ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guarantors for loan %d: %w", loanID, err)
	}
	defer rows.Close()

	var assignments []*models.GuarantorAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guarantor assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guarantor assignments: %w", err)
	}
	return assignments, nil
}

// GetByLoanAndGuarantor returns one guarantor's assignment, or nil when the user is not a guarantor of the loan
func (r *GuarantorRepository) GetByLoanAndGuarantor(ctx context.Context, loanID, guarantorID int64) (*models.GuarantorAssignment, error) {
	query := `SELECT ` + guarantorColumns + ` FROM loan_guarantors WHERE loan_id = $1 AND guarantor_id = $2`
	a, err := scanAssignment(r.q.QueryRowContext(ctx, query, loanID, guarantorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guarantor %d for loan %d: %w", guarantorID, loanID, err)
	}
	return a, nil
}

// UpdateResponse records a guarantor's answer
func (r *GuarantorRepository) UpdateResponse(ctx context.Context, a *models.GuarantorAssignment) error {
	query := `
		UPDATE loan_guarantors
		SET status = $1, remarks = $2, responded_at = $3
		WHERE id = $4`
	result, err := r.q.ExecContext(ctx, query, string(a.Status), a.Remarks, nullTime(a.RespondedAt), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update guarantor assignment %d: %w", a.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("guarantor assignment %d not found", a.ID)
	}
	return nil
}

// CountActiveGuarantees counts non-declined assignments the user holds on loans that are still open
func (r *GuarantorRepository) CountActiveGuarantees(ctx context.Context, guarantorID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM loan_guarantors g
		JOIN loans l ON l.id = g.loan_id
		WHERE g.guarantor_id = $1
			AND g.status <> 'declined'
			AND l.status IN ('pending', 'processing', 'approved')`
	var count int
	if err := r.q.QueryRowContext(ctx, query, guarantorID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count guarantees for user %d: %w", guarantorID, err)
	}
	return count, nil
}

// CountActiveGuaranteesForType is CountActiveGuarantees restricted to one loan type
func (r *GuarantorRepository) CountActiveGuaranteesForType(ctx context.Context, guarantorID, loanTypeID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM loan_guarantors g
		JOIN loans l ON l.id = g.loan_id
		WHERE g.guarantor_id = $1
			AND l.loan_type_id = $2
			AND g.status <> 'declined'
			AND l.status IN ('pending', 'processing', 'approved')`
	var count int
	if err := r.q.QueryRowContext(ctx, query, guarantorID, loanTypeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count guarantees for user %d: %w", guarantorID, err)
	}
	return count, nil
}
