package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dan9191/advance-service/internal/models"
)

const paymentColumns = `
	id, loan_id, mode, correlation_id, status, amount, phone, account_reference, receipt_number,
	failure_reason, completed_at, created_at, updated_at`

// PaymentTransactionRepository provides access to gateway payment attempts
type PaymentTransactionRepository struct {
	q queryable
}

// NewPaymentTransactionRepository creates a new payment transaction repository
func NewPaymentTransactionRepository(db *sql.DB) *PaymentTransactionRepository {
	return &PaymentTransactionRepository{q: db}
}

func newPaymentTransactionRepositoryWithTx(tx queryable) *PaymentTransactionRepository {
	return &PaymentTransactionRepository{q: tx}
}

func scanPayment(row rowScanner) (*models.PaymentTransaction, error) {
	p := &models.PaymentTransaction{}
	var (
		mode, status           string
		correlationID, receipt sql.NullString
		completedAt            sql.NullTime
	)
	err := row.Scan(&p.ID, &p.LoanID, &mode, &correlationID, &status, &p.Amount, &p.Phone, &p.AccountReference,
		&receipt, &p.FailureReason, &completedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Mode = models.PaymentMode(mode)
	p.Status = models.PaymentStatus(status)
	p.CorrelationID = stringPtr(correlationID)
	p.ReceiptNumber = stringPtr(receipt)
	p.CompletedAt = timePtr(completedAt)
	return p, nil
}

func (r *PaymentTransactionRepository) getOne(ctx context.Context, query string, args ...any) (*models.PaymentTransaction, error) {
	p, err := scanPayment(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// Create inserts a new payment transaction. A reused correlation id yields ErrDuplicate.
func (r *PaymentTransactionRepository) Create(ctx context.Context, p *models.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (loan_id, mode, correlation_id, status, amount, phone, account_reference,
			receipt_number, failure_reason, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	err := r.q.QueryRowContext(ctx, query, p.LoanID, string(p.Mode), nullString(p.CorrelationID), string(p.Status),
		p.Amount, p.Phone, p.AccountReference, nullString(p.ReceiptNumber), p.FailureReason, nullTime(p.CompletedAt)).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("payment transaction: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a payment transaction, returning nil when absent
func (r *PaymentTransactionRepository) GetByID(ctx context.Context, id int64) (*models.PaymentTransaction, error) {
	p, err := r.getOne(ctx, `SELECT `+paymentColumns+` FROM payment_transactions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment transaction %d: %w", id, err)
	}
	return p, nil
}

// GetByCorrelationID retrieves a payment transaction without locking it
func (r *PaymentTransactionRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE correlation_id = $1`
	p, err := r.getOne(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment transaction %s: %w", correlationID, err)
	}
	return p, nil
}

// GetByCorrelationIDForUpdate retrieves a payment transaction and locks its row. Callers take this lock
// before the loan lock.
func (r *PaymentTransactionRepository) GetByCorrelationIDForUpdate(ctx context.Context, correlationID string) (*models.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE correlation_id = $1 FOR UPDATE`
	p, err := r.getOne(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment transaction %s: %w", correlationID, err)
	}
	return p, nil
}

// GetPendingByLoan returns the loan's oldest pending transaction of the given mode, nil when none
func (r *PaymentTransactionRepository) GetPendingByLoan(ctx context.Context, loanID int64, mode models.PaymentMode) (*models.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payment_transactions
		WHERE loan_id = $1 AND mode = $2 AND status = 'PENDING'
		ORDER BY id
		LIMIT 1`
	p, err := r.getOne(ctx, query, loanID, string(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to get pending %s payment for loan %d: %w", mode, loanID, err)
	}
	return p, nil
}

// Update persists status, correlation and receipt changes
func (r *PaymentTransactionRepository) Update(ctx context.Context, p *models.PaymentTransaction) error {
	query := `
		UPDATE payment_transactions
		SET correlation_id = $1, status = $2, receipt_number = $3, failure_reason = $4, completed_at = $5,
			updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`
	err := r.q.QueryRowContext(ctx, query, nullString(p.CorrelationID), string(p.Status), nullString(p.ReceiptNumber),
		p.FailureReason, nullTime(p.CompletedAt), p.ID).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("payment transaction %d not found", p.ID)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("payment transaction %d: %w", p.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to update payment transaction %d: %w", p.ID, err)
	}
	return nil
}
