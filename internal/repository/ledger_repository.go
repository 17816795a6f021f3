package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dan9191/advance-service/internal/models"
)

// LedgerRepository stores money applied to loans, one entry per provider reference
type LedgerRepository struct {
	q queryable
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{q: db}
}

func newLedgerRepositoryWithTx(tx queryable) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

// Create inserts a ledger entry. A reference seen before yields ErrDuplicate.
func (r *LedgerRepository) Create(ctx context.Context, e *models.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (loan_id, payment_transaction_id, reference, source, amount, balance_before,
			balance_after, phone, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, e.LoanID, nullInt64(e.PaymentTransactionID), e.Reference, string(e.Source),
		e.Amount, e.BalanceBefore, e.BalanceAfter, e.Phone, e.Signature).
		Scan(&e.ID, &e.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("ledger reference %s: %w", e.Reference, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

// GetByReference returns the entry holding a provider reference, or nil when the money was never applied
func (r *LedgerRepository) GetByReference(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	query := `
		SELECT id, loan_id, payment_transaction_id, reference, source, amount, balance_before, balance_after,
			phone, signature, created_at
		FROM ledger_entries
		WHERE reference = $1`
	e, err := scanLedgerEntry(r.q.QueryRowContext(ctx, query, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger reference %s: %w", reference, err)
	}
	return e, nil
}

// GetByLoan returns a loan's ledger, oldest first
func (r *LedgerRepository) GetByLoan(ctx context.Context, loanID int64) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, loan_id, payment_transaction_id, reference, source, amount, balance_before, balance_after,
			phone, signature, created_at
		FROM ledger_entries
		WHERE loan_id = $1
		ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger for loan %d: %w", loanID, err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(row rowScanner) (*models.LedgerEntry, error) {
	e := &models.LedgerEntry{}
	var (
		paymentID sql.NullInt64
		source    string
	)
	err := row.Scan(&e.ID, &e.LoanID, &paymentID, &e.Reference, &source, &e.Amount, &e.BalanceBefore,
		&e.BalanceAfter, &e.Phone, &e.Signature, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.PaymentTransactionID = int64Ptr(paymentID)
	e.Source = models.LedgerSource(source)
	return e, nil
}
