package service

import (
	"context"
	"time"

	"github.com/Dan9191/advance-service/internal/events"
	"github.com/Dan9191/advance-service/internal/integrations/mpesa"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/shopspring/decimal"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByID retrieves a user by ID, nil when absent
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetForUpdate reads the user and holds its row lock until the unit of work ends, nil when absent
	GetForUpdate(ctx context.Context, id int64) (*models.User, error)

	// GetByEmail retrieves a user by email, nil when absent
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ListAdmins returns every administrator
	ListAdmins(ctx context.Context) ([]*models.User, error)

	// UpdateCreditLimit stores a recomputed credit limit
	UpdateCreditLimit(ctx context.Context, userID int64, limit decimal.Decimal) error
}

// LoanTypeRepository defines the interface for loan products
type LoanTypeRepository interface {
	// GetByID retrieves a loan type, nil when absent
	GetByID(ctx context.Context, id int64) (*models.LoanType, error)
}

// LoanRepository defines the interface for the loan aggregate
type LoanRepository interface {
	Create(ctx context.Context, loan *models.Loan) error
	GetByID(ctx context.Context, id int64) (*models.Loan, error)
	GetByNumber(ctx context.Context, loanNumber string) (*models.Loan, error)

	// GetForUpdate reads the loan and holds its row lock until the unit of work ends
	GetForUpdate(ctx context.Context, id int64) (*models.Loan, error)

	// GetRepayableByBorrower returns the borrower's latest approved loan with a balance
	GetRepayableByBorrower(ctx context.Context, borrowerID int64) (*models.Loan, error)

	Update(ctx context.Context, loan *models.Loan) error
	CountAppliedSince(ctx context.Context, borrowerID int64, since time.Time) (int, error)
	SumOutstanding(ctx context.Context, borrowerID int64) (decimal.Decimal, error)
	RepaymentHistory(ctx context.Context, borrowerID int64) (repaid, defaulted int, err error)

	// ListDueIDs returns approved loans with a balance due on or before day
	ListDueIDs(ctx context.Context, day time.Time) ([]int64, error)
}

// GuarantorRepository defines the interface for guarantor assignments
type GuarantorRepository interface {
	Create(ctx context.Context, a *models.GuarantorAssignment) error
	GetByLoan(ctx context.Context, loanID int64) ([]*models.GuarantorAssignment, error)

	// GetByLoanAndGuarantor returns nil when the user does not guarantee the loan
	GetByLoanAndGuarantor(ctx context.Context, loanID, guarantorID int64) (*models.GuarantorAssignment, error)

	UpdateResponse(ctx context.Context, a *models.GuarantorAssignment) error
	CountActiveGuarantees(ctx context.Context, guarantorID int64) (int, error)
	CountActiveGuaranteesForType(ctx context.Context, guarantorID, loanTypeID int64) (int, error)
}

// PaymentTransactionRepository defines the interface for gateway payment attempts
type PaymentTransactionRepository interface {
	Create(ctx context.Context, p *models.PaymentTransaction) error
	GetByID(ctx context.Context, id int64) (*models.PaymentTransaction, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentTransaction, error)

	// GetByCorrelationIDForUpdate locks the payment row; always taken before the loan lock
	GetByCorrelationIDForUpdate(ctx context.Context, correlationID string) (*models.PaymentTransaction, error)

	// GetPendingByLoan returns nil when the loan has no pending transaction of that mode
	GetPendingByLoan(ctx context.Context, loanID int64, mode models.PaymentMode) (*models.PaymentTransaction, error)

	Update(ctx context.Context, p *models.PaymentTransaction) error
}

// DeductionRepository defines the interface for deduction records
type DeductionRepository interface {
	Create(ctx context.Context, d *models.Deduction) error
}

// LedgerRepository defines the interface for ledger entries
type LedgerRepository interface {
	// Create fails with repository.ErrDuplicate when the reference was already applied
	Create(ctx context.Context, e *models.LedgerEntry) error
	// GetByReference returns nil when the reference was never applied
	GetByReference(ctx context.Context, reference string) (*models.LedgerEntry, error)
}

// NotificationRepository persists in-app notifications
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
}

// EventPublisher collects events to deliver after commit
type EventPublisher interface {
	Publish(e events.Event)
}

// UnitOfWork groups repository calls into one database transaction
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() UserRepository
	LoanTypeRepository() LoanTypeRepository
	LoanRepository() LoanRepository
	GuarantorRepository() GuarantorRepository
	PaymentTransactionRepository() PaymentTransactionRepository
	DeductionRepository() DeductionRepository
	LedgerRepository() LedgerRepository

	// Outbox holds notifications until Commit succeeds
	Outbox() EventPublisher
}

// UnitOfWorkFactory creates a fresh unit of work per operation
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// PaymentGateway is the outbound side of the mobile-money integration
type PaymentGateway interface {
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
	QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResponse, error)
	B2CPayment(ctx context.Context, req mpesa.B2CRequest) (*mpesa.B2CResponse, error)
}
