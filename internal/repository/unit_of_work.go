package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dan9191/advance-service/internal/events"
	"github.com/Dan9191/advance-service/internal/service"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *sql.DB
	tx               *sql.Tx
	transactionalBus *events.TransactionalBus
	userRepo         service.UserRepository
	loanTypeRepo     service.LoanTypeRepository
	loanRepo         service.LoanRepository
	guarantorRepo    service.GuarantorRepository
	paymentRepo      service.PaymentTransactionRepository
	deductionRepo    service.DeductionRepository
	ledgerRepo       service.LedgerRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *sql.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *sql.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	u.tx = tx

	u.userRepo = newUserRepositoryWithTx(tx)
	u.loanTypeRepo = newLoanTypeRepositoryWithTx(tx)
	u.loanRepo = newLoanRepositoryWithTx(tx)
	u.guarantorRepo = newGuarantorRepositoryWithTx(tx)
	u.paymentRepo = newPaymentTransactionRepositoryWithTx(tx)
	u.deductionRepo = newDeductionRepositoryWithTx(tx)
	u.ledgerRepo = newLedgerRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and then flushes pending events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit()
	u.tx = nil
	if err != nil {
		u.transactionalBus.Discard()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.transactionalBus.Flush()
	return nil
}

// Rollback rolls back the transaction and drops pending events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback()
	u.tx = nil
	u.transactionalBus.Discard()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// UserRepository returns the user repository for this unit of work
func (u *unitOfWork) UserRepository() service.UserRepository {
	if u.userRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.userRepo
}

// LoanTypeRepository returns the loan type repository for this unit of work
func (u *unitOfWork) LoanTypeRepository() service.LoanTypeRepository {
	if u.loanTypeRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.loanTypeRepo
}

// LoanRepository returns the loan repository for this unit of work
func (u *unitOfWork) LoanRepository() service.LoanRepository {
	if u.loanRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.loanRepo
}

// GuarantorRepository returns the guarantor repository for this unit of work
func (u *unitOfWork) GuarantorRepository() service.GuarantorRepository {
	if u.guarantorRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.guarantorRepo
}

// PaymentTransactionRepository returns the payment transaction repository for this unit of work
func (u *unitOfWork) PaymentTransactionRepository() service.PaymentTransactionRepository {
	if u.paymentRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.paymentRepo
}

// DeductionRepository returns the deduction repository for this unit of work
func (u *unitOfWork) DeductionRepository() service.DeductionRepository {
	if u.deductionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.deductionRepo
}

// LedgerRepository returns the ledger repository for this unit of work
func (u *unitOfWork) LedgerRepository() service.LedgerRepository {
	if u.ledgerRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.ledgerRepo
}

// Outbox returns the transactional event bus for this unit of work
func (u *unitOfWork) Outbox() service.EventPublisher {
	return u.transactionalBus
}
