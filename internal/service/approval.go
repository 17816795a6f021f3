package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ApproveRequest is an administrator's approval. A nil Amount approves the requested principal.
type ApproveRequest struct {
	LoanID  int64
	ActorID int64
	Amount  *decimal.Decimal
	Remarks string
}

// ApprovalWorkflow performs the administrative decisions on a loan
type ApprovalWorkflow struct {
	uowFactory UnitOfWorkFactory
	location   *time.Location
	log        *logrus.Logger
	now        func() time.Time
}

// NewApprovalWorkflow creates a new approval workflow
func NewApprovalWorkflow(uowFactory UnitOfWorkFactory, cfg *config.Config, log *logrus.Logger) *ApprovalWorkflow {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &ApprovalWorkflow{uowFactory: uowFactory, location: loc, log: log, now: time.Now}
}

// requireAdmin resolves the acting user and fails unless they are an administrator
func requireAdmin(ctx context.Context, uow UnitOfWork, actorID int64) (*models.User, error) {
	actor, err := uow.UserRepository().GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil || !actor.IsAdmin {
		return nil, fmt.Errorf("%w: user %d is not an administrator", ErrForbidden, actorID)
	}
	return actor, nil
}

// lockUndecided locks the loan and checks it still awaits a decision
func lockUndecided(ctx context.Context, uow UnitOfWork, loanID int64, logger *logrus.Entry) (*models.Loan, error) {
	loan, err := uow.LoanRepository().GetForUpdate(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, loanID)
	}
	if !loan.IsUndecided() {
		logger.Warnf("Loan already %s", loan.Status)
		return nil, fmt.Errorf("%w: loan is %s", ErrAlreadyProcessed, loan.Status)
	}
	return loan, nil
}

// Approve moves an undecided loan to approved. Loans whose type requires guarantors are approvable
// only once every guarantor has accepted, and only for the full principal they agreed to back.
func (w *ApprovalWorkflow) Approve(ctx context.Context, req ApproveRequest) (*models.Loan, error) {
	logger := w.log.WithFields(logrus.Fields{"loan_id": req.LoanID, "actor_id": req.ActorID})

	uow := w.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback() // No-op if already committed

	if _, err := requireAdmin(ctx, uow, req.ActorID); err != nil {
		return nil, err
	}
	loan, err := lockUndecided(ctx, uow, req.LoanID, logger)
	if err != nil {
		return nil, err
	}
	lt, err := uow.LoanTypeRepository().GetByID(ctx, loan.LoanTypeID)
	if err != nil {
		return nil, err
	}
	if lt == nil {
		logger.Errorf("Loan references missing loan type %d", loan.LoanTypeID)
		return nil, fmt.Errorf("%w: loan type %d missing", ErrIntegrity, loan.LoanTypeID)
	}

	amount := loan.Principal
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() || amount.GreaterThan(loan.Principal) {
		return nil, fmt.Errorf("%w: approved amount must be positive and at most %s", ErrInvalidApplication, loan.Principal.StringFixed(2))
	}

	if lt.RequiresGuarantors {
		assignments, err := uow.GuarantorRepository().GetByLoan(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
		if len(assignments) == 0 {
			logger.Error("Guarantor loan has no guarantor assignments")
			return nil, fmt.Errorf("%w: loan %d has no guarantors", ErrIntegrity, loan.ID)
		}
		if EvaluateConsensus(assignments) != ConsensusAwaitingApproval {
			return nil, ErrConsensusPending
		}
		if !amount.Equal(loan.Principal) {
			return nil, fmt.Errorf("%w: guaranteed loans are approved for the full principal", ErrInvalidApplication)
		}
	} else if !amount.Equal(loan.Principal) {
		terms, err := CalculateTerms(amount, loan.InterestRate, loan.TenureMonths)
		if err != nil {
			return nil, err
		}
		loan.TotalPayable = terms.TotalPayable
		loan.Balance = terms.TotalPayable
		loan.Installment = terms.Installment
	}

	now := w.now()
	nextDue := civilDate(now, w.location).AddDate(0, 1, 0)
	actorID := req.ActorID
	previous := loan.Status

	loan.Status = models.LoanStatusApproved
	loan.ApprovedAmount = decimal.NewNullDecimal(amount)
	loan.ApprovedAt = &now
	loan.ApprovedBy = &actorID
	loan.NextDueDate = &nextDue
	if req.Remarks != "" {
		loan.Remarks = req.Remarks
	}
	if err := uow.LoanRepository().Update(ctx, loan); err != nil {
		return nil, err
	}

	borrower, err := uow.UserRepository().GetByID(ctx, loan.BorrowerID)
	if err != nil {
		return nil, err
	}
	if borrower == nil {
		logger.Errorf("Loan references missing borrower %d", loan.BorrowerID)
		return nil, fmt.Errorf("%w: borrower %d missing", ErrIntegrity, loan.BorrowerID)
	}
	limit := DecrementCreditLimit(borrower.CreditLimit, amount)
	if err := uow.UserRepository().UpdateCreditLimit(ctx, borrower.ID, limit); err != nil {
		return nil, err
	}

	outbox := uow.Outbox()
	payload := loanPayload(loan)
	payload["approved_amount"] = amount.StringFixed(2)
	payload["installment"] = loan.Installment.StringFixed(2)
	payload["next_due_date"] = nextDue.Format("2006-01-02")
	notify(outbox, models.NotificationLoanApproved, loan.BorrowerID, withSMS, payload)
	statusChanged(outbox, loan, previous, &actorID)

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	logger.Infof("Loan %s approved for %s", loan.LoanNumber, amount.StringFixed(2))
	return loan, nil
}

// Reject refuses an undecided loan
func (w *ApprovalWorkflow) Reject(ctx context.Context, loanID, actorID int64, remarks string) (*models.Loan, error) {
	logger := w.log.WithFields(logrus.Fields{"loan_id": loanID, "actor_id": actorID})

	uow := w.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback() // No-op if already committed

	if _, err := requireAdmin(ctx, uow, actorID); err != nil {
		return nil, err
	}
	loan, err := lockUndecided(ctx, uow, loanID, logger)
	if err != nil {
		return nil, err
	}

	previous := loan.Status
	loan.Status = models.LoanStatusRejected
	loan.Remarks = remarks
	if err := uow.LoanRepository().Update(ctx, loan); err != nil {
		return nil, err
	}

	outbox := uow.Outbox()
	payload := loanPayload(loan)
	payload["remarks"] = remarks
	notify(outbox, models.NotificationLoanRejected, loan.BorrowerID, withSMS, payload)
	statusChanged(outbox, loan, previous, &actorID)

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	logger.Infof("Loan %s rejected", loan.LoanNumber)
	return loan, nil
}

// Cancel lets the borrower withdraw a loan nobody has decided on yet
func (w *ApprovalWorkflow) Cancel(ctx context.Context, loanID, borrowerID int64, reason string) (*models.Loan, error) {
	logger := w.log.WithFields(logrus.Fields{"loan_id": loanID, "borrower_id": borrowerID})

	uow := w.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback() // No-op if already committed

	loan, err := lockUndecided(ctx, uow, loanID, logger)
	if err != nil {
		return nil, err
	}
	if loan.BorrowerID != borrowerID {
		return nil, fmt.Errorf("%w: loan %d belongs to another borrower", ErrForbidden, loanID)
	}

	previous := loan.Status
	loan.Status = models.LoanStatusCancelled
	if reason != "" {
		loan.Remarks = reason
	}
	if err := uow.LoanRepository().Update(ctx, loan); err != nil {
		return nil, err
	}

	assignments, err := uow.GuarantorRepository().GetByLoan(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	outbox := uow.Outbox()
	for _, a := range assignments {
		if a.Status != models.GuarantorStatusDeclined {
			notify(outbox, models.NotificationLoanCancelled, a.GuarantorID, inApp, loanPayload(loan))
		}
	}
	notify(outbox, models.NotificationLoanCancelled, loan.BorrowerID, inApp, loanPayload(loan))
	statusChanged(outbox, loan, previous, &borrowerID)

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	logger.Infof("Loan %s cancelled by borrower", loan.LoanNumber)
	return loan, nil
}
