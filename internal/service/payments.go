package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/advance-service/internal/integrations/mpesa"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PushPaymentRequest asks a borrower's phone to authorise a repayment
type PushPaymentRequest struct {
	LoanID int64
	Phone  string
	Amount decimal.Decimal
}

// PaymentStatus combines the stored transaction with the gateway's current answer
type PaymentStatus struct {
	Transaction *models.PaymentTransaction `json:"transaction"`
	ResultCode  string                     `json:"result_code,omitempty"`
	ResultDesc  string                     `json:"result_desc,omitempty"`
}

// PaymentService drives outbound gateway operations. A transaction row is written before every
// call and no loan lock is held while the gateway is contacted.
type PaymentService struct {
	uowFactory UnitOfWorkFactory
	gateway    PaymentGateway
	reconciler *Reconciler
	log        *logrus.Logger
	now        func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(uowFactory UnitOfWorkFactory, gateway PaymentGateway, reconciler *Reconciler, log *logrus.Logger) *PaymentService {
	return &PaymentService{
		uowFactory: uowFactory,
		gateway:    gateway,
		reconciler: reconciler,
		log:        log,
		now:        time.Now,
	}
}

// InitiatePush records a pending push payment and sends it to the gateway. A synchronous rejection
// marks the transaction failed straight away; otherwise the callback settles it later.
func (s *PaymentService) InitiatePush(ctx context.Context, req PushPaymentRequest) (*models.PaymentTransaction, error) {
	logger := s.log.WithField("loan_id", req.LoanID)

	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(0)) {
		return nil, fmt.Errorf("%w: push amounts must be whole and positive", ErrInvalidPayment)
	}
	if req.Phone == "" {
		return nil, fmt.Errorf("%w: phone is required", ErrInvalidPayment)
	}

	payment, loan, err := s.createPending(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.STKPush(ctx, mpesa.STKPushRequest{
		Phone:            req.Phone,
		Amount:           req.Amount,
		AccountReference: loan.LoanNumber,
		Description:      "Loan repayment",
	})
	if err != nil {
		logger.Errorf("Push payment request failed: %v", err)
		if ferr := s.finalize(ctx, payment, "", err.Error()); ferr != nil {
			logger.Errorf("Failed to mark payment %d failed: %v", payment.ID, ferr)
		}
		return payment, fmt.Errorf("push payment failed: %w", err)
	}
	if !resp.Accepted() {
		logger.Warnf("Gateway rejected push payment: %s", resp.ResponseDescription)
		if ferr := s.finalize(ctx, payment, "", resp.ResponseDescription); ferr != nil {
			logger.Errorf("Failed to mark payment %d failed: %v", payment.ID, ferr)
		}
		return payment, fmt.Errorf("%w: gateway rejected request: %s", ErrInvalidPayment, resp.ResponseDescription)
	}

	if err := s.finalize(ctx, payment, resp.CheckoutRequestID, ""); err != nil {
		return payment, err
	}
	logger.WithField("correlation_id", resp.CheckoutRequestID).Info("Push payment sent")
	return payment, nil
}

func (s *PaymentService) createPending(ctx context.Context, req PushPaymentRequest) (*models.PaymentTransaction, *models.Loan, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, nil, err
	}
	defer uow.Rollback() // No-op if already committed

	loan, err := uow.LoanRepository().GetByID(ctx, req.LoanID)
	if err != nil {
		return nil, nil, err
	}
	if loan == nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrLoanNotFound, req.LoanID)
	}
	if !loan.IsRepayable() {
		return nil, nil, fmt.Errorf("%w: loan is %s", ErrInvalidPayment, loan.Status)
	}
	if req.Amount.GreaterThan(loan.Balance) {
		return nil, nil, fmt.Errorf("%w: amount exceeds balance %s", ErrInvalidPayment, loan.Balance.StringFixed(2))
	}

	payment := &models.PaymentTransaction{
		LoanID:           loan.ID,
		Mode:             models.PaymentModePush,
		Status:           models.PaymentStatusPending,
		Amount:           req.Amount,
		Phone:            req.Phone,
		AccountReference: loan.LoanNumber,
	}
	if err := uow.PaymentTransactionRepository().Create(ctx, payment); err != nil {
		return nil, nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, nil, err
	}
	return payment, loan, nil
}

// finalize stores the gateway's synchronous answer: a correlation id, or a failure reason
func (s *PaymentService) finalize(ctx context.Context, payment *models.PaymentTransaction, correlationID, failure string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback() // No-op if already committed

	if failure != "" {
		payment.MarkFailed(failure, s.now())
	} else {
		payment.CorrelationID = &correlationID
	}
	if err := uow.PaymentTransactionRepository().Update(ctx, payment); err != nil {
		return err
	}
	return uow.Commit()
}

// QueryStatus asks the gateway about a push payment. A definitive failure finalizes a payment
// that is still pending; success is left to the callback, which carries the receipt.
func (s *PaymentService) QueryStatus(ctx context.Context, correlationID string) (*PaymentStatus, error) {
	payment, err := s.lookup(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if payment.Mode != models.PaymentModePush {
		return &PaymentStatus{Transaction: payment}, nil
	}

	resp, err := s.gateway.QuerySTKStatus(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("status query failed: %w", err)
	}
	status := &PaymentStatus{Transaction: payment, ResultCode: resp.ResultCode, ResultDesc: resp.ResultDesc}

	if payment.Status == models.PaymentStatusPending && resp.Completed() && !resp.Succeeded() {
		if err := s.reconciler.ApplyFailure(ctx, correlationID, resp.ResultDesc); err != nil {
			return nil, err
		}
		if status.Transaction, err = s.lookup(ctx, correlationID); err != nil {
			return nil, err
		}
	}
	return status, nil
}

func (s *PaymentService) lookup(ctx context.Context, correlationID string) (*models.PaymentTransaction, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	payment, err := uow.PaymentTransactionRepository().GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, correlationID)
	}
	return payment, nil
}

// Disburse pays the approved amount out to the borrower's phone
func (s *PaymentService) Disburse(ctx context.Context, loanID, actorID int64) (*models.PaymentTransaction, error) {
	logger := s.log.WithFields(logrus.Fields{"loan_id": loanID, "actor_id": actorID})

	payment, phone, err := s.createDisbursement(ctx, loanID, actorID)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.B2CPayment(ctx, mpesa.B2CRequest{
		OriginatorConversationID: *payment.CorrelationID,
		Phone:                    phone,
		CommandID:                mpesa.CommandBusinessPayment,
		Amount:                   payment.Amount,
		Remarks:                  "Loan disbursement " + payment.AccountReference,
		Occasion:                 payment.AccountReference,
	})
	if err == nil && !resp.Accepted() {
		err = fmt.Errorf("%w: gateway rejected payout: %s", ErrInvalidPayment, resp.ResponseDescription)
	}
	if err != nil {
		logger.Errorf("Disbursement request failed: %v", err)
		if ferr := s.finalize(ctx, payment, "", err.Error()); ferr != nil {
			logger.Errorf("Failed to mark disbursement %d failed: %v", payment.ID, ferr)
		}
		return payment, fmt.Errorf("disbursement failed: %w", err)
	}

	logger.WithField("correlation_id", *payment.CorrelationID).Info("Disbursement sent")
	return payment, nil
}

func (s *PaymentService) createDisbursement(ctx context.Context, loanID, actorID int64) (*models.PaymentTransaction, string, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, "", err
	}
	defer uow.Rollback() // No-op if already committed

	if _, err := requireAdmin(ctx, uow, actorID); err != nil {
		return nil, "", err
	}
	loan, err := uow.LoanRepository().GetForUpdate(ctx, loanID)
	if err != nil {
		return nil, "", err
	}
	if loan == nil {
		return nil, "", fmt.Errorf("%w: %d", ErrLoanNotFound, loanID)
	}
	if loan.Status != models.LoanStatusApproved {
		return nil, "", fmt.Errorf("%w: loan is %s", ErrInvalidPayment, loan.Status)
	}
	if loan.DisbursedAt != nil {
		return nil, "", fmt.Errorf("%w: loan already disbursed", ErrAlreadyProcessed)
	}
	inFlight, err := uow.PaymentTransactionRepository().GetPendingByLoan(ctx, loan.ID, models.PaymentModeDisbursement)
	if err != nil {
		return nil, "", err
	}
	if inFlight != nil {
		return nil, "", fmt.Errorf("%w: disbursement %d still pending", ErrAlreadyProcessed, inFlight.ID)
	}
	borrower, err := uow.UserRepository().GetByID(ctx, loan.BorrowerID)
	if err != nil {
		return nil, "", err
	}
	if borrower == nil {
		return nil, "", fmt.Errorf("%w: borrower %d missing", ErrIntegrity, loan.BorrowerID)
	}

	amount := loan.Principal
	if loan.ApprovedAmount.Valid {
		amount = loan.ApprovedAmount.Decimal
	}
	correlationID := uuid.NewString()
	payment := &models.PaymentTransaction{
		LoanID:           loan.ID,
		Mode:             models.PaymentModeDisbursement,
		CorrelationID:    &correlationID,
		Status:           models.PaymentStatusPending,
		Amount:           amount,
		Phone:            borrower.Phone,
		AccountReference: loan.LoanNumber,
	}
	if err := uow.PaymentTransactionRepository().Create(ctx, payment); err != nil {
		return nil, "", err
	}
	if err := uow.Commit(); err != nil {
		return nil, "", err
	}
	return payment, borrower.Phone, nil
}
