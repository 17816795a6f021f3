package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/Dan9191/advance-service/internal/integrations/mpesa"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/Dan9191/advance-service/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// errReferenceApplied means the ledger already holds the provider reference
var errReferenceApplied = errors.New("reference already applied")

// ManualPaymentRequest is an administrator recording money received outside the gateway
type ManualPaymentRequest struct {
	LoanID    int64
	ActorID   int64
	Amount    decimal.Decimal
	Reference string
}

// Reconciler applies payment outcomes to loans exactly once
type Reconciler struct {
	uowFactory UnitOfWorkFactory
	hmacSecret string
	log        *logrus.Logger
	now        func() time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(uowFactory UnitOfWorkFactory, cfg *config.Config, log *logrus.Logger) *Reconciler {
	return &Reconciler{uowFactory: uowFactory, hmacSecret: cfg.HMACSecret, log: log, now: time.Now}
}

// applyToLoan reduces the locked loan's balance and writes the signed ledger entry. The loan must
// have been read with GetForUpdate in the same unit of work.
func (r *Reconciler) applyToLoan(ctx context.Context, uow UnitOfWork, loan *models.Loan, paymentID *int64,
	amount decimal.Decimal, reference, phone string, source models.LedgerSource) (*models.LedgerEntry, error) {
	ledger := uow.LedgerRepository()

	applied, err := ledger.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if applied != nil {
		if !utils.VerifyLedgerEntry(applied, r.hmacSecret) {
			r.log.WithFields(logrus.Fields{
				"ledger_entry_id": applied.ID,
				"loan_id":         applied.LoanID,
				"reference":       reference,
			}).Error("Ledger entry signature does not match its fields")
		}
		return nil, errReferenceApplied
	}

	previous := loan.Status
	entry := &models.LedgerEntry{
		LoanID:               loan.ID,
		PaymentTransactionID: paymentID,
		Reference:            reference,
		Source:               source,
		Amount:               amount,
		BalanceBefore:        loan.Balance,
		Phone:                phone,
	}
	if loan.IsRepayable() {
		loan.ApplyPayment(amount)
		if loan.Status == models.LoanStatusCompleted {
			loan.NextDueDate = nil
		}
	} else {
		r.log.WithFields(logrus.Fields{
			"loan_id":   loan.ID,
			"reference": reference,
			"status":    loan.Status,
		}).Warn("Payment received for a loan that is not repayable; recorded without changing the balance")
	}
	entry.BalanceAfter = loan.Balance
	entry.Signature = utils.SignLedgerEntry(entry, r.hmacSecret)

	if err := ledger.Create(ctx, entry); err != nil {
		return nil, err
	}
	if err := uow.LoanRepository().Update(ctx, loan); err != nil {
		return nil, err
	}
	if loan.Status != previous {
		statusChanged(uow.Outbox(), loan, previous, nil)
	}
	return entry, nil
}

func paymentReceived(outbox EventPublisher, loan *models.Loan, entry *models.LedgerEntry) {
	payload := loanPayload(loan)
	payload["amount"] = entry.Amount.StringFixed(2)
	payload["reference"] = entry.Reference
	notify(outbox, models.NotificationPaymentReceived, loan.BorrowerID, everyWay, payload)
}

// HandleSTKCallback finalizes the push payment the callback refers to. Unknown and already
// finalized payments are discarded, so gateway retries are harmless.
func (r *Reconciler) HandleSTKCallback(ctx context.Context, result mpesa.STKResult) error {
	logger := r.log.WithField("correlation_id", result.CheckoutRequestID)

	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback() // No-op if already committed

	payments := uow.PaymentTransactionRepository()
	payment, err := payments.GetByCorrelationIDForUpdate(ctx, result.CheckoutRequestID)
	if err != nil {
		return err
	}
	if payment == nil {
		logger.Warn("Discarding callback for unknown payment")
		return nil
	}
	if payment.IsTerminal() {
		logger.Debugf("Discarding duplicate callback for %s payment", payment.Status)
		return nil
	}

	now := r.now()
	if !result.Succeeded() {
		payment.MarkFailed(result.ResultDesc, now)
		if err := payments.Update(ctx, payment); err != nil {
			return err
		}
		loan, err := uow.LoanRepository().GetByID(ctx, payment.LoanID)
		if err != nil {
			return err
		}
		if loan != nil {
			payload := loanPayload(loan)
			payload["amount"] = payment.Amount.StringFixed(2)
			payload["reason"] = result.ResultDesc
			notify(uow.Outbox(), models.NotificationPaymentFailed, loan.BorrowerID, inApp, payload)
		}
		if err := uow.Commit(); err != nil {
			return err
		}
		logger.WithField("result_code", result.ResultCode).Infof("Push payment failed: %s", result.ResultDesc)
		return nil
	}

	details, err := result.Details()
	if err != nil {
		logger.Errorf("Successful callback without usable metadata: %v", err)
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	loan, err := uow.LoanRepository().GetForUpdate(ctx, payment.LoanID)
	if err != nil {
		return err
	}
	if loan == nil {
		logger.WithField("loan_id", payment.LoanID).Error("Payment references a missing loan")
		return fmt.Errorf("%w: loan %d missing", ErrIntegrity, payment.LoanID)
	}

	if !details.Amount.Equal(payment.Amount) {
		logger.WithFields(logrus.Fields{
			"requested": payment.Amount.StringFixed(2),
			"paid":      details.Amount.StringFixed(2),
		}).Warn("Push payment amount differs from the requested amount")
	}

	phone := details.Phone
	if phone == "" {
		phone = payment.Phone
	}
	entry, err := r.applyToLoan(ctx, uow, loan, &payment.ID, details.Amount, details.ReceiptNumber, phone, models.LedgerSourcePush)
	if errors.Is(err, errReferenceApplied) {
		logger.WithField("receipt", details.ReceiptNumber).Warn("Receipt already applied; finalizing payment without moving money")
	} else if err != nil {
		return err
	}

	payment.MarkSucceeded(details.ReceiptNumber, now)
	if err := payments.Update(ctx, payment); err != nil {
		return err
	}
	if entry != nil {
		paymentReceived(uow.Outbox(), loan, entry)
	}

	if err := uow.Commit(); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"loan_id": loan.ID,
		"receipt": details.ReceiptNumber,
		"amount":  details.Amount.StringFixed(2),
		"balance": loan.Balance.StringFixed(2),
	}).Info("Push payment applied")
	return nil
}

// ApplyFailure finalizes a still pending payment as failed, for outcomes learned by querying the gateway
func (r *Reconciler) ApplyFailure(ctx context.Context, correlationID, reason string) error {
	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback() // No-op if already committed

	payments := uow.PaymentTransactionRepository()
	payment, err := payments.GetByCorrelationIDForUpdate(ctx, correlationID)
	if err != nil {
		return err
	}
	if payment == nil {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, correlationID)
	}
	if payment.IsTerminal() {
		return nil
	}

	payment.MarkFailed(reason, r.now())
	if err := payments.Update(ctx, payment); err != nil {
		return err
	}
	loan, err := uow.LoanRepository().GetByID(ctx, payment.LoanID)
	if err != nil {
		return err
	}
	if loan != nil {
		payload := loanPayload(loan)
		payload["amount"] = payment.Amount.StringFixed(2)
		payload["reason"] = reason
		notify(uow.Outbox(), models.NotificationPaymentFailed, loan.BorrowerID, inApp, payload)
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	r.log.WithField("correlation_id", correlationID).Infof("Payment marked failed: %s", reason)
	return nil
}

// resolveBillReference finds the loan a merchant payment is meant for: a loan number, or a borrower
// id standing for that borrower's active loan.
func resolveBillReference(ctx context.Context, uow UnitOfWork, billRef string) (*models.Loan, error) {
	ref := strings.TrimSpace(billRef)
	loans := uow.LoanRepository()

	loan, err := loans.GetByNumber(ctx, strings.ToUpper(ref))
	if err != nil || loan != nil {
		return loan, err
	}
	borrowerID, convErr := strconv.ParseInt(ref, 10, 64)
	if convErr != nil {
		return nil, nil
	}
	return loans.GetRepayableByBorrower(ctx, borrowerID)
}

// checkMerchantPayment returns the validation result code for a payment against a loan
func checkMerchantPayment(loan *models.Loan, amount decimal.Decimal) (string, string) {
	if loan == nil {
		return mpesa.ValidationInvalidAccount, "Unknown account"
	}
	if !loan.IsRepayable() {
		return mpesa.ValidationInvalidAccount, "Loan is not open for repayment"
	}
	if !amount.IsPositive() || amount.GreaterThan(loan.Balance) {
		return mpesa.ValidationInvalidAmount, "Amount exceeds outstanding balance"
	}
	return mpesa.ValidationAccepted, "Accepted"
}

// ValidateMerchantPayment answers the gateway's validation request before it takes the payer's money
func (r *Reconciler) ValidateMerchantPayment(ctx context.Context, p mpesa.C2BPayment) mpesa.ValidationResponse {
	logger := r.log.WithFields(logrus.Fields{"trans_id": p.TransID, "bill_ref": p.BillRefNumber})

	amount, err := p.Amount()
	if err != nil {
		logger.Warnf("Rejecting merchant payment: %v", err)
		return mpesa.ValidationResponse{ResultCode: mpesa.ValidationInvalidAmount, ResultDesc: "Invalid amount"}
	}

	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		logger.Errorf("Validation unavailable: %v", err)
		return mpesa.ValidationResponse{ResultCode: mpesa.ValidationOtherError, ResultDesc: "Temporarily unavailable"}
	}
	defer uow.Rollback()

	loan, err := resolveBillReference(ctx, uow, p.BillRefNumber)
	if err != nil {
		logger.Errorf("Validation lookup failed: %v", err)
		return mpesa.ValidationResponse{ResultCode: mpesa.ValidationOtherError, ResultDesc: "Temporarily unavailable"}
	}
	code, desc := checkMerchantPayment(loan, amount)
	if code != mpesa.ValidationAccepted {
		logger.Infof("Rejecting merchant payment: %s", desc)
	}
	return mpesa.ValidationResponse{ResultCode: code, ResultDesc: desc}
}

// ConfirmMerchantPayment applies a merchant-initiated payment. The provider transaction id keys
// both the payment record and the ledger entry, so a repeated confirmation is a no-op.
func (r *Reconciler) ConfirmMerchantPayment(ctx context.Context, p mpesa.C2BPayment) error {
	logger := r.log.WithFields(logrus.Fields{"trans_id": p.TransID, "bill_ref": p.BillRefNumber})

	amount, err := p.Amount()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}

	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback() // No-op if already committed

	payments := uow.PaymentTransactionRepository()
	if recorded, err := payments.GetByCorrelationID(ctx, p.TransID); err != nil {
		return err
	} else if recorded != nil {
		logger.Debug("Discarding duplicate merchant confirmation")
		return nil
	}

	target, err := resolveBillReference(ctx, uow, p.BillRefNumber)
	if err != nil {
		return err
	}
	if target == nil {
		logger.Error("Confirmed merchant payment matches no loan")
		return fmt.Errorf("%w: unknown bill reference %q", ErrInvalidPayment, p.BillRefNumber)
	}

	// Concurrent confirmations of the same transaction queue on the loan lock; the second
	// duplicate check runs once the first one has committed.
	loan, err := uow.LoanRepository().GetForUpdate(ctx, target.ID)
	if err != nil {
		return err
	}
	if loan == nil {
		return fmt.Errorf("%w: loan %d missing", ErrIntegrity, target.ID)
	}
	existing, err := payments.GetByCorrelationID(ctx, p.TransID)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Debug("Discarding duplicate merchant confirmation")
		return nil
	}

	// The gateway has already taken the money, so the payment is recorded even when the loan
	// settled or shrank since validation. applyToLoan clamps the balance at zero.
	if code, desc := checkMerchantPayment(loan, amount); code != mpesa.ValidationAccepted {
		logger.WithField("loan_id", loan.ID).Warnf("Recording merchant payment that would now fail validation: %s", desc)
	}

	now := r.now()
	transID := p.TransID
	payment := &models.PaymentTransaction{
		LoanID:           loan.ID,
		Mode:             models.PaymentModeMerchant,
		CorrelationID:    &transID,
		Status:           models.PaymentStatusSuccess,
		Amount:           amount,
		Phone:            p.MSISDN,
		AccountReference: p.BillRefNumber,
		ReceiptNumber:    &transID,
		CompletedAt:      &now,
	}
	if err := payments.Create(ctx, payment); err != nil {
		return err
	}

	entry, err := r.applyToLoan(ctx, uow, loan, &payment.ID, amount, p.TransID, p.MSISDN, models.LedgerSourceMerchant)
	if errors.Is(err, errReferenceApplied) {
		logger.Debug("Merchant payment already in the ledger")
		return nil
	}
	if err != nil {
		return err
	}
	paymentReceived(uow.Outbox(), loan, entry)

	if err := uow.Commit(); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"loan_id": loan.ID,
		"amount":  amount.StringFixed(2),
		"balance": loan.Balance.StringFixed(2),
	}).Info("Merchant payment applied")
	return nil
}

// HandleDisbursementResult finalizes a payout. Success stamps the loan as disbursed; the balance is
// never touched.
func (r *Reconciler) HandleDisbursementResult(ctx context.Context, result mpesa.B2CResult) error {
	logger := r.log.WithField("correlation_id", result.OriginatorConversationID)

	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback() // No-op if already committed

	payments := uow.PaymentTransactionRepository()
	payment, err := payments.GetByCorrelationIDForUpdate(ctx, result.OriginatorConversationID)
	if err != nil {
		return err
	}
	if payment == nil {
		logger.Warn("Discarding result for unknown disbursement")
		return nil
	}
	if payment.IsTerminal() {
		logger.Debugf("Discarding duplicate result for %s disbursement", payment.Status)
		return nil
	}

	now := r.now()
	if !result.Succeeded() {
		payment.MarkFailed(result.ResultDesc, now)
		if err := payments.Update(ctx, payment); err != nil {
			return err
		}
		if err := uow.Commit(); err != nil {
			return err
		}
		logger.WithField("result_code", result.ResultCode).Warnf("Disbursement failed: %s", result.ResultDesc)
		return nil
	}

	loan, err := uow.LoanRepository().GetForUpdate(ctx, payment.LoanID)
	if err != nil {
		return err
	}
	if loan == nil {
		logger.WithField("loan_id", payment.LoanID).Error("Disbursement references a missing loan")
		return fmt.Errorf("%w: loan %d missing", ErrIntegrity, payment.LoanID)
	}

	if raw, ok := result.Parameter("TransactionAmount"); ok {
		paid, err := decimal.NewFromString(raw)
		if err != nil || !paid.Equal(payment.Amount) {
			logger.WithFields(logrus.Fields{
				"requested": payment.Amount.StringFixed(2),
				"paid":      raw,
			}).Warn("Disbursed amount differs from the requested amount")
		}
	}

	payment.MarkSucceeded(result.TransactionID, now)
	if err := payments.Update(ctx, payment); err != nil {
		return err
	}
	loan.DisbursedAt = &now
	if err := uow.LoanRepository().Update(ctx, loan); err != nil {
		return err
	}
	payload := loanPayload(loan)
	payload["amount"] = payment.Amount.StringFixed(2)
	payload["transaction_id"] = result.TransactionID
	notify(uow.Outbox(), models.NotificationDisbursementCompleted, loan.BorrowerID, withSMS, payload)

	if err := uow.Commit(); err != nil {
		return err
	}

	logger.WithField("loan_id", loan.ID).Info("Disbursement completed")
	return nil
}

// ManualPayment records money an administrator received outside the gateway
func (r *Reconciler) ManualPayment(ctx context.Context, req ManualPaymentRequest) (*models.LedgerEntry, error) {
	logger := r.log.WithFields(logrus.Fields{"loan_id": req.LoanID, "actor_id": req.ActorID, "reference": req.Reference})

	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidPayment)
	}

	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback() // No-op if already committed

	if _, err := requireAdmin(ctx, uow, req.ActorID); err != nil {
		return nil, err
	}
	loan, err := uow.LoanRepository().GetForUpdate(ctx, req.LoanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, req.LoanID)
	}
	if !loan.IsRepayable() {
		return nil, fmt.Errorf("%w: loan is %s with balance %s", ErrInvalidPayment, loan.Status, loan.Balance.StringFixed(2))
	}

	before := loan.Balance
	entry, err := r.applyToLoan(ctx, uow, loan, nil, req.Amount, req.Reference, "", models.LedgerSourceManual)
	if errors.Is(err, errReferenceApplied) {
		logger.Warn("Manual payment reference already applied")
		return nil, fmt.Errorf("%w: reference %s", ErrAlreadyProcessed, req.Reference)
	}
	if err != nil {
		return nil, err
	}

	deduction := &models.Deduction{
		LoanID:       loan.ID,
		Amount:       before.Sub(loan.Balance),
		Type:         models.DeductionTypeManual,
		BalanceAfter: loan.Balance,
	}
	if err := uow.DeductionRepository().Create(ctx, deduction); err != nil {
		return nil, err
	}
	paymentReceived(uow.Outbox(), loan, entry)

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	logger.WithField("balance", loan.Balance.StringFixed(2)).Info("Manual payment recorded")
	return entry, nil
}
