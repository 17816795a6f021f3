package handler

import (
	"context"

	"github.com/Dan9191/advance-service/internal/integrations/mpesa"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/Dan9191/advance-service/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockApplier struct{ mock.Mock }

func (m *MockApplier) Apply(ctx context.Context, req service.ApplyRequest) (*models.Loan, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

type MockResponder struct{ mock.Mock }

func (m *MockResponder) Respond(ctx context.Context, req service.RespondRequest) (service.ConsensusState, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.ConsensusState), args.Error(1)
}

type MockApprover struct{ mock.Mock }

func (m *MockApprover) Approve(ctx context.Context, req service.ApproveRequest) (*models.Loan, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockApprover) Reject(ctx context.Context, loanID, actorID int64, remarks string) (*models.Loan, error) {
	args := m.Called(ctx, loanID, actorID, remarks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockApprover) Cancel(ctx context.Context, loanID, borrowerID int64, reason string) (*models.Loan, error) {
	args := m.Called(ctx, loanID, borrowerID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

type MockPayments struct{ mock.Mock }

func (m *MockPayments) InitiatePush(ctx context.Context, req service.PushPaymentRequest) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func (m *MockPayments) QueryStatus(ctx context.Context, correlationID string) (*service.PaymentStatus, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PaymentStatus), args.Error(1)
}

func (m *MockPayments) Disburse(ctx context.Context, loanID, actorID int64) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, loanID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

type MockReconciler struct{ mock.Mock }

func (m *MockReconciler) HandleSTKCallback(ctx context.Context, result mpesa.STKResult) error {
	return m.Called(ctx, result).Error(0)
}

func (m *MockReconciler) ValidateMerchantPayment(ctx context.Context, p mpesa.C2BPayment) mpesa.ValidationResponse {
	return m.Called(ctx, p).Get(0).(mpesa.ValidationResponse)
}

func (m *MockReconciler) ConfirmMerchantPayment(ctx context.Context, p mpesa.C2BPayment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockReconciler) HandleDisbursementResult(ctx context.Context, result mpesa.B2CResult) error {
	return m.Called(ctx, result).Error(0)
}

func (m *MockReconciler) ManualPayment(ctx context.Context, req service.ManualPaymentRequest) (*models.LedgerEntry, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

type MockAuthenticator struct{ mock.Mock }

func (m *MockAuthenticator) Login(ctx context.Context, email, password string) (string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Error(1)
}

type MockDeductionRunner struct{ mock.Mock }

func (m *MockDeductionRunner) RunOnce(ctx context.Context) (service.DeductionReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.DeductionReport), args.Error(1)
}

type MockNotificationLister struct{ mock.Mock }

func (m *MockNotificationLister) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*models.Notification, error) {
	args := m.Called(ctx, recipientID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}
