package service

import (
	"context"
	"time"

	"github.com/Dan9191/advance-service/internal/events"
	"github.com/Dan9191/advance-service/internal/integrations/mpesa"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetForUpdate(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) ListAdmins(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockUserRepository) UpdateCreditLimit(ctx context.Context, userID int64, limit decimal.Decimal) error {
	args := m.Called(ctx, userID, limit)
	return args.Error(0)
}

// MockLoanTypeRepository is a mock implementation of LoanTypeRepository
type MockLoanTypeRepository struct {
	mock.Mock
}

func (m *MockLoanTypeRepository) GetByID(ctx context.Context, id int64) (*models.LoanType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LoanType), args.Error(1)
}

// MockLoanRepository is a mock implementation of LoanRepository
type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *models.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id int64) (*models.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetByNumber(ctx context.Context, loanNumber string) (*models.Loan, error) {
	args := m.Called(ctx, loanNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetForUpdate(ctx context.Context, id int64) (*models.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetRepayableByBorrower(ctx context.Context, borrowerID int64) (*models.Loan, error) {
	args := m.Called(ctx, borrowerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) Update(ctx context.Context, loan *models.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) CountAppliedSince(ctx context.Context, borrowerID int64, since time.Time) (int, error) {
	args := m.Called(ctx, borrowerID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockLoanRepository) SumOutstanding(ctx context.Context, borrowerID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, borrowerID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLoanRepository) RepaymentHistory(ctx context.Context, borrowerID int64) (int, int, error) {
	args := m.Called(ctx, borrowerID)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockLoanRepository) ListDueIDs(ctx context.Context, day time.Time) ([]int64, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

// MockGuarantorRepository is a mock implementation of GuarantorRepository
type MockGuarantorRepository struct {
	mock.Mock
}

func (m *MockGuarantorRepository) Create(ctx context.Context, a *models.GuarantorAssignment) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockGuarantorRepository) GetByLoan(ctx context.Context, loanID int64) ([]*models.GuarantorAssignment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GuarantorAssignment), args.Error(1)
}

func (m *MockGuarantorRepository) GetByLoanAndGuarantor(ctx context.Context, loanID, guarantorID int64) (*models.GuarantorAssignment, error) {
	args := m.Called(ctx, loanID, guarantorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuarantorAssignment), args.Error(1)
}

func (m *MockGuarantorRepository) UpdateResponse(ctx context.Context, a *models.GuarantorAssignment) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockGuarantorRepository) CountActiveGuarantees(ctx context.Context, guarantorID int64) (int, error) {
	args := m.Called(ctx, guarantorID)
	return args.Int(0), args.Error(1)
}

func (m *MockGuarantorRepository) CountActiveGuaranteesForType(ctx context.Context, guarantorID, loanTypeID int64) (int, error) {
	args := m.Called(ctx, guarantorID, loanTypeID)
	return args.Int(0), args.Error(1)
}

// MockPaymentTransactionRepository is a mock implementation of PaymentTransactionRepository
type MockPaymentTransactionRepository struct {
	mock.Mock
}

func (m *MockPaymentTransactionRepository) Create(ctx context.Context, p *models.PaymentTransaction) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPaymentTransactionRepository) GetByID(ctx context.Context, id int64) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func (m *MockPaymentTransactionRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func (m *MockPaymentTransactionRepository) GetByCorrelationIDForUpdate(ctx context.Context, correlationID string) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func (m *MockPaymentTransactionRepository) GetPendingByLoan(ctx context.Context, loanID int64, mode models.PaymentMode) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, loanID, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func (m *MockPaymentTransactionRepository) Update(ctx context.Context, p *models.PaymentTransaction) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

// MockDeductionRepository is a mock implementation of DeductionRepository
type MockDeductionRepository struct {
	mock.Mock
}

func (m *MockDeductionRepository) Create(ctx context.Context, d *models.Deduction) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Create(ctx context.Context, e *models.LedgerEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockLedgerRepository) GetByReference(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Events published to its outbox are kept
// so tests can assert what would be delivered after commit.
type MockUnitOfWork struct {
	mock.Mock
	userRepo      UserRepository
	loanTypeRepo  LoanTypeRepository
	loanRepo      LoanRepository
	guarantorRepo GuarantorRepository
	paymentRepo   PaymentTransactionRepository
	deductionRepo DeductionRepository
	ledgerRepo    LedgerRepository
	outbox        *events.TransactionalBus
}

// Repos bundles the repositories a test wires into a MockUnitOfWork; nil fields stay unset
type Repos struct {
	Users      *MockUserRepository
	LoanTypes  *MockLoanTypeRepository
	Loans      *MockLoanRepository
	Guarantors *MockGuarantorRepository
	Payments   *MockPaymentTransactionRepository
	Deductions *MockDeductionRepository
	Ledger     *MockLedgerRepository
}

func newRepos() Repos {
	return Repos{
		Users:      new(MockUserRepository),
		LoanTypes:  new(MockLoanTypeRepository),
		Loans:      new(MockLoanRepository),
		Guarantors: new(MockGuarantorRepository),
		Payments:   new(MockPaymentTransactionRepository),
		Deductions: new(MockDeductionRepository),
		Ledger:     new(MockLedgerRepository),
	}
}

// AssertExpectations checks every repository mock
func (r Repos) AssertExpectations(t mock.TestingT) {
	r.Users.AssertExpectations(t)
	r.LoanTypes.AssertExpectations(t)
	r.Loans.AssertExpectations(t)
	r.Guarantors.AssertExpectations(t)
	r.Payments.AssertExpectations(t)
	r.Deductions.AssertExpectations(t)
	r.Ledger.AssertExpectations(t)
}

func (m *MockUnitOfWork) SetRepositories(r Repos) {
	m.userRepo = r.Users
	m.loanTypeRepo = r.LoanTypes
	m.loanRepo = r.Loans
	m.guarantorRepo = r.Guarantors
	m.paymentRepo = r.Payments
	m.deductionRepo = r.Deductions
	m.ledgerRepo = r.Ledger
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository { return m.userRepo }

func (m *MockUnitOfWork) LoanTypeRepository() LoanTypeRepository { return m.loanTypeRepo }

func (m *MockUnitOfWork) LoanRepository() LoanRepository { return m.loanRepo }

func (m *MockUnitOfWork) GuarantorRepository() GuarantorRepository { return m.guarantorRepo }

func (m *MockUnitOfWork) PaymentTransactionRepository() PaymentTransactionRepository {
	return m.paymentRepo
}

func (m *MockUnitOfWork) DeductionRepository() DeductionRepository { return m.deductionRepo }

func (m *MockUnitOfWork) LedgerRepository() LedgerRepository { return m.ledgerRepo }

func (m *MockUnitOfWork) Outbox() EventPublisher {
	if m.outbox == nil {
		m.outbox = events.NewTransactionalBus(nil)
	}
	return m.outbox
}

// Published returns every event published through the outbox, committed or not
func (m *MockUnitOfWork) Published() []events.Event {
	if m.outbox == nil {
		return nil
	}
	return m.outbox.Pending()
}

// Notifications returns the notification events published so far
func (m *MockUnitOfWork) Notifications() []events.NotificationEvent {
	var out []events.NotificationEvent
	for _, e := range m.Published() {
		if n, ok := e.(events.NotificationEvent); ok {
			out = append(out, n)
		}
	}
	return out
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockPaymentGateway is a mock implementation of PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.STKPushResponse), args.Error(1)
}

func (m *MockPaymentGateway) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResponse, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.STKQueryResponse), args.Error(1)
}

func (m *MockPaymentGateway) B2CPayment(ctx context.Context, req mpesa.B2CRequest) (*mpesa.B2CResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.B2CResponse), args.Error(1)
}

// setupTransactionMocks wires a unit of work that begins, commits and rolls back cleanly
func setupTransactionMocks(mockFactory *MockUnitOfWorkFactory, mockUoW *MockUnitOfWork, ctx context.Context) {
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)
}

// decimalEq matches a decimal argument by value rather than representation
func decimalEq(want string) interface{} {
	expected := decimal.RequireFromString(want)
	return mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(expected)
	})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
