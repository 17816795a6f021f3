package service

import (
	"context"
	"testing"
	"time"

	"github.com/Dan9191/advance-service/internal/events"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestApprovalWorkflow(factory UnitOfWorkFactory) *ApprovalWorkflow {
	w := NewApprovalWorkflow(factory, testConfig(), testLogger())
	w.now = func() time.Time { return fixedNow }
	return w
}

func adminUser() *models.User {
	u := testUser(99)
	u.IsAdmin = true
	return u
}

func TestApprovalWorkflow_Approve_GuaranteedLoan(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	repos := newRepos()
	mockUoW.SetRepositories(repos)
	setupTransactionMocks(mockFactory, mockUoW, ctx)

	workflow := newTestApprovalWorkflow(mockFactory)
	loan := pendingLoan(500)
	loan.Status = models.LoanStatusProcessing

	repos.Users.On("GetByID", ctx, int64(99)).Return(adminUser(), nil)
	repos.Loans.On("GetForUpdate", ctx, int64(500)).Return(loan, nil)
	repos.LoanTypes.On("GetByID", ctx, int64(10)).Return(guaranteedLoanType(), nil)
	repos.Guarantors.On("GetByLoan", ctx, int64(500)).Return([]*models.GuarantorAssignment{
		assignment(1, 2, models.GuarantorStatusAccepted),
		assignment(2, 3, models.GuarantorStatusAccepted),
	}, nil)
	repos.Loans.On("Update", ctx, loan).Return(nil)
	repos.Users.On("GetByID", ctx, int64(1)).Return(testUser(1), nil)
	repos.Users.On("UpdateCreditLimit", ctx, int64(1), decimalEq("80000")).Return(nil)

	approved, err := workflow.Approve(ctx, ApproveRequest{LoanID: 500, ActorID: 99})

	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusApproved, approved.Status)
	assert.True(t, approved.ApprovedAmount.Decimal.Equal(dec("100000")))
	assert.Equal(t, int64(99), *approved.ApprovedBy)
	require.NotNil(t, approved.NextDueDate)
	assert.Equal(t, time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC), *approved.NextDueDate)
	assert.True(t, approved.Balance.Equal(dec("110000")))

	notes := mockUoW.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationLoanApproved, notes[0].Kind)
	assert.Equal(t, "2024-04-10", notes[0].Payload["next_due_date"])

	mockUoW.AssertExpectations(t)
	repos.AssertExpectations(t)
}

func TestApprovalWorkflow_Approve_ConsensusPending(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	repos := newRepos()
	mockUoW.SetRepositories(repos)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	workflow := newTestApprovalWorkflow(mockFactory)

	repos.Users.On("GetByID", ctx, int64(99)).Return(adminUser(), nil)
	repos.Loans.On("GetForUpdate", ctx, int64(500)).Return(pendingLoan(500), nil)
	repos.LoanTypes.On("GetByID", ctx, int64(10)).Return(guaranteedLoanType(), nil)
	repos.Guarantors.On("GetByLoan", ctx, int64(500)).Return([]*models.GuarantorAssignment{
		assignment(1, 2, models.GuarantorStatusAccepted),
		assignment(2, 3, models.GuarantorStatusPending),
	}, nil)

	_, err := workflow.Approve(ctx, ApproveRequest{LoanID: 500, ActorID: 99})

	assert.ErrorIs(t, err, ErrConsensusPending)
	repos.Loans.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	mockUoW.AssertNotCalled(t, "Commit")
}

func TestApprovalWorkflow_Approve_ReducedAmountRecomputesTerms(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	repos := newRepos()
	mockUoW.SetRepositories(repos)
	setupTransactionMocks(mockFactory, mockUoW, ctx)

	workflow := newTestApprovalWorkflow(mockFactory)
	loan := pendingLoan(600)
	loan.LoanTypeID = 20
	loan.Principal = dec("10000")
	loan.InterestRate = dec("5")
	loan.TenureMonths = 3
	loan.Status = models.LoanStatusProcessing

	repos.Users.On("GetByID", ctx, int64(99)).Return(adminUser(), nil)
	repos.Loans.On("GetForUpdate", ctx, int64(600)).Return(loan, nil)
	repos.LoanTypes.On("GetByID", ctx, int64(20)).Return(instantLoanType(), nil)
	repos.Loans.On("Update", ctx, loan).Return(nil)
	repos.Users.On("GetByID", ctx, int64(1)).Return(testUser(1), nil)
	repos.Users.On("UpdateCreditLimit", ctx, int64(1), decimalEq("174000")).Return(nil)

	amount := dec("6000")
	approved, err := workflow.Approve(ctx, ApproveRequest{LoanID: 600, ActorID: 99, Amount: &amount})

	require.NoError(t, err)
	assert.True(t, approved.TotalPayable.Equal(dec("6300")))
	assert.True(t, approved.Balance.Equal(dec("6300")))
	assert.True(t, approved.Installment.Equal(dec("2100")))
	repos.AssertExpectations(t)
}

func TestApprovalWorkflow_Approve_AmountAbovePrincipal(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	repos := newRepos()
	mockUoW.SetRepositories(repos)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	workflow := newTestApprovalWorkflow(mockFactory)
	loan := pendingLoan(600)
	loan.LoanTypeID = 20

	repos.Users.On("GetByID", ctx, int64(99)).Return(adminUser(), nil)
	repos.Loans.On("GetForUpdate", ctx, int64(600)).Return(loan, nil)
	repos.LoanTypes.On("GetByID", ctx, int64(20)).Return(instantLoanType(), nil)

	amount := dec("100000.01")
	_, err := workflow.Approve(ctx, ApproveRequest{LoanID: 600, ActorID: 99, Amount: &amount})

	assert.ErrorIs(t, err, ErrInvalidApplication)
	mockUoW.AssertNotCalled(t, "Commit")
}

func TestApprovalWorkflow_Approve_NotAdmin(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	repos := newRepos()
	mockUoW.SetRepositories(repos)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	workflow := newTestApprovalWorkflow(mockFactory)
	repos.Users.On("GetByID", ctx, int64(5)).Return(testUser(5), nil)

	_, err := workflow.Approve(ctx, ApproveRequest{LoanID: 500, ActorID: 5})

	assert.ErrorIs(t, err, ErrForbidden)
	repos.Loans.AssertNotCalled(t, "GetForUpdate", mock.Anything, mock.Anything)
}

func TestApprovalWorkflow_Reject_AlreadyDecided(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	repos := newRepos()
	mockUoW.SetRepositories(repos)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	workflow := newTestApprovalWorkflow(mockFactory)
	loan := pendingLoan(500)
	loan.Status = models.LoanStatusApproved

	repos.Users.On("GetByID", ctx, int64(99)).Return(adminUser(), nil)
	repos.Loans.On("GetForUpdate", ctx, int64(500)).Return(loan, nil)

	_, err := workflow.Reject(ctx, 500, 99, "late")

	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	repos.Loans.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestApprovalWorkflow_Reject(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	repos := newRepos()
	mockUoW.SetRepositories(repos)
	setupTransactionMocks(mockFactory, mockUoW, ctx)

	workflow := newTestApprovalWorkflow(mockFactory)
	loan := pendingLoan(500)

	repos.Users.On("GetByID", ctx, int64(99)).Return(adminUser(), nil)
	repos.Loans.On("GetForUpdate", ctx, int64(500)).Return(loan, nil)
	repos.Loans.On("Update", ctx, loan).Return(nil)

	rejected, err := workflow.Reject(ctx, 500, 99, "insufficient documents")

	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusRejected, rejected.Status)
	assert.Equal(t, "insufficient documents", rejected.Remarks)

	published := mockUoW.Published()
	require.Len(t, published, 2)
	change := published[1].(events.LoanStatusChangedEvent)
	require.NotNil(t, change.ActorID)
	assert.Equal(t, int64(99), *change.ActorID)
}

func TestApprovalWorkflow_Cancel(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	repos := newRepos()
	mockUoW.SetRepositories(repos)
	setupTransactionMocks(mockFactory, mockUoW, ctx)

	workflow := newTestApprovalWorkflow(mockFactory)
	loan := pendingLoan(500)

	repos.Loans.On("GetForUpdate", ctx, int64(500)).Return(loan, nil)
	repos.Loans.On("Update", ctx, loan).Return(nil)
	repos.Guarantors.On("GetByLoan", ctx, int64(500)).Return([]*models.GuarantorAssignment{
		assignment(1, 2, models.GuarantorStatusAccepted),
		assignment(2, 3, models.GuarantorStatusDeclined),
	}, nil)

	cancelled, err := workflow.Cancel(ctx, 500, 1, "no longer needed")

	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusCancelled, cancelled.Status)

	notes := mockUoW.Notifications()
	require.Len(t, notes, 2)
	assert.Equal(t, int64(2), notes[0].RecipientID)
	assert.Equal(t, int64(1), notes[1].RecipientID)
}

func TestApprovalWorkflow_Cancel_OtherBorrower(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	repos := newRepos()
	mockUoW.SetRepositories(repos)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	workflow := newTestApprovalWorkflow(mockFactory)
	repos.Loans.On("GetForUpdate", ctx, int64(500)).Return(pendingLoan(500), nil)

	_, err := workflow.Cancel(ctx, 500, 7, "")

	assert.ErrorIs(t, err, ErrForbidden)
	mockUoW.AssertNotCalled(t, "Commit")
}
