package repository

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/Dan9191/advance-service/internal/events"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/Dan9191/advance-service/internal/repository/testutil"
	"github.com/Dan9191/advance-service/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(ctx context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) statusChanges() []events.LoanStatusChangedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.LoanStatusChangedEvent
	for _, e := range r.events {
		if sc, ok := e.(events.LoanStatusChangedEvent); ok {
			out = append(out, sc)
		}
	}
	return out
}

func newRecordingBus() (*events.Bus, *eventRecorder) {
	bus := events.NewBus()
	rec := &eventRecorder{}
	bus.Subscribe(events.EventTypeNotification, rec.handle)
	bus.Subscribe(events.EventTypeLoanStatusChanged, rec.handle)
	return bus, rec
}

func TestUnitOfWork_EventsFollowTheTransaction(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	s := seedGuaranteedLoan(t, testDB.DB)
	bus, rec := newRecordingBus()
	factory := NewUnitOfWorkFactory(testDB.DB, bus)
	ctx := context.Background()

	t.Run("rollback discards writes and events", func(t *testing.T) {
		uow := factory.Create()
		require.NoError(t, uow.Begin(ctx))
		loan, err := uow.LoanRepository().GetForUpdate(ctx, s.loan.ID)
		require.NoError(t, err)
		loan.Status = models.LoanStatusCancelled
		require.NoError(t, uow.LoanRepository().Update(ctx, loan))
		uow.Outbox().Publish(events.LoanStatusChangedEvent{LoanID: loan.ID, NewStatus: loan.Status})
		require.NoError(t, uow.Rollback())

		stored, err := NewLoanRepository(testDB.DB).GetByID(ctx, s.loan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LoanStatusPending, stored.Status)
		assert.Empty(t, rec.statusChanges())
	})

	t.Run("commit persists then publishes", func(t *testing.T) {
		uow := factory.Create()
		require.NoError(t, uow.Begin(ctx))
		uow.Outbox().Publish(events.NotificationEvent{Kind: models.NotificationLoanApproved, RecipientID: s.borrower.ID})
		require.NoError(t, uow.Commit())

		rec.mu.Lock()
		defer rec.mu.Unlock()
		require.Len(t, rec.events, 1)
		assert.Equal(t, events.EventTypeNotification, rec.events[0].Type())
	})

	t.Run("repositories need Begin", func(t *testing.T) {
		uow := factory.Create()
		assert.Panics(t, func() { uow.LoanRepository() })
		assert.Error(t, uow.Commit())
		assert.NoError(t, uow.Rollback())
	})
}

func TestConsensus_ConcurrentAcceptancesMoveLoanOnce(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	s := seedGuaranteedLoan(t, testDB.DB)
	bus, rec := newRecordingBus()

	log := logrus.New()
	log.SetOutput(io.Discard)
	tracker := service.NewConsensusTracker(NewUnitOfWorkFactory(testDB.DB, bus), log)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		states []service.ConsensusState
	)
	for _, g := range s.guarantors {
		wg.Add(1)
		go func(guarantorID int64) {
			defer wg.Done()
			state, err := tracker.Respond(context.Background(), service.RespondRequest{
				LoanID:      s.loan.ID,
				GuarantorID: guarantorID,
				Accept:      true,
			})
			assert.NoError(t, err)
			mu.Lock()
			states = append(states, state)
			mu.Unlock()
		}(g.ID)
	}
	wg.Wait()

	assert.ElementsMatch(t, []service.ConsensusState{service.ConsensusAwaitingResponses, service.ConsensusAwaitingApproval}, states)

	loan, err := NewLoanRepository(testDB.DB).GetByID(context.Background(), s.loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusProcessing, loan.Status)

	changes := rec.statusChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, models.LoanStatusPending, changes[0].OldStatus)
	assert.Equal(t, models.LoanStatusProcessing, changes[0].NewStatus)

	// a repeated answer is refused without touching the loan
	_, err = tracker.Respond(context.Background(), service.RespondRequest{
		LoanID: s.loan.ID, GuarantorID: s.guarantors[0].ID, Accept: false,
	})
	assert.ErrorIs(t, err, service.ErrAlreadyProcessed)
}

func newConcurrentApplications(t *testing.T, db *testutil.TestDatabase, maxGuarantees int) *service.ApplicationService {
	t.Helper()
	cfg := &config.Config{
		Location:               time.UTC,
		LiabilityRounding:      config.RoundingEqual,
		MaxActiveGuarantees:    maxGuarantees,
		CreditLimitSalaryShare: decimal.RequireFromString("0.30"),
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return service.NewApplicationService(NewUnitOfWorkFactory(db.DB, events.NewBus()),
		service.NewEligibilityValidator(cfg), cfg, log)
}

// applyConcurrently submits every request at once and returns the errors in request order
func applyConcurrently(applications *service.ApplicationService, requests ...service.ApplyRequest) []error {
	var wg sync.WaitGroup
	errs := make([]error, len(requests))
	start := make(chan struct{})
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req service.ApplyRequest) {
			defer wg.Done()
			<-start
			_, errs[i] = applications.Apply(context.Background(), req)
		}(i, req)
	}
	close(start)
	wg.Wait()
	return errs
}

func succeeded(errs []error) (ok int, failed []error) {
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		failed = append(failed, err)
	}
	return ok, failed
}

func TestApply_ConcurrentApplicationsFromOneBorrower(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	borrower := testutil.CreateTestUser("njeri")
	require.NoError(t, NewUserRepository(testDB.DB).Create(ctx, borrower))
	lt := testutil.CreateTestLoanType("emergency", 0)
	require.NoError(t, NewLoanTypeRepository(testDB.DB).Create(ctx, lt))

	applications := newConcurrentApplications(t, testDB, 3)
	req := service.ApplyRequest{BorrowerID: borrower.ID, LoanTypeID: lt.ID, Principal: decimal.NewFromInt(10000), TenureMonths: 3}

	ok, failed := succeeded(applyConcurrently(applications, req, req))

	assert.Equal(t, 1, ok)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], service.ErrRateLimitExceeded)

	count, err := NewLoanRepository(testDB.DB).CountAppliedSince(ctx, borrower.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApply_ConcurrentApplicationsShareOneGuarantor(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()
	users := NewUserRepository(testDB.DB)

	first, second := testutil.CreateTestUser("mutua"), testutil.CreateTestUser("chebet")
	guarantor := testutil.CreateTestUser("kiprop")
	for _, u := range []*models.User{first, second, guarantor} {
		require.NoError(t, users.Create(ctx, u))
	}
	lt := testutil.CreateTestLoanType("development", 1)
	require.NoError(t, NewLoanTypeRepository(testDB.DB).Create(ctx, lt))

	applications := newConcurrentApplications(t, testDB, 1)
	request := func(borrowerID int64) service.ApplyRequest {
		return service.ApplyRequest{
			BorrowerID:   borrowerID,
			LoanTypeID:   lt.ID,
			Principal:    decimal.NewFromInt(20000),
			TenureMonths: 6,
			GuarantorIDs: []int64{guarantor.ID},
		}
	}

	ok, failed := succeeded(applyConcurrently(applications, request(first.ID), request(second.ID)))

	assert.Equal(t, 1, ok)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], service.ErrGuarantorOverCommitted)

	active, err := NewGuarantorRepository(testDB.DB).CountActiveGuarantees(ctx, guarantor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}
