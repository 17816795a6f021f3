package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ApplyRequest is a borrower's loan application
type ApplyRequest struct {
	BorrowerID   int64
	LoanTypeID   int64
	Principal    decimal.Decimal
	TenureMonths int
	GuarantorIDs []int64
}

// ApplicationService validates and records loan applications
type ApplicationService struct {
	uowFactory UnitOfWorkFactory
	validator  *EligibilityValidator
	rounding   string
	log        *logrus.Logger
	now        func() time.Time
}

// NewApplicationService creates a new application service
func NewApplicationService(uowFactory UnitOfWorkFactory, validator *EligibilityValidator, cfg *config.Config, log *logrus.Logger) *ApplicationService {
	return &ApplicationService{
		uowFactory: uowFactory,
		validator:  validator,
		rounding:   cfg.LiabilityRounding,
		log:        log,
		now:        time.Now,
	}
}

// Apply validates the application, computes terms and stores the loan together with its guarantor
// assignments. Any failed check aborts the whole application.
func (s *ApplicationService) Apply(ctx context.Context, req ApplyRequest) (*models.Loan, error) {
	if !req.Principal.IsPositive() {
		return nil, fmt.Errorf("%w: principal must be positive", ErrInvalidApplication)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	lt, err := uow.LoanTypeRepository().GetByID(ctx, req.LoanTypeID)
	if err != nil {
		return nil, err
	}
	if lt == nil {
		return nil, fmt.Errorf("%w: unknown loan type %d", ErrInvalidApplication, req.LoanTypeID)
	}
	if req.TenureMonths < 1 || req.TenureMonths > lt.MaxTenureMonths {
		return nil, fmt.Errorf("%w: tenure must be between 1 and %d months", ErrInvalidApplication, lt.MaxTenureMonths)
	}
	if err := checkGuarantorList(lt, req.BorrowerID, req.GuarantorIDs); err != nil {
		return nil, err
	}

	// The daily limit, credit limit and guarantee caps are counts over other rows, so every
	// user involved is locked first. Ascending id order keeps concurrent applications from
	// deadlocking when one's borrower is another's guarantor.
	users, err := lockUsers(ctx, uow, append([]int64{req.BorrowerID}, req.GuarantorIDs...))
	if err != nil {
		return nil, err
	}
	borrower := users[req.BorrowerID]
	if borrower == nil {
		return nil, fmt.Errorf("%w: borrower %d", ErrUserNotFound, req.BorrowerID)
	}

	background, err := s.validator.CheckBorrower(ctx, uow, borrower, lt, req.Principal)
	if err != nil {
		return nil, err
	}

	for _, id := range req.GuarantorIDs {
		guarantor := users[id]
		if guarantor == nil {
			return nil, fmt.Errorf("%w: guarantor %d does not exist", ErrGuarantorNotQualified, id)
		}
		if err := s.validator.CheckGuarantor(ctx, uow, guarantor, lt); err != nil {
			return nil, err
		}
	}

	terms, err := CalculateTerms(req.Principal, lt.InterestRate, req.TenureMonths)
	if err != nil {
		return nil, err
	}

	status := models.LoanStatusPending
	if lt.AutoApprove {
		status = models.LoanStatusProcessing
	}
	loan := &models.Loan{
		LoanNumber:   newLoanNumber(),
		BorrowerID:   borrower.ID,
		LoanTypeID:   lt.ID,
		Principal:    req.Principal,
		TotalPayable: terms.TotalPayable,
		Balance:      terms.TotalPayable,
		InterestRate: lt.InterestRate,
		TenureMonths: req.TenureMonths,
		Installment:  terms.Installment,
		Status:       status,
		AppliedAt:    s.now(),
		Background:   background,
	}
	if err := uow.LoanRepository().Create(ctx, loan); err != nil {
		return nil, err
	}

	outbox := uow.Outbox()
	if lt.RequiresGuarantors {
		shares := SplitLiability(terms.TotalPayable, len(req.GuarantorIDs), s.rounding)
		for i, id := range req.GuarantorIDs {
			assignment := &models.GuarantorAssignment{
				LoanID:      loan.ID,
				GuarantorID: id,
				Liability:   shares[i],
				Status:      models.GuarantorStatusPending,
			}
			if err := uow.GuarantorRepository().Create(ctx, assignment); err != nil {
				return nil, err
			}
			payload := loanPayload(loan)
			payload["borrower_name"] = borrower.Name
			payload["liability"] = shares[i].StringFixed(2)
			notify(outbox, models.NotificationGuarantorRequest, id, withSMS, payload)
		}
	}

	admins, err := uow.UserRepository().ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	for _, admin := range admins {
		payload := loanPayload(loan)
		payload["borrower_name"] = borrower.Name
		notify(outbox, models.NotificationApplicationAdmin, admin.ID, inApp, payload)
	}
	notify(outbox, models.NotificationApplicationReceived, borrower.ID, withEmail, loanPayload(loan))

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"borrower_id": borrower.ID,
		"status":      loan.Status,
	}).Infof("Loan application %s recorded", loan.LoanNumber)
	return loan, nil
}

// lockUsers reads and locks the given users in ascending id order. Missing users are absent from the map.
func lockUsers(ctx context.Context, uow UnitOfWork, ids []int64) (map[int64]*models.User, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	users := make(map[int64]*models.User, len(sorted))
	for _, id := range sorted {
		user, err := uow.UserRepository().GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if user != nil {
			users[id] = user
		}
	}
	return users, nil
}

// checkGuarantorList enforces the guarantor count, uniqueness, and self-guarantee rules
func checkGuarantorList(lt *models.LoanType, borrowerID int64, ids []int64) error {
	if !lt.RequiresGuarantors {
		if len(ids) > 0 {
			return fmt.Errorf("%w: loan type %s takes no guarantors", ErrInvalidApplication, lt.Name)
		}
		return nil
	}
	required := lt.RequiredGuarantors
	if required < 1 {
		required = 1
	}
	if len(ids) != required {
		return fmt.Errorf("%w: loan type %s needs %d guarantors, got %d", ErrInvalidApplication, lt.Name, required, len(ids))
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id == borrowerID {
			return fmt.Errorf("%w: borrower cannot guarantee their own loan", ErrInvalidApplication)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: guarantor %d listed twice", ErrInvalidApplication, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func newLoanNumber() string {
	return "LN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
