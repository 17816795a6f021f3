package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/shopspring/decimal"
)

// EligibilityValidator checks borrowers and guarantors against a loan type. It reads through the
// caller's unit of work; the counts it checks are only stable while the caller holds the user row locks.
type EligibilityValidator struct {
	location            *time.Location
	salaryShare         decimal.Decimal
	maxActiveGuarantees int
	now                 func() time.Time
}

// NewEligibilityValidator creates a validator from configuration
func NewEligibilityValidator(cfg *config.Config) *EligibilityValidator {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &EligibilityValidator{
		location:            loc,
		salaryShare:         cfg.CreditLimitSalaryShare,
		maxActiveGuarantees: cfg.MaxActiveGuarantees,
		now:                 time.Now,
	}
}

// CheckBorrower runs the daily limit, credit limit and qualification checks in that order and
// returns the background snapshot stored on the loan.
func (v *EligibilityValidator) CheckBorrower(ctx context.Context, uow UnitOfWork, borrower *models.User,
	lt *models.LoanType, principal decimal.Decimal) (models.BackgroundCheck, error) {
	var bg models.BackgroundCheck
	loans := uow.LoanRepository()
	now := v.now()

	applied, err := loans.CountAppliedSince(ctx, borrower.ID, startOfDay(now, v.location))
	if err != nil {
		return bg, err
	}
	if applied > 0 {
		return bg, ErrRateLimitExceeded
	}

	outstanding, err := loans.SumOutstanding(ctx, borrower.ID)
	if err != nil {
		return bg, err
	}
	remaining := RemainingCreditLimit(borrower.MonthlySalary, v.salaryShare, outstanding)
	if principal.GreaterThan(remaining) {
		return bg, fmt.Errorf("%w: requested %s, remaining %s", ErrLimitExceeded,
			principal.StringFixed(2), decimal.Max(remaining, decimal.Zero).StringFixed(2))
	}

	repaid, defaulted, err := loans.RepaymentHistory(ctx, borrower.ID)
	if err != nil {
		return bg, err
	}
	bg = models.BackgroundCheck{
		CreditScore:    CreditScore(repaid, defaulted),
		YearsEmployed:  YearsEmployed(borrower.EmploymentDate, now),
		MonthlySalary:  borrower.MonthlySalary,
		RemainingLimit: remaining,
		RepaidLoans:    repaid,
		DefaultedLoans: defaulted,
	}
	if bg.CreditScore < lt.MinCreditScore {
		return bg, fmt.Errorf("%w: credit score %d below %d", ErrNotQualified, bg.CreditScore, lt.MinCreditScore)
	}
	if bg.YearsEmployed < lt.MinEmploymentYears {
		return bg, fmt.Errorf("%w: %d years employed, %d required", ErrNotQualified, bg.YearsEmployed, lt.MinEmploymentYears)
	}
	return bg, nil
}

// CheckGuarantor applies the qualification thresholds and both guarantee caps to one candidate
func (v *EligibilityValidator) CheckGuarantor(ctx context.Context, uow UnitOfWork, guarantor *models.User, lt *models.LoanType) error {
	loans := uow.LoanRepository()
	guarantors := uow.GuarantorRepository()

	repaid, defaulted, err := loans.RepaymentHistory(ctx, guarantor.ID)
	if err != nil {
		return err
	}
	if score := CreditScore(repaid, defaulted); score < lt.MinCreditScore {
		return fmt.Errorf("%w: guarantor %d credit score %d below %d", ErrGuarantorNotQualified, guarantor.ID, score, lt.MinCreditScore)
	}
	if years := YearsEmployed(guarantor.EmploymentDate, v.now()); years < lt.MinEmploymentYears {
		return fmt.Errorf("%w: guarantor %d employed %d years, %d required", ErrGuarantorNotQualified, guarantor.ID, years, lt.MinEmploymentYears)
	}

	active, err := guarantors.CountActiveGuarantees(ctx, guarantor.ID)
	if err != nil {
		return err
	}
	if active >= v.maxActiveGuarantees {
		return fmt.Errorf("%w: guarantor %d backs %d loans", ErrGuarantorOverCommitted, guarantor.ID, active)
	}

	if lt.MaxGuaranteesPerGuarantor > 0 {
		forType, err := guarantors.CountActiveGuaranteesForType(ctx, guarantor.ID, lt.ID)
		if err != nil {
			return err
		}
		if forType >= lt.MaxGuaranteesPerGuarantor {
			return fmt.Errorf("%w: guarantor %d backs %d %s loans", ErrGuarantorOverCommitted, guarantor.ID, forType, lt.Name)
		}
	}
	return nil
}
