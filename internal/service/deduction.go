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

// DeductionReport summarises one batch run
type DeductionReport struct {
	Day     time.Time `json:"day"`
	Due     int       `json:"due"`
	Applied int       `json:"applied"`
	Skipped int       `json:"skipped"`
	Failed  int       `json:"failed"`
}

// DeductionScheduler takes one installment from every approved loan that has fallen due
type DeductionScheduler struct {
	uowFactory UnitOfWorkFactory
	location   *time.Location
	log        *logrus.Logger
	now        func() time.Time
}

// NewDeductionScheduler creates a new deduction scheduler
func NewDeductionScheduler(uowFactory UnitOfWorkFactory, cfg *config.Config, log *logrus.Logger) *DeductionScheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &DeductionScheduler{uowFactory: uowFactory, location: loc, log: log, now: time.Now}
}

// RunOnce processes every due loan in its own unit of work. A failing loan is logged and the run
// continues with the next one.
func (s *DeductionScheduler) RunOnce(ctx context.Context) (DeductionReport, error) {
	today := civilDate(s.now(), s.location)
	report := DeductionReport{Day: today}

	ids, err := s.dueLoans(ctx, today)
	if err != nil {
		return report, err
	}
	report.Due = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		applied, err := s.deduct(ctx, id, today)
		switch {
		case err != nil:
			report.Failed++
			s.log.WithField("loan_id", id).Errorf("Deduction failed: %v", err)
		case applied:
			report.Applied++
		default:
			report.Skipped++
		}
	}

	s.log.WithFields(logrus.Fields{
		"day":     today.Format("2006-01-02"),
		"due":     report.Due,
		"applied": report.Applied,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Info("Completed deduction run")
	return report, nil
}

func (s *DeductionScheduler) dueLoans(ctx context.Context, today time.Time) ([]int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	ids, err := uow.LoanRepository().ListDueIDs(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list due loans: %w", err)
	}
	return ids, nil
}

// deduct re-checks the loan under its lock; a payment may have settled or advanced it since it
// was listed.
func (s *DeductionScheduler) deduct(ctx context.Context, loanID int64, today time.Time) (bool, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, err
	}
	defer uow.Rollback() // No-op if already committed

	loan, err := uow.LoanRepository().GetForUpdate(ctx, loanID)
	if err != nil {
		return false, err
	}
	if loan == nil || !loan.IsRepayable() || loan.NextDueDate == nil || loan.NextDueDate.After(today) {
		s.log.WithField("loan_id", loanID).Debug("Loan no longer due, skipping")
		return false, nil
	}

	previous := loan.Status
	amount := decimal.Min(loan.Installment, loan.Balance)
	applied := loan.ApplyPayment(amount)
	if loan.Status == models.LoanStatusCompleted {
		loan.NextDueDate = nil
	} else {
		next := loan.NextDueDate.AddDate(0, 1, 0)
		loan.NextDueDate = &next
	}
	if err := uow.LoanRepository().Update(ctx, loan); err != nil {
		return false, err
	}

	deduction := &models.Deduction{
		LoanID:       loan.ID,
		Amount:       applied,
		Type:         models.DeductionTypeScheduled,
		BalanceAfter: loan.Balance,
	}
	if err := uow.DeductionRepository().Create(ctx, deduction); err != nil {
		return false, err
	}

	outbox := uow.Outbox()
	payload := loanPayload(loan)
	payload["amount"] = applied.StringFixed(2)
	if loan.NextDueDate != nil {
		payload["next_due_date"] = loan.NextDueDate.Format("2006-01-02")
	}
	notify(outbox, models.NotificationDeductionApplied, loan.BorrowerID, withSMS, payload)
	if loan.Status != previous {
		statusChanged(outbox, loan, previous, nil)
	}

	if err := uow.Commit(); err != nil {
		return false, err
	}

	s.log.WithFields(logrus.Fields{
		"loan_id": loan.ID,
		"amount":  applied.StringFixed(2),
		"balance": loan.Balance.StringFixed(2),
	}).Info("Installment deducted")
	return true, nil
}
