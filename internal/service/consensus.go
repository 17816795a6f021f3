package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/advance-service/internal/models"
	"github.com/sirupsen/logrus"
)

// ConsensusState is derived from the guarantors' responses; it is never stored
type ConsensusState string

const (
	ConsensusAwaitingResponses ConsensusState = "awaiting_responses"
	ConsensusDeclined          ConsensusState = "declined"
	ConsensusAwaitingApproval  ConsensusState = "awaiting_approval"
)

// EvaluateConsensus reduces the assignments to one state. A single decline wins regardless of
// order; otherwise any pending response keeps the loan waiting.
func EvaluateConsensus(assignments []*models.GuarantorAssignment) ConsensusState {
	pending := false
	for _, a := range assignments {
		switch a.Status {
		case models.GuarantorStatusDeclined:
			return ConsensusDeclined
		case models.GuarantorStatusPending:
			pending = true
		}
	}
	if pending {
		return ConsensusAwaitingResponses
	}
	return ConsensusAwaitingApproval
}

// RespondRequest is one guarantor's answer
type RespondRequest struct {
	LoanID      int64
	GuarantorID int64
	Accept      bool
	Remarks     string
}

// ConsensusTracker records guarantor responses and moves the loan when they agree
type ConsensusTracker struct {
	uowFactory UnitOfWorkFactory
	log        *logrus.Logger
	now        func() time.Time
}

// NewConsensusTracker creates a new consensus tracker
func NewConsensusTracker(uowFactory UnitOfWorkFactory, log *logrus.Logger) *ConsensusTracker {
	return &ConsensusTracker{uowFactory: uowFactory, log: log, now: time.Now}
}

// Respond stores the guarantor's answer and re-evaluates every assignment of the loan while holding
// the loan lock, so concurrent answers are evaluated one after another and the transition out of
// waiting happens once.
func (t *ConsensusTracker) Respond(ctx context.Context, req RespondRequest) (ConsensusState, error) {
	logger := t.log.WithFields(logrus.Fields{
		"loan_id":      req.LoanID,
		"guarantor_id": req.GuarantorID,
	})

	uow := t.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return "", err
	}
	defer uow.Rollback() // No-op if already committed

	loans := uow.LoanRepository()
	guarantors := uow.GuarantorRepository()

	loan, err := loans.GetForUpdate(ctx, req.LoanID)
	if err != nil {
		return "", err
	}
	if loan == nil {
		return "", fmt.Errorf("%w: %d", ErrLoanNotFound, req.LoanID)
	}

	assignment, err := guarantors.GetByLoanAndGuarantor(ctx, req.LoanID, req.GuarantorID)
	if err != nil {
		return "", err
	}
	if assignment == nil {
		logger.Warn("Response from a user who does not guarantee this loan")
		return "", ErrUnknownGuarantor
	}
	if assignment.Status != models.GuarantorStatusPending {
		logger.Warnf("Guarantor already responded with %s", assignment.Status)
		return "", ErrAlreadyProcessed
	}

	now := t.now()
	assignment.Status = models.GuarantorStatusDeclined
	if req.Accept {
		assignment.Status = models.GuarantorStatusAccepted
	}
	assignment.Remarks = req.Remarks
	assignment.RespondedAt = &now
	if err := guarantors.UpdateResponse(ctx, assignment); err != nil {
		return "", err
	}

	all, err := guarantors.GetByLoan(ctx, req.LoanID)
	if err != nil {
		return "", err
	}
	if !containsAssignment(all, assignment.ID) {
		logger.WithField("assignment_id", assignment.ID).Error("Updated assignment missing from the loan's guarantor list")
		return "", fmt.Errorf("%w: assignment %d not listed for loan %d", ErrIntegrity, assignment.ID, req.LoanID)
	}
	state := EvaluateConsensus(all)

	if !loan.IsUndecided() {
		// The loan was decided elsewhere; keep the answer but leave the loan alone.
		if err := uow.Commit(); err != nil {
			return "", err
		}
		logger.Infof("Recorded %s response on %s loan", assignment.Status, loan.Status)
		return state, nil
	}

	outbox := uow.Outbox()
	previous := loan.Status
	switch state {
	case ConsensusDeclined:
		loan.Status = models.LoanStatusRejected
		loan.Remarks = declineRemarks(req)
		if err := loans.Update(ctx, loan); err != nil {
			return "", err
		}
		payload := loanPayload(loan)
		payload["remarks"] = loan.Remarks
		notify(outbox, models.NotificationLoanRejected, loan.BorrowerID, withSMS, payload)
		statusChanged(outbox, loan, previous, nil)

	case ConsensusAwaitingResponses:
		logger.Debug("Waiting for remaining guarantors")

	case ConsensusAwaitingApproval:
		loan.Status = models.LoanStatusProcessing
		if err := loans.Update(ctx, loan); err != nil {
			return "", err
		}
		admins, err := uow.UserRepository().ListAdmins(ctx)
		if err != nil {
			return "", err
		}
		for _, admin := range admins {
			notify(outbox, models.NotificationReadyForApproval, admin.ID, inApp, loanPayload(loan))
		}
		notify(outbox, models.NotificationGuarantorsAccepted, loan.BorrowerID, withSMS, loanPayload(loan))
		if previous != loan.Status {
			statusChanged(outbox, loan, previous, nil)
		}
	}

	if err := uow.Commit(); err != nil {
		return "", err
	}

	logger.WithField("consensus", state).Infof("Guarantor %s loan %s", assignment.Status, loan.LoanNumber)
	return state, nil
}

func containsAssignment(all []*models.GuarantorAssignment, id int64) bool {
	for _, a := range all {
		if a.ID == id {
			return true
		}
	}
	return false
}

func declineRemarks(req RespondRequest) string {
	if req.Remarks == "" {
		return fmt.Sprintf("Declined by guarantor %d", req.GuarantorID)
	}
	return fmt.Sprintf("Declined by guarantor %d: %s", req.GuarantorID, req.Remarks)
}
