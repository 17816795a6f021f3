package service

import (
	"github.com/Dan9191/advance-service/internal/events"
	"github.com/Dan9191/advance-service/internal/models"
)

type channels struct {
	sms   bool
	email bool
}

var (
	inApp     = channels{}
	withSMS   = channels{sms: true}
	withEmail = channels{email: true}
	everyWay  = channels{sms: true, email: true}
)

// notify queues a notification; it is delivered only if the unit of work commits
func notify(outbox EventPublisher, kind models.NotificationType, recipientID int64, ch channels, payload map[string]any) {
	outbox.Publish(events.NotificationEvent{
		Kind:        kind,
		RecipientID: recipientID,
		Payload:     payload,
		SMS:         ch.sms,
		Email:       ch.email,
	})
}

func statusChanged(outbox EventPublisher, loan *models.Loan, from models.LoanStatus, actorID *int64) {
	outbox.Publish(events.LoanStatusChangedEvent{
		LoanID:    loan.ID,
		OldStatus: from,
		NewStatus: loan.Status,
		ActorID:   actorID,
	})
}

func loanPayload(loan *models.Loan) map[string]any {
	return map[string]any{
		"loan_id":     loan.ID,
		"loan_number": loan.LoanNumber,
		"principal":   loan.Principal.StringFixed(2),
		"balance":     loan.Balance.StringFixed(2),
		"status":      string(loan.Status),
	}
}
