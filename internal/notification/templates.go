package notification

import (
	"fmt"

	"github.com/Dan9191/advance-service/internal/models"
)

// Message is the rendered text of one notification
type Message struct {
	Subject string
	Body    string
}

func field(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Render builds the SMS and email text for a notification
func Render(kind models.NotificationType, payload map[string]any) Message {
	loan := field(payload, "loan_number")

	switch kind {
	case models.NotificationGuarantorRequest:
		return Message{
			Subject: "Guarantor request",
			Body: fmt.Sprintf("%s has asked you to guarantee loan %s. Your share of the liability is KES %s. "+
				"Please accept or decline in the app.", field(payload, "borrower_name"), loan, field(payload, "liability")),
		}
	case models.NotificationApplicationAdmin:
		return Message{
			Subject: "New loan application",
			Body:    fmt.Sprintf("%s applied for loan %s of KES %s.", field(payload, "borrower_name"), loan, field(payload, "principal")),
		}
	case models.NotificationApplicationReceived:
		return Message{
			Subject: "Loan application received",
			Body:    fmt.Sprintf("We have received your application %s for KES %s. We will let you know once it is reviewed.", loan, field(payload, "principal")),
		}
	case models.NotificationLoanRejected:
		return Message{
			Subject: "Loan application declined",
			Body:    fmt.Sprintf("Your loan %s was not approved. %s", loan, field(payload, "remarks")),
		}
	case models.NotificationReadyForApproval:
		return Message{
			Subject: "Loan ready for approval",
			Body:    fmt.Sprintf("All guarantors accepted loan %s. It is ready for your decision.", loan),
		}
	case models.NotificationGuarantorsAccepted:
		return Message{
			Subject: "Guarantors accepted",
			Body:    fmt.Sprintf("All your guarantors accepted loan %s. It is now awaiting approval.", loan),
		}
	case models.NotificationLoanApproved:
		return Message{
			Subject: "Loan approved",
			Body: fmt.Sprintf("Your loan %s has been approved for KES %s. Installment KES %s, first due on %s.",
				loan, field(payload, "approved_amount"), field(payload, "installment"), field(payload, "next_due_date")),
		}
	case models.NotificationLoanCancelled:
		return Message{
			Subject: "Loan cancelled",
			Body:    fmt.Sprintf("Loan %s has been cancelled by the borrower.", loan),
		}
	case models.NotificationDeductionApplied:
		return Message{
			Subject: "Installment deducted",
			Body:    fmt.Sprintf("KES %s was deducted for loan %s. Remaining balance KES %s.", field(payload, "amount"), loan, field(payload, "balance")),
		}
	case models.NotificationPaymentReceived:
		return Message{
			Subject: "Payment received",
			Body: fmt.Sprintf("We received KES %s for loan %s (ref %s). Remaining balance KES %s.",
				field(payload, "amount"), loan, field(payload, "reference"), field(payload, "balance")),
		}
	case models.NotificationPaymentFailed:
		return Message{
			Subject: "Payment failed",
			Body:    fmt.Sprintf("Your payment of KES %s for loan %s did not go through: %s", field(payload, "amount"), loan, field(payload, "reason")),
		}
	case models.NotificationDisbursementCompleted:
		return Message{
			Subject: "Loan disbursed",
			Body:    fmt.Sprintf("KES %s for loan %s has been sent to your phone (ref %s).", field(payload, "amount"), loan, field(payload, "transaction_id")),
		}
	default:
		return Message{
			Subject: "Loan update",
			Body:    fmt.Sprintf("There is an update on loan %s.", loan),
		}
	}
}
