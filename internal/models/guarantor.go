package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GuarantorStatus is one guarantor's individual response
type GuarantorStatus string

const (
	GuarantorStatusPending  GuarantorStatus = "pending"
	GuarantorStatusAccepted GuarantorStatus = "accepted"
	GuarantorStatusDeclined GuarantorStatus = "declined"
)

// GuarantorAssignment links a loan to a guarantor and the share of the loan they back
type GuarantorAssignment struct {
	ID          int64           `json:"id"`
	LoanID      int64           `json:"loan_id"`
	GuarantorID int64           `json:"guarantor_id"`
	Liability   decimal.Decimal `json:"liability"`
	Status      GuarantorStatus `json:"status"`
	Remarks     string          `json:"remarks"`
	RespondedAt *time.Time      `json:"responded_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
