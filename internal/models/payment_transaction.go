package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMode is the kind of mobile-money operation
type PaymentMode string

const (
	PaymentModePush         PaymentMode = "stk_push"
	PaymentModeMerchant     PaymentMode = "c2b"
	PaymentModeDisbursement PaymentMode = "b2c"
)

// PaymentStatus is the lifecycle of one gateway attempt
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// PaymentTransaction is one attempt at an external mobile-money operation
type PaymentTransaction struct {
	ID               int64           `json:"id"`
	LoanID           int64           `json:"loan_id"`
	Mode             PaymentMode     `json:"mode"`
	CorrelationID    *string         `json:"correlation_id,omitempty"`
	Status           PaymentStatus   `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Phone            string          `json:"phone"`
	AccountReference string          `json:"account_reference"`
	ReceiptNumber    *string         `json:"receipt_number,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the transaction has already been finalized
func (p *PaymentTransaction) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}

// MarkSucceeded finalizes the transaction as successful
func (p *PaymentTransaction) MarkSucceeded(receipt string, at time.Time) {
	p.Status = PaymentStatusSuccess
	if receipt != "" {
		p.ReceiptNumber = &receipt
	}
	p.CompletedAt = &at
}

// MarkFailed finalizes the transaction as failed
func (p *PaymentTransaction) MarkFailed(reason string, at time.Time) {
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.CompletedAt = &at
}
