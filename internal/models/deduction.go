package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeductionType tells where a deduction came from
type DeductionType string

const (
	DeductionTypeScheduled DeductionType = "scheduled"
	DeductionTypeManual    DeductionType = "manual"
)

// Deduction is an immutable record of one installment or manual payment applied to a loan
type Deduction struct {
	ID           int64           `json:"id"`
	LoanID       int64           `json:"loan_id"`
	Amount       decimal.Decimal `json:"amount"`
	Type         DeductionType   `json:"type"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}
