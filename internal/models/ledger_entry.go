package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerSource tells which channel moved the money
type LedgerSource string

const (
	LedgerSourcePush     LedgerSource = "mpesa_stk"
	LedgerSourceMerchant LedgerSource = "mpesa_c2b"
	LedgerSourceManual   LedgerSource = "manual"
)

// LedgerEntry is an immutable record of money applied to a loan, keyed by the provider reference
type LedgerEntry struct {
	ID                   int64           `json:"id"`
	LoanID               int64           `json:"loan_id"`
	PaymentTransactionID *int64          `json:"payment_transaction_id,omitempty"`
	Reference            string          `json:"reference"`
	Source               LedgerSource    `json:"source"`
	Amount               decimal.Decimal `json:"amount"`
	BalanceBefore        decimal.Decimal `json:"balance_before"`
	BalanceAfter         decimal.Decimal `json:"balance_after"`
	Phone                string          `json:"phone"`
	Signature            string          `json:"signature"`
	CreatedAt            time.Time       `json:"created_at"`
}
