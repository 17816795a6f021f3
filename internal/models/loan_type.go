package models

import "github.com/shopspring/decimal"

// LoanType describes a loan product and the thresholds applicants and guarantors must meet
type LoanType struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	InterestRate       decimal.Decimal `json:"interest_rate"` // percent over the whole tenure
	MaxTenureMonths    int             `json:"max_tenure_months"`
	MinCreditScore     int             `json:"min_credit_score"`
	MinEmploymentYears int             `json:"min_employment_years"`
	RequiresGuarantors bool            `json:"requires_guarantors"`
	RequiredGuarantors int             `json:"required_guarantors"`
	AutoApprove        bool            `json:"auto_approve"`
	// MaxGuaranteesPerGuarantor caps how many open loans of this type one guarantor may back.
	MaxGuaranteesPerGuarantor int `json:"max_guarantees_per_guarantor"`
}
