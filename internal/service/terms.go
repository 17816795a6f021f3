package service

import (
	"fmt"
	"math"
	"time"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/shopspring/decimal"
)

var (
	hundred       = decimal.NewFromInt(100)
	monthsPerYear = decimal.NewFromInt(12)
)

// Terms are the repayment figures derived from a principal
type Terms struct {
	TotalPayable decimal.Decimal
	Installment  decimal.Decimal
}

// CalculateTerms applies a flat interest rate over the whole tenure and spreads the total evenly
// across the months. Both figures are rounded to cents.
func CalculateTerms(principal, ratePercent decimal.Decimal, tenureMonths int) (Terms, error) {
	if tenureMonths <= 0 {
		return Terms{}, fmt.Errorf("%w: tenure must be at least one month", ErrInvalidApplication)
	}
	interest := principal.Mul(ratePercent).Div(hundred)
	total := principal.Add(interest).Round(2)
	return Terms{
		TotalPayable: total,
		Installment:  total.Div(decimal.NewFromInt(int64(tenureMonths))).Round(2),
	}, nil
}

// SplitLiability divides a loan's total payable among n guarantors. With RoundingEqual every
// guarantor carries the same rounded share and the residual cent, if any, is left unassigned. With
// RoundingRemainderToLast the last guarantor absorbs the residual so the shares sum to total.
func SplitLiability(total decimal.Decimal, n int, policy string) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	share := total.Div(decimal.NewFromInt(int64(n))).Round(2)
	shares := make([]decimal.Decimal, n)
	for i := range shares {
		shares[i] = share
	}
	if policy == config.RoundingRemainderToLast {
		assigned := share.Mul(decimal.NewFromInt(int64(n - 1)))
		shares[n-1] = total.Sub(assigned)
	}
	return shares
}

// CreditScore is the share of repaid loans minus the share of defaulted loans, as a percentage
// clamped to 0..100. A borrower with no history scores 100.
func CreditScore(repaid, defaulted int) int {
	total := repaid + defaulted
	if total == 0 {
		return 100
	}
	score := math.Round((float64(repaid)/float64(total) - float64(defaulted)/float64(total)) * 100)
	return int(math.Max(0, math.Min(100, score)))
}

// YearsEmployed counts completed years between start and now
func YearsEmployed(start, now time.Time) int {
	years := now.Year() - start.Year()
	if now.Month() < start.Month() || (now.Month() == start.Month() && now.Day() < start.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// RemainingCreditLimit is share of a year's salary minus what the borrower still owes
func RemainingCreditLimit(monthlySalary, salaryShare, outstanding decimal.Decimal) decimal.Decimal {
	return monthlySalary.Mul(salaryShare).Mul(monthsPerYear).Sub(outstanding).Round(2)
}

// DecrementCreditLimit returns the borrower's cached credit limit after an approval, never below zero
func DecrementCreditLimit(limit, approved decimal.Decimal) decimal.Decimal {
	remaining := limit.Sub(approved)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// civilDate is the calendar day of t in loc, expressed as midnight UTC to match DATE columns
func civilDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfDay is midnight of t's calendar day in loc
func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
