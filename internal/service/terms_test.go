package service

import (
	"io"
	"testing"
	"time"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestCalculateTerms(t *testing.T) {
	terms, err := CalculateTerms(dec("100000"), dec("10"), 12)
	require.NoError(t, err)

	assert.True(t, terms.TotalPayable.Equal(dec("110000")), "total payable %s", terms.TotalPayable)
	assert.True(t, terms.Installment.Equal(dec("9166.67")), "installment %s", terms.Installment)
}

func TestCalculateTerms_RoundsToCents(t *testing.T) {
	terms, err := CalculateTerms(dec("1000.005"), dec("0"), 3)
	require.NoError(t, err)

	assert.Equal(t, "1000.01", terms.TotalPayable.StringFixed(2))
	assert.Equal(t, "333.34", terms.Installment.StringFixed(2))
}

func TestCalculateTerms_InvalidTenure(t *testing.T) {
	_, err := CalculateTerms(dec("1000"), dec("5"), 0)
	assert.ErrorIs(t, err, ErrInvalidApplication)
}

func TestSplitLiability(t *testing.T) {
	tests := []struct {
		name   string
		total  string
		n      int
		policy string
		want   []string
	}{
		{"even split", "110000", 2, config.RoundingEqual, []string{"55000", "55000"}},
		{"equal leaves residual", "100", 3, config.RoundingEqual, []string{"33.33", "33.33", "33.33"}},
		{"remainder to last", "100", 3, config.RoundingRemainderToLast, []string{"33.33", "33.33", "33.34"}},
		{"single guarantor", "2500.50", 1, config.RoundingRemainderToLast, []string{"2500.50"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares := SplitLiability(dec(tt.total), tt.n, tt.policy)
			require.Len(t, shares, len(tt.want))
			for i, want := range tt.want {
				assert.True(t, shares[i].Equal(dec(want)), "share %d: got %s want %s", i, shares[i], want)
			}
		})
	}

	assert.Nil(t, SplitLiability(dec("100"), 0, config.RoundingEqual))
}

func TestSplitLiability_RemainderToLastSumsToTotal(t *testing.T) {
	total := dec("1000.01")
	sum := decimal.Zero
	for _, s := range SplitLiability(total, 7, config.RoundingRemainderToLast) {
		sum = sum.Add(s)
	}
	assert.True(t, sum.Equal(total))
}

func TestCreditScore(t *testing.T) {
	assert.Equal(t, 100, CreditScore(0, 0))
	assert.Equal(t, 100, CreditScore(4, 0))
	assert.Equal(t, 50, CreditScore(3, 1))
	assert.Equal(t, 0, CreditScore(1, 1))
	assert.Equal(t, 0, CreditScore(0, 5))
}

func TestYearsEmployed(t *testing.T) {
	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 4, YearsEmployed(time.Date(2020, time.June, 15, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 3, YearsEmployed(time.Date(2020, time.June, 16, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 0, YearsEmployed(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), now))
}

func TestRemainingCreditLimit(t *testing.T) {
	remaining := RemainingCreditLimit(dec("50000"), dec("0.30"), dec("20000"))
	assert.True(t, remaining.Equal(dec("160000")), "remaining %s", remaining)
}

func TestDecrementCreditLimit_ClampsAtZero(t *testing.T) {
	assert.True(t, DecrementCreditLimit(dec("1000"), dec("400")).Equal(dec("600")))
	assert.True(t, DecrementCreditLimit(dec("1000"), dec("1500")).IsZero())
}

func TestCivilDate(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)
	// 22:30 UTC on the 31st is already the 1st in Nairobi.
	instant := time.Date(2024, time.January, 31, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), civilDate(instant, nairobi))
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, nairobi), startOfDay(instant, nairobi))
}
