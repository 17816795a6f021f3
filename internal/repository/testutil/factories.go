package testutil

import (
	"fmt"
	"time"

	"github.com/Dan9191/advance-service/internal/models"
	"github.com/shopspring/decimal"
)

// CreateTestUser returns an unsaved user employed since 2018 earning 50000 a month
func CreateTestUser(name string) *models.User {
	return &models.User{
		Name:           name,
		Email:          fmt.Sprintf("%s@example.com", name),
		Phone:          "254700000000",
		MonthlySalary:  decimal.NewFromInt(50000),
		EmploymentDate: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		CreditLimit:    decimal.NewFromInt(180000),
	}
}

// CreateTestAdmin returns an unsaved administrator
func CreateTestAdmin(name string) *models.User {
	user := CreateTestUser(name)
	user.IsAdmin = true
	return user
}

// CreateTestLoanType returns an unsaved loan type at 10% that needs the given number of guarantors
func CreateTestLoanType(name string, guarantors int) *models.LoanType {
	return &models.LoanType{
		Name:                      name,
		InterestRate:              decimal.NewFromInt(10),
		MaxTenureMonths:           24,
		RequiresGuarantors:        guarantors > 0,
		RequiredGuarantors:        guarantors,
		MaxGuaranteesPerGuarantor: 2,
	}
}

// CreateTestLoan returns an unsaved pending loan of 100000 over 12 months at 10%
func CreateTestLoan(number string, borrowerID, loanTypeID int64) *models.Loan {
	return &models.Loan{
		LoanNumber:   number,
		BorrowerID:   borrowerID,
		LoanTypeID:   loanTypeID,
		Principal:    decimal.NewFromInt(100000),
		TotalPayable: decimal.NewFromInt(110000),
		Balance:      decimal.NewFromInt(110000),
		InterestRate: decimal.NewFromInt(10),
		TenureMonths: 12,
		Installment:  decimal.RequireFromString("9166.67"),
		Status:       models.LoanStatusPending,
		AppliedAt:    time.Now(),
	}
}

// CreateTestAssignment returns an unsaved pending guarantor assignment
func CreateTestAssignment(loanID, guarantorID int64, liability string) *models.GuarantorAssignment {
	return &models.GuarantorAssignment{
		LoanID:      loanID,
		GuarantorID: guarantorID,
		Liability:   decimal.RequireFromString(liability),
		Status:      models.GuarantorStatusPending,
	}
}
