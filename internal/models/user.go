package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a borrower, guarantor or administrator
type User struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	MonthlySalary  decimal.Decimal `json:"monthly_salary"`
	EmploymentDate time.Time       `json:"employment_date"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	IsAdmin        bool            `json:"is_admin"`
	PasswordHash   string          `json:"-"` // Not serialized
	CreatedAt      time.Time       `json:"created_at"`
}
