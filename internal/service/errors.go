package service

import "errors"

// Validation errors are returned to the applicant; nothing is persisted.
var (
	ErrRateLimitExceeded      = errors.New("a loan application was already submitted today")
	ErrLimitExceeded          = errors.New("requested amount exceeds the remaining credit limit")
	ErrNotQualified           = errors.New("borrower does not meet the loan type requirements")
	ErrGuarantorNotQualified  = errors.New("guarantor does not meet the loan type requirements")
	ErrGuarantorOverCommitted = errors.New("guarantor already backs too many loans")
	ErrInvalidApplication     = errors.New("invalid loan application")
)

// Workflow errors mean the action is stale or duplicated; the loan is left untouched.
var (
	ErrAlreadyProcessed   = errors.New("loan or response was already processed")
	ErrUnknownGuarantor   = errors.New("user is not a guarantor of this loan")
	ErrConsensusPending   = errors.New("guarantors have not all accepted")
	ErrLoanNotFound       = errors.New("loan not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("actor is not allowed to perform this action")
	ErrInvalidPayment     = errors.New("invalid payment")
	ErrPaymentNotFound    = errors.New("payment transaction not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ErrIntegrity marks state that should be impossible; the operation aborts without mutating the loan.
var ErrIntegrity = errors.New("integrity violation")
