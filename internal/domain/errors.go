package domain

import "errors"

// Structural errors abort an operation before any account state is touched
// and are never recorded in an account history.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAccountClosed       = errors.New("account closed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrSameAccount         = errors.New("source and destination accounts are the same")
	ErrAccountOpen         = errors.New("account cannot be opened")
	ErrInvalidAccountType  = errors.New("invalid account type")
	ErrInvalidTransaction  = errors.New("invalid transaction")
)

// Business rule violations are raised by account policies against a valid,
// open account. They end up as the failure reason of a FAILED transaction.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMinimumBalance    = errors.New("minimum balance violation")
	ErrWithdrawalLimit   = errors.New("withdrawal limit exceeded")
)

func IsBusinessRuleViolation(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrMinimumBalance) ||
		errors.Is(err, ErrWithdrawalLimit)
}
