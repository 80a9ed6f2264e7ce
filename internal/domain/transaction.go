package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string
type TransactionStatus string

const (
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeTransfer   TransactionType = "TRANSFER"
	TypeFee        TransactionType = "FEE"
	TypeInterest   TransactionType = "INTEREST"

	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer, TypeFee, TypeInterest:
		return true
	}
	return false
}

func (s TransactionStatus) Valid() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Transaction is a single audit record. It is a value type with no
// exported fields, so a constructed record cannot be altered.
type Transaction struct {
	id            string
	accountNumber string
	counterparty  string
	txType        TransactionType
	amount        decimal.Decimal
	balanceBefore decimal.Decimal
	balanceAfter  decimal.Decimal
	status        TransactionStatus
	failure       error
	timestamp     time.Time
}

type TransactionParams struct {
	ID            string
	AccountNumber string
	// Counterparty is the other account of a transfer leg.
	Counterparty  string
	Type          TransactionType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Status        TransactionStatus
	// Failure is the business rule violation behind a FAILED record.
	Failure   error
	Timestamp time.Time
}

func NewTransaction(p TransactionParams) (Transaction, error) {
	switch {
	case p.ID == "":
		return Transaction{}, fmt.Errorf("%w: transaction id is required", ErrInvalidTransaction)
	case p.AccountNumber == "":
		return Transaction{}, fmt.Errorf("%w: account number is required", ErrInvalidTransaction)
	case !p.Type.Valid():
		return Transaction{}, fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, p.Type)
	case !p.Status.Valid():
		return Transaction{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransaction, p.Status)
	case p.Amount.IsNegative():
		return Transaction{}, fmt.Errorf("%w: negative amount %s", ErrInvalidTransaction, p.Amount)
	case p.Timestamp.IsZero():
		return Transaction{}, fmt.Errorf("%w: timestamp is required", ErrInvalidTransaction)
	}

	if p.Status == StatusFailed {
		if p.Failure == nil {
			return Transaction{}, fmt.Errorf("%w: failed transaction needs a reason", ErrInvalidTransaction)
		}
		if !p.BalanceBefore.Equal(p.BalanceAfter) {
			return Transaction{}, fmt.Errorf("%w: failed transaction changed the balance", ErrInvalidTransaction)
		}
	} else if p.Failure != nil {
		return Transaction{}, fmt.Errorf("%w: successful transaction carries a reason", ErrInvalidTransaction)
	}

	return Transaction{
		id:            p.ID,
		accountNumber: p.AccountNumber,
		counterparty:  p.Counterparty,
		txType:        p.Type,
		amount:        p.Amount,
		balanceBefore: p.BalanceBefore,
		balanceAfter:  p.BalanceAfter,
		status:        p.Status,
		failure:       p.Failure,
		timestamp:     p.Timestamp,
	}, nil
}

func (tx Transaction) ID() string                     { return tx.id }
func (tx Transaction) AccountNumber() string          { return tx.accountNumber }
func (tx Transaction) Counterparty() string           { return tx.counterparty }
func (tx Transaction) Type() TransactionType          { return tx.txType }
func (tx Transaction) Amount() decimal.Decimal        { return tx.amount }
func (tx Transaction) BalanceBefore() decimal.Decimal { return tx.balanceBefore }
func (tx Transaction) BalanceAfter() decimal.Decimal  { return tx.balanceAfter }
func (tx Transaction) Status() TransactionStatus      { return tx.status }

// Err returns the violation that made the record FAILED, or nil.
func (tx Transaction) Err() error { return tx.failure }

func (tx Transaction) FailureReason() string {
	if tx.failure == nil {
		return ""
	}
	return tx.failure.Error()
}

func (tx Transaction) Timestamp() time.Time { return tx.timestamp }

func (tx Transaction) Succeeded() bool { return tx.status == StatusSuccess }

func (tx Transaction) IsZero() bool { return tx.id == "" }

// Equal reports whether both values are the same logical record.
func (tx Transaction) Equal(other Transaction) bool {
	return tx.id == other.id
}
