package ledger

import (
	"time"

	"bank_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

type Operation string

const (
	OpOpen     Operation = "open"
	OpClose    Operation = "close"
	OpDeposit  Operation = "deposit"
	OpWithdraw Operation = "withdraw"
	OpTransfer Operation = "transfer"
)

// Observer receives a notification after every ledger operation. Calls are
// made while account locks are held, so implementations must not call back
// into the Ledger.
type Observer interface {
	// OperationRecorded is called once per operation that produced a record.
	OperationRecorded(op Operation, status domain.TransactionStatus, duration time.Duration)
	// OperationRejected is called for structural errors, which produce none.
	OperationRejected(op Operation, err error)
	BalanceChanged(accountNumber string, accountType domain.AccountType, balance decimal.Decimal)
	AccountOpened(accountType domain.AccountType)
	AccountClosed(accountNumber string, accountType domain.AccountType)
	BatchCompleted(report BatchReport, duration time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) OperationRecorded(Operation, domain.TransactionStatus, time.Duration) {}
func (noopObserver) OperationRejected(Operation, error)                                   {}
func (noopObserver) BalanceChanged(string, domain.AccountType, decimal.Decimal)           {}
func (noopObserver) AccountOpened(domain.AccountType)                                     {}
func (noopObserver) AccountClosed(string, domain.AccountType)                             {}
func (noopObserver) BatchCompleted(BatchReport, time.Duration, error)                     {}
