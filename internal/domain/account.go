package domain

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountChecking AccountType = "CHECKING"
	AccountSavings  AccountType = "SAVINGS"
)

func (t AccountType) Valid() bool {
	return t == AccountChecking || t == AccountSavings
}

func ParseAccountType(s string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountType, s)
	}
	return t, nil
}

type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountClosed AccountStatus = "CLOSED"
)

// Account owns its balance, monthly counters and history. Number, Type,
// CustomerName and OpenedAt never change; every other method must be called
// with the lock held.
type Account struct {
	mu sync.Mutex

	number       string
	customerName string
	accountType  AccountType
	openedAt     time.Time

	balance          decimal.Decimal
	status           AccountStatus
	transactionCount int
	withdrawalCount  int
	history          []Transaction

	nextTransactionID func() string
	now               func() time.Time
}

type AccountParams struct {
	Number            string
	CustomerName      string
	Type              AccountType
	OpeningDeposit    decimal.Decimal
	NextTransactionID func() string
	Clock             func() time.Time
}

type AccountSnapshot struct {
	Number                  string
	CustomerName            string
	Type                    AccountType
	Balance                 decimal.Decimal
	Status                  AccountStatus
	MonthlyTransactionCount int
	MonthlyWithdrawalCount  int
	OpenedAt                time.Time
	History                 []Transaction
}

// ValidateAmount rejects non-positive amounts and amounts with a fraction
// of a cent.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: %s has more than two decimal places", ErrInvalidAmount, amount)
	}
	return nil
}

// NewAccount builds an ACTIVE account and records the opening deposit as its
// first history entry. The opening deposit may be zero and does not count
// towards the monthly transaction count.
func NewAccount(p AccountParams) (*Account, Transaction, error) {
	name := strings.TrimSpace(p.CustomerName)
	switch {
	case p.Number == "":
		return nil, Transaction{}, fmt.Errorf("%w: account number is required", ErrAccountOpen)
	case name == "":
		return nil, Transaction{}, fmt.Errorf("%w: customer name is required", ErrAccountOpen)
	case !p.Type.Valid():
		return nil, Transaction{}, fmt.Errorf("%w: %w %q", ErrAccountOpen, ErrInvalidAccountType, p.Type)
	case p.OpeningDeposit.IsNegative():
		return nil, Transaction{}, fmt.Errorf("%w: opening deposit %s is negative", ErrAccountOpen, p.OpeningDeposit)
	case !p.OpeningDeposit.Equal(p.OpeningDeposit.Round(2)):
		return nil, Transaction{}, fmt.Errorf("%w: opening deposit %s has more than two decimal places", ErrAccountOpen, p.OpeningDeposit)
	case p.NextTransactionID == nil:
		return nil, Transaction{}, fmt.Errorf("%w: transaction id source is required", ErrAccountOpen)
	}

	now := p.Clock
	if now == nil {
		now = time.Now
	}

	a := &Account{
		number:            p.Number,
		customerName:      name,
		accountType:       p.Type,
		openedAt:          now(),
		balance:           decimal.Zero,
		status:            AccountActive,
		nextTransactionID: p.NextTransactionID,
		now:               now,
	}

	tx, err := a.record(TypeDeposit, p.OpeningDeposit, p.OpeningDeposit, "", nil)
	if err != nil {
		return nil, Transaction{}, err
	}
	return a, tx, nil
}

func (a *Account) Lock()   { a.mu.Lock() }
func (a *Account) Unlock() { a.mu.Unlock() }

func (a *Account) Number() string           { return a.number }
func (a *Account) Type() AccountType        { return a.accountType }
func (a *Account) CustomerName() string     { return a.customerName }
func (a *Account) OpenedAt() time.Time      { return a.openedAt }
func (a *Account) Balance() decimal.Decimal { return a.balance }
func (a *Account) Status() AccountStatus    { return a.status }
func (a *Account) TransactionCount() int    { return a.transactionCount }
func (a *Account) WithdrawalCount() int     { return a.withdrawalCount }

func (a *Account) IsActive() bool { return a.status == AccountActive }

func (a *Account) Deposit(amount decimal.Decimal) (Transaction, error) {
	if err := a.checkOperable(amount); err != nil {
		return Transaction{}, err
	}

	tx, err := a.record(TypeDeposit, amount, a.balance.Add(amount), "", nil)
	if err != nil {
		return Transaction{}, err
	}
	a.transactionCount++
	return tx, nil
}

// Withdraw moves money out without consulting any account policy. Minimum
// balance and withdrawal limits are the caller's responsibility.
func (a *Account) Withdraw(amount decimal.Decimal) (Transaction, error) {
	if err := a.checkOperable(amount); err != nil {
		return Transaction{}, err
	}
	if amount.GreaterThan(a.balance) {
		return Transaction{}, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, a.balance, amount)
	}

	tx, err := a.record(TypeWithdrawal, amount, a.balance.Sub(amount), "", nil)
	if err != nil {
		return Transaction{}, err
	}
	a.transactionCount++
	return tx, nil
}

func (a *Account) IncrementWithdrawalCount() {
	a.withdrawalCount++
}

// TransferOut is the source leg of a transfer. It never touches the
// withdrawal count.
func (a *Account) TransferOut(amount decimal.Decimal, to string) (Transaction, error) {
	if err := a.checkOperable(amount); err != nil {
		return Transaction{}, err
	}
	if amount.GreaterThan(a.balance) {
		return Transaction{}, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, a.balance, amount)
	}

	tx, err := a.record(TypeTransfer, amount, a.balance.Sub(amount), to, nil)
	if err != nil {
		return Transaction{}, err
	}
	a.transactionCount++
	return tx, nil
}

func (a *Account) TransferIn(amount decimal.Decimal, from string) (Transaction, error) {
	if err := a.checkOperable(amount); err != nil {
		return Transaction{}, err
	}

	tx, err := a.record(TypeTransfer, amount, a.balance.Add(amount), from, nil)
	if err != nil {
		return Transaction{}, err
	}
	a.transactionCount++
	return tx, nil
}

// RecordFailedTransaction appends a FAILED record that leaves the balance
// and both counters untouched.
func (a *Account) RecordFailedTransaction(txType TransactionType, attempted decimal.Decimal, counterparty string, reason error) (Transaction, error) {
	if reason == nil {
		return Transaction{}, fmt.Errorf("%w: failed transaction needs a reason", ErrInvalidTransaction)
	}
	return a.record(txType, attempted, a.balance, counterparty, reason)
}

func (a *Account) ApplyFee(amount decimal.Decimal) (Transaction, error) {
	if err := ValidateAmount(amount); err != nil {
		return Transaction{}, err
	}
	if amount.GreaterThan(a.balance) {
		return Transaction{}, fmt.Errorf("%w: fee %s exceeds balance %s", ErrInsufficientFunds, amount, a.balance)
	}
	return a.record(TypeFee, amount, a.balance.Sub(amount), "", nil)
}

func (a *Account) ApplyInterest(amount decimal.Decimal) (Transaction, error) {
	if err := ValidateAmount(amount); err != nil {
		return Transaction{}, err
	}
	return a.record(TypeInterest, amount, a.balance.Add(amount), "", nil)
}

func (a *Account) ResetMonthlyCounters() {
	a.transactionCount = 0
	a.withdrawalCount = 0
}

func (a *Account) CanBeClosed() bool {
	return a.balance.IsZero()
}

// Close reports whether the account moved from ACTIVE to CLOSED.
func (a *Account) Close() bool {
	if a.status != AccountActive || !a.CanBeClosed() {
		return false
	}
	a.status = AccountClosed
	return true
}

func (a *Account) Snapshot() AccountSnapshot {
	history := make([]Transaction, len(a.history))
	copy(history, a.history)

	return AccountSnapshot{
		Number:                  a.number,
		CustomerName:            a.customerName,
		Type:                    a.accountType,
		Balance:                 a.balance,
		Status:                  a.status,
		MonthlyTransactionCount: a.transactionCount,
		MonthlyWithdrawalCount:  a.withdrawalCount,
		OpenedAt:                a.openedAt,
		History:                 history,
	}
}

func (a *Account) checkOperable(amount decimal.Decimal) error {
	if a.status == AccountClosed {
		return fmt.Errorf("%w: %s", ErrAccountClosed, a.number)
	}
	return ValidateAmount(amount)
}

// record appends a history entry and moves the balance to after. A non-nil
// failure produces a FAILED record.
func (a *Account) record(
	txType TransactionType,
	amount, after decimal.Decimal,
	counterparty string,
	failure error,
) (Transaction, error) {
	status := StatusSuccess
	if failure != nil {
		status = StatusFailed
	}

	tx, err := NewTransaction(TransactionParams{
		ID:            a.nextTransactionID(),
		AccountNumber: a.number,
		Counterparty:  counterparty,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: a.balance,
		BalanceAfter:  after,
		Status:        status,
		Failure:       failure,
		Timestamp:     a.now(),
	})
	if err != nil {
		return Transaction{}, err
	}

	a.history = append(a.history, tx)
	a.balance = after
	return tx, nil
}
