package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bank_ledger/internal/domain"
	"bank_ledger/internal/policy"
	"bank_ledger/internal/repository"
	"bank_ledger/pkg/idgen"

	"github.com/shopspring/decimal"
)

// Ledger is the only component that mutates more than one account in a
// single call. Business rule violations come back as FAILED transactions
// with a nil error; structural problems come back as errors and leave no
// record.
type Ledger struct {
	accounts repository.AccountRepository
	journal  repository.TransactionRepository
	checking policy.Checking
	savings  policy.Savings
	ids      idgen.Generator
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	// batchMu keeps monthly runs from overlapping.
	batchMu sync.Mutex
}

type Option func(*Ledger)

func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		if o != nil {
			l.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLedger(
	accounts repository.AccountRepository,
	journal repository.TransactionRepository,
	ids idgen.Generator,
	settings policy.Settings,
	logger *slog.Logger,
	opts ...Option,
) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Ledger{
		accounts: accounts,
		journal:  journal,
		checking: policy.NewChecking(settings),
		savings:  policy.NewSavings(settings),
		ids:      ids,
		observer: noopObserver{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TransferResult holds the source leg and, when the transfer went through,
// the destination leg.
type TransferResult struct {
	Source      domain.Transaction
	Destination domain.Transaction
}

func (r TransferResult) Succeeded() bool {
	return r.Source.Succeeded() && !r.Destination.IsZero()
}

func (l *Ledger) policyFor(t domain.AccountType) (policy.Policy, error) {
	switch t {
	case domain.AccountChecking:
		return l.checking, nil
	case domain.AccountSavings:
		return l.savings, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAccountType, t)
	}
}

func (l *Ledger) OpenAccount(ctx context.Context, customerName string, accountType domain.AccountType, initialDeposit decimal.Decimal) (domain.AccountSnapshot, error) {
	start := l.now()

	pol, err := l.policyFor(accountType)
	if err != nil {
		return l.rejectOpen(ctx, fmt.Errorf("%w: %w", domain.ErrAccountOpen, err))
	}
	if initialDeposit.LessThan(pol.OpeningMinimum()) {
		return l.rejectOpen(ctx, fmt.Errorf("%w: initial deposit %s is below the %s minimum of %s",
			domain.ErrAccountOpen, initialDeposit, accountType, pol.OpeningMinimum()))
	}

	account, opening, err := domain.NewAccount(domain.AccountParams{
		Number:            l.ids.NextAccountNumber(),
		CustomerName:      customerName,
		Type:              accountType,
		OpeningDeposit:    initialDeposit,
		NextTransactionID: l.ids.NextTransactionID,
		Clock:             l.now,
	})
	if err != nil {
		return l.rejectOpen(ctx, err)
	}

	account.Lock()
	defer account.Unlock()

	if err := l.accounts.Save(ctx, account); err != nil {
		return l.rejectOpen(ctx, fmt.Errorf("%w: %w", domain.ErrAccountOpen, err))
	}
	if err := l.commit(ctx, opening); err != nil {
		return domain.AccountSnapshot{}, err
	}

	l.observer.AccountOpened(account.Type())
	l.observer.BalanceChanged(account.Number(), account.Type(), account.Balance())
	l.observer.OperationRecorded(OpOpen, opening.Status(), l.now().Sub(start))

	l.logger.InfoContext(ctx, "Account opened",
		slog.String("account_number", account.Number()),
		slog.String("account_type", string(account.Type())),
		slog.String("initial_deposit", initialDeposit.StringFixed(2)))

	return account.Snapshot(), nil
}

func (l *Ledger) rejectOpen(ctx context.Context, err error) (domain.AccountSnapshot, error) {
	l.reject(ctx, OpOpen, "", err)
	return domain.AccountSnapshot{}, err
}

// CloseAccount reports false without changing anything when the balance is
// not zero or the account is already closed.
func (l *Ledger) CloseAccount(ctx context.Context, accountNumber string) (bool, error) {
	account, err := l.lookup(ctx, accountNumber)
	if err != nil {
		l.reject(ctx, OpClose, accountNumber, err)
		return false, err
	}

	account.Lock()
	defer account.Unlock()

	if !account.Close() {
		l.logger.InfoContext(ctx, "Account not closed",
			slog.String("account_number", accountNumber),
			slog.String("status", string(account.Status())),
			slog.String("balance", account.Balance().StringFixed(2)))
		return false, nil
	}

	l.observer.AccountClosed(account.Number(), account.Type())
	l.logger.InfoContext(ctx, "Account closed", slog.String("account_number", accountNumber))
	return true, nil
}

func (l *Ledger) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (domain.Transaction, error) {
	start := l.now()

	account, err := l.lookup(ctx, accountNumber)
	if err != nil {
		return l.rejectTx(ctx, OpDeposit, accountNumber, err)
	}

	account.Lock()
	defer account.Unlock()

	tx, err := account.Deposit(amount)
	if err != nil {
		return l.rejectTx(ctx, OpDeposit, accountNumber, err)
	}
	if err := l.commit(ctx, tx); err != nil {
		return tx, err
	}

	l.recorded(ctx, OpDeposit, account, tx, start)
	return tx, nil
}

func (l *Ledger) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (domain.Transaction, error) {
	start := l.now()

	account, err := l.lookup(ctx, accountNumber)
	if err != nil {
		return l.rejectTx(ctx, OpWithdraw, accountNumber, err)
	}

	account.Lock()
	defer account.Unlock()

	if err := checkOperable(account, amount); err != nil {
		return l.rejectTx(ctx, OpWithdraw, accountNumber, err)
	}
	pol, err := l.policyFor(account.Type())
	if err != nil {
		return l.rejectTx(ctx, OpWithdraw, accountNumber, err)
	}

	var tx domain.Transaction
	if violation := pol.ValidateWithdrawal(account, amount); violation != nil {
		if !domain.IsBusinessRuleViolation(violation) {
			return l.rejectTx(ctx, OpWithdraw, accountNumber, violation)
		}
		tx, err = account.RecordFailedTransaction(domain.TypeWithdrawal, amount, "", violation)
	} else {
		tx, err = account.Withdraw(amount)
		if err == nil && pol.TracksWithdrawals() {
			account.IncrementWithdrawalCount()
		}
	}
	if err != nil {
		return l.rejectTx(ctx, OpWithdraw, accountNumber, err)
	}
	if err := l.commit(ctx, tx); err != nil {
		return tx, err
	}

	l.recorded(ctx, OpWithdraw, account, tx, start)
	return tx, nil
}

// Transfer moves amount between two accounts under both locks, taken in
// account number order. A policy violation on the source leaves both accounts
// untouched and records one FAILED TRANSFER on the source only.
func (l *Ledger) Transfer(ctx context.Context, fromNumber, toNumber string, amount decimal.Decimal) (TransferResult, error) {
	start := l.now()

	if fromNumber == toNumber {
		return l.rejectTransfer(ctx, fromNumber, fmt.Errorf("%w: %s", domain.ErrSameAccount, fromNumber))
	}
	from, err := l.lookup(ctx, fromNumber)
	if err != nil {
		return l.rejectTransfer(ctx, fromNumber, err)
	}
	to, err := l.lookup(ctx, toNumber)
	if err != nil {
		return l.rejectTransfer(ctx, fromNumber, err)
	}

	unlock := lockInOrder(from, to)
	defer unlock()

	if err := checkOperable(from, amount); err != nil {
		return l.rejectTransfer(ctx, fromNumber, err)
	}
	if !to.IsActive() {
		return l.rejectTransfer(ctx, fromNumber, fmt.Errorf("%w: %s", domain.ErrAccountClosed, toNumber))
	}
	pol, err := l.policyFor(from.Type())
	if err != nil {
		return l.rejectTransfer(ctx, fromNumber, err)
	}

	if violation := pol.ValidateWithdrawal(from, amount); violation != nil {
		if !domain.IsBusinessRuleViolation(violation) {
			return l.rejectTransfer(ctx, fromNumber, violation)
		}
		failed, err := from.RecordFailedTransaction(domain.TypeTransfer, amount, toNumber, violation)
		if err != nil {
			return l.rejectTransfer(ctx, fromNumber, err)
		}
		if err := l.commit(ctx, failed); err != nil {
			return TransferResult{Source: failed}, err
		}
		l.recorded(ctx, OpTransfer, from, failed, start)
		return TransferResult{Source: failed}, nil
	}

	// Both legs are pre-checked above; neither call below can fail on
	// account state.
	out, err := from.TransferOut(amount, toNumber)
	if err != nil {
		return l.rejectTransfer(ctx, fromNumber, err)
	}
	in, err := to.TransferIn(amount, fromNumber)
	if err != nil {
		return TransferResult{Source: out}, fmt.Errorf("transfer %s: destination leg failed after debit: %w", out.ID(), err)
	}
	if err := l.commit(ctx, out, in); err != nil {
		return TransferResult{Source: out, Destination: in}, err
	}

	l.observer.BalanceChanged(to.Number(), to.Type(), to.Balance())
	l.recorded(ctx, OpTransfer, from, out, start)
	return TransferResult{Source: out, Destination: in}, nil
}

func (l *Ledger) rejectTransfer(ctx context.Context, accountNumber string, err error) (TransferResult, error) {
	l.reject(ctx, OpTransfer, accountNumber, err)
	return TransferResult{}, err
}

func (l *Ledger) rejectTx(ctx context.Context, op Operation, accountNumber string, err error) (domain.Transaction, error) {
	l.reject(ctx, op, accountNumber, err)
	return domain.Transaction{}, err
}

func (l *Ledger) reject(ctx context.Context, op Operation, accountNumber string, err error) {
	l.observer.OperationRejected(op, err)
	l.logger.WarnContext(ctx, "Operation rejected",
		slog.String("operation", string(op)),
		slog.String("account_number", accountNumber),
		slog.String("error", err.Error()))
}

func (l *Ledger) recorded(ctx context.Context, op Operation, account *domain.Account, tx domain.Transaction, start time.Time) {
	l.observer.OperationRecorded(op, tx.Status(), l.now().Sub(start))

	if !tx.Succeeded() {
		l.logger.InfoContext(ctx, "Operation failed business rules",
			slog.String("operation", string(op)),
			slog.String("account_number", account.Number()),
			slog.String("transaction_id", tx.ID()),
			slog.String("amount", tx.Amount().StringFixed(2)),
			slog.String("reason", tx.FailureReason()))
		return
	}

	l.observer.BalanceChanged(account.Number(), account.Type(), account.Balance())
	l.logger.InfoContext(ctx, "Operation completed",
		slog.String("operation", string(op)),
		slog.String("account_number", account.Number()),
		slog.String("transaction_id", tx.ID()),
		slog.String("amount", tx.Amount().StringFixed(2)),
		slog.String("balance", tx.BalanceAfter().StringFixed(2)))
}

// commit appends records to the audit journal. The account histories already
// hold them, so a failure here is logged loudly and returned.
func (l *Ledger) commit(ctx context.Context, txs ...domain.Transaction) error {
	for _, tx := range txs {
		if err := l.journal.Save(ctx, tx); err != nil {
			l.logger.ErrorContext(ctx, "Failed to journal transaction",
				slog.String("transaction_id", tx.ID()),
				slog.String("account_number", tx.AccountNumber()),
				slog.String("error", err.Error()))
			return fmt.Errorf("journal transaction %s: %w", tx.ID(), err)
		}
	}
	return nil
}

func (l *Ledger) lookup(ctx context.Context, accountNumber string) (*domain.Account, error) {
	account, err := l.accounts.GetByNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountNumber)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func checkOperable(account *domain.Account, amount decimal.Decimal) error {
	if !account.IsActive() {
		return fmt.Errorf("%w: %s", domain.ErrAccountClosed, account.Number())
	}
	return domain.ValidateAmount(amount)
}

// lockInOrder locks both accounts by ascending account number and returns
// the matching unlock.
func lockInOrder(a, b *domain.Account) func() {
	first, second := a, b
	if second.Number() < first.Number() {
		first, second = second, first
	}
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
