package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"

	"github.com/shopspring/decimal"
)

type Statement struct {
	Account        domain.AccountSnapshot
	From           time.Time
	To             time.Time
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	Transactions   []domain.Transaction
	Summary        StatementSummary
	GeneratedAt    time.Time
}

type StatementSummary struct {
	Credits          decimal.Decimal
	Debits           decimal.Decimal
	FeesCharged      decimal.Decimal
	InterestCredited decimal.Decimal
	SuccessCount     int
	FailedCount      int
}

func (l *Ledger) GetAccount(ctx context.Context, accountNumber string) (domain.AccountSnapshot, error) {
	account, err := l.lookup(ctx, accountNumber)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}

	account.Lock()
	defer account.Unlock()
	return account.Snapshot(), nil
}

func (l *Ledger) ListAccounts(ctx context.Context) ([]domain.AccountSnapshot, error) {
	accounts, err := l.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return snapshots(accounts), nil
}

func (l *Ledger) CustomerAccounts(ctx context.Context, customerName string) ([]domain.AccountSnapshot, error) {
	accounts, err := l.accounts.GetByCustomer(ctx, customerName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []domain.AccountSnapshot{}, nil
		}
		return nil, fmt.Errorf("failed to get customer accounts: %w", err)
	}
	return snapshots(accounts), nil
}

// History pages through the audit journal for one account, newest first.
func (l *Ledger) History(ctx context.Context, accountNumber string, limit, offset int) ([]domain.Transaction, error) {
	if _, err := l.lookup(ctx, accountNumber); err != nil {
		return nil, err
	}

	txs, err := l.journal.GetByAccount(ctx, accountNumber, limit, offset)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []domain.Transaction{}, nil
		}
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return txs, nil
}

func (l *Ledger) GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	tx, err := l.journal.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, transactionID)
		}
		return domain.Transaction{}, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (l *Ledger) FailedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return l.journal.GetByStatus(ctx, domain.StatusFailed)
}

// Statement summarises the account history between from and to, both
// inclusive. A zero to means up to now.
func (l *Ledger) Statement(ctx context.Context, accountNumber string, from, to time.Time) (Statement, error) {
	snapshot, err := l.GetAccount(ctx, accountNumber)
	if err != nil {
		return Statement{}, err
	}

	generated := l.now()
	if to.IsZero() {
		to = generated
	}
	if to.Before(from) {
		return Statement{}, fmt.Errorf("statement period ends before it starts: %s < %s", to, from)
	}

	st := Statement{
		Account:        snapshot,
		From:           from,
		To:             to,
		OpeningBalance: decimal.Zero,
		Transactions:   []domain.Transaction{},
		Summary: StatementSummary{
			Credits:          decimal.Zero,
			Debits:           decimal.Zero,
			FeesCharged:      decimal.Zero,
			InterestCredited: decimal.Zero,
		},
		GeneratedAt: generated,
	}

	for _, tx := range snapshot.History {
		switch {
		case tx.Timestamp().Before(from):
			st.OpeningBalance = tx.BalanceAfter()
			continue
		case tx.Timestamp().After(to):
			continue
		}

		st.Transactions = append(st.Transactions, tx)
		if !tx.Succeeded() {
			st.Summary.FailedCount++
			continue
		}
		st.Summary.SuccessCount++

		delta := tx.BalanceAfter().Sub(tx.BalanceBefore())
		if delta.IsPositive() {
			st.Summary.Credits = st.Summary.Credits.Add(delta)
		} else {
			st.Summary.Debits = st.Summary.Debits.Add(delta.Neg())
		}
		switch tx.Type() {
		case domain.TypeFee:
			st.Summary.FeesCharged = st.Summary.FeesCharged.Add(tx.Amount())
		case domain.TypeInterest:
			st.Summary.InterestCredited = st.Summary.InterestCredited.Add(tx.Amount())
		}
	}

	st.ClosingBalance = st.OpeningBalance
	if n := len(st.Transactions); n > 0 {
		st.ClosingBalance = st.Transactions[n-1].BalanceAfter()
	}

	return st, nil
}

func snapshots(accounts []*domain.Account) []domain.AccountSnapshot {
	result := make([]domain.AccountSnapshot, 0, len(accounts))
	for _, account := range accounts {
		account.Lock()
		result = append(result, account.Snapshot())
		account.Unlock()
	}
	return result
}
