package repository

import (
	"context"
	"errors"
	"time"

	"bank_ledger/internal/domain"
)

// TransactionRepository is the ledger-wide audit journal. Records are only
// ever appended.
type TransactionRepository interface {
	Save(ctx context.Context, tx domain.Transaction) error
	GetByID(ctx context.Context, id string) (domain.Transaction, error)
	// GetByAccount returns the newest records first.
	GetByAccount(ctx context.Context, accountNumber string, limit, offset int) ([]domain.Transaction, error)
	GetByStatus(ctx context.Context, status domain.TransactionStatus) ([]domain.Transaction, error)
	GetByPeriod(ctx context.Context, from, to time.Time) ([]domain.Transaction, error)
}

// AccountRepository stores accounts by number. Accounts are inserted once and
// never removed, so callers may keep the returned pointers.
type AccountRepository interface {
	Save(ctx context.Context, account *domain.Account) error
	GetByNumber(ctx context.Context, number string) (*domain.Account, error)
	GetByCustomer(ctx context.Context, customerName string) ([]*domain.Account, error)
	// List returns every account ordered by account number.
	List(ctx context.Context) ([]*domain.Account, error)
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)
