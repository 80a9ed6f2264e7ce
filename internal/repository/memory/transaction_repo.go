package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
)

// TransactionRepository keeps records in arrival order. Positions in journal
// never change, so the per-account index can hold offsets.
type TransactionRepository struct {
	mu      sync.RWMutex
	journal []domain.Transaction
	byID    map[string]int
	index   map[string][]int
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		byID:  make(map[string]int),
		index: make(map[string][]int),
	}
}

func (r *TransactionRepository) Save(ctx context.Context, tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[tx.ID()]; exists {
		return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, tx.ID())
	}

	pos := len(r.journal)
	r.journal = append(r.journal, tx)
	r.byID[tx.ID()] = pos
	r.index[tx.AccountNumber()] = append(r.index[tx.AccountNumber()], pos)

	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, exists := r.byID[id]
	if !exists {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	return r.journal[pos], nil
}

func (r *TransactionRepository) GetByAccount(ctx context.Context, accountNumber string, limit, offset int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	positions, exists := r.index[accountNumber]
	if !exists {
		return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, accountNumber)
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(positions) {
		return []domain.Transaction{}, nil
	}
	end := len(positions)
	if limit > 0 && limit < len(positions)-offset {
		end = offset + limit
	}

	result := make([]domain.Transaction, 0, end-offset)
	for i := offset; i < end; i++ {
		result = append(result, r.journal[positions[len(positions)-1-i]])
	}

	return result, nil
}

func (r *TransactionRepository) GetByStatus(ctx context.Context, status domain.TransactionStatus) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Transaction
	for i := len(r.journal) - 1; i >= 0; i-- {
		if r.journal[i].Status() == status {
			result = append(result, r.journal[i])
		}
	}

	return result, nil
}

func (r *TransactionRepository) GetByPeriod(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Transaction
	for _, tx := range r.journal {
		if !tx.Timestamp().Before(from) && !tx.Timestamp().After(to) {
			result = append(result, tx)
		}
	}

	return result, nil
}

func (r *TransactionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.journal)
}
