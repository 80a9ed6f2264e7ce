package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"bank_ledger/internal/domain"
	"bank_ledger/internal/repository"
)

type AccountRepository struct {
	mu            sync.RWMutex
	accounts      map[string]*domain.Account
	customerIndex map[string][]string
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts:      make(map[string]*domain.Account),
		customerIndex: make(map[string][]string),
	}
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.Number()]; exists {
		return fmt.Errorf("%w: account %s", repository.ErrDuplicate, account.Number())
	}

	r.accounts[account.Number()] = account

	key := customerKey(account.CustomerName())
	r.customerIndex[key] = append(r.customerIndex[key], account.Number())

	return nil
}

func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[number]
	if !exists {
		return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, number)
	}
	return account, nil
}

func (r *AccountRepository) GetByCustomer(ctx context.Context, customerName string) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	numbers, exists := r.customerIndex[customerKey(customerName)]
	if !exists {
		return nil, fmt.Errorf("%w: customer %s", repository.ErrNotFound, customerName)
	}

	result := make([]*domain.Account, 0, len(numbers))
	for _, number := range numbers {
		result = append(result, r.accounts[number])
	}

	return result, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		result = append(result, account)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Number() < result[j].Number()
	})

	return result, nil
}

func customerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
