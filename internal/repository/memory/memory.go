package memory

import (
	"bank_ledger/internal/repository"
)

var (
	_ repository.TransactionRepository = (*TransactionRepository)(nil)
	_ repository.AccountRepository     = (*AccountRepository)(nil)
)
