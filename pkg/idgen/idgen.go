package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyUUID       Strategy = "uuid"
)

// Generator hands out account numbers and transaction IDs that are unique
// for the lifetime of the process. Implementations must be safe for
// concurrent use.
type Generator interface {
	NextAccountNumber() string
	NextTransactionID() string
}

type Sequential struct {
	accountPrefix     string
	transactionPrefix string
	accounts          atomic.Uint64
	transactions      atomic.Uint64
}

func NewSequential(accountPrefix, transactionPrefix string) *Sequential {
	if accountPrefix == "" {
		accountPrefix = "ACC"
	}
	if transactionPrefix == "" {
		transactionPrefix = "TXN"
	}
	return &Sequential{
		accountPrefix:     accountPrefix,
		transactionPrefix: transactionPrefix,
	}
}

func (g *Sequential) NextAccountNumber() string {
	return fmt.Sprintf("%s-%06d", g.accountPrefix, g.accounts.Add(1))
}

func (g *Sequential) NextTransactionID() string {
	return fmt.Sprintf("%s-%08d", g.transactionPrefix, g.transactions.Add(1))
}

// UUID issues time-ordered v7 identifiers, so lexical order of account
// numbers follows creation order just like the sequential variant.
type UUID struct {
	accountPrefix     string
	transactionPrefix string
}

func NewUUID(accountPrefix, transactionPrefix string) *UUID {
	return &UUID{
		accountPrefix:     accountPrefix,
		transactionPrefix: transactionPrefix,
	}
}

func (g *UUID) NextAccountNumber() string {
	return g.next(g.accountPrefix)
}

func (g *UUID) NextTransactionID() string {
	return g.next(g.transactionPrefix)
}

func (g *UUID) next(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}

func New(strategy Strategy, accountPrefix, transactionPrefix string) (Generator, error) {
	switch strategy {
	case StrategySequential, "":
		return NewSequential(accountPrefix, transactionPrefix), nil
	case StrategyUUID:
		return NewUUID(accountPrefix, transactionPrefix), nil
	default:
		return nil, fmt.Errorf("unknown id strategy: %s", strategy)
	}
}
