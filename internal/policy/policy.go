// Package policy holds the per-account-type rules: which withdrawals are
// allowed and what the monthly batch charges or credits.
package policy

import (
	"fmt"

	"bank_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// AccountView is the read-only state a policy decides on.
type AccountView interface {
	Balance() decimal.Decimal
	TransactionCount() int
	WithdrawalCount() int
}

type Adjustment struct {
	Type   domain.TransactionType
	Amount decimal.Decimal
}

// Policy is implemented by Checking and Savings only.
type Policy interface {
	ValidateWithdrawal(account AccountView, amount decimal.Decimal) error
	MonthlyAdjustment(account AccountView) Adjustment
	OpeningMinimum() decimal.Decimal
	// TracksWithdrawals reports whether direct withdrawals count against a
	// monthly cap.
	TracksWithdrawals() bool
	sealed()
}

type Settings struct {
	CheckingFreeTransactions int
	CheckingFeePerExtra      decimal.Decimal
	SavingsInterestRate      decimal.Decimal
	SavingsMinimumBalance    decimal.Decimal
	SavingsWithdrawalLimit   int
}

func DefaultSettings() Settings {
	return Settings{
		CheckingFreeTransactions: 10,
		CheckingFeePerExtra:      decimal.RequireFromString("2.50"),
		SavingsInterestRate:      decimal.RequireFromString("0.02"),
		SavingsMinimumBalance:    decimal.RequireFromString("100.00"),
		SavingsWithdrawalLimit:   5,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.CheckingFreeTransactions < 0:
		return fmt.Errorf("checking free transactions must not be negative: %d", s.CheckingFreeTransactions)
	case s.CheckingFeePerExtra.IsNegative():
		return fmt.Errorf("checking fee must not be negative: %s", s.CheckingFeePerExtra)
	case s.SavingsInterestRate.IsNegative():
		return fmt.Errorf("savings interest rate must not be negative: %s", s.SavingsInterestRate)
	case s.SavingsMinimumBalance.IsNegative():
		return fmt.Errorf("savings minimum balance must not be negative: %s", s.SavingsMinimumBalance)
	case s.SavingsWithdrawalLimit < 0:
		return fmt.Errorf("savings withdrawal limit must not be negative: %d", s.SavingsWithdrawalLimit)
	}
	return nil
}

type Checking struct {
	freeTransactions int
	feePerExtra      decimal.Decimal
}

func NewChecking(s Settings) Checking {
	return Checking{
		freeTransactions: s.CheckingFreeTransactions,
		feePerExtra:      s.CheckingFeePerExtra,
	}
}

func (p Checking) ValidateWithdrawal(account AccountView, amount decimal.Decimal) error {
	if amount.GreaterThan(account.Balance()) {
		return fmt.Errorf("%w: balance %s, requested %s", domain.ErrInsufficientFunds, account.Balance(), amount)
	}
	return nil
}

// MonthlyAdjustment charges feePerExtra for every transaction above the free
// allowance.
func (p Checking) MonthlyAdjustment(account AccountView) Adjustment {
	extra := account.TransactionCount() - p.freeTransactions
	if extra < 0 {
		extra = 0
	}
	return Adjustment{
		Type:   domain.TypeFee,
		Amount: p.feePerExtra.Mul(decimal.NewFromInt(int64(extra))).Round(2),
	}
}

func (p Checking) OpeningMinimum() decimal.Decimal { return decimal.Zero }

func (p Checking) TracksWithdrawals() bool { return false }

func (Checking) sealed() {}

type Savings struct {
	interestRate    decimal.Decimal
	minimumBalance  decimal.Decimal
	withdrawalLimit int
}

func NewSavings(s Settings) Savings {
	return Savings{
		interestRate:    s.SavingsInterestRate,
		minimumBalance:  s.SavingsMinimumBalance,
		withdrawalLimit: s.SavingsWithdrawalLimit,
	}
}

// ValidateWithdrawal checks funds, then the minimum balance, then the monthly
// cap, and reports the first violation only.
func (p Savings) ValidateWithdrawal(account AccountView, amount decimal.Decimal) error {
	balance := account.Balance()
	if amount.GreaterThan(balance) {
		return fmt.Errorf("%w: balance %s, requested %s", domain.ErrInsufficientFunds, balance, amount)
	}
	if balance.Sub(amount).LessThan(p.minimumBalance) {
		return fmt.Errorf("%w: %s would remain, minimum is %s", domain.ErrMinimumBalance, balance.Sub(amount), p.minimumBalance)
	}
	if account.WithdrawalCount() >= p.withdrawalLimit {
		return fmt.Errorf("%w: %d of %d used", domain.ErrWithdrawalLimit, account.WithdrawalCount(), p.withdrawalLimit)
	}
	return nil
}

func (p Savings) MonthlyAdjustment(account AccountView) Adjustment {
	return Adjustment{
		Type:   domain.TypeInterest,
		Amount: account.Balance().Mul(p.interestRate).Round(2),
	}
}

func (p Savings) OpeningMinimum() decimal.Decimal { return p.minimumBalance }

func (p Savings) TracksWithdrawals() bool { return true }

func (Savings) sealed() {}
