package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bank_ledger/internal/domain"
	"bank_ledger/internal/policy"

	"github.com/shopspring/decimal"
)

type BatchEntry struct {
	AccountNumber string
	AccountType   domain.AccountType
	Type          domain.TransactionType
	// Computed is what the policy asked for; Amount is what was applied.
	// They differ only when a fee was capped at the available balance.
	Computed      decimal.Decimal
	Amount        decimal.Decimal
	TransactionID string
}

type BatchReport struct {
	StartedAt         time.Time
	AccountsProcessed int
	FeesCharged       decimal.Decimal
	InterestCredited  decimal.Decimal
	Entries           []BatchEntry
}

type batchPlan struct {
	account *domain.Account
	entry   BatchEntry
}

// ApplyMonthlyProcessing charges fees or credits interest on every ACTIVE
// account and resets the monthly counters. All adjustments are computed
// before any is applied; if one cannot be computed nothing changes.
func (l *Ledger) ApplyMonthlyProcessing(ctx context.Context) (BatchReport, error) {
	l.batchMu.Lock()
	defer l.batchMu.Unlock()

	start := l.now()
	report := BatchReport{
		StartedAt:        start,
		FeesCharged:      decimal.Zero,
		InterestCredited: decimal.Zero,
	}

	all, err := l.accounts.List(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list accounts: %w", err)
		l.observer.BatchCompleted(report, l.now().Sub(start), err)
		return report, err
	}

	// List is ordered by account number, the same order transfers lock in.
	for _, account := range all {
		account.Lock()
	}
	defer func() {
		for i := len(all) - 1; i >= 0; i-- {
			all[i].Unlock()
		}
	}()

	plans, err := l.planBatch(all)
	if err != nil {
		l.logger.ErrorContext(ctx, "Monthly processing aborted", slog.String("error", err.Error()))
		l.observer.BatchCompleted(report, l.now().Sub(start), err)
		return report, err
	}

	var journal []domain.Transaction
	for _, plan := range plans {
		entry := plan.entry
		if entry.Amount.IsPositive() {
			var tx domain.Transaction
			switch entry.Type {
			case domain.TypeFee:
				tx, err = plan.account.ApplyFee(entry.Amount)
				report.FeesCharged = report.FeesCharged.Add(entry.Amount)
			case domain.TypeInterest:
				tx, err = plan.account.ApplyInterest(entry.Amount)
				report.InterestCredited = report.InterestCredited.Add(entry.Amount)
			}
			if err != nil {
				// Plans are validated up front, so this is a broken invariant.
				err = fmt.Errorf("apply %s to %s: %w", entry.Type, entry.AccountNumber, err)
				l.logger.ErrorContext(ctx, "Monthly processing failed mid-run", slog.String("error", err.Error()))
				l.observer.BatchCompleted(report, l.now().Sub(start), err)
				return report, err
			}
			entry.TransactionID = tx.ID()
			journal = append(journal, tx)
			l.observer.BalanceChanged(plan.account.Number(), plan.account.Type(), plan.account.Balance())
		}
		plan.account.ResetMonthlyCounters()
		report.Entries = append(report.Entries, entry)
	}
	report.AccountsProcessed = len(plans)

	if err := l.commit(ctx, journal...); err != nil {
		l.observer.BatchCompleted(report, l.now().Sub(start), err)
		return report, err
	}

	l.observer.BatchCompleted(report, l.now().Sub(start), nil)
	l.logger.InfoContext(ctx, "Monthly processing completed",
		slog.Int("accounts", report.AccountsProcessed),
		slog.String("fees_charged", report.FeesCharged.StringFixed(2)),
		slog.String("interest_credited", report.InterestCredited.StringFixed(2)),
		slog.Duration("duration", l.now().Sub(start)))

	return report, nil
}

func (l *Ledger) planBatch(accounts []*domain.Account) ([]batchPlan, error) {
	plans := make([]batchPlan, 0, len(accounts))
	for _, account := range accounts {
		if !account.IsActive() {
			continue
		}

		pol, err := l.policyFor(account.Type())
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", account.Number(), err)
		}
		adj := pol.MonthlyAdjustment(account)
		amount, err := applicableAmount(account, adj)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", account.Number(), err)
		}

		plans = append(plans, batchPlan{
			account: account,
			entry: BatchEntry{
				AccountNumber: account.Number(),
				AccountType:   account.Type(),
				Type:          adj.Type,
				Computed:      adj.Amount,
				Amount:        amount,
			},
		})
	}
	return plans, nil
}

// applicableAmount checks an adjustment and caps fees at the balance so a
// CHECKING account never goes negative.
func applicableAmount(account policy.AccountView, adj policy.Adjustment) (decimal.Decimal, error) {
	if adj.Amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative %s adjustment %s", domain.ErrInvalidAmount, adj.Type, adj.Amount)
	}
	if !adj.Amount.Equal(adj.Amount.Round(2)) {
		return decimal.Zero, fmt.Errorf("%w: %s adjustment %s is not whole cents", domain.ErrInvalidAmount, adj.Type, adj.Amount)
	}

	switch adj.Type {
	case domain.TypeFee:
		if adj.Amount.GreaterThan(account.Balance()) {
			return account.Balance(), nil
		}
		return adj.Amount, nil
	case domain.TypeInterest:
		return adj.Amount, nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected monthly adjustment type %s", adj.Type)
	}
}
