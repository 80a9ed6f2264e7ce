package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bank_ledger/internal/api"
	"bank_ledger/internal/domain"
	"bank_ledger/internal/ledger"
	"bank_ledger/internal/policy"
	"bank_ledger/internal/repository/memory"
	"bank_ledger/internal/scheduler"
	"bank_ledger/internal/service"
	"bank_ledger/pkg/crypto"
	"bank_ledger/pkg/idgen"
	"bank_ledger/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSender struct {
	mu  sync.Mutex
	sms int
}

func (c *countingSender) SendEmail(to, subject, body string) error { return nil }

func (c *countingSender) SendSMS(to, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sms++
	return nil
}

type testEnv struct {
	journal       *memory.TransactionRepository
	ledger        *ledger.Ledger
	metrics       *metrics.MetricsCollector
	notifications *service.NotificationService
	sender        *countingSender
	server        *httptest.Server
	logger        *slog.Logger
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	env := &testEnv{
		journal: memory.NewTransactionRepository(),
		metrics: metrics.NewMetricsCollector(logger),
		sender:  &countingSender{},
		logger:  logger,
	}
	env.ledger = ledger.NewLedger(
		memory.NewAccountRepository(),
		env.journal,
		idgen.NewSequential("ACC", "TXN"),
		policy.DefaultSettings(),
		logger,
		ledger.WithObserver(env.metrics),
	)
	env.notifications = service.NewNotificationService(env.sender, env.sender, 2, 64, logger)

	handler := api.NewAPIHandler(env.ledger, crypto.NewSigner("test-secret", logger), env.notifications, 5*time.Second, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	env.server = httptest.NewServer(mux)

	t.Cleanup(func() {
		env.server.Close()
		_ = env.notifications.Shutdown(context.Background())
	})
	return env
}

func (env *testEnv) post(t *testing.T, path string, body interface{}) (int, []byte) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(env.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func (env *testEnv) open(t *testing.T, accountType, deposit string) string {
	t.Helper()
	code, raw := env.post(t, "/api/v1/accounts", map[string]string{
		"customer_name":   "Integration",
		"account_type":    accountType,
		"initial_deposit": deposit,
	})
	require.Equal(t, http.StatusCreated, code, string(raw))

	var acc api.AccountResponse
	require.NoError(t, json.Unmarshal(raw, &acc))
	return acc.Number
}

func (env *testEnv) balance(t *testing.T, number string) decimal.Decimal {
	t.Helper()
	snap, err := env.ledger.GetAccount(context.Background(), number)
	require.NoError(t, err)
	return snap.Balance
}

func TestConcurrentOpposingTransfersOverHTTP(t *testing.T) {
	env := setup(t)
	a := env.open(t, "CHECKING", "1000.00")
	b := env.open(t, "CHECKING", "1000.00")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		from, to := a, b
		if i%2 == 1 {
			from, to = b, a
		}
		wg.Add(1)
		go func(from, to string) {
			defer wg.Done()
			code, raw := env.post(t, "/api/v1/transfers", map[string]string{
				"from_account": from,
				"to_account":   to,
				"amount":       "7.25",
			})
			assert.Equal(t, http.StatusCreated, code, string(raw))
		}(from, to)
	}
	wg.Wait()

	total := env.balance(t, a).Add(env.balance(t, b))
	assert.True(t, total.Equal(decimal.RequireFromString("2000.00")), "funds conserved, got %s", total)
	expected := `
# HELP ledger_operations_recorded_total Operations that produced an audit record, by outcome
# TYPE ledger_operations_recorded_total counter
ledger_operations_recorded_total{operation="open",status="SUCCESS"} 2
ledger_operations_recorded_total{operation="transfer",status="SUCCESS"} 40
`
	assert.NoError(t, testutil.GatherAndCompare(env.metrics.Registry(), strings.NewReader(expected), "ledger_operations_recorded_total"))
}

func TestMonthlyCycleThroughScheduler(t *testing.T) {
	env := setup(t)
	checking := env.open(t, "CHECKING", "100.00")
	savings := env.open(t, "SAVINGS", "500.00")

	for i := 0; i < 12; i++ {
		code, raw := env.post(t, fmt.Sprintf("/api/v1/accounts/%s/deposits", checking), map[string]string{"amount": "1.00"})
		require.Equal(t, http.StatusCreated, code, string(raw))
	}
	code, _ := env.post(t, fmt.Sprintf("/api/v1/accounts/%s/withdrawals", savings), map[string]string{"amount": "400.01"})
	require.Equal(t, http.StatusUnprocessableEntity, code)

	sched := scheduler.New(env.ledger, time.Hour, func(ctx context.Context, report ledger.BatchReport) {
		require.NoError(t, env.notifications.NotifyMonthlyAdjustments(ctx, report))
	}, env.logger)
	report, err := sched.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.AccountsProcessed)
	assert.True(t, report.FeesCharged.Equal(decimal.RequireFromString("5.00")), "12 transactions, 2 over the allowance")
	assert.True(t, report.InterestCredited.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, env.balance(t, checking).Equal(decimal.RequireFromString("107.00")))
	assert.True(t, env.balance(t, savings).Equal(decimal.RequireFromString("510.00")))

	for _, number := range []string{checking, savings} {
		snap, err := env.ledger.GetAccount(context.Background(), number)
		require.NoError(t, err)
		assert.Zero(t, snap.MonthlyTransactionCount)
		assert.Zero(t, snap.MonthlyWithdrawalCount)
	}

	failed, err := env.ledger.FailedTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err(), domain.ErrMinimumBalance)

	require.NoError(t, env.notifications.Shutdown(context.Background()))
	env.sender.mu.Lock()
	assert.Equal(t, 2, env.sender.sms)
	env.sender.mu.Unlock()
}

func TestAuditJournalMatchesHistories(t *testing.T) {
	env := setup(t)
	a := env.open(t, "SAVINGS", "300.00")
	b := env.open(t, "CHECKING", "0")

	env.post(t, "/api/v1/transfers", map[string]string{"from_account": a, "to_account": b, "amount": "150.00"})
	env.post(t, "/api/v1/transfers", map[string]string{"from_account": a, "to_account": b, "amount": "100.00"})
	env.post(t, "/api/v1/accounts/"+b+"/withdrawals", map[string]string{"amount": "1000.00"})

	total := 0
	for _, number := range []string{a, b} {
		snap, err := env.ledger.GetAccount(context.Background(), number)
		require.NoError(t, err)
		total += len(snap.History)
	}
	assert.Equal(t, total, env.journal.Count())
}
