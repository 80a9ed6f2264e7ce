package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"bank_ledger/internal/domain"
	"bank_ledger/internal/ledger"
	"bank_ledger/internal/policy"
	"bank_ledger/internal/repository/memory"
	"bank_ledger/pkg/crypto"
	"bank_ledger/pkg/idgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	rejected []string
	reports  int
}

func (n *recordingNotifier) NotifyRejectedTransaction(ctx context.Context, tx domain.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, tx.ID())
	return nil
}

func (n *recordingNotifier) NotifyMonthlyAdjustments(ctx context.Context, report ledger.BatchReport) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports++
	return nil
}

type testServer struct {
	mux      *http.ServeMux
	signer   *crypto.Signer
	notifier *recordingNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	l := ledger.NewLedger(
		memory.NewAccountRepository(),
		memory.NewTransactionRepository(),
		idgen.NewSequential("ACC", "TXN"),
		policy.DefaultSettings(),
		logger,
	)
	s := &testServer{
		mux:      http.NewServeMux(),
		signer:   crypto.NewSigner("test-secret", logger),
		notifier: &recordingNotifier{},
	}
	NewAPIHandler(l, s.signer, s.notifier, time.Second, logger).RegisterRoutes(s.mux)
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = bytes.NewBufferString(raw)
		} else {
			payload, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(payload)
		}
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func (s *testServer) open(t *testing.T, accountType, deposit string) string {
	t.Helper()
	rec := s.do(t, "POST", "/api/v1/accounts", map[string]string{
		"customer_name":   "Ada Lovelace",
		"account_type":    accountType,
		"initial_deposit": deposit,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Number
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestOpenAccount(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/v1/accounts", `{"customer_name":"Ada","account_type":"savings","initial_deposit":"250.00"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeInto[AccountResponse](t, rec)
	assert.Equal(t, "ACC-000001", resp.Number)
	assert.Equal(t, domain.AccountSavings, resp.Type)
	assert.Equal(t, "250.00", resp.Balance)
	assert.Equal(t, domain.AccountActive, resp.Status)
}

func TestOpenAccount_Rejections(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]struct {
		body string
		code string
	}{
		"malformed":       {`{"customer_name":`, "INVALID_REQUEST"},
		"missing name":    {`{"account_type":"CHECKING"}`, "VALIDATION_ERROR"},
		"unknown type":    {`{"customer_name":"Ada","account_type":"GOLD"}`, "VALIDATION_ERROR"},
		"savings minimum": {`{"customer_name":"Ada","account_type":"SAVINGS","initial_deposit":"99.99"}`, "ACCOUNT_OPEN_REJECTED"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, "POST", "/api/v1/accounts", tc.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.code, decodeInto[ErrorResponse](t, rec).Code)
		})
	}
}

func TestDepositAndWithdraw(t *testing.T) {
	s := newTestServer(t)
	acc := s.open(t, "CHECKING", "10.00")

	rec := s.do(t, "POST", "/api/v1/accounts/"+acc+"/deposits", map[string]string{"amount": "5.50"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "15.50", decodeInto[TransactionResponse](t, rec).BalanceAfter)

	rec = s.do(t, "POST", "/api/v1/accounts/"+acc+"/withdrawals", map[string]string{"amount": "20.00"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	failed := decodeInto[TransactionResponse](t, rec)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Contains(t, failed.FailureReason, "insufficient funds")
	assert.Equal(t, "15.50", failed.BalanceAfter)
	assert.Equal(t, []string{failed.ID}, s.notifier.rejected)

	rec = s.do(t, "POST", "/api/v1/accounts/"+acc+"/withdrawals", map[string]string{"amount": "15.50"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "0.00", decodeInto[TransactionResponse](t, rec).BalanceAfter)
}

func TestStructuralErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	acc := s.open(t, "CHECKING", "0")

	rec := s.do(t, "POST", "/api/v1/accounts/ACC-999999/deposits", map[string]string{"amount": "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "POST", "/api/v1/accounts/"+acc+"/deposits", map[string]string{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "POST", "/api/v1/accounts/"+acc+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeInto[map[string]interface{}](t, rec)["closed"])

	rec = s.do(t, "POST", "/api/v1/accounts/"+acc+"/deposits", map[string]string{"amount": "1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ACCOUNT_CLOSED", decodeInto[ErrorResponse](t, rec).Code)
}

func TestTransfer(t *testing.T) {
	s := newTestServer(t)
	from := s.open(t, "SAVINGS", "500.00")
	to := s.open(t, "CHECKING", "0")

	rec := s.do(t, "POST", "/api/v1/transfers", map[string]string{"from_account": from, "to_account": to, "amount": "400.01"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	failed := decodeInto[TransferResponse](t, rec)
	assert.Nil(t, failed.Destination)
	assert.Contains(t, failed.Source.FailureReason, "minimum balance")

	rec = s.do(t, "POST", "/api/v1/transfers", map[string]string{"from_account": from, "to_account": to, "amount": "400.00"})
	require.Equal(t, http.StatusCreated, rec.Code)
	ok := decodeInto[TransferResponse](t, rec)
	require.NotNil(t, ok.Destination)
	assert.Equal(t, "100.00", ok.Source.BalanceAfter)
	assert.Equal(t, "400.00", ok.Destination.BalanceAfter)
	assert.Equal(t, from, ok.Destination.Counterparty)

	rec = s.do(t, "POST", "/api/v1/transfers", map[string]string{"from_account": from, "to_account": from, "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SAME_ACCOUNT", decodeInto[ErrorResponse](t, rec).Code)
}

func TestHistoryAndTransactionLookup(t *testing.T) {
	s := newTestServer(t)
	acc := s.open(t, "CHECKING", "10.00")
	for i := 0; i < 3; i++ {
		rec := s.do(t, "POST", "/api/v1/accounts/"+acc+"/deposits", map[string]string{"amount": strconv.Itoa(i + 1)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, "GET", "/api/v1/accounts/"+acc+"/transactions?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeInto[[]TransactionResponse](t, rec)
	require.Len(t, page, 2)
	assert.Equal(t, "3.00", page[0].Amount, "newest first")

	rec = s.do(t, "GET", "/api/v1/transactions?id="+page[1].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2.00", decodeInto[TransactionResponse](t, rec).Amount)

	rec = s.do(t, "GET", "/api/v1/transactions?id=TXN-404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, "GET", "/api/v1/transactions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, "GET", "/api/v1/accounts/"+acc+"/transactions?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "GET", "/api/v1/accounts/"+acc+"/transactions?limit=9223372036854775807&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeInto[[]TransactionResponse](t, rec), 3)
}

func TestStatementIsSigned(t *testing.T) {
	s := newTestServer(t)
	acc := s.open(t, "CHECKING", "10.00")

	rec := s.do(t, "GET", "/api/v1/accounts/"+acc+"/statement", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeInto[StatementResponse](t, rec)
	assert.Equal(t, "10.00", st.ClosingBalance)
	assert.Equal(t, 1, st.SuccessCount)

	ok, err := s.signer.VerifyStatement(acc, st.GeneratedAt.Unix(), rec.Body.Bytes(), rec.Header().Get(statementSignatureHeader))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMonthlyProcessing(t *testing.T) {
	s := newTestServer(t)
	savings := s.open(t, "SAVINGS", "500.00")

	rec := s.do(t, "POST", "/api/v1/monthly-processing", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeInto[BatchResponse](t, rec)
	assert.Equal(t, 1, report.AccountsProcessed)
	assert.Equal(t, "10.00", report.InterestCredited)
	assert.Equal(t, 1, s.notifier.reports)

	rec = s.do(t, "GET", "/api/v1/accounts/"+savings, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	account := decodeInto[AccountResponse](t, rec)
	assert.Equal(t, "510.00", account.Balance)
	assert.Len(t, account.History, 2)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "GET", "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeInto[map[string]interface{}](t, rec)["status"])
}

type brokenWriter struct {
	header http.Header
	status int
}

func (w *brokenWriter) Header() http.Header { return w.header }

func (w *brokenWriter) WriteHeader(status int) { w.status = status }

func (w *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSendErrorLogsEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	h := &APIHandler{logger: slog.New(slog.NewJSONHandler(&logs, nil))}
	w := &brokenWriter{header: http.Header{}}

	h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")

	assert.Equal(t, http.StatusBadRequest, w.status)
	assert.Contains(t, logs.String(), "Failed to encode error response")
	assert.Contains(t, logs.String(), "connection reset")
}
