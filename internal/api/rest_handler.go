package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bank_ledger/internal/domain"
	"bank_ledger/internal/ledger"
	"bank_ledger/pkg/crypto"
	"bank_ledger/pkg/validator"

	"github.com/shopspring/decimal"
)

const statementSignatureHeader = "X-Statement-Signature"

type Ledger interface {
	OpenAccount(ctx context.Context, customerName string, accountType domain.AccountType, initialDeposit decimal.Decimal) (domain.AccountSnapshot, error)
	CloseAccount(ctx context.Context, accountNumber string) (bool, error)
	Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (domain.Transaction, error)
	Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (domain.Transaction, error)
	Transfer(ctx context.Context, fromNumber, toNumber string, amount decimal.Decimal) (ledger.TransferResult, error)
	ApplyMonthlyProcessing(ctx context.Context) (ledger.BatchReport, error)
	GetAccount(ctx context.Context, accountNumber string) (domain.AccountSnapshot, error)
	ListAccounts(ctx context.Context) ([]domain.AccountSnapshot, error)
	History(ctx context.Context, accountNumber string, limit, offset int) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error)
	Statement(ctx context.Context, accountNumber string, from, to time.Time) (ledger.Statement, error)
}

// Notifier is told about declined operations and monthly runs. It may be nil.
type Notifier interface {
	NotifyRejectedTransaction(ctx context.Context, tx domain.Transaction) error
	NotifyMonthlyAdjustments(ctx context.Context, report ledger.BatchReport) error
}

type APIHandler struct {
	ledger         Ledger
	signer         *crypto.Signer
	validator      *validator.RequestValidator
	notifier       Notifier
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	ledger Ledger,
	signer *crypto.Signer,
	notifier Notifier,
	requestTimeout time.Duration,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return &APIHandler{
		ledger:         ledger,
		signer:         signer,
		validator:      validator.NewRequestValidator(),
		notifier:       notifier,
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

type OpenAccountRequest struct {
	CustomerName   string          `json:"customer_name" validate:"required,max=120"`
	AccountType    string          `json:"account_type" validate:"required,account_type"`
	InitialDeposit decimal.Decimal `json:"initial_deposit" validate:"money_nonneg"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"money"`
}

type TransferRequest struct {
	FromAccount string          `json:"from_account" validate:"required"`
	ToAccount   string          `json:"to_account" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"money"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *APIHandler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	accountType, err := domain.ParseAccountType(req.AccountType)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	snapshot, err := h.ledger.OpenAccount(ctx, req.CustomerName, accountType, req.InitialDeposit)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, newAccountResponse(snapshot, false), http.StatusCreated)
}

func (h *APIHandler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	snapshots, err := h.ledger.ListAccounts(ctx)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	response := make([]AccountResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		response = append(response, newAccountResponse(snapshot, false))
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	snapshot, err := h.ledger.GetAccount(ctx, r.PathValue("number"))
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, newAccountResponse(snapshot, true), http.StatusOK)
}

func (h *APIHandler) CloseAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	number := r.PathValue("number")
	closed, err := h.ledger.CloseAccount(ctx, number)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, map[string]interface{}{
		"account_number": number,
		"closed":         closed,
	}, http.StatusOK)
}

func (h *APIHandler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	tx, err := h.ledger.Deposit(ctx, r.PathValue("number"), req.Amount)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, newTransactionResponse(tx), http.StatusCreated)
}

// WithdrawHandler answers 201 for a completed withdrawal and 422 with the
// FAILED record when an account rule declined it.
func (h *APIHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	tx, err := h.ledger.Withdraw(ctx, r.PathValue("number"), req.Amount)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	if !tx.Succeeded() {
		h.notifyRejected(ctx, tx)
		h.sendJSON(w, newTransactionResponse(tx), http.StatusUnprocessableEntity)
		return
	}
	h.sendJSON(w, newTransactionResponse(tx), http.StatusCreated)
}

func (h *APIHandler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.ledger.Transfer(ctx, req.FromAccount, req.ToAccount, req.Amount)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	response := TransferResponse{Source: newTransactionResponse(result.Source)}
	if !result.Succeeded() {
		h.notifyRejected(ctx, result.Source)
		h.sendJSON(w, response, http.StatusUnprocessableEntity)
		return
	}

	destination := newTransactionResponse(result.Destination)
	response.Destination = &destination
	h.sendJSON(w, response, http.StatusCreated)
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		h.sendError(w, "limit must be a non-negative integer", http.StatusBadRequest, "INVALID_QUERY")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.sendError(w, "offset must be a non-negative integer", http.StatusBadRequest, "INVALID_QUERY")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	txs, err := h.ledger.History(ctx, r.PathValue("number"), limit, offset)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, newTransactionResponses(txs), http.StatusOK)
}

// StatementHandler renders the statement and signs the exact bytes written
// to the body.
func (h *APIHandler) StatementHandler(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		h.sendError(w, "from must be an RFC 3339 timestamp", http.StatusBadRequest, "INVALID_QUERY")
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		h.sendError(w, "to must be an RFC 3339 timestamp", http.StatusBadRequest, "INVALID_QUERY")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	statement, err := h.ledger.Statement(ctx, r.PathValue("number"), from, to)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	body, err := json.Marshal(newStatementResponse(statement))
	if err != nil {
		h.logger.Error("Failed to encode statement", slog.String("error", err.Error()))
		h.sendError(w, "Failed to render statement", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if h.signer != nil {
		w.Header().Set(statementSignatureHeader,
			h.signer.SignStatement(statement.Account.Number, statement.GeneratedAt.Unix(), body))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Error("Failed to write statement", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	transactionID := r.URL.Query().Get("id")
	if transactionID == "" {
		h.sendError(w, "Transaction ID is required", http.StatusBadRequest, "MISSING_ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	tx, err := h.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, newTransactionResponse(tx), http.StatusOK)
}

func (h *APIHandler) MonthlyProcessingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	report, err := h.ledger.ApplyMonthlyProcessing(ctx)
	if err != nil {
		h.logger.Error("Monthly processing failed", slog.String("error", err.Error()))
		h.sendError(w, "Monthly processing failed", http.StatusInternalServerError, "BATCH_FAILED")
		return
	}

	if h.notifier != nil {
		if err := h.notifier.NotifyMonthlyAdjustments(ctx, report); err != nil {
			h.logger.Warn("Failed to queue monthly notifications", slog.String("error", err.Error()))
		}
	}

	h.sendJSON(w, newBatchResponse(report), http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) notifyRejected(ctx context.Context, tx domain.Transaction) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyRejectedTransaction(ctx, tx); err != nil {
		h.logger.Warn("Failed to queue notification",
			slog.String("transaction_id", tx.ID()),
			slog.String("error", err.Error()))
	}
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, payload interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return false
	}
	if err := h.validator.Validate(payload); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return false
	}
	return true
}

// sendLedgerError maps structural ledger errors onto HTTP statuses.
func (h *APIHandler) sendLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		h.sendError(w, err.Error(), http.StatusNotFound, "ACCOUNT_NOT_FOUND")
	case errors.Is(err, domain.ErrTransactionNotFound):
		h.sendError(w, err.Error(), http.StatusNotFound, "TRANSACTION_NOT_FOUND")
	case errors.Is(err, domain.ErrAccountClosed):
		h.sendError(w, err.Error(), http.StatusConflict, "ACCOUNT_CLOSED")
	case errors.Is(err, domain.ErrInvalidAmount):
		h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_AMOUNT")
	case errors.Is(err, domain.ErrSameAccount):
		h.sendError(w, err.Error(), http.StatusBadRequest, "SAME_ACCOUNT")
	case errors.Is(err, domain.ErrAccountOpen), errors.Is(err, domain.ErrInvalidAccountType):
		h.sendError(w, err.Error(), http.StatusBadRequest, "ACCOUNT_OPEN_REJECTED")
	case errors.Is(err, context.DeadlineExceeded):
		h.sendError(w, "Request timed out", http.StatusGatewayTimeout, "TIMEOUT")
	default:
		h.logger.Error("Ledger operation failed", slog.String("error", err.Error()))
		h.sendError(w, "Internal error", http.StatusInternalServerError, "SERVER_ERROR")
	}
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	errorResponse := ErrorResponse{
		Error: message,
		Code:  code,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		h.logger.Error("Failed to encode error response", slog.String("error", err.Error()))
	}

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/accounts", h.OpenAccountHandler)
	mux.HandleFunc("GET /api/v1/accounts", h.ListAccountsHandler)
	mux.HandleFunc("GET /api/v1/accounts/{number}", h.GetAccountHandler)
	mux.HandleFunc("POST /api/v1/accounts/{number}/deposits", h.DepositHandler)
	mux.HandleFunc("POST /api/v1/accounts/{number}/withdrawals", h.WithdrawHandler)
	mux.HandleFunc("POST /api/v1/accounts/{number}/close", h.CloseAccountHandler)
	mux.HandleFunc("GET /api/v1/accounts/{number}/transactions", h.HistoryHandler)
	mux.HandleFunc("GET /api/v1/accounts/{number}/statement", h.StatementHandler)
	mux.HandleFunc("POST /api/v1/transfers", h.TransferHandler)
	mux.HandleFunc("GET /api/v1/transactions", h.GetTransactionHandler)
	mux.HandleFunc("POST /api/v1/monthly-processing", h.MonthlyProcessingHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
