package api

import (
	"time"

	"bank_ledger/internal/domain"
	"bank_ledger/internal/ledger"
)

// Money is rendered as fixed two-decimal strings so clients never see
// float rounding.

type AccountResponse struct {
	Number                  string                `json:"account_number"`
	CustomerName            string                `json:"customer_name"`
	Type                    domain.AccountType    `json:"account_type"`
	Balance                 string                `json:"balance"`
	Status                  domain.AccountStatus  `json:"status"`
	MonthlyTransactionCount int                   `json:"monthly_transaction_count"`
	MonthlyWithdrawalCount  int                   `json:"monthly_withdrawal_count"`
	OpenedAt                time.Time             `json:"opened_at"`
	History                 []TransactionResponse `json:"history,omitempty"`
}

type TransactionResponse struct {
	ID            string                   `json:"id"`
	AccountNumber string                   `json:"account_number"`
	Counterparty  string                   `json:"counterparty,omitempty"`
	Type          domain.TransactionType   `json:"type"`
	Amount        string                   `json:"amount"`
	BalanceBefore string                   `json:"balance_before"`
	BalanceAfter  string                   `json:"balance_after"`
	Status        domain.TransactionStatus `json:"status"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	Timestamp     time.Time                `json:"timestamp"`
}

type TransferResponse struct {
	Source      TransactionResponse  `json:"source"`
	Destination *TransactionResponse `json:"destination,omitempty"`
}

type StatementResponse struct {
	Account          AccountResponse       `json:"account"`
	From             time.Time             `json:"from"`
	To               time.Time             `json:"to"`
	OpeningBalance   string                `json:"opening_balance"`
	ClosingBalance   string                `json:"closing_balance"`
	Credits          string                `json:"credits"`
	Debits           string                `json:"debits"`
	FeesCharged      string                `json:"fees_charged"`
	InterestCredited string                `json:"interest_credited"`
	SuccessCount     int                   `json:"success_count"`
	FailedCount      int                   `json:"failed_count"`
	Transactions     []TransactionResponse `json:"transactions"`
	GeneratedAt      time.Time             `json:"generated_at"`
}

type BatchEntryResponse struct {
	AccountNumber string                 `json:"account_number"`
	AccountType   domain.AccountType     `json:"account_type"`
	Type          domain.TransactionType `json:"type"`
	Computed      string                 `json:"computed"`
	Amount        string                 `json:"amount"`
	TransactionID string                 `json:"transaction_id,omitempty"`
}

type BatchResponse struct {
	StartedAt         time.Time            `json:"started_at"`
	AccountsProcessed int                  `json:"accounts_processed"`
	FeesCharged       string               `json:"fees_charged"`
	InterestCredited  string               `json:"interest_credited"`
	Entries           []BatchEntryResponse `json:"entries"`
}

func newAccountResponse(s domain.AccountSnapshot, withHistory bool) AccountResponse {
	resp := AccountResponse{
		Number:                  s.Number,
		CustomerName:            s.CustomerName,
		Type:                    s.Type,
		Balance:                 s.Balance.StringFixed(2),
		Status:                  s.Status,
		MonthlyTransactionCount: s.MonthlyTransactionCount,
		MonthlyWithdrawalCount:  s.MonthlyWithdrawalCount,
		OpenedAt:                s.OpenedAt,
	}
	if withHistory {
		resp.History = newTransactionResponses(s.History)
	}
	return resp
}

func newTransactionResponse(tx domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            tx.ID(),
		AccountNumber: tx.AccountNumber(),
		Counterparty:  tx.Counterparty(),
		Type:          tx.Type(),
		Amount:        tx.Amount().StringFixed(2),
		BalanceBefore: tx.BalanceBefore().StringFixed(2),
		BalanceAfter:  tx.BalanceAfter().StringFixed(2),
		Status:        tx.Status(),
		FailureReason: tx.FailureReason(),
		Timestamp:     tx.Timestamp(),
	}
}

func newTransactionResponses(txs []domain.Transaction) []TransactionResponse {
	result := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		result = append(result, newTransactionResponse(tx))
	}
	return result
}

func newStatementResponse(st ledger.Statement) StatementResponse {
	return StatementResponse{
		Account:          newAccountResponse(st.Account, false),
		From:             st.From,
		To:               st.To,
		OpeningBalance:   st.OpeningBalance.StringFixed(2),
		ClosingBalance:   st.ClosingBalance.StringFixed(2),
		Credits:          st.Summary.Credits.StringFixed(2),
		Debits:           st.Summary.Debits.StringFixed(2),
		FeesCharged:      st.Summary.FeesCharged.StringFixed(2),
		InterestCredited: st.Summary.InterestCredited.StringFixed(2),
		SuccessCount:     st.Summary.SuccessCount,
		FailedCount:      st.Summary.FailedCount,
		Transactions:     newTransactionResponses(st.Transactions),
		GeneratedAt:      st.GeneratedAt,
	}
}

func newBatchResponse(r ledger.BatchReport) BatchResponse {
	entries := make([]BatchEntryResponse, 0, len(r.Entries))
	for _, e := range r.Entries {
		entries = append(entries, BatchEntryResponse{
			AccountNumber: e.AccountNumber,
			AccountType:   e.AccountType,
			Type:          e.Type,
			Computed:      e.Computed.StringFixed(2),
			Amount:        e.Amount.StringFixed(2),
			TransactionID: e.TransactionID,
		})
	}
	return BatchResponse{
		StartedAt:         r.StartedAt,
		AccountsProcessed: r.AccountsProcessed,
		FeesCharged:       r.FeesCharged.StringFixed(2),
		InterestCredited:  r.InterestCredited.StringFixed(2),
		Entries:           entries,
	}
}
