package httpapi

import (
	"github.com/MarkoPoloResearchLab/bankledger/internal/report"
	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
)

type openRequest struct {
	HolderName     string `json:"holder_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Category       string `json:"category"`
	PIN            string `json:"pin"`
	InitialDeposit string `json:"initial_deposit"`
}

type loginRequest struct {
	AccountID string `json:"account_id"`
	PIN       string `json:"pin"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type transferRequest struct {
	ToAccountID string `json:"to_account_id"`
	Amount      string `json:"amount"`
}

type changePINRequest struct {
	CurrentPIN string `json:"current_pin"`
	NewPIN     string `json:"new_pin"`
}

type closeAccountRequest struct {
	PIN string `json:"pin"`
}

type pinResetRequest struct {
	AccountID string `json:"account_id"`
	Proof     string `json:"proof"`
	NewPIN    string `json:"new_pin"`
}

type interestRequest struct {
	Rate string `json:"rate"`
}

type accountPayload struct {
	AccountID    string `json:"account_id"`
	BVN          string `json:"bvn"`
	HolderName   string `json:"holder_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Category     string `json:"category"`
	Balance      string `json:"balance"`
	BalanceCents int64  `json:"balance_cents"`
}

type receiptPayload struct {
	AccountID          string `json:"account_id"`
	CounterpartyID     string `json:"counterparty_id,omitempty"`
	Kind               string `json:"kind"`
	Amount             string `json:"amount"`
	AmountCents        int64  `json:"amount_cents"`
	BalanceBefore      string `json:"balance_before"`
	BalanceBeforeCents int64  `json:"balance_before_cents"`
	BalanceAfter       string `json:"balance_after"`
	BalanceAfterCents  int64  `json:"balance_after_cents"`
	Timestamp          string `json:"timestamp"`
	CreatedUnixUTC     int64  `json:"created_unix_utc"`
}

type entryPayload struct {
	Timestamp      string `json:"timestamp"`
	Kind           string `json:"kind"`
	Amount         string `json:"amount"`
	AmountCents    int64  `json:"amount_cents"`
	BalanceBefore  string `json:"balance_before"`
	BalanceAfter   string `json:"balance_after"`
	Note           string `json:"note"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type categoryPayload struct {
	Category     string `json:"category"`
	AccountCount int    `json:"account_count"`
	Balance      string `json:"balance"`
	BalanceCents int64  `json:"balance_cents"`
}

type summaryPayload struct {
	AccountCount      int               `json:"account_count"`
	TotalBalance      string            `json:"total_balance"`
	TotalBalanceCents int64             `json:"total_balance_cents"`
	Categories        []categoryPayload `json:"categories"`
}

func newAccountPayload(account ledger.Account) accountPayload {
	return accountPayload{
		AccountID:    account.ID.String(),
		BVN:          account.SecondaryID.String(),
		HolderName:   account.HolderName,
		Email:        account.Contact.Email,
		Phone:        account.Contact.Phone,
		Category:     account.Category.String(),
		Balance:      account.BalanceCents.String(),
		BalanceCents: account.BalanceCents.Int64(),
	}
}

func newAccountPayloads(accounts []ledger.Account) []accountPayload {
	payloads := make([]accountPayload, 0, len(accounts))
	for _, account := range accounts {
		payloads = append(payloads, newAccountPayload(account))
	}
	return payloads
}

func newReceiptPayload(receipt ledger.Receipt) receiptPayload {
	payload := receiptPayload{
		AccountID:          receipt.AccountID.String(),
		Kind:               receipt.Kind.String(),
		Amount:             receipt.AmountCents.String(),
		AmountCents:        receipt.AmountCents.Int64(),
		BalanceBefore:      receipt.BeforeCents.String(),
		BalanceBeforeCents: receipt.BeforeCents.Int64(),
		BalanceAfter:       receipt.AfterCents.String(),
		BalanceAfterCents:  receipt.AfterCents.Int64(),
		Timestamp:          ledger.FormatTimestamp(receipt.CreatedUnixUTC),
		CreatedUnixUTC:     receipt.CreatedUnixUTC,
	}
	if !receipt.CounterpartyID.IsZero() {
		payload.CounterpartyID = receipt.CounterpartyID.String()
	}
	return payload
}

func newEntryPayloads(entries []ledger.Entry) []entryPayload {
	payloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, entryPayload{
			Timestamp:      ledger.FormatTimestamp(entry.CreatedUnixUTC),
			Kind:           entry.Kind.String(),
			Amount:         entry.AmountCents.String(),
			AmountCents:    entry.AmountCents.Int64(),
			BalanceBefore:  entry.BeforeCents.String(),
			BalanceAfter:   entry.AfterCents.String(),
			Note:           entry.Note,
			CreatedUnixUTC: entry.CreatedUnixUTC,
		})
	}
	return payloads
}

func newSummaryPayload(summary report.Summary) summaryPayload {
	categories := make([]categoryPayload, 0, len(summary.Categories))
	for _, total := range summary.Categories {
		categories = append(categories, categoryPayload{
			Category:     total.Category.String(),
			AccountCount: total.AccountCount,
			Balance:      total.BalanceCents.String(),
			BalanceCents: total.BalanceCents.Int64(),
		})
	}
	return summaryPayload{
		AccountCount:      summary.AccountCount,
		TotalBalance:      summary.TotalBalanceCents.String(),
		TotalBalanceCents: summary.TotalBalanceCents.Int64(),
		Categories:        categories,
	}
}
