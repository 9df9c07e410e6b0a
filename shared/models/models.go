package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts and balances travel as JSON numbers between the services.
	decimal.MarshalJSONWithoutQuotes = true
}

// Account is the accounts authority's write model.
type Account struct {
	AccountNumber    string          `json:"account_number"`
	Name             string          `json:"name"`
	Balance          decimal.Decimal `json:"balance"`
	Currency         string          `json:"currency"`
	EmailID          string          `json:"email_id"`
	AccountType      string          `json:"account_type"`
	Address          string          `json:"address"`
	GovtIDNumber     string          `json:"govt_id_number"`
	GovernmentIDType string          `json:"government_id_type"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// LedgerEntry is one completed transfer. Entries are never updated or deleted.
type LedgerEntry struct {
	ID                    string          `json:"id"`
	SenderAccountNumber   string          `json:"sender"`
	ReceiverAccountNumber string          `json:"receiver"`
	Amount                decimal.Decimal `json:"amount"`
	Reason                string          `json:"reason"`
	Timestamp             time.Time       `json:"time_stamp"`
}

// Involves reports whether accountNumber is the sender or the receiver.
func (e LedgerEntry) Involves(accountNumber string) bool {
	return e.SenderAccountNumber == accountNumber || e.ReceiverAccountNumber == accountNumber
}

// Reconciliation records a transfer that debited the sender, failed to credit
// the receiver and could not restore the sender afterwards.
type Reconciliation struct {
	TransferID            string          `json:"transfer_id"`
	SenderAccountNumber   string          `json:"sender"`
	ReceiverAccountNumber string          `json:"receiver"`
	Amount                decimal.Decimal `json:"amount"`
	SenderOriginalBalance decimal.Decimal `json:"sender_original_balance"`
	SenderDebitedBalance  decimal.Decimal `json:"sender_debited_balance"`
	Detail                string          `json:"detail"`
	CreatedAt             time.Time       `json:"created_at"`
	ResolvedAt            *time.Time      `json:"resolved_at,omitempty"`
}
