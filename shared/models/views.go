package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountView is the projection returned by account lookups and relied upon
// by the transaction service. It carries nothing the transfer flow does not
// need besides the display name and currency.
type AccountView struct {
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	EmailID       string          `json:"email_id"`
	AccountType   string          `json:"account_type"`
}

// IsZero is true for the empty object the accounts authority returns for an
// unknown account.
func (v AccountView) IsZero() bool {
	return v.AccountNumber == ""
}

// ToView projects the write model.
func (a *Account) ToView() *AccountView {
	return &AccountView{
		AccountNumber: a.AccountNumber,
		Name:          a.Name,
		Balance:       a.Balance,
		Currency:      a.Currency,
		EmailID:       a.EmailID,
		AccountType:   a.AccountType,
	}
}

// Transaction types as seen from the queried account.
const (
	TransactionTypeCredit = "credit"
	TransactionTypeDebit  = "debit"
)

// TransactionView is a ledger entry as reported to API callers.
type TransactionView struct {
	AccountNumber         string          `json:"account_number"`
	Amount                decimal.Decimal `json:"amount"`
	Reason                string          `json:"reason"`
	TimeStamp             time.Time       `json:"time_stamp"`
	Type                  string          `json:"type"`
	TransactionID         string          `json:"transaction_id"`
	SenderAccountNumber   string          `json:"sender_account_number"`
	ReceiverAccountNumber string          `json:"receiver_account_number"`
}
