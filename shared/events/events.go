package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	AccountCreated = "account.created"
	BalanceUpdated = "balance.updated"

	TransferCompleted      = "transfer.completed"
	TransferFailed         = "transfer.failed"
	ReconciliationRequired = "reconciliation.required"
)

// Stream names
const (
	AccountEventsStream  = "account.events"
	TransferEventsStream = "transfer.events"
)

// Base event structure
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// DecodeData unmarshals the payload into v.
func (e Event) DecodeData(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Account events
type AccountCreatedEvent struct {
	AccountNumber string `json:"accountNumber"`
	EmailID       string `json:"emailId"`
	Name          string `json:"name"`
	AccountType   string `json:"accountType"`
}

type BalanceUpdatedEvent struct {
	AccountNumber string          `json:"accountNumber"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	Change        decimal.Decimal `json:"change"`
}

// Transfer events
type TransferCompletedEvent struct {
	TransactionID         string          `json:"transactionId"`
	SenderAccountNumber   string          `json:"senderAccountNumber"`
	ReceiverAccountNumber string          `json:"receiverAccountNumber"`
	Amount                decimal.Decimal `json:"amount"`
	Reason                string          `json:"reason"`
}

type TransferFailedEvent struct {
	TransferID            string          `json:"transferId"`
	SenderAccountNumber   string          `json:"senderAccountNumber,omitempty"`
	ReceiverAccountNumber string          `json:"receiverAccountNumber,omitempty"`
	SenderEmail           string          `json:"senderEmail,omitempty"`
	ReceiverEmail         string          `json:"receiverEmail,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Outcome               string          `json:"outcome"`
	Message               string          `json:"message"`
}

type ReconciliationRequiredEvent struct {
	TransferID            string          `json:"transferId"`
	SenderAccountNumber   string          `json:"senderAccountNumber"`
	ReceiverAccountNumber string          `json:"receiverAccountNumber"`
	Amount                decimal.Decimal `json:"amount"`
	SenderOriginalBalance decimal.Decimal `json:"senderOriginalBalance"`
	SenderDebitedBalance  decimal.Decimal `json:"senderDebitedBalance"`
	Detail                string          `json:"detail"`
}
