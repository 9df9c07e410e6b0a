package cqrs

import "github.com/shopspring/decimal"

// TransferCommand moves Amount between two accounts identified by number.
type TransferCommand struct {
	SenderAccountNumber   string
	ReceiverAccountNumber string
	Amount                decimal.Decimal
	Reason                string
}

// AliasTransferCommand moves Amount between two accounts identified by the
// owner's email and, optionally, the account type.
type AliasTransferCommand struct {
	SenderEmail         string
	SenderAccountType   string
	ReceiverEmail       string
	ReceiverAccountType string
	Amount              decimal.Decimal
	Reason              string
}

type CreateAccountCommand struct {
	EmailID          string
	AccountType      string
	Name             string
	Address          string
	GovtIDNumber     string
	GovernmentIDType string
}

// UpdateBalanceCommand sets an account balance to an absolute value. When
// ExpectedBalance is set the update only applies if the stored balance still
// equals it.
type UpdateBalanceCommand struct {
	AccountNumber   string
	NewBalance      decimal.Decimal
	ExpectedBalance *decimal.Decimal
}
