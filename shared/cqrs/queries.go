package cqrs

// ---------- Account queries ----------

// GetAccountQuery fetches a single account by account number.
type GetAccountQuery struct {
	AccountNumber string
}

// GetAccountByEmailQuery resolves an email alias. An empty AccountType lets
// the accounts service pick the first match.
type GetAccountByEmailQuery struct {
	EmailID     string
	AccountType string
}

// ListAccountsQuery fetches the accounts of one owner, optionally narrowed to
// one account number.
type ListAccountsQuery struct {
	EmailID       string
	AccountNumber string
}

// ---------- Transaction queries ----------

// GetTransactionQuery fetches a single ledger entry.
type GetTransactionQuery struct {
	TransactionID string
}

// TransactionHistoryQuery fetches every entry where the account is sender or receiver.
type TransactionHistoryQuery struct {
	AccountNumber string
}
