package repository

import (
	"context"
	"database/sql"

	"github.com/eaglebank/banking/shared/database"
)

// accountsSchema is valid for both Postgres and SQLite.
var accountsSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		account_number VARCHAR(32) PRIMARY KEY,
		email_id VARCHAR(255) NOT NULL,
		account_type VARCHAR(32) NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		govt_id_number TEXT NOT NULL DEFAULT '',
		government_id_type TEXT NOT NULL DEFAULT '',
		balance NUMERIC(20, 4) NOT NULL,
		currency VARCHAR(3) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email_type ON accounts (email_id, account_type)`,
}

// OpenAccountsDB connects to the accounts store and makes sure its table exists.
func OpenAccountsDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	return database.Open(ctx, driver, dsn, accountsSchema)
}
