package repository

import (
	"context"
	"database/sql"

	"github.com/eaglebank/banking/shared/database"
)

const (
	DriverPostgres = database.DriverPostgres
	DriverSQLite   = database.DriverSQLite
)

// ledgerSchema is valid for both Postgres and SQLite. Tables are only ever
// created, never altered.
var ledgerSchema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(64) PRIMARY KEY,
		sender VARCHAR(64) NOT NULL,
		receiver VARCHAR(64) NOT NULL,
		amount NUMERIC(20, 4) NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		time_stamp TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions (sender)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions (receiver)`,
	`CREATE TABLE IF NOT EXISTS reconciliations (
		transfer_id VARCHAR(64) PRIMARY KEY,
		sender VARCHAR(64) NOT NULL,
		receiver VARCHAR(64) NOT NULL,
		amount NUMERIC(20, 4) NOT NULL,
		sender_original_balance NUMERIC(20, 4) NOT NULL,
		sender_debited_balance NUMERIC(20, 4) NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP NULL
	)`,
}

// OpenLedgerDB connects to the ledger store and makes sure its tables exist.
func OpenLedgerDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	return database.Open(ctx, driver, dsn, ledgerSchema)
}

func EnsureLedgerSchema(ctx context.Context, db *sql.DB) error {
	return database.EnsureSchema(ctx, db, ledgerSchema)
}
