package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/banking/shared/database"
	"github.com/eaglebank/banking/shared/models"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	// ErrBalanceMismatch means the stored balance no longer equals the
	// balance the caller based its update on.
	ErrBalanceMismatch = errors.New("balance changed")
)

const accountColumns = `account_number, email_id, account_type, name, address, govt_id_number,
	government_id_type, balance, currency, created_at, updated_at`

// AccountWriteRepository handles all state-mutating operations for accounts.
// It operates exclusively against the SQL write store (source of truth).
type AccountWriteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAccountWriteRepository(db *sql.DB) *AccountWriteRepository {
	return &AccountWriteRepository{db: db, now: time.Now}
}

// Create inserts account. A second account for the same email and account
// type fails with ErrAccountExists.
func (r *AccountWriteRepository) Create(ctx context.Context, account *models.Account) error {
	now := r.now().UTC().Truncate(time.Microsecond)
	account.CreatedAt, account.UpdatedAt = now, now

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.AccountNumber, account.EmailID, account.AccountType, account.Name, account.Address,
		account.GovtIDNumber, account.GovernmentIDType, account.Balance, account.Currency,
		account.CreatedAt, account.UpdatedAt,
	)
	if database.IsUniqueViolation(err) {
		return ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountWriteRepository) ExistsByEmailAndType(ctx context.Context, email, accountType string) (bool, error) {
	query := `SELECT COUNT(*) FROM accounts WHERE email_id = $1 AND account_type = $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, email, accountType).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count > 0, nil
}

// GetByAccountNumber reads the write store, bypassing the view cache.
func (r *AccountWriteRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, accountNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// UpdateBalance sets the balance to newBalance. With expected set, the update
// only applies while the stored balance equals it; otherwise it fails with
// ErrBalanceMismatch and nothing changes.
func (r *AccountWriteRepository) UpdateBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal, expected *decimal.Decimal) error {
	var (
		result sql.Result
		err    error
	)
	updatedAt := r.now().UTC().Truncate(time.Microsecond)
	if expected == nil {
		query := `UPDATE accounts SET balance = $2, updated_at = $3 WHERE account_number = $1`
		result, err = r.db.ExecContext(ctx, query, accountNumber, newBalance, updatedAt)
	} else {
		query := `UPDATE accounts SET balance = $2, updated_at = $3 WHERE account_number = $1 AND balance = $4`
		result, err = r.db.ExecContext(ctx, query, accountNumber, newBalance, updatedAt, *expected)
	}
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}
	if expected == nil {
		return ErrAccountNotFound
	}
	if _, err := r.GetByAccountNumber(ctx, accountNumber); err != nil {
		return err
	}
	return ErrBalanceMismatch
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	if err := row.Scan(
		&account.AccountNumber, &account.EmailID, &account.AccountType, &account.Name, &account.Address,
		&account.GovtIDNumber, &account.GovernmentIDType, &account.Balance, &account.Currency,
		&account.CreatedAt, &account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return &account, nil
}
