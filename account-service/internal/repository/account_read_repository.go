package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/banking/shared/models"
	sharedredis "github.com/eaglebank/banking/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

const accountViewKeyPrefix = "account:view:"

func accountViewKey(accountNumber string) string {
	return accountViewKeyPrefix + accountNumber
}

// NewAccountCache caches accounts in Redis only. Balances change, and every
// replica must see the refresh made after a write.
func NewAccountCache(client goredis.UniversalClient, ttl time.Duration) *sharedredis.ViewCache[models.Account] {
	return sharedredis.NewViewCache[models.Account](client, ttl, sharedredis.WithoutLocalCache())
}

// AccountReadRepository handles all read operations for accounts.
// Lookups by number go through the Redis view first and fall back to SQL,
// warming the cache on every cold read.
type AccountReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.Account]
}

func NewAccountReadRepository(db *sql.DB, cache *sharedredis.ViewCache[models.Account]) *AccountReadRepository {
	return &AccountReadRepository{db: db, cache: cache}
}

func (r *AccountReadRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	if r.cache != nil {
		if account, ok := r.cache.Get(ctx, accountViewKey(accountNumber)); ok {
			return account, nil
		}
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, accountNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	r.CacheAccount(ctx, account)
	return account, nil
}

// GetByEmail returns the oldest account of email, narrowed to accountType
// when it is set.
func (r *AccountReadRepository) GetByEmail(ctx context.Context, email, accountType string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email_id = $1`
	args := []any{email}
	if accountType != "" {
		query += ` AND account_type = $2`
		args = append(args, accountType)
	}
	query += ` ORDER BY created_at, account_number LIMIT 1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return account, nil
}

// ListByEmail returns the accounts of email, optionally only accountNumber.
func (r *AccountReadRepository) ListByEmail(ctx context.Context, email, accountNumber string) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email_id = $1`
	args := []any{email}
	if accountNumber != "" {
		query += ` AND account_number = $2`
		args = append(args, accountNumber)
	}
	query += ` ORDER BY created_at, account_number`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// CacheAccount stores or refreshes the Redis view of an account. The command
// service calls it after every mutation.
func (r *AccountReadRepository) CacheAccount(ctx context.Context, account *models.Account) {
	if r.cache != nil {
		r.cache.Set(ctx, accountViewKey(account.AccountNumber), account)
	}
}

// InvalidateAccount drops the cached view so the next read goes to SQL.
func (r *AccountReadRepository) InvalidateAccount(ctx context.Context, accountNumber string) {
	if r.cache != nil {
		r.cache.Delete(ctx, accountViewKey(accountNumber))
	}
}
