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

const ledgerEntryKeyPrefix = "ledger:entry:"

func ledgerEntryKey(id string) string {
	return ledgerEntryKeyPrefix + id
}

// NewLedgerCache caches ledger entries for a day. Entries never change, so
// the in-process tier is safe to use.
func NewLedgerCache(client goredis.UniversalClient) *sharedredis.ViewCache[models.LedgerEntry] {
	return sharedredis.NewViewCache[models.LedgerEntry](client, 24*time.Hour)
}

// LedgerReadRepository serves ledger lookups. Point lookups go through the
// Redis cache first; history always reads the database.
type LedgerReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.LedgerEntry]
}

func NewLedgerReadRepository(db *sql.DB, cache *sharedredis.ViewCache[models.LedgerEntry]) *LedgerReadRepository {
	return &LedgerReadRepository{db: db, cache: cache}
}

func (r *LedgerReadRepository) FindByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	if r.cache != nil {
		if entry, ok := r.cache.Get(ctx, ledgerEntryKey(id)); ok {
			return entry, nil
		}
	}

	query := `
		SELECT id, sender, receiver, amount, reason, time_stamp
		FROM transactions
		WHERE id = $1
	`
	entry, err := scanLedgerEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get transaction: %v", ErrPersistenceUnavailable, err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, ledgerEntryKey(id), entry)
	}
	return entry, nil
}

// FindByAccount returns every entry where accountNumber is sender or
// receiver, newest first.
func (r *LedgerReadRepository) FindByAccount(ctx context.Context, accountNumber string) ([]models.LedgerEntry, error) {
	query := `
		SELECT id, sender, receiver, amount, reason, time_stamp
		FROM transactions
		WHERE sender = $1 OR receiver = $1
		ORDER BY time_stamp DESC, id
	`
	rows, err := r.db.QueryContext(ctx, query, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list transactions: %v", ErrPersistenceUnavailable, err)
	}
	defer rows.Close()

	entries := make([]models.LedgerEntry, 0)
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan transaction: %v", ErrPersistenceUnavailable, err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to list transactions: %v", ErrPersistenceUnavailable, err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedgerEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := row.Scan(
		&entry.ID, &entry.SenderAccountNumber, &entry.ReceiverAccountNumber,
		&entry.Amount, &entry.Reason, &entry.Timestamp,
	); err != nil {
		return nil, err
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return &entry, nil
}
