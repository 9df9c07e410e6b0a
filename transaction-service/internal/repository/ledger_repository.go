package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/banking/shared/models"
	sharedredis "github.com/eaglebank/banking/shared/redis"
	"github.com/eaglebank/banking/shared/utils"
	"github.com/shopspring/decimal"
)

var (
	ErrPersistenceUnavailable = errors.New("ledger unavailable")
	ErrTransactionNotFound    = errors.New("transaction not found")
)

// LedgerWriteRepository appends completed transfers. Entries are never
// updated or deleted.
type LedgerWriteRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.LedgerEntry]
	now   func() time.Time
}

// NewLedgerWriteRepository takes an optional cache that is warmed on append.
func NewLedgerWriteRepository(db *sql.DB, cache *sharedredis.ViewCache[models.LedgerEntry]) *LedgerWriteRepository {
	return &LedgerWriteRepository{db: db, cache: cache, now: time.Now}
}

// Append assigns the entry id and timestamp and stores it.
func (r *LedgerWriteRepository) Append(ctx context.Context, sender, receiver string, amount decimal.Decimal, reason string) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		ID:                    utils.GenerateID("tan"),
		SenderAccountNumber:   sender,
		ReceiverAccountNumber: receiver,
		Amount:                amount,
		Reason:                reason,
		Timestamp:             r.now().UTC().Truncate(time.Microsecond),
	}

	query := `
		INSERT INTO transactions (id, sender, receiver, amount, reason, time_stamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.SenderAccountNumber, entry.ReceiverAccountNumber,
		entry.Amount, entry.Reason, entry.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to append transaction: %v", ErrPersistenceUnavailable, err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, ledgerEntryKey(entry.ID), entry)
	}
	return entry, nil
}
