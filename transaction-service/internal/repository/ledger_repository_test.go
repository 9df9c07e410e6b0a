package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/eaglebank/banking/shared/models"
	sharedredis "github.com/eaglebank/banking/shared/redis"
	"github.com/eaglebank/banking/shared/utils"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedgerDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenLedgerDB(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestLedgerCache(t *testing.T) (*sharedredis.ViewCache[models.LedgerEntry], *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLedgerCache(client), mr
}

func TestEnsureLedgerSchemaIsIdempotent(t *testing.T) {
	db := newTestLedgerDB(t)
	require.NoError(t, EnsureLedgerSchema(context.Background(), db))
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	db := newTestLedgerDB(t)
	writer := NewLedgerWriteRepository(db, nil)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))
	writer.now = func() time.Time { return fixed }

	entry, err := writer.Append(ctx, "IBAN-A", "IBAN-B", decimal.NewFromInt(30), "rent")
	require.NoError(t, err)

	assert.True(t, utils.ValidateTransactionID(entry.ID))
	assert.Equal(t, time.UTC, entry.Timestamp.Location())
	assert.True(t, entry.Timestamp.Equal(fixed.Truncate(time.Microsecond)))

	other, err := writer.Append(ctx, "IBAN-A", "IBAN-B", decimal.NewFromInt(30), "rent")
	require.NoError(t, err)
	assert.NotEqual(t, entry.ID, other.ID)
}

func TestFindByIDAfterAppend(t *testing.T) {
	ctx := context.Background()
	db := newTestLedgerDB(t)
	writer := NewLedgerWriteRepository(db, nil)
	reader := NewLedgerReadRepository(db, nil)

	entry, err := writer.Append(ctx, "IBAN-A", "IBAN-B", decimal.RequireFromString("30.5"), "rent")
	require.NoError(t, err)

	got, err := reader.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "IBAN-A", got.SenderAccountNumber)
	assert.Equal(t, "IBAN-B", got.ReceiverAccountNumber)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("30.5")))
	assert.Equal(t, "rent", got.Reason)
	assert.True(t, got.Timestamp.Equal(entry.Timestamp))

	_, err = reader.FindByID(ctx, "tan-missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestFindByAccountReturnsBothSidesNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := newTestLedgerDB(t)
	writer := NewLedgerWriteRepository(db, nil)
	reader := NewLedgerReadRepository(db, nil)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	writer.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	sent, err := writer.Append(ctx, "IBAN-X", "IBAN-Y", decimal.NewFromInt(10), "sent")
	require.NoError(t, err)
	_, err = writer.Append(ctx, "IBAN-Y", "IBAN-Z", decimal.NewFromInt(20), "unrelated")
	require.NoError(t, err)
	received, err := writer.Append(ctx, "IBAN-Z", "IBAN-X", decimal.NewFromInt(30), "received")
	require.NoError(t, err)

	entries, err := reader.FindByAccount(ctx, "IBAN-X")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, received.ID, entries[0].ID)
	assert.Equal(t, sent.ID, entries[1].ID)
	for _, e := range entries {
		assert.True(t, e.Involves("IBAN-X"))
	}

	none, err := reader.FindByAccount(ctx, "IBAN-NOBODY")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestFindByIDUsesCache(t *testing.T) {
	ctx := context.Background()
	db := newTestLedgerDB(t)
	cache, mr := newTestLedgerCache(t)
	writer := NewLedgerWriteRepository(db, cache)
	reader := NewLedgerReadRepository(db, cache)

	entry, err := writer.Append(ctx, "IBAN-A", "IBAN-B", decimal.NewFromInt(5), "coffee")
	require.NoError(t, err)
	assert.True(t, mr.Exists(ledgerEntryKey(entry.ID)))

	_, err = db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, entry.ID)
	require.NoError(t, err)

	got, err := reader.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(5)))
}

func TestFindByIDWarmsCacheOnMiss(t *testing.T) {
	ctx := context.Background()
	db := newTestLedgerDB(t)
	cache, mr := newTestLedgerCache(t)
	writer := NewLedgerWriteRepository(db, nil)
	reader := NewLedgerReadRepository(db, cache)

	entry, err := writer.Append(ctx, "IBAN-A", "IBAN-B", decimal.NewFromInt(5), "coffee")
	require.NoError(t, err)
	assert.False(t, mr.Exists(ledgerEntryKey(entry.ID)))

	_, err = reader.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists(ledgerEntryKey(entry.ID)))
}

func TestAppendFailureIsPersistenceUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(sqlmock.AnyArg(), "IBAN-A", "IBAN-B", sqlmock.AnyArg(), "rent", sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	writer := NewLedgerWriteRepository(db, nil)
	_, err = writer.Append(context.Background(), "IBAN-A", "IBAN-B", decimal.NewFromInt(30), "rent")
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadFailuresArePersistenceUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, sender, receiver, amount, reason, time_stamp").
		WithArgs("tan-1").
		WillReturnError(errors.New("timeout"))
	mock.ExpectQuery("SELECT id, sender, receiver, amount, reason, time_stamp").
		WithArgs("IBAN-A").
		WillReturnError(errors.New("timeout"))

	reader := NewLedgerReadRepository(db, nil)
	_, err = reader.FindByID(context.Background(), "tan-1")
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)

	_, err = reader.FindByAccount(context.Background(), "IBAN-A")
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
