package repository

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/eaglebank/banking/shared/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeReconciliation() *models.Reconciliation {
	return &models.Reconciliation{
		TransferID:            "tr-" + gofakeit.UUID(),
		SenderAccountNumber:   "IBAN" + gofakeit.DigitN(16),
		ReceiverAccountNumber: "IBAN" + gofakeit.DigitN(16),
		Amount:                decimal.NewFromInt(30),
		SenderOriginalBalance: decimal.NewFromInt(100),
		SenderDebitedBalance:  decimal.NewFromInt(70),
		Detail:                gofakeit.Sentence(5),
	}
}

func TestReconciliationLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewReconciliationRepository(newTestLedgerDB(t))

	first := fakeReconciliation()
	second := fakeReconciliation()
	second.CreatedAt = time.Now().UTC().Add(time.Minute)

	require.NoError(t, repo.Record(ctx, first))
	require.NoError(t, repo.Record(ctx, second))
	// Same transfer delivered twice.
	require.NoError(t, repo.Record(ctx, first))

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, first.TransferID, open[0].TransferID)
	assert.True(t, open[0].SenderDebitedBalance.Equal(decimal.NewFromInt(70)))

	require.NoError(t, repo.Resolve(ctx, first.TransferID))
	assert.ErrorIs(t, repo.Resolve(ctx, first.TransferID), ErrReconciliationNotFound)

	open, err = repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, second.TransferID, open[0].TransferID)
}
