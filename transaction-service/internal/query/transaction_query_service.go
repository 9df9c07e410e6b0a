package query

import (
	"context"

	"github.com/eaglebank/banking/shared/cqrs"
	"github.com/eaglebank/banking/shared/models"
)

// LedgerReader is the read side of the ledger.
type LedgerReader interface {
	FindByID(ctx context.Context, id string) (*models.LedgerEntry, error)
	FindByAccount(ctx context.Context, accountNumber string) ([]models.LedgerEntry, error)
}

// TransactionQueryService turns ledger entries into the transactions callers see.
type TransactionQueryService struct {
	ledger LedgerReader
	// legacyTagging reports every history entry as a credit to the receiver,
	// the way the first version of the service did.
	legacyTagging bool
}

func NewTransactionQueryService(ledger LedgerReader, legacyTagging bool) *TransactionQueryService {
	return &TransactionQueryService{ledger: ledger, legacyTagging: legacyTagging}
}

// GetTransaction always reports the receiver's side of the transfer.
func (s *TransactionQueryService) GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.TransactionView, error) {
	entry, err := s.ledger.FindByID(ctx, q.TransactionID)
	if err != nil {
		return nil, err
	}
	view := receiverView(entry)
	return &view, nil
}

// TransactionHistory lists every transfer the account took part in, newest first.
//
// By default an entry is a debit when the account sent the money, and
// account_number names the receiver; it is a credit when the account
// received it, and account_number names the sender. In legacy mode every
// entry is a credit naming the receiver.
func (s *TransactionQueryService) TransactionHistory(ctx context.Context, q cqrs.TransactionHistoryQuery) ([]models.TransactionView, error) {
	entries, err := s.ledger.FindByAccount(ctx, q.AccountNumber)
	if err != nil {
		return nil, err
	}

	views := make([]models.TransactionView, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		if !entry.Involves(q.AccountNumber) {
			continue
		}
		switch {
		case s.legacyTagging:
			views = append(views, receiverView(entry))
		case entry.SenderAccountNumber == q.AccountNumber:
			views = append(views, newView(entry, models.TransactionTypeDebit, entry.ReceiverAccountNumber))
		default:
			views = append(views, newView(entry, models.TransactionTypeCredit, entry.SenderAccountNumber))
		}
	}
	return views, nil
}

func receiverView(entry *models.LedgerEntry) models.TransactionView {
	return newView(entry, models.TransactionTypeCredit, entry.ReceiverAccountNumber)
}

func newView(entry *models.LedgerEntry, txType, counterparty string) models.TransactionView {
	return models.TransactionView{
		AccountNumber:         counterparty,
		Amount:                entry.Amount,
		Reason:                entry.Reason,
		TimeStamp:             entry.Timestamp,
		Type:                  txType,
		TransactionID:         entry.ID,
		SenderAccountNumber:   entry.SenderAccountNumber,
		ReceiverAccountNumber: entry.ReceiverAccountNumber,
	}
}
