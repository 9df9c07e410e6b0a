package query

import (
	"context"

	"github.com/eaglebank/banking/shared/cqrs"
	"github.com/eaglebank/banking/shared/models"
)

// AccountReader is the read model of accounts.
type AccountReader interface {
	GetByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	GetByEmail(ctx context.Context, email, accountType string) (*models.Account, error)
	ListByEmail(ctx context.Context, email, accountNumber string) ([]models.Account, error)
}

type AccountQueryService struct {
	readRepo AccountReader
}

func NewAccountQueryService(readRepo AccountReader) *AccountQueryService {
	return &AccountQueryService{readRepo: readRepo}
}

// GetAccount returns the projection the transfer flow relies on.
func (s *AccountQueryService) GetAccount(ctx context.Context, q cqrs.GetAccountQuery) (*models.AccountView, error) {
	account, err := s.readRepo.GetByAccountNumber(ctx, q.AccountNumber)
	if err != nil {
		return nil, err
	}
	return account.ToView(), nil
}

// GetAccountByEmail resolves an email alias to one account.
func (s *AccountQueryService) GetAccountByEmail(ctx context.Context, q cqrs.GetAccountByEmailQuery) (*models.AccountView, error) {
	account, err := s.readRepo.GetByEmail(ctx, q.EmailID, q.AccountType)
	if err != nil {
		return nil, err
	}
	return account.ToView(), nil
}

func (s *AccountQueryService) ListAccounts(ctx context.Context, q cqrs.ListAccountsQuery) ([]models.Account, error) {
	return s.readRepo.ListByEmail(ctx, q.EmailID, q.AccountNumber)
}
