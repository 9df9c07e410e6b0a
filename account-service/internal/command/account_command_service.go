package command

import (
	"context"
	"errors"

	"github.com/eaglebank/banking/account-service/internal/repository"
	"github.com/eaglebank/banking/shared/cqrs"
	"github.com/eaglebank/banking/shared/events"
	"github.com/eaglebank/banking/shared/logging"
	"github.com/eaglebank/banking/shared/models"
	"github.com/eaglebank/banking/shared/utils"
	"github.com/shopspring/decimal"
)

const (
	initialCurrency = "USD"
	// accountNumberAttempts bounds retries after an account number collision.
	accountNumberAttempts = 3
)

var initialBalance = decimal.NewFromInt(100)

// ErrNegativeBalance is returned for balance updates below zero.
var ErrNegativeBalance = errors.New("balance cannot be negative")

// AccountWriter is the write store of accounts.
type AccountWriter interface {
	Create(ctx context.Context, account *models.Account) error
	ExistsByEmailAndType(ctx context.Context, email, accountType string) (bool, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	UpdateBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal, expected *decimal.Decimal) error
}

// AccountViewCache keeps the read model in step with the write store.
type AccountViewCache interface {
	CacheAccount(ctx context.Context, account *models.Account)
	InvalidateAccount(ctx context.Context, accountNumber string)
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// AccountCommandService writes account state and keeps the read model in sync.
type AccountCommandService struct {
	writeRepo AccountWriter
	views     AccountViewCache
	publisher EventPublisher
}

func NewAccountCommandService(writeRepo AccountWriter, views AccountViewCache, publisher EventPublisher) *AccountCommandService {
	return &AccountCommandService{
		writeRepo: writeRepo,
		views:     views,
		publisher: publisher,
	}
}

// CreateAccount opens an account with the initial balance. Each email may
// hold one account per account type.
func (s *AccountCommandService) CreateAccount(ctx context.Context, cmd cqrs.CreateAccountCommand) (*models.Account, error) {
	exists, err := s.writeRepo.ExistsByEmailAndType(ctx, cmd.EmailID, cmd.AccountType)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, repository.ErrAccountExists
	}

	account := &models.Account{
		EmailID:          cmd.EmailID,
		AccountType:      cmd.AccountType,
		Name:             cmd.Name,
		Address:          cmd.Address,
		GovtIDNumber:     cmd.GovtIDNumber,
		GovernmentIDType: cmd.GovernmentIDType,
		Balance:          initialBalance,
		Currency:         initialCurrency,
	}
	for attempt := 1; ; attempt++ {
		account.AccountNumber = utils.GenerateAccountNumber()
		err = s.writeRepo.Create(ctx, account)
		if err == nil {
			break
		}
		// Retry number collisions, not a concurrent duplicate of email and type.
		if !errors.Is(err, repository.ErrAccountExists) || attempt == accountNumberAttempts {
			return nil, err
		}
		if exists, existsErr := s.writeRepo.ExistsByEmailAndType(ctx, cmd.EmailID, cmd.AccountType); existsErr != nil || exists {
			return nil, err
		}
	}

	s.views.CacheAccount(ctx, account)
	s.publish(ctx, events.AccountCreated, events.AccountCreatedEvent{
		AccountNumber: account.AccountNumber,
		EmailID:       account.EmailID,
		Name:          account.Name,
		AccountType:   account.AccountType,
	})
	logging.FromContext(ctx).WithField("account_number", account.AccountNumber).Info("account created")
	return account, nil
}

// UpdateBalance sets an absolute balance. With ExpectedBalance set the update
// is refused when the stored balance differs.
func (s *AccountCommandService) UpdateBalance(ctx context.Context, cmd cqrs.UpdateBalanceCommand) (*models.Account, error) {
	if cmd.NewBalance.IsNegative() {
		return nil, ErrNegativeBalance
	}

	previous, err := s.writeRepo.GetByAccountNumber(ctx, cmd.AccountNumber)
	if err != nil {
		return nil, err
	}

	if err := s.writeRepo.UpdateBalance(ctx, cmd.AccountNumber, cmd.NewBalance, cmd.ExpectedBalance); err != nil {
		if errors.Is(err, repository.ErrBalanceMismatch) {
			s.views.InvalidateAccount(ctx, cmd.AccountNumber)
		}
		return nil, err
	}

	s.publish(ctx, events.BalanceUpdated, events.BalanceUpdatedEvent{
		AccountNumber: cmd.AccountNumber,
		NewBalance:    cmd.NewBalance,
		Change:        cmd.NewBalance.Sub(previous.Balance),
	})

	updated, err := s.writeRepo.GetByAccountNumber(ctx, cmd.AccountNumber)
	if err != nil {
		// The update is committed; only the view refresh is lost.
		s.views.InvalidateAccount(ctx, cmd.AccountNumber)
		logging.FromContext(ctx).WithError(err).WithField("account_number", cmd.AccountNumber).
			Warn("failed to reload account after balance update")
		previous.Balance = cmd.NewBalance
		return previous, nil
	}
	s.views.CacheAccount(ctx, updated)
	return updated, nil
}

func (s *AccountCommandService) publish(ctx context.Context, eventType string, data any) {
	if err := s.publisher.Publish(ctx, events.AccountEventsStream, eventType, data); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("event", eventType).Warn("failed to publish event")
	}
}
