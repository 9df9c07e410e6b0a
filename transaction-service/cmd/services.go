package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/eaglebank/banking/shared/events"
	sharedredis "github.com/eaglebank/banking/shared/redis"
	"github.com/eaglebank/banking/transaction-service/internal/command"
	"github.com/eaglebank/banking/transaction-service/internal/handler"
	"github.com/eaglebank/banking/transaction-service/internal/query"
	"github.com/eaglebank/banking/transaction-service/internal/repository"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"
)

// Injector calls function with its arguments resolved from the container.
type Injector func(function interface{}) error

// BootstrapServices builds the dependency graph of the service. Connections
// are opened lazily, on the first Invoke that needs them.
func BootstrapServices(cfg *Config) (Injector, error) {
	c := dig.New()

	constructors := []interface{}{
		func() (*sharedredis.Client, error) {
			return sharedredis.NewClient(cfg.Redis)
		},
		func(client *sharedredis.Client) goredis.UniversalClient {
			return client.Client
		},
		func() (*sql.DB, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return repository.OpenLedgerDB(ctx, cfg.LedgerDriver, cfg.DatabaseURL)
		},
		repository.NewLedgerCache,
		repository.NewLedgerWriteRepository,
		repository.NewLedgerReadRepository,
		repository.NewReconciliationRepository,
		func() *repository.AccountRepository {
			return repository.NewAccountRepository(repository.AccountRepositoryConfig{
				BaseURL:     cfg.AccountsServiceURL,
				Timeout:     cfg.AccountsTimeout,
				ReadRetries: cfg.AccountsReadRetries,
			})
		},
		func(client goredis.UniversalClient) *command.RedisLocker {
			return command.NewRedisLocker(client, cfg.LockTTL, cfg.LockWait)
		},
		events.NewPublisher,
		func(
			accounts *repository.AccountRepository,
			ledger *repository.LedgerWriteRepository,
			locker *command.RedisLocker,
			publisher *events.Publisher,
			reconciliations *repository.ReconciliationRepository,
		) *command.TransferCommandService {
			return command.NewTransferCommandService(accounts, ledger, locker, publisher, reconciliations, command.TransferOptions{
				ConditionalUpdates: cfg.ConditionalBalanceUpdates,
				WriteTimeout:       cfg.TransferWriteTimeout,
				CompensateAttempts: cfg.CompensateAttempts,
				RecordTimeout:      cfg.TransferRecordTimeout,
			})
		},
		func(ledger *repository.LedgerReadRepository) *query.TransactionQueryService {
			return query.NewTransactionQueryService(ledger, cfg.HistoryLegacyCreditTagging)
		},
		func(commands *command.TransferCommandService, queries *query.TransactionQueryService) *handler.TransactionHandler {
			return handler.NewTransactionHandler(commands, queries)
		},
	}
	for _, constructor := range constructors {
		if err := c.Provide(constructor); err != nil {
			return nil, err
		}
	}

	return func(function interface{}) error {
		return c.Invoke(function)
	}, nil
}
