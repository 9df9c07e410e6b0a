package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/eaglebank/banking/account-service/internal/command"
	"github.com/eaglebank/banking/account-service/internal/handler"
	"github.com/eaglebank/banking/account-service/internal/query"
	"github.com/eaglebank/banking/account-service/internal/repository"
	"github.com/eaglebank/banking/shared/events"
	"github.com/eaglebank/banking/shared/models"
	sharedredis "github.com/eaglebank/banking/shared/redis"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"
)

// Injector calls function with its arguments resolved from the container.
type Injector func(function interface{}) error

// BootstrapServices builds the dependency graph of the service.
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
			return repository.OpenAccountsDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		},
		func(client goredis.UniversalClient) *sharedredis.ViewCache[models.Account] {
			return repository.NewAccountCache(client, cfg.CacheTTL)
		},
		repository.NewAccountWriteRepository,
		repository.NewAccountReadRepository,
		events.NewPublisher,
		func(writer *repository.AccountWriteRepository, reader *repository.AccountReadRepository, publisher *events.Publisher) *command.AccountCommandService {
			return command.NewAccountCommandService(writer, reader, publisher)
		},
		func(reader *repository.AccountReadRepository) *query.AccountQueryService {
			return query.NewAccountQueryService(reader)
		},
		func(commands *command.AccountCommandService, queries *query.AccountQueryService) *handler.AccountHandler {
			return handler.NewAccountHandler(commands, queries)
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
